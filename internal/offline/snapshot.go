package offline

import "sync"

// Snapshot is an immutable point-in-time view of the offline cache,
// handed to subscribers after every mutation. It never aliases store
// internals; subscribers may keep it indefinitely.
type Snapshot struct {
	Ready bool `json:"ready"`

	// Playlists and Tracks are keyed by identifier.
	Playlists map[int64]Playlist `json:"playlists"`
	Tracks    map[int64]Track    `json:"tracks"`

	// Progress holds the download fraction in [0,1] for each playlist
	// download currently in flight. Absent means not downloading.
	Progress map[int64]float64 `json:"progress"`

	// ActivePlaylists and ActiveTracks are the duplicate-start guard sets.
	ActivePlaylists map[int64]bool `json:"active_playlists"`
	ActiveTracks    map[int64]bool `json:"active_tracks"`

	// Status describes the most recent completed or failed operation.
	Status string `json:"status"`
}

// Listener receives a snapshot after every state change
type Listener func(Snapshot)

// subscriber wraps a listener with a removal flag so unsubscribing is
// safe while a publish is iterating.
type subscriber struct {
	fn      Listener
	removed bool
}

// notifier delivers snapshots to subscribers synchronously and in order.
type notifier struct {
	mu   sync.Mutex
	subs []*subscriber

	// publishMu serializes deliveries so listeners observe state
	// transitions in the exact order they occurred.
	publishMu sync.Mutex
}

// subscribeWith registers fn, immediately delivers the current snapshot
// to it, and returns an unsubscribe function that is safe to call
// multiple times and from within a listener callback.
func (n *notifier) subscribeWith(fn Listener, current func() Snapshot) func() {
	sub := &subscriber{fn: fn}

	// Hold publishMu across registration and the initial delivery so the
	// first snapshot the listener sees is not older than one already
	// being published.
	n.publishMu.Lock()
	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	sub.fn(current())
	n.publishMu.Unlock()

	return func() {
		n.mu.Lock()
		sub.removed = true
		n.mu.Unlock()
	}
}

// publishWith builds a snapshot and delivers it to every live
// subscriber. The snapshot is built under publishMu so that deliveries
// from concurrent mutations carry states in the order they are
// delivered.
func (n *notifier) publishWith(build func() Snapshot) {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()
	snap := build()

	n.mu.Lock()
	// Compact removed subscribers while building the delivery list.
	live := n.subs[:0]
	for _, sub := range n.subs {
		if !sub.removed {
			live = append(live, sub)
		}
	}
	n.subs = live
	targets := make([]*subscriber, len(live))
	copy(targets, live)
	n.mu.Unlock()

	for _, sub := range targets {
		n.mu.Lock()
		removed := sub.removed
		n.mu.Unlock()
		if !removed {
			sub.fn(snap)
		}
	}
}
