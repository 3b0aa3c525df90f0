package offline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
	"github.com/helloworldxdwastaken/noxa-core/internal/monitoring"
)

// Journal receives best-effort notifications about cache lifecycle events
// for the download history log. Implementations must not block.
type Journal interface {
	RecordDownloaded(trackID int64, title, artist, album, path string, size int64)
	RecordRemoved(trackID int64, title, artist, album string)
}

// Store is the central authority over the offline cache: the relational
// maps of playlists and tracks, the mutation operations that keep them
// bidirectionally consistent, and change notification.
//
// All mutating operations serialize state changes through one mutex;
// network and disk I/O happen outside it. Expected per-item failures (a
// single track failing mid-playlist) never surface as errors to the
// caller; operations return errors only for caller misuse or storage
// initialization failures.
type Store struct {
	fs      afero.Fs
	layout  *Layout
	codec   *Codec
	exec    *Executor
	journal Journal
	log     *zap.Logger

	initOnce sync.Once
	initErr  error

	mu              sync.Mutex
	ready           bool
	tracks          map[int64]*trackRecord
	playlists       map[int64]*playlistRecord
	progress        map[int64]float64
	activePlaylists map[int64]struct{}
	activeTracks    map[int64]struct{}
	status          string

	// saveMu keeps metadata document writes from interleaving.
	saveMu sync.Mutex

	notifier notifier
}

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithLogger sets the store logger
func WithLogger(log *zap.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// WithJournal attaches a download history journal
func WithJournal(j Journal) StoreOption {
	return func(s *Store) {
		s.journal = j
	}
}

// NewStore creates a Store caching under dataDir on fs, downloading
// through exec. Call Initialize before any other operation.
func NewStore(fs afero.Fs, dataDir string, exec *Executor, opts ...StoreOption) *Store {
	s := &Store{
		fs:              fs,
		layout:          NewLayout(fs, dataDir),
		exec:            exec,
		log:             zap.NewNop(),
		tracks:          make(map[int64]*trackRecord),
		playlists:       make(map[int64]*playlistRecord),
		progress:        make(map[int64]float64),
		activePlaylists: make(map[int64]struct{}),
		activeTracks:    make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codec = NewCodec(fs, s.layout.MetadataPath(), s.log)
	return s
}

// Initialize prepares storage and loads the persisted library. It is
// idempotent: concurrent and repeated calls share one initialization and
// its outcome. Emits one notification on success.
func (s *Store) Initialize() error {
	s.initOnce.Do(func() {
		if err := s.layout.EnsureDirs(); err != nil {
			s.initErr = apperrors.NewFileSystemError("offline storage initialization failed", err)
			return
		}

		playlists, tracks := s.codec.Load()

		s.mu.Lock()
		for _, t := range tracks {
			s.tracks[t.ID] = recordFromTrack(t)
		}
		for _, p := range playlists {
			s.playlists[p.ID] = recordFromPlaylist(p)
		}
		s.reconcileLocked()
		s.ready = true
		s.mu.Unlock()

		s.log.Info("offline store initialized",
			zap.Int("tracks", len(tracks)),
			zap.Int("playlists", len(playlists)))
		s.notify()
	})
	return s.initErr
}

// reconcileLocked restores the bidirectional relation invariant after
// loading from disk: dangling references are dropped and playlists left
// without tracks are deleted.
func (s *Store) reconcileLocked() {
	for _, rec := range s.tracks {
		for pid := range rec.playlists {
			p, ok := s.playlists[pid]
			if !ok {
				delete(rec.playlists, pid)
				continue
			}
			p.tracks[rec.id] = struct{}{}
		}
	}
	for pid, p := range s.playlists {
		for tid := range p.tracks {
			rec, ok := s.tracks[tid]
			if !ok {
				delete(p.tracks, tid)
				continue
			}
			rec.playlists[pid] = struct{}{}
		}
		if len(p.tracks) == 0 {
			delete(s.playlists, pid)
		}
	}
}

// DownloadPlaylist caches every track of a playlist, sequentially, with
// per-track progress. Already-cached tracks are attached without a
// re-download; tracks that fail are skipped. A download already active
// for the same playlist id makes this a no-op. The library document is
// persisted exactly once, at the end.
func (s *Store) DownloadPlaylist(ctx context.Context, pl PlaylistInfo, tracks []TrackInfo) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	if pl.ID == 0 {
		return apperrors.NewValidationError("playlist id is required")
	}
	if len(tracks) == 0 {
		return nil
	}

	s.mu.Lock()
	if _, active := s.activePlaylists[pl.ID]; active {
		s.mu.Unlock()
		return nil
	}
	s.activePlaylists[pl.ID] = struct{}{}
	s.progress[pl.ID] = 0
	s.mu.Unlock()

	monitoring.ActiveDownloads.Inc()
	s.notify()

	cached := 0
	for i, track := range tracks {
		ok, err := s.cacheTrack(ctx, track, pl.ID, &pl)
		if err != nil {
			// Metadata is always supplied here, so attach cannot fail;
			// anything else is unexpected and worth logging.
			s.log.Warn("unexpected attach failure during playlist download",
				zap.Int64("playlist_id", pl.ID), zap.Int64("track_id", track.ID), zap.Error(err))
		}
		if ok {
			cached++
		}

		s.mu.Lock()
		s.progress[pl.ID] = float64(i+1) / float64(len(tracks))
		s.mu.Unlock()
		s.notify()
	}

	s.mu.Lock()
	delete(s.activePlaylists, pl.ID)
	delete(s.progress, pl.ID)
	if cached == len(tracks) {
		s.status = fmt.Sprintf("Downloaded %q (%d tracks)", pl.Name, cached)
	} else {
		s.status = fmt.Sprintf("Downloaded %q (%d of %d tracks)", pl.Name, cached, len(tracks))
	}
	s.mu.Unlock()

	monitoring.ActiveDownloads.Dec()
	s.persist()
	s.notify()
	return nil
}

// DownloadTrack caches a single track, optionally attaching it to a
// playlist. When playlistID names a playlist that is not cached offline,
// playlist metadata must be supplied so the record can be created;
// omitting it is a reported error. A download already active for the same
// track id makes this a no-op.
func (s *Store) DownloadTrack(ctx context.Context, song TrackInfo, playlistID int64, playlist *PlaylistInfo) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	if song.ID == 0 {
		return apperrors.NewValidationError("track id is required")
	}
	if playlist != nil && playlistID == 0 {
		playlistID = playlist.ID
	}

	s.mu.Lock()
	if _, busy := s.activeTracks[song.ID]; busy {
		s.mu.Unlock()
		return nil
	}
	if playlistID != 0 && playlist == nil {
		if _, ok := s.playlists[playlistID]; !ok {
			s.mu.Unlock()
			return apperrors.NewValidationError(
				fmt.Sprintf("playlist %d is not cached offline and no playlist metadata was supplied", playlistID))
		}
	}
	s.mu.Unlock()

	cached, err := s.cacheTrack(ctx, song, playlistID, playlist)
	if err != nil {
		// The attach can fail after the download commits when the target
		// playlist was removed mid-download. The track record exists
		// either way, so make it durable and visible before reporting.
		s.persist()
		s.notify()
		return err
	}

	s.mu.Lock()
	if cached {
		s.status = fmt.Sprintf("Downloaded %q", trackDisplayName(song))
	} else {
		s.status = fmt.Sprintf("Could not download %q", trackDisplayName(song))
	}
	s.mu.Unlock()

	s.persist()
	s.notify()
	return nil
}

// cacheTrack is the shared per-track download step. An already-cached
// track is only attached; a track currently downloading elsewhere is
// treated as in progress and skipped. Audio failure skips the track;
// artwork failure is tolerated. Returns whether the track ended up cached
// and attached as requested.
func (s *Store) cacheTrack(ctx context.Context, info TrackInfo, playlistID int64, pl *PlaylistInfo) (bool, error) {
	s.mu.Lock()
	if rec, ok := s.tracks[info.ID]; ok {
		var err error
		if playlistID != 0 {
			err = s.attachLocked(rec, playlistID, pl)
		}
		s.mu.Unlock()
		return err == nil, err
	}
	if _, busy := s.activeTracks[info.ID]; busy {
		s.mu.Unlock()
		return false, nil
	}
	s.activeTracks[info.ID] = struct{}{}
	s.mu.Unlock()

	monitoring.ActiveDownloads.Inc()
	s.notify()

	defer func() {
		s.mu.Lock()
		delete(s.activeTracks, info.ID)
		s.mu.Unlock()
		monitoring.ActiveDownloads.Dec()
	}()

	token := strconv.FormatInt(time.Now().UnixNano(), 10)
	audioDest := s.layout.AudioPath(info.ID, token)
	if err := s.exec.DownloadAudio(ctx, info.ID, audioDest); err != nil {
		s.log.Warn("track download failed",
			zap.Int64("track_id", info.ID), zap.String("title", info.Title), zap.Error(err))
		return false, nil
	}

	artworkDest := ""
	if info.ArtworkURL != "" {
		dest := s.layout.ArtworkPath(info.ID, token)
		if err := s.exec.DownloadArtwork(ctx, info.ArtworkURL, dest); err != nil {
			s.log.Debug("artwork download failed",
				zap.Int64("track_id", info.ID), zap.Error(err))
		} else {
			artworkDest = dest
		}
	}

	s.mu.Lock()
	rec := newTrackRecord(info, audioDest, artworkDest, time.Now())
	s.tracks[info.ID] = rec
	var attachErr error
	if playlistID != 0 {
		attachErr = s.attachLocked(rec, playlistID, pl)
	}
	s.mu.Unlock()

	s.recordDownloaded(rec)
	return attachErr == nil, attachErr
}

// attachLocked is the single routine through which every playlist-track
// relationship is created or extended, so the bidirectional invariant is
// enforced in exactly one place. Creating a playlist record requires
// metadata.
func (s *Store) attachLocked(rec *trackRecord, playlistID int64, pl *PlaylistInfo) error {
	p, ok := s.playlists[playlistID]
	if !ok {
		if pl == nil {
			return apperrors.NewValidationError(
				fmt.Sprintf("playlist %d is not cached offline and no playlist metadata was supplied", playlistID))
		}
		p = newPlaylistRecord(*pl, time.Now())
		p.id = playlistID
		s.playlists[playlistID] = p
	} else if pl != nil {
		p.name = pl.Name
		p.description = pl.Description
		p.coverURL = pl.CoverURL
	}

	p.tracks[rec.id] = struct{}{}
	rec.playlists[playlistID] = struct{}{}
	return nil
}

// RemovePlaylist detaches every track referencing the playlist, fully
// removes tracks left without any playlist reference, and deletes the
// playlist record. Persists and notifies once.
func (s *Store) RemovePlaylist(playlistID int64) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	s.mu.Lock()
	p, ok := s.playlists[playlistID]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	var removed []*trackRecord
	for tid := range p.tracks {
		rec, ok := s.tracks[tid]
		if !ok {
			continue
		}
		delete(rec.playlists, playlistID)
		if len(rec.playlists) == 0 {
			s.removeTrackLocked(rec)
			removed = append(removed, rec)
		}
	}
	delete(s.playlists, playlistID)
	s.status = fmt.Sprintf("Removed %q from downloads", p.name)
	s.mu.Unlock()

	for _, rec := range removed {
		s.recordRemoved(rec)
	}
	s.persist()
	s.notify()
	return nil
}

// RemoveTrack deletes a track's local files, removes its record, and
// detaches it from every referencing playlist; playlists left empty are
// deleted entirely. Persists and notifies once.
func (s *Store) RemoveTrack(trackID int64) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	s.mu.Lock()
	rec, ok := s.tracks[trackID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.removeTrackLocked(rec)
	s.status = fmt.Sprintf("Removed %q from downloads", rec.displayName())
	s.mu.Unlock()

	s.recordRemoved(rec)
	s.persist()
	s.notify()
	return nil
}

// RemoveTrackFromPlaylist detaches one track from one playlist. A track
// left without any playlist reference is fully removed; a playlist left
// without tracks is deleted.
func (s *Store) RemoveTrackFromPlaylist(trackID, playlistID int64) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	s.mu.Lock()
	rec, trackOK := s.tracks[trackID]
	p, playlistOK := s.playlists[playlistID]
	if !trackOK || !playlistOK {
		s.mu.Unlock()
		return nil
	}

	delete(p.tracks, trackID)
	delete(rec.playlists, playlistID)

	trackRemoved := false
	if len(rec.playlists) == 0 {
		s.removeTrackLocked(rec)
		trackRemoved = true
	}
	if len(p.tracks) == 0 {
		delete(s.playlists, playlistID)
	}
	s.status = fmt.Sprintf("Removed %q from %q", rec.displayName(), p.name)
	s.mu.Unlock()

	if trackRemoved {
		s.recordRemoved(rec)
	}
	s.persist()
	s.notify()
	return nil
}

// removeTrackLocked deletes the track's files and record and detaches it
// everywhere, cascading playlist deletion for playlists left empty.
func (s *Store) removeTrackLocked(rec *trackRecord) {
	s.removeFile(rec.audioPath)
	s.removeFile(rec.artworkPath)

	delete(s.tracks, rec.id)
	for pid := range rec.playlists {
		p, ok := s.playlists[pid]
		if !ok {
			continue
		}
		delete(p.tracks, rec.id)
		if len(p.tracks) == 0 {
			delete(s.playlists, pid)
		}
	}
}

func (s *Store) removeFile(path string) {
	if path == "" {
		return
	}
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to delete cached file", zap.String("path", path), zap.Error(err))
	}
}

// IsTrackDownloaded reports whether the track is cached offline
func (s *Store) IsTrackDownloaded(trackID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[trackID]
	return ok
}

// IsPlaylistDownloaded reports whether the playlist is cached offline
func (s *Store) IsPlaylistDownloaded(playlistID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.playlists[playlistID]
	return ok
}

// LocalPath returns the local audio file path for a cached track
func (s *Store) LocalPath(trackID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tracks[trackID]
	if !ok {
		return "", false
	}
	return rec.audioPath, true
}

// ArtworkPath returns the local artwork path for a cached track, if
// artwork was cached
func (s *Store) ArtworkPath(trackID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tracks[trackID]
	if !ok || rec.artworkPath == "" {
		return "", false
	}
	return rec.artworkPath, true
}

// PlaylistTracks returns the cached tracks of a playlist, sorted by id
func (s *Store) PlaylistTracks(playlistID int64) []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[playlistID]
	if !ok {
		return nil
	}
	tracks := make([]Track, 0, len(p.tracks))
	for tid := range p.tracks {
		if rec, ok := s.tracks[tid]; ok {
			tracks = append(tracks, rec.toTrack())
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	return tracks
}

// Tracks returns all cached tracks, sorted by id
func (s *Store) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracksLocked()
}

// Playlists returns all offline playlists, sorted by id
func (s *Store) Playlists() []Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlistsLocked()
}

// Snapshot returns an immutable view of the current cache state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener invoked once immediately with the
// current snapshot, then once per subsequent mutation. The returned
// unsubscribe function is safe to call multiple times and from within
// the listener itself.
func (s *Store) Subscribe(fn Listener) func() {
	return s.notifier.subscribeWith(fn, s.Snapshot)
}

func (s *Store) requireReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return apperrors.NewValidationError("offline store is not initialized")
	}
	return nil
}

func (s *Store) tracksLocked() []Track {
	tracks := make([]Track, 0, len(s.tracks))
	for _, rec := range s.tracks {
		tracks = append(tracks, rec.toTrack())
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	return tracks
}

func (s *Store) playlistsLocked() []Playlist {
	playlists := make([]Playlist, 0, len(s.playlists))
	for _, rec := range s.playlists {
		playlists = append(playlists, rec.toPlaylist())
	}
	sort.Slice(playlists, func(i, j int) bool { return playlists[i].ID < playlists[j].ID })
	return playlists
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Ready:           s.ready,
		Playlists:       make(map[int64]Playlist, len(s.playlists)),
		Tracks:          make(map[int64]Track, len(s.tracks)),
		Progress:        make(map[int64]float64, len(s.progress)),
		ActivePlaylists: make(map[int64]bool, len(s.activePlaylists)),
		ActiveTracks:    make(map[int64]bool, len(s.activeTracks)),
		Status:          s.status,
	}
	for id, rec := range s.playlists {
		snap.Playlists[id] = rec.toPlaylist()
	}
	for id, rec := range s.tracks {
		snap.Tracks[id] = rec.toTrack()
	}
	for id, frac := range s.progress {
		snap.Progress[id] = frac
	}
	for id := range s.activePlaylists {
		snap.ActivePlaylists[id] = true
	}
	for id := range s.activeTracks {
		snap.ActiveTracks[id] = true
	}
	return snap
}

// persist serializes the full library and overwrites the metadata
// document. Write failures are logged and swallowed: the in-memory state
// stays authoritative for the running session.
func (s *Store) persist() {
	s.mu.Lock()
	playlists := s.playlistsLocked()
	tracks := s.tracksLocked()
	s.mu.Unlock()

	s.saveMu.Lock()
	err := s.codec.Save(playlists, tracks)
	s.saveMu.Unlock()

	if err != nil {
		s.log.Error("failed to persist offline library", zap.Error(err))
	}
}

// notify publishes the current snapshot to all subscribers, in order.
func (s *Store) notify() {
	s.notifier.publishWith(func() Snapshot {
		snap := s.Snapshot()
		monitoring.RecordCacheSize(len(snap.Tracks), len(snap.Playlists))
		return snap
	})
}

func (s *Store) recordDownloaded(rec *trackRecord) {
	if s.journal == nil {
		return
	}
	var size int64
	if fi, err := s.fs.Stat(rec.audioPath); err == nil {
		size = fi.Size()
	}
	s.journal.RecordDownloaded(rec.id, rec.title, rec.artist, rec.album, rec.audioPath, size)
}

func (s *Store) recordRemoved(rec *trackRecord) {
	if s.journal == nil {
		return
	}
	s.journal.RecordRemoved(rec.id, rec.title, rec.artist, rec.album)
}

func (t *trackRecord) displayName() string {
	if t.title != "" {
		return t.title
	}
	return fmt.Sprintf("track %d", t.id)
}

func trackDisplayName(info TrackInfo) string {
	if info.Title != "" {
		return info.Title
	}
	return fmt.Sprintf("track %d", info.ID)
}
