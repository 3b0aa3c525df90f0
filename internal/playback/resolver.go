// Package playback resolves where a track should be played from,
// preferring cached local files over the network.
package playback

// Source identifies a playable resource. Local reports whether URI is a
// path on the local filesystem rather than a remote URL.
type Source struct {
	URI   string `json:"uri"`
	Local bool   `json:"local"`
}

// OfflineLibrary is the subset of the offline cache the resolver
// consults.
type OfflineLibrary interface {
	LocalPath(trackID int64) (string, bool)
	ArtworkPath(trackID int64) (string, bool)
}

// RemoteSource builds streaming URLs for tracks that are not cached.
type RemoteSource interface {
	StreamURL(trackID int64) string
}

// Resolver picks the playback source for tracks and artwork: the local
// cache when present, the remote service otherwise.
type Resolver struct {
	library OfflineLibrary
	remote  RemoteSource
}

// NewResolver creates a Resolver over the given cache and remote source
func NewResolver(library OfflineLibrary, remote RemoteSource) *Resolver {
	return &Resolver{library: library, remote: remote}
}

// StreamSource returns the playback source for a track's audio. Cached
// tracks resolve to their local file; everything else resolves to the
// remote streaming URL.
func (r *Resolver) StreamSource(trackID int64) Source {
	if path, ok := r.library.LocalPath(trackID); ok {
		return Source{URI: path, Local: true}
	}
	return Source{URI: r.remote.StreamURL(trackID)}
}

// ArtworkSource returns the display source for a track's artwork.
// Cached artwork resolves to its local file; otherwise remoteURL is
// passed through, empty when the track has no artwork at all.
func (r *Resolver) ArtworkSource(trackID int64, remoteURL string) Source {
	if path, ok := r.library.ArtworkPath(trackID); ok {
		return Source{URI: path, Local: true}
	}
	return Source{URI: remoteURL}
}
