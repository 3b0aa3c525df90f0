// Package offline implements the on-device cache of downloaded audio and
// artwork, together with the relational metadata tying cached tracks to
// offline playlists and the orchestration of their downloads.
package offline

import (
	"slices"
	"time"
)

// TrackInfo describes a track as supplied by the caller when requesting a
// download. Display metadata is optional.
type TrackInfo struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artwork_url"`
}

// PlaylistInfo describes a playlist as supplied by the caller when
// requesting a download or an attach.
type PlaylistInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CoverURL    string `json:"cover_url"`
}

// Track is the persisted record of a cached track. PlaylistIDs holds the
// identifiers of every offline playlist referencing this track, sorted.
type Track struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	AudioPath    string    `json:"audio_path"`
	ArtworkPath  string    `json:"artwork_path,omitempty"`
	PlaylistIDs  []int64   `json:"playlist_ids"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Playlist is the persisted record of an offline playlist. TrackCount
// always equals len(TrackIDs); a playlist record only exists while it
// contains at least one track.
type Playlist struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CoverURL     string    `json:"cover_url,omitempty"`
	TrackIDs     []int64   `json:"track_ids"`
	TrackCount   int       `json:"track_count"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// trackRecord is the in-memory representation of a cached track. The
// playlist relation is a set for O(1) attach/detach.
type trackRecord struct {
	id           int64
	title        string
	artist       string
	album        string
	audioPath    string
	artworkPath  string
	playlists    map[int64]struct{}
	downloadedAt time.Time
}

// playlistRecord is the in-memory representation of an offline playlist.
type playlistRecord struct {
	id           int64
	name         string
	description  string
	coverURL     string
	tracks       map[int64]struct{}
	downloadedAt time.Time
}

func newTrackRecord(info TrackInfo, audioPath, artworkPath string, at time.Time) *trackRecord {
	return &trackRecord{
		id:           info.ID,
		title:        info.Title,
		artist:       info.Artist,
		album:        info.Album,
		audioPath:    audioPath,
		artworkPath:  artworkPath,
		playlists:    make(map[int64]struct{}),
		downloadedAt: at,
	}
}

func newPlaylistRecord(info PlaylistInfo, at time.Time) *playlistRecord {
	return &playlistRecord{
		id:           info.ID,
		name:         info.Name,
		description:  info.Description,
		coverURL:     info.CoverURL,
		tracks:       make(map[int64]struct{}),
		downloadedAt: at,
	}
}

func (t *trackRecord) toTrack() Track {
	return Track{
		ID:           t.id,
		Title:        t.title,
		Artist:       t.artist,
		Album:        t.album,
		AudioPath:    t.audioPath,
		ArtworkPath:  t.artworkPath,
		PlaylistIDs:  sortedIDs(t.playlists),
		DownloadedAt: t.downloadedAt,
	}
}

func (p *playlistRecord) toPlaylist() Playlist {
	ids := sortedIDs(p.tracks)
	return Playlist{
		ID:           p.id,
		Name:         p.name,
		Description:  p.description,
		CoverURL:     p.coverURL,
		TrackIDs:     ids,
		TrackCount:   len(ids),
		DownloadedAt: p.downloadedAt,
	}
}

func recordFromTrack(t Track) *trackRecord {
	rec := &trackRecord{
		id:           t.ID,
		title:        t.Title,
		artist:       t.Artist,
		album:        t.Album,
		audioPath:    t.AudioPath,
		artworkPath:  t.ArtworkPath,
		playlists:    make(map[int64]struct{}, len(t.PlaylistIDs)),
		downloadedAt: t.DownloadedAt,
	}
	for _, id := range t.PlaylistIDs {
		rec.playlists[id] = struct{}{}
	}
	return rec
}

func recordFromPlaylist(p Playlist) *playlistRecord {
	rec := &playlistRecord{
		id:           p.ID,
		name:         p.Name,
		description:  p.Description,
		coverURL:     p.CoverURL,
		tracks:       make(map[int64]struct{}, len(p.TrackIDs)),
		downloadedAt: p.DownloadedAt,
	}
	for _, id := range p.TrackIDs {
		rec.tracks[id] = struct{}{}
	}
	return rec
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
