package history

import (
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Event kinds recorded in the log.
const (
	EventDownloaded = "downloaded"
	EventRemoved    = "removed"
)

// Entry is one recorded cache lifecycle event
type Entry struct {
	ID         int64     `json:"id"`
	Event      string    `json:"event"`
	TrackID    int64     `json:"track_id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	FilePath   string    `json:"file_path,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store records and queries offline cache events. Recording is
// best-effort: failures are logged, never propagated, so history can
// never break a download.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// NewStore creates a history store over an initialized database
func NewStore(db *sql.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// RecordDownloaded logs that a track was cached offline
func (s *Store) RecordDownloaded(trackID int64, title, artist, album, path string, size int64) {
	_, err := s.db.Exec(
		`INSERT INTO offline_events (event, track_id, title, artist, album, file_path, file_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		EventDownloaded, trackID, title, artist, album, path, size,
	)
	if err != nil {
		s.log.Warn("failed to record download event",
			zap.Int64("track_id", trackID), zap.Error(err))
	}
}

// RecordRemoved logs that a track was removed from the offline cache
func (s *Store) RecordRemoved(trackID int64, title, artist, album string) {
	_, err := s.db.Exec(
		`INSERT INTO offline_events (event, track_id, title, artist, album)
		 VALUES (?, ?, ?, ?, ?)`,
		EventRemoved, trackID, title, artist, album,
	)
	if err != nil {
		s.log.Warn("failed to record removal event",
			zap.Int64("track_id", trackID), zap.Error(err))
	}
}

// Recent returns the most recent events, newest first
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, event, track_id, title, artist, album,
		        COALESCE(file_path, ''), COALESCE(file_size, 0), occurred_at
		 FROM offline_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Event, &e.TrackID, &e.Title, &e.Artist,
			&e.Album, &e.FilePath, &e.FileSize, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByEvent returns how many events of each kind have been recorded
func (s *Store) CountByEvent() (map[string]int64, error) {
	rows, err := s.db.Query(
		`SELECT event, COUNT(*) FROM offline_events GROUP BY event`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var event string
		var n int64
		if err := rows.Scan(&event, &n); err != nil {
			return nil, err
		}
		counts[event] = n
	}
	return counts, rows.Err()
}
