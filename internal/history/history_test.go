package history

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewStore(db, nil), db
}

func TestInitDBAppliesMigrations(t *testing.T) {
	_, db := setupTestStore(t)

	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("query schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("first InitDB: %v", err)
	}
	db.Close()

	db, err = InitDB(dbPath)
	if err != nil {
		t.Fatalf("second InitDB: %v", err)
	}
	db.Close()
}

func TestRecordAndQueryEvents(t *testing.T) {
	store, _ := setupTestStore(t)

	store.RecordDownloaded(101, "First Track", "Artist A", "Album A", "/data/audio/101_1.mp3", 4096)
	store.RecordDownloaded(102, "Second Track", "Artist B", "Album B", "/data/audio/102_1.mp3", 8192)
	store.RecordRemoved(101, "First Track", "Artist A", "Album A")

	entries, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Event != EventRemoved || entries[0].TrackID != 101 {
		t.Errorf("entries[0] = %+v, want removal of track 101", entries[0])
	}
	if entries[1].Event != EventDownloaded || entries[1].TrackID != 102 {
		t.Errorf("entries[1] = %+v, want download of track 102", entries[1])
	}
	if entries[1].FileSize != 8192 {
		t.Errorf("entries[1].FileSize = %d, want 8192", entries[1].FileSize)
	}

	counts, err := store.CountByEvent()
	if err != nil {
		t.Fatalf("CountByEvent: %v", err)
	}
	if counts[EventDownloaded] != 2 || counts[EventRemoved] != 1 {
		t.Errorf("counts = %v, want 2 downloaded / 1 removed", counts)
	}
}

func TestRecentLimit(t *testing.T) {
	store, _ := setupTestStore(t)

	for i := int64(1); i <= 5; i++ {
		store.RecordDownloaded(i, "Track", "Artist", "Album", "/tmp/x.mp3", 100)
	}

	entries, err := store.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}
