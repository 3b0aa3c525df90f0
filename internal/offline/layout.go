package offline

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	audioDirName   = "audio"
	artworkDirName = "artwork"
	metadataFile   = "library.json"
)

// Layout computes deterministic on-disk locations for cached audio files,
// artwork files and the metadata document, all rooted under
// <dataDir>/offline.
type Layout struct {
	fs   afero.Fs
	root string
}

// NewLayout creates a Layout rooted under dataDir
func NewLayout(fs afero.Fs, dataDir string) *Layout {
	return &Layout{
		fs:   fs,
		root: filepath.Join(dataDir, "offline"),
	}
}

// Root returns the offline cache root directory
func (l *Layout) Root() string {
	return l.root
}

// AudioPath returns the destination path for a track's audio file. The
// token keeps a fresh download from colliding with a stale file left over
// from an earlier download of the same track.
func (l *Layout) AudioPath(trackID int64, token string) string {
	return filepath.Join(l.root, audioDirName, fmt.Sprintf("%d_%s.mp3", trackID, token))
}

// ArtworkPath returns the destination path for a track's cached artwork
func (l *Layout) ArtworkPath(trackID int64, token string) string {
	return filepath.Join(l.root, artworkDirName, fmt.Sprintf("%d_%s.jpg", trackID, token))
}

// MetadataPath returns the path of the serialized library document
func (l *Layout) MetadataPath() string {
	return filepath.Join(l.root, metadataFile)
}

// EnsureDirs creates the cache directories if they do not exist. It is
// idempotent; failures are fatal initialization errors for the store.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{
		l.root,
		filepath.Join(l.root, audioDirName),
		filepath.Join(l.root, artworkDirName),
	} {
		if err := l.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}
	return nil
}
