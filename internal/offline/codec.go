package offline

import (
	"encoding/json"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
	"github.com/helloworldxdwastaken/noxa-core/internal/monitoring"
)

// schemaVersion tags the persisted document format for future migrations.
const schemaVersion = 1

// libraryDocument is the serialized form of the offline library. Progress
// and status are transient and deliberately absent.
type libraryDocument struct {
	Version   int        `json:"version"`
	Playlists []Playlist `json:"playlists"`
	Tracks    []Track    `json:"tracks"`
}

// Codec reads and writes the library metadata document.
type Codec struct {
	fs   afero.Fs
	path string
	log  *zap.Logger
}

// NewCodec creates a Codec persisting to path on fs
func NewCodec(fs afero.Fs, path string, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{fs: fs, path: path, log: log}
}

// Load reads the metadata document. A missing file yields an empty
// library, and so does a malformed one: a corrupt cache must never block
// startup.
func (c *Codec) Load() ([]Playlist, []Track) {
	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("failed to read library document, starting empty",
				zap.String("path", c.path), zap.Error(err))
		}
		return nil, nil
	}

	var doc libraryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		c.log.Warn("library document is malformed, starting empty",
			zap.String("path", c.path), zap.Error(err))
		return nil, nil
	}

	if doc.Version > schemaVersion {
		c.log.Warn("library document written by a newer version, starting empty",
			zap.Int("version", doc.Version))
		return nil, nil
	}

	return doc.Playlists, doc.Tracks
}

// Save serializes the full library state and overwrites the document.
func (c *Codec) Save(playlists []Playlist, tracks []Track) error {
	doc := libraryDocument{
		Version:   schemaVersion,
		Playlists: playlists,
		Tracks:    tracks,
	}
	if doc.Playlists == nil {
		doc.Playlists = []Playlist{}
	}
	if doc.Tracks == nil {
		doc.Tracks = []Track{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		monitoring.PersistenceWritesTotal.WithLabelValues("failure").Inc()
		return apperrors.NewPersistenceError("failed to marshal library document", err)
	}

	if err := afero.WriteFile(c.fs, c.path, data, 0644); err != nil {
		monitoring.PersistenceWritesTotal.WithLabelValues("failure").Inc()
		return apperrors.NewPersistenceError("failed to write library document", err)
	}

	monitoring.PersistenceWritesTotal.WithLabelValues("success").Inc()
	return nil
}
