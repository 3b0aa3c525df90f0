package offline

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout(afero.NewMemMapFs(), "/data")

	if got, want := l.Root(), filepath.Join("/data", "offline"); got != want {
		t.Errorf("Root() = %q, want %q", got, want)
	}
	if got, want := l.AudioPath(42, "1700000000"), filepath.Join("/data", "offline", "audio", "42_1700000000.mp3"); got != want {
		t.Errorf("AudioPath() = %q, want %q", got, want)
	}
	if got, want := l.ArtworkPath(42, "1700000000"), filepath.Join("/data", "offline", "artwork", "42_1700000000.jpg"); got != want {
		t.Errorf("ArtworkPath() = %q, want %q", got, want)
	}
	if got, want := l.MetadataPath(), filepath.Join("/data", "offline", "library.json"); got != want {
		t.Errorf("MetadataPath() = %q, want %q", got, want)
	}
}

func TestEnsureDirsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayout(fs, "/data")

	for i := 0; i < 2; i++ {
		if err := l.EnsureDirs(); err != nil {
			t.Fatalf("EnsureDirs (call %d): %v", i+1, err)
		}
	}

	for _, dir := range []string{
		filepath.Join("/data", "offline", "audio"),
		filepath.Join("/data", "offline", "artwork"),
	} {
		ok, err := afero.DirExists(fs, dir)
		if err != nil || !ok {
			t.Errorf("directory %s missing after EnsureDirs (ok=%v, err=%v)", dir, ok, err)
		}
	}
}
