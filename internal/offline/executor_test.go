package offline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"

	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
	"github.com/helloworldxdwastaken/noxa-core/internal/session"
)

func fastRetry() apperrors.RetryConfig {
	return apperrors.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newTestExecutor(t *testing.T, srv *httptest.Server, opts ...ExecutorOption) (*Executor, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	sess := session.NewStatic(srv.URL, "test-token")
	opts = append([]ExecutorOption{WithRetryConfig(fastRetry())}, opts...)
	return NewExecutor(fs, srv.Client(), sess, opts...), fs
}

func TestDownloadAudio(t *testing.T) {
	payload := []byte("mp3-bytes-go-here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tracks/42/stream" {
			t.Errorf("path = %q, want /api/tracks/42/stream", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Write(payload)
	}))
	defer srv.Close()

	exec, fs := newTestExecutor(t, srv)
	if err := exec.DownloadAudio(context.Background(), 42, "/cache/audio/42_1.mp3"); err != nil {
		t.Fatalf("DownloadAudio: %v", err)
	}

	data, err := afero.ReadFile(fs, "/cache/audio/42_1.mp3")
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("file content = %q, want %q", data, payload)
	}
}

func TestDownloadAudioRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	exec, fs := newTestExecutor(t, srv)
	if err := exec.DownloadAudio(context.Background(), 1, "/cache/1.mp3"); err != nil {
		t.Fatalf("DownloadAudio after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("server called %d times, want 3", calls)
	}
	if ok, _ := afero.Exists(fs, "/cache/1.mp3"); !ok {
		t.Error("downloaded file missing")
	}
}

func TestDownloadAudioNotFoundIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	exec, fs := newTestExecutor(t, srv)
	err := exec.DownloadAudio(context.Background(), 1, "/cache/1.mp3")
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("error = %v, want not-found", err)
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1 (404 is permanent)", calls)
	}
	if ok, _ := afero.Exists(fs, "/cache/1.mp3"); ok {
		t.Error("no file should exist after a failed download")
	}
}

func TestDownloadAudioFailureLeavesNoPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Announce more bytes than we send, then cut the connection.
		w.Header().Set("Content-Length", "1000000")
		w.Write([]byte("truncated"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	exec, fs := newTestExecutor(t, srv)
	err := exec.DownloadAudio(context.Background(), 7, "/cache/7.mp3")
	if err == nil {
		t.Fatal("expected error for interrupted download")
	}
	if ok, _ := afero.Exists(fs, "/cache/7.mp3"); ok {
		t.Error("partial file left behind after interrupted download")
	}
}

func TestDownloadArtworkDownscales(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 800, 600))); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	exec, fs := newTestExecutor(t, srv, WithArtworkSize(100))
	if err := exec.DownloadArtwork(context.Background(), srv.URL+"/art.png", "/cache/art.jpg"); err != nil {
		t.Fatalf("DownloadArtwork: %v", err)
	}

	data, err := afero.ReadFile(fs, "/cache/art.jpg")
	if err != nil {
		t.Fatalf("read artwork: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode cached artwork: %v", err)
	}
	if b := img.Bounds(); b.Dx() > 100 || b.Dy() > 100 {
		t.Errorf("artwork is %dx%d, want at most 100x100", b.Dx(), b.Dy())
	}
}

func TestDownloadArtworkKeepsUndecodableBytes(t *testing.T) {
	payload := []byte("not an image at all")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	exec, fs := newTestExecutor(t, srv)
	if err := exec.DownloadArtwork(context.Background(), srv.URL+"/art", "/cache/art.jpg"); err != nil {
		t.Fatalf("DownloadArtwork: %v", err)
	}

	data, err := afero.ReadFile(fs, "/cache/art.jpg")
	if err != nil {
		t.Fatalf("read artwork: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("undecodable artwork should be stored verbatim")
	}
}

func TestDownloadArtworkEmptyURL(t *testing.T) {
	exec := NewExecutor(afero.NewMemMapFs(), http.DefaultClient, session.NewStatic("http://x", ""))
	if err := exec.DownloadArtwork(context.Background(), "", "/cache/art.jpg"); !apperrors.IsValidationError(err) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		baseURL string
		trackID int64
		want    string
	}{
		{"https://music.example.com", 42, "https://music.example.com/api/tracks/42/stream"},
		{"https://music.example.com/", 42, "https://music.example.com/api/tracks/42/stream"},
	}
	for _, tt := range tests {
		exec := NewExecutor(afero.NewMemMapFs(), http.DefaultClient, session.NewStatic(tt.baseURL, ""))
		if got := exec.StreamURL(tt.trackID); got != tt.want {
			t.Errorf("StreamURL(%d) with base %q = %q, want %q", tt.trackID, tt.baseURL, got, tt.want)
		}
	}
}
