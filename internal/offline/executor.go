package offline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
	"github.com/helloworldxdwastaken/noxa-core/internal/monitoring"
	"github.com/helloworldxdwastaken/noxa-core/internal/session"
)

// Executor performs individual audio and artwork fetches against the
// remote server. It never leaves a truncated file behind: any failure
// deletes the partial destination before returning.
type Executor struct {
	fs          afero.Fs
	client      *http.Client
	session     session.Provider
	limiter     *rate.Limiter // nil when bandwidth is unlimited
	artworkSize int
	retry       apperrors.RetryConfig
	log         *zap.Logger
}

// ExecutorOption customizes an Executor
type ExecutorOption func(*Executor)

// WithBandwidthLimit caps audio download throughput in KiB/s. Zero means
// unlimited.
func WithBandwidthLimit(kbps int) ExecutorOption {
	return func(e *Executor) {
		if kbps > 0 {
			bytesPerSec := kbps * 1024
			burst := bytesPerSec
			if burst < 64*1024 {
				burst = 64 * 1024
			}
			e.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
		}
	}
}

// WithArtworkSize sets the maximum artwork dimension in pixels
func WithArtworkSize(px int) ExecutorOption {
	return func(e *Executor) {
		if px > 0 {
			e.artworkSize = px
		}
	}
}

// WithRetryConfig overrides the retry policy for transient failures
func WithRetryConfig(cfg apperrors.RetryConfig) ExecutorOption {
	return func(e *Executor) {
		e.retry = cfg
	}
}

// WithExecutorLogger sets the executor logger
func WithExecutorLogger(log *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.log = log
	}
}

// NewExecutor creates an Executor downloading through client and writing
// to fs. The session provider supplies the bearer token and base URL at
// request time, so a login or server switch takes effect immediately.
func NewExecutor(fs afero.Fs, client *http.Client, sess session.Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		fs:          fs,
		client:      client,
		session:     sess,
		artworkSize: 600,
		retry:       apperrors.DefaultRetryConfig(),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StreamURL constructs the remote stream URL for a track
func (e *Executor) StreamURL(trackID int64) string {
	return fmt.Sprintf("%s/api/tracks/%d/stream", strings.TrimRight(e.session.BaseURL(), "/"), trackID)
}

// DownloadAudio fetches a track's audio stream into dest. Transient
// failures are retried with backoff; on final failure the partial file is
// deleted and an error is returned, which callers treat as "not
// downloaded" rather than propagating.
func (e *Executor) DownloadAudio(ctx context.Context, trackID int64, dest string) error {
	start := time.Now()

	err := apperrors.RetryWithBackoff(ctx, e.retry, func() error {
		return e.fetchToFile(ctx, e.StreamURL(trackID), dest, nil)
	})

	if err != nil {
		monitoring.RecordDownload("audio", "failure", time.Since(start))
		return err
	}

	monitoring.RecordDownload("audio", "success", time.Since(start))
	return nil
}

// DownloadArtwork fetches artwork from url into dest, downscaling it to
// the configured maximum dimension. Artwork is best-effort: failure here
// never touches anything the audio step produced.
func (e *Executor) DownloadArtwork(ctx context.Context, url, dest string) error {
	if url == "" {
		return apperrors.NewValidationError("artwork URL is empty")
	}

	start := time.Now()

	err := e.fetchToFile(ctx, url, dest, e.processArtwork)
	if err != nil {
		monitoring.RecordDownload("artwork", "failure", time.Since(start))
		return err
	}

	monitoring.RecordDownload("artwork", "success", time.Since(start))
	return nil
}

// fetchToFile performs one authorized GET and streams the body into dest.
// transform, when set, rewrites the full body before it is written. Any
// failure removes the partial destination file.
func (e *Executor) fetchToFile(ctx context.Context, url, dest string, transform func([]byte) []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid download URL %q: %v", url, err))
	}

	if token := e.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return apperrors.NewNotFoundError(fmt.Sprintf("remote returned 404 for %s", url))
		}
		if resp.StatusCode >= 500 {
			return apperrors.NewNetworkError(fmt.Sprintf("remote returned status %d", resp.StatusCode), nil)
		}
		return &apperrors.AppError{
			Type:       apperrors.ErrTypeNetwork,
			Message:    fmt.Sprintf("remote returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Retryable:  false,
		}
	}

	var body io.Reader = resp.Body
	if e.limiter != nil {
		body = &throttledReader{r: resp.Body, limiter: e.limiter, ctx: ctx}
	}

	if transform != nil {
		data, err := io.ReadAll(body)
		if err != nil {
			return apperrors.NewNetworkError("failed to read response body", err)
		}
		data = transform(data)
		if err := afero.WriteFile(e.fs, dest, data, 0644); err != nil {
			e.removePartial(dest)
			return apperrors.NewFileSystemError("failed to write file", err)
		}
		monitoring.DownloadBytesTotal.Add(float64(len(data)))
		return nil
	}

	out, err := e.fs.Create(dest)
	if err != nil {
		return apperrors.NewFileSystemError("failed to create destination file", err)
	}

	written, err := io.Copy(out, body)
	closeErr := out.Close()
	if err != nil || closeErr != nil {
		e.removePartial(dest)
		if err == nil {
			err = closeErr
		}
		return apperrors.NewNetworkError("download interrupted", err)
	}

	monitoring.DownloadBytesTotal.Add(float64(written))
	return nil
}

// processArtwork decodes the image and downscales it to the configured
// maximum dimension, re-encoding as JPEG. If the data cannot be decoded
// the original bytes are cached unchanged.
func (e *Executor) processArtwork(data []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	bounds := img.Bounds()
	if bounds.Dx() <= e.artworkSize && bounds.Dy() <= e.artworkSize {
		return data
	}

	resized := resize.Thumbnail(uint(e.artworkSize), uint(e.artworkSize), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return data
	}
	return buf.Bytes()
}

func (e *Executor) removePartial(dest string) {
	if err := e.fs.Remove(dest); err != nil && !os.IsNotExist(err) {
		e.log.Warn("failed to remove partial download", zap.String("path", dest), zap.Error(err))
	}
}

// throttledReader paces reads through a token-bucket limiter so large
// audio downloads respect the configured bandwidth cap.
type throttledReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if waitErr := t.limiter.WaitN(t.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
