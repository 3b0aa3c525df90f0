// Command noxa-core runs the offline playback service: it maintains the
// on-device library of downloaded playlists and tracks, serves its state
// over HTTP, and resolves playback sources local-first.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/helloworldxdwastaken/noxa-core/internal/config"
	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
	"github.com/helloworldxdwastaken/noxa-core/internal/history"
	"github.com/helloworldxdwastaken/noxa-core/internal/monitoring"
	"github.com/helloworldxdwastaken/noxa-core/internal/network"
	"github.com/helloworldxdwastaken/noxa-core/internal/offline"
	"github.com/helloworldxdwastaken/noxa-core/internal/playback"
	"github.com/helloworldxdwastaken/noxa-core/internal/session"
)

const version = "1.0.0"

// retryPolicy applies the configured retry count on top of the default
// backoff parameters.
func retryPolicy(maxRetries int) apperrors.RetryConfig {
	cfg := apperrors.DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	return cfg
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "noxa-core:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to settings.json (default: per-user config dir)")
		addr       = flag.String("addr", ":9090", "HTTP listen address")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := monitoring.NewLogger(&monitoring.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting noxa-core",
		zap.String("version", version),
		zap.String("data_dir", cfg.Offline.DataDir),
		zap.String("server", cfg.Server.BaseURL))

	var db *sql.DB
	var journal *history.Store
	if cfg.History.Enabled {
		db, err = history.InitDB(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("init history database: %w", err)
		}
		defer db.Close()
		journal = history.NewStore(db, log)
	}

	sess := session.NewMutable(cfg.Server.BaseURL, os.Getenv("NOXA_TOKEN"))

	fs := afero.NewOsFs()
	exec := offline.NewExecutor(
		fs,
		network.GetStreamClient(time.Duration(cfg.Network.Timeout)*time.Second),
		sess,
		offline.WithArtworkSize(cfg.Offline.ArtworkSize),
		offline.WithBandwidthLimit(cfg.Offline.BandwidthLimitKBps),
		offline.WithRetryConfig(retryPolicy(cfg.Network.MaxRetries)),
		offline.WithExecutorLogger(log),
	)

	storeOpts := []offline.StoreOption{offline.WithLogger(log)}
	if journal != nil {
		storeOpts = append(storeOpts, offline.WithJournal(journal))
	}
	store := offline.NewStore(fs, cfg.Offline.DataDir, exec, storeOpts...)

	if err := store.Initialize(); err != nil {
		return fmt.Errorf("initialize offline store: %w", err)
	}

	unsubscribe := store.Subscribe(func(snap offline.Snapshot) {
		if snap.Status != "" {
			log.Info("offline library changed",
				zap.String("status", snap.Status),
				zap.Int("tracks", len(snap.Tracks)),
				zap.Int("playlists", len(snap.Playlists)))
		}
	})
	defer unsubscribe()

	srv := &server{
		store:    store,
		resolver: playback.NewResolver(store, exec),
		journal:  journal,
		health:   monitoring.NewHealthChecker(version, cfg.Offline.DataDir, db),
		log:      log,
	}

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
