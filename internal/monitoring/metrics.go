package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal tracks completed download attempts by kind (audio, artwork) and status
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noxa_offline_downloads_total",
			Help: "Total number of download attempts",
		},
		[]string{"kind", "status"},
	)

	// DownloadDuration tracks download duration in seconds by kind
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noxa_offline_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3min
		},
		[]string{"kind"},
	)

	// DownloadBytesTotal tracks total bytes written to the offline cache
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "noxa_offline_download_bytes_total",
			Help: "Total bytes downloaded into the offline cache",
		},
	)

	// ActiveDownloads tracks playlist and track downloads currently in flight
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "noxa_offline_active_downloads",
			Help: "Number of active playlist and track downloads",
		},
	)

	// CachedTracks tracks the number of tracks in the offline cache
	CachedTracks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "noxa_offline_cached_tracks",
			Help: "Number of tracks currently cached offline",
		},
	)

	// CachedPlaylists tracks the number of playlists in the offline cache
	CachedPlaylists = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "noxa_offline_cached_playlists",
			Help: "Number of playlists currently cached offline",
		},
	)

	// PersistenceWritesTotal tracks metadata document writes by status
	PersistenceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noxa_offline_persistence_writes_total",
			Help: "Total metadata document writes",
		},
		[]string{"status"},
	)
)

// RecordDownload records a completed download attempt
func RecordDownload(kind, status string, duration time.Duration) {
	DownloadsTotal.WithLabelValues(kind, status).Inc()
	DownloadDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheSize updates the cache size gauges
func RecordCacheSize(tracks, playlists int) {
	CachedTracks.Set(float64(tracks))
	CachedPlaylists.Set(float64(playlists))
}
