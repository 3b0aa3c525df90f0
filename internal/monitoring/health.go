package monitoring

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check response
type HealthCheck struct {
	Status          HealthStatus     `json:"status"`
	Version         string           `json:"version"`
	Uptime          int64            `json:"uptime"`
	UptimeHuman     string           `json:"uptime_human"`
	CachedTracks    int              `json:"cached_tracks"`
	CachedPlaylists int              `json:"cached_playlists"`
	ActiveDownloads int              `json:"active_downloads"`
	MemoryUsageMB   uint64           `json:"memory_usage_mb"`
	Checks          map[string]Check `json:"checks"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Check represents an individual health check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker performs health checks
type HealthChecker struct {
	version   string
	startTime time.Time
	dataDir   string
	db        *sql.DB // history database, may be nil when history is disabled
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version, dataDir string, db *sql.DB) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		dataDir:   dataDir,
		db:        db,
	}
}

// Check performs all health checks and returns the result
func (h *HealthChecker) Check(cachedTracks, cachedPlaylists, activeDownloads int) *HealthCheck {
	checks := make(map[string]Check)
	overallStatus := HealthStatusHealthy

	storageCheck := h.checkStorage()
	checks["storage"] = storageCheck
	if storageCheck.Status != "healthy" {
		overallStatus = HealthStatusUnhealthy
	}

	if h.db != nil {
		dbCheck := h.checkHistoryDB()
		checks["history_db"] = dbCheck
		if dbCheck.Status != "healthy" && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	memCheck := h.checkMemory()
	checks["memory"] = memCheck
	if memCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	uptime := time.Since(h.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &HealthCheck{
		Status:          overallStatus,
		Version:         h.version,
		Uptime:          int64(uptime.Seconds()),
		UptimeHuman:     formatUptime(uptime),
		CachedTracks:    cachedTracks,
		CachedPlaylists: cachedPlaylists,
		ActiveDownloads: activeDownloads,
		MemoryUsageMB:   m.Alloc / 1024 / 1024,
		Checks:          checks,
		Timestamp:       time.Now(),
	}
}

// checkStorage verifies the offline data directory is writable
func (h *HealthChecker) checkStorage() Check {
	probe := filepath.Join(h.dataDir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return Check{Status: "unhealthy", Message: fmt.Sprintf("data directory not writable: %v", err)}
	}
	os.Remove(probe)
	return Check{Status: "healthy"}
}

// checkHistoryDB verifies the history database responds
func (h *HealthChecker) checkHistoryDB() Check {
	if err := h.db.Ping(); err != nil {
		return Check{Status: "unhealthy", Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return Check{Status: "healthy"}
}

// checkMemory reports degraded status above 1 GiB of allocated heap
func (h *HealthChecker) checkMemory() Check {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	allocMB := m.Alloc / 1024 / 1024
	if allocMB > 1024 {
		return Check{Status: "degraded", Message: fmt.Sprintf("high memory usage: %d MB", allocMB)}
	}
	return Check{Status: "healthy"}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
