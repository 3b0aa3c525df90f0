package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "settings.json"))
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	return cfg
}

func TestLoad_CreatesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("Expected default config file to be written: %v", err)
	}

	if cfg.Offline.ArtworkSize != 600 {
		t.Errorf("Expected default artwork size 600, got %d", cfg.Offline.ArtworkSize)
	}
	if cfg.Network.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Network.MaxRetries)
	}
	if !cfg.History.Enabled {
		t.Error("Expected history to be enabled by default")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg.Server.BaseURL = "https://music.example.com"
	cfg.Offline.BandwidthLimitKBps = 512
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	reloaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}

	if reloaded.Server.BaseURL != "https://music.example.com" {
		t.Errorf("Expected saved base URL to survive reload, got %s", reloaded.Server.BaseURL)
	}
	if reloaded.Offline.BandwidthLimitKBps != 512 {
		t.Errorf("Expected saved bandwidth limit to survive reload, got %d", reloaded.Offline.BandwidthLimitKBps)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty base URL", func(c *Config) { c.Server.BaseURL = "" }, true},
		{"empty data dir", func(c *Config) { c.Offline.DataDir = "" }, true},
		{"artwork size too small", func(c *Config) { c.Offline.ArtworkSize = 50 }, true},
		{"artwork size too large", func(c *Config) { c.Offline.ArtworkSize = 10000 }, true},
		{"negative bandwidth limit", func(c *Config) { c.Offline.BandwidthLimitKBps = -1 }, true},
		{"zero timeout", func(c *Config) { c.Network.Timeout = 0 }, true},
		{"negative retries", func(c *Config) { c.Network.MaxRetries = -1 }, true},
		{"history enabled without path", func(c *Config) { c.History.DBPath = "" }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"invalid log output", func(c *Config) { c.Logging.Output = "syslog" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
