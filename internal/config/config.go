package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Offline OfflineConfig `json:"offline" mapstructure:"offline"`
	Network NetworkConfig `json:"network" mapstructure:"network"`
	History HistoryConfig `json:"history" mapstructure:"history"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains remote streaming server settings
type ServerConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// OfflineConfig contains offline cache settings
type OfflineConfig struct {
	DataDir            string `json:"data_dir" mapstructure:"data_dir"`
	ArtworkSize        int    `json:"artwork_size" mapstructure:"artwork_size"`
	BandwidthLimitKBps int    `json:"bandwidth_limit_kbps" mapstructure:"bandwidth_limit_kbps"`
}

// NetworkConfig contains network-related settings
type NetworkConfig struct {
	Timeout    int `json:"timeout" mapstructure:"timeout"`
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
}

// HistoryConfig contains download history settings
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"db_path" mapstructure:"db_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Read config file if it exists, otherwise write one with defaults
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else if os.IsNotExist(err) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Allow environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("NOXA")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL cannot be empty")
	}

	if c.Offline.DataDir == "" {
		return fmt.Errorf("offline data directory cannot be empty")
	}

	if c.Offline.ArtworkSize < 100 || c.Offline.ArtworkSize > 5000 {
		return fmt.Errorf("artwork size must be between 100 and 5000 pixels")
	}

	if c.Offline.BandwidthLimitKBps < 0 {
		return fmt.Errorf("bandwidth limit cannot be negative")
	}

	if c.Network.Timeout < 1 {
		return fmt.Errorf("network timeout must be at least 1 second")
	}

	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history database path cannot be empty when history is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("server", c.Server)
	v.Set("offline", c.Offline)
	v.Set("network", c.Network)
	v.Set("history", c.History)
	v.Set("logging", c.Logging)

	return v.WriteConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := GetDataDir()

	v.SetDefault("server.base_url", "http://localhost:4000")

	v.SetDefault("offline.data_dir", dataDir)
	v.SetDefault("offline.artwork_size", 600)
	v.SetDefault("offline.bandwidth_limit_kbps", 0)

	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.max_retries", 3)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", filepath.Join(dataDir, "data", "history.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "file")
	v.SetDefault("logging.file_path", filepath.Join(dataDir, "logs", "noxa-core.log"))
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "settings.json")
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "noxa")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".noxa")
}

// ensureConfigDir ensures the configuration directory exists
func ensureConfigDir(configPath string) error {
	dir := filepath.Dir(configPath)
	return os.MkdirAll(dir, 0755)
}
