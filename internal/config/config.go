// Package config provides configuration loading and structs for gridskin.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	API     APIConfig     `yaml:"api"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
	Compose ComposeConfig `yaml:"compose"`
	Watch   WatchConfig   `yaml:"watch"`
}

// APIConfig holds SteamGridDB API settings. The key is read from the
// SGDB_API_KEY environment variable when unset here.
type APIConfig struct {
	Key             string `yaml:"key"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	DownloadSeconds int    `yaml:"download_timeout_seconds"`
	MaxAttempts     int    `yaml:"max_attempts"`
	BackoffMillis   int    `yaml:"backoff_ms"`
	GridDimensions  string `yaml:"grid_dimensions"`
}

// Timeout returns the search request timeout.
func (a *APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the image download timeout.
func (a *APIConfig) DownloadTimeout() time.Duration {
	return time.Duration(a.DownloadSeconds) * time.Second
}

// Backoff returns the base backoff delay between retries.
func (a *APIConfig) Backoff() time.Duration {
	return time.Duration(a.BackoffMillis) * time.Millisecond
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the cache, output, and overlay asset directories.
type StorageConfig struct {
	CacheDir    string `yaml:"cache_dir"`
	OutputDir   string `yaml:"output_dir"`
	OverlaysDir string `yaml:"overlays_dir"`
}

// SearchConfig holds search result cache settings.
type SearchConfig struct {
	CacheCapacity int `yaml:"cache_capacity"`
}

// ComposeConfig holds canvas settings for composited icons.
type ComposeConfig struct {
	CanvasWidth  int `yaml:"canvas_width"`
	CanvasHeight int `yaml:"canvas_height"`
	CornerRadius int `yaml:"corner_radius"`
}

// WatchConfig controls the overlay directory watcher.
type WatchConfig struct {
	Overlays *bool `yaml:"overlays"`
}

// OverlaysOrDefault returns whether to watch the overlays directory;
// defaults to true when unset.
func (w *WatchConfig) OverlaysOrDefault() bool {
	if w.Overlays != nil {
		return *w.Overlays
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and fills the API key from the environment when unset.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CacheDir = expandPath(cfg.Storage.CacheDir, configDir)
	cfg.Storage.OutputDir = expandPath(cfg.Storage.OutputDir, configDir)
	cfg.Storage.OverlaysDir = expandPath(cfg.Storage.OverlaysDir, configDir)

	if cfg.API.Key == "" {
		cfg.API.Key = os.Getenv("SGDB_API_KEY")
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
