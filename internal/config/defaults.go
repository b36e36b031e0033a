package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://www.steamgriddb.com/api/v2"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.API.DownloadSeconds == 0 {
		cfg.API.DownloadSeconds = 15
	}
	if cfg.API.MaxAttempts == 0 {
		cfg.API.MaxAttempts = 3
	}
	if cfg.API.BackoffMillis == 0 {
		cfg.API.BackoffMillis = 500
	}
	if cfg.API.GridDimensions == "" {
		cfg.API.GridDimensions = "1024x1024"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = ".gridskin/cache"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = ".gridskin/output"
	}
	if cfg.Storage.OverlaysDir == "" {
		cfg.Storage.OverlaysDir = ".gridskin/icon_overlays"
	}
	if cfg.Search.CacheCapacity == 0 {
		cfg.Search.CacheCapacity = 256
	}
	if cfg.Compose.CanvasWidth == 0 {
		cfg.Compose.CanvasWidth = 1024
	}
	if cfg.Compose.CanvasHeight == 0 {
		cfg.Compose.CanvasHeight = 1024
	}
	if cfg.Compose.CornerRadius == 0 {
		cfg.Compose.CornerRadius = 120
	}
}
