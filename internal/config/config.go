package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds all configuration for the gallery client.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Storage StorageConfig
	Browse  BrowseConfig
	Viewer  ViewerConfig
	Shell   ShellConfig
	Logging LoggingConfig
}

// ServerConfig holds the local gateway server configuration.
type ServerConfig struct {
	Port         string `validate:"required"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig holds the upstream gallery API configuration.
type BackendConfig struct {
	BaseURL        string `validate:"required,url"`
	RequestTimeout time.Duration
	// MediaPathPrefixes are the protected paths that get the bearer token
	// injected by the interceptor.
	MediaPathPrefixes []string
}

// StorageConfig holds the durable client-side state locations.
type StorageConfig struct {
	// DataDir defaults to ~/.photo-gallery. Holds the token file, the bolt
	// database and the blob cache.
	DataDir   string
	TokenFile string
	BoltFile  string
	BlobDir   string
}

// BrowseConfig tunes the media list controller.
type BrowseConfig struct {
	PageSize        int `validate:"min=1,max=200"`
	SearchDebounce  time.Duration
	ScrollThreshold int
}

// ViewerConfig tunes the viewer gesture thresholds, in pixels unless noted.
type ViewerConfig struct {
	IntentThreshold  float64
	TapSlop          float64
	TapMaxDuration   time.Duration
	NavThreshold     float64
	DismissThreshold float64
	Resistance       float64
	HintTimeout      time.Duration
}

// ShellConfig holds the offline app-shell cache configuration. Shell assets
// are fetched from the backend origin and cached locally.
type ShellConfig struct {
	Index    string
	CacheTTL time.Duration
	// WarmAssets are fetched into the cache at startup so navigation works
	// offline from the first request.
	WarmAssets []string
}

// LoggingConfig holds logging specific configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("GALLERY")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolvePaths(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePaths expands the data directory and fills in derived file locations.
func resolvePaths(cfg *Config) error {
	dir, err := homedir.Expand(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data dir: %w", err)
	}
	cfg.Storage.DataDir = dir

	if cfg.Storage.TokenFile == "" {
		cfg.Storage.TokenFile = filepath.Join(dir, "token.json")
	}
	if cfg.Storage.BoltFile == "" {
		cfg.Storage.BoltFile = filepath.Join(dir, "gallery.db")
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = filepath.Join(dir, "blobs")
	}
	return nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "120s")

	// Backend defaults
	v.SetDefault("backend.baseURL", "http://localhost:8000")
	v.SetDefault("backend.requestTimeout", "30s")
	v.SetDefault("backend.mediaPathPrefixes", []string{
		"/api/media",
		"/api/thumbnails",
		"/api/download",
		"/api/hls",
	})

	// Storage defaults
	v.SetDefault("storage.dataDir", "~/.photo-gallery")

	// Browse defaults
	v.SetDefault("browse.pageSize", 50)
	v.SetDefault("browse.searchDebounce", "300ms")
	v.SetDefault("browse.scrollThreshold", 500)

	// Viewer defaults
	v.SetDefault("viewer.intentThreshold", 8)
	v.SetDefault("viewer.tapSlop", 10)
	v.SetDefault("viewer.tapMaxDuration", "300ms")
	v.SetDefault("viewer.navThreshold", 80)
	v.SetDefault("viewer.dismissThreshold", 240)
	v.SetDefault("viewer.resistance", 0.35)
	v.SetDefault("viewer.hintTimeout", "5s")

	// Shell defaults
	v.SetDefault("shell.index", "/index.html")
	v.SetDefault("shell.cacheTTL", "24h")
	v.SetDefault("shell.warmAssets", []string{
		"/",
		"/index.html",
		"/manifest.json",
		"/icons/icon.svg",
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
