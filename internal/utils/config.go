package utils

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// PostgresConfig describes an optional Postgres connection used for the
// catalog overlay store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Level      string `yaml:"level"`
	} `yaml:"logger"`

	Limits struct {
		// MaxUploadBytes caps the declared request body size; checked
		// before the body is read.
		MaxUploadBytes     int64 `yaml:"max_upload_bytes"`
		ConvertTimeoutSecs int   `yaml:"convert_timeout_secs"`
	} `yaml:"limits"`

	RateLimiter struct {
		PerMinute int           `yaml:"per_minute"`
		Interval  time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`

	Cache struct {
		RedisHost          string        `yaml:"redis_host"`
		RateLimitDB        int           `yaml:"rate_limit_db"`
		ResultCacheDB      int           `yaml:"result_cache_db"`
		ResultCacheEnabled bool          `yaml:"result_cache_enabled"`
		ResultCacheTTL     time.Duration `yaml:"result_cache_ttl"`
	} `yaml:"cache"`

	Catalog struct {
		// OverlayFile is the catalog editor's persisted form: a JSON
		// list of {id, enabled} records applied over the built-in routes.
		OverlayFile     string         `yaml:"overlay_file"`
		RefreshInterval time.Duration  `yaml:"refresh_interval"`
		Postgres        PostgresConfig `yaml:"postgres"`
	} `yaml:"catalog"`

	Convert struct {
		DefaultQuality int `yaml:"default_quality"`
		DefaultDPI     int `yaml:"default_dpi"`
		Workers        int `yaml:"workers"`
	} `yaml:"convert"`
}

var configState struct {
	sync.RWMutex
	cfg Config
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.Port = ":8080"
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 100
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 28
	cfg.Limits.MaxUploadBytes = 20 << 20
	cfg.Limits.ConvertTimeoutSecs = 60
	cfg.RateLimiter.PerMinute = 60
	cfg.RateLimiter.Interval = time.Minute
	cfg.Cache.ResultCacheTTL = 24 * time.Hour
	cfg.Catalog.RefreshInterval = time.Minute
	cfg.Convert.DefaultQuality = 90
	cfg.Convert.DefaultDPI = 144
	cfg.Convert.Workers = runtime.NumCPU()
	return cfg
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// (ZC_CONFIG or ./config.yaml), and a handful of environment overrides.
// The result becomes the process-wide configuration returned by GetConfig.
func LoadConfig() Config {
	cfg := defaultConfig()

	path := os.Getenv("ZC_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			Error("Failed to parse config file", "path", path, "error", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	SetConfig(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if v[0] != ':' {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Cache.RedisHost = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Limits.MaxUploadBytes = n << 20
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimiter.PerMinute = n
		}
	}
}

func normalize(cfg *Config) {
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Limits.ConvertTimeoutSecs <= 0 {
		cfg.Limits.ConvertTimeoutSecs = 60
	}
	if cfg.Convert.DefaultQuality < 1 || cfg.Convert.DefaultQuality > 100 {
		cfg.Convert.DefaultQuality = 90
	}
	if cfg.Convert.DefaultDPI <= 0 {
		cfg.Convert.DefaultDPI = 144
	}
	if cfg.Convert.Workers <= 0 {
		cfg.Convert.Workers = runtime.NumCPU()
	}
}

// SetConfig replaces the process-wide configuration.
func SetConfig(cfg Config) {
	configState.Lock()
	configState.cfg = cfg
	configState.Unlock()
}

// GetConfig returns the process-wide configuration.
func GetConfig() Config {
	configState.RLock()
	defer configState.RUnlock()
	return configState.cfg
}
