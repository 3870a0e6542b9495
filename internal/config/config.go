package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// StationEntry names one station to report on. Name is optional and
// overrides the provider's station name when set.
type StationEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	Sender   string `yaml:"sender" env:"SMTP_SENDER"`
}

// CacheConfig holds all cache-related configuration
type CacheConfig struct {
	Dir                string `yaml:"dir" env:"CACHE_DIR"`
	MetadataTTLDays    int    `yaml:"metadata_ttl_days" env:"CACHE_METADATA_TTL_DAYS"`
	PredictionTTLHours int    `yaml:"prediction_ttl_hours" env:"CACHE_PREDICTION_TTL_HOURS"`
	ImageTTLDays       int    `yaml:"image_ttl_days" env:"CACHE_IMAGE_TTL_DAYS"`
	RetentionDays      int    `yaml:"retention_days" env:"CACHE_RETENTION_DAYS"`
	LRUSize            int    `yaml:"lru_size" env:"CACHE_LRU_SIZE"`
	LRUTTLMinutes      int    `yaml:"lru_ttl_minutes" env:"CACHE_LRU_TTL_MINUTES"`
}

type Config struct {
	Environment string `yaml:"environment" env:"ENV"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`

	Stations   []StationEntry `yaml:"stations"`
	Recipients []string       `yaml:"recipients" env:"RECIPIENTS" envSeparator:","`

	SMTP       SMTPConfig  `yaml:"smtp"`
	Cache      CacheConfig `yaml:"cache"`
	MapsAPIKey string      `yaml:"maps_api_key" env:"MAPS_API_KEY"`

	NOAABaseURL string `yaml:"noaa_base_url" env:"NOAA_BASE_URL"`
	MapsBaseURL string `yaml:"maps_base_url" env:"MAPS_BASE_URL"`

	HTTPTimeoutSeconds int  `yaml:"http_timeout_seconds" env:"HTTP_TIMEOUT_SECONDS"`
	MaxParallel        int  `yaml:"max_parallel" env:"MAX_PARALLEL"`
	PredictionsFatal   bool `yaml:"predictions_fatal" env:"PREDICTIONS_FATAL"`
}

// New returns a configuration with default values.
func New() *Config {
	return &Config{
		Environment: "production",
		LogLevel:    "info",
		Cache: CacheConfig{
			MetadataTTLDays:    7,
			PredictionTTLHours: 3,
			ImageTTLDays:       14,
			RetentionDays:      1,
			LRUSize:            256,
			LRUTTLMinutes:      15,
		},
		NOAABaseURL:        "https://api.tidesandcurrents.noaa.gov",
		MapsBaseURL:        "https://maps.googleapis.com",
		HTTPTimeoutSeconds: 10,
		MaxParallel:        4,
		PredictionsFatal:   true,
	}
}

// Load builds the configuration from defaults, then the YAML file, then
// TIDEREPORT_-prefixed environment variables, each layer overriding the
// previous. An empty path searches the well-known locations.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = findDefaultConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "TIDEREPORT_"}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = defaultCacheDir()
	}

	return cfg, nil
}

func findDefaultConfig() string {
	candidates := []string{
		os.Getenv("TIDEREPORT_CONFIG_FILE"),
		"config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tidereport", "config.yaml"))
	}
	candidates = append(candidates, "/etc/tidereport/config.yaml")

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return "tidereport-cache"
	}
	return filepath.Join(base, "tidereport")
}

// Freshness window accessors.

func (c *Config) MetadataWindow() time.Duration {
	return time.Duration(c.Cache.MetadataTTLDays) * 24 * time.Hour
}

func (c *Config) PredictionWindow() time.Duration {
	return time.Duration(c.Cache.PredictionTTLHours) * time.Hour
}

func (c *Config) ImageWindow() time.Duration {
	return time.Duration(c.Cache.ImageTTLDays) * 24 * time.Hour
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Cache.RetentionDays) * 24 * time.Hour
}

func (c *Config) LRUTTL() time.Duration {
	return time.Duration(c.Cache.LRUTTLMinutes) * time.Minute
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// InitializeLogging sets up logging based on the configuration
func (c *Config) InitializeLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Setup console logger for development environments
	if c.Environment == "local" || c.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
