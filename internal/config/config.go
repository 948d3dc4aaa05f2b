package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects the persistence backend for sync state.
type StoreConfig struct {
	// Driver is one of "file", "sqlite", "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Path is a directory for "file" and a database file for "sqlite".
	Path string `yaml:"path" json:"path"`
}

// RetryConfig controls backoff for calls to the external calendar.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval"`
}

// ProviderConfig describes the external calendar, exchanged as ICS.
type ProviderConfig struct {
	// Name labels imported events and history entries (e.g. "google").
	Name string `yaml:"name" json:"name"`
	// FeedURL is read on import. http(s) URLs go through the caching
	// fetcher; anything else is treated as a local file path.
	FeedURL string `yaml:"feed_url" json:"feed_url"`
	// ExportPath is the ICS file exported events are written to.
	ExportPath string `yaml:"export_path" json:"export_path"`
	// CacheDir holds the HTTP cache for FeedURL.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// HorizonDays bounds how far ahead recurring feed events are expanded.
	HorizonDays int         `yaml:"horizon_days" json:"horizon_days"`
	Retry       RetryConfig `yaml:"retry" json:"retry"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for local-time arithmetic.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// SyncInterval sets nextSync after start and after each pass.
	SyncInterval time.Duration `yaml:"sync_interval" json:"sync_interval"`

	// SyncCron triggers sync passes while the session is active. Empty
	// disables the scheduler; passes then only run on request.
	SyncCron string `yaml:"sync_cron" json:"sync_cron"`

	// AutoStart activates the session at startup if it is not already.
	AutoStart bool `yaml:"auto_start" json:"auto_start"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "UTC"
	defaultLogLevel     = "info"
	defaultSyncInterval = 15 * time.Minute
	defaultSyncCron     = "*/15 * * * *"
	defaultStoreDriver  = "file"
	defaultStorePath    = "./var/state"
	defaultProvider     = "external"
	defaultExportPath   = "./var/export.ics"
	defaultCacheDir     = "./var/ics-cache"
	defaultHorizonDays  = 30
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		SyncCron: defaultSyncCron,
		Metrics:  MetricsConfig{Enabled: true},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}

	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
		if c.Store.Driver == "sqlite" {
			c.Store.Path = defaultStorePath + ".db"
		}
	}

	p := &c.Provider
	if p.Name == "" {
		p.Name = defaultProvider
	}
	if p.ExportPath == "" {
		p.ExportPath = defaultExportPath
	}
	if p.CacheDir == "" {
		p.CacheDir = defaultCacheDir
	}
	if p.HorizonDays <= 0 {
		p.HorizonDays = defaultHorizonDays
	}
	if p.Retry.MaxAttempts <= 0 {
		p.Retry.MaxAttempts = 3
	}
	if p.Retry.InitialInterval <= 0 {
		p.Retry.InitialInterval = 500 * time.Millisecond
	}
	if p.Retry.MaxInterval <= 0 {
		p.Retry.MaxInterval = 5 * time.Second
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600) and
// returned. Otherwise the file is parsed and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Keys absent from the file keep their defaults.
	cfg := Config{SyncCron: defaultSyncCron, Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".synccal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
