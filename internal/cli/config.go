package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file. Flags given on the command line
// override it.
type Config struct {
	// Root is the directory served by the local store.
	Root string `yaml:"root"`
	// Workers is the scheduler worker count. 0 selects GOMAXPROCS.
	Workers int `yaml:"workers"`
	// MemoryLimit bounds payload and cache bytes. 0 is unlimited.
	MemoryLimit int64 `yaml:"memory_limit"`
	// IOLimit bounds loader reads in bytes per second. 0 is unlimited.
	IOLimit int64 `yaml:"io_limit"`
	// CacheBytes bounds the decoded content cache of the loader.
	CacheBytes int64 `yaml:"cache_bytes"`
	// MaxReloads bounds concurrent watch-driven reloads.
	MaxReloads int64 `yaml:"max_reloads"`
	// Debounce is the change coalescing window of the watcher.
	Debounce time.Duration `yaml:"debounce"`
	LogLevel string        `yaml:"log_level"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the blob store backend.
type StoreConfig struct {
	// Type is one of local, s3 or minio. Default: local.
	Type      string `yaml:"type"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	// BlockCacheBytes sizes the block cache in front of remote stores.
	BlockCacheBytes int64 `yaml:"block_cache_bytes"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Root:       ".",
		MaxReloads: 2,
		Debounce:   50 * time.Millisecond,
		LogLevel:   "info",
		Store: StoreConfig{
			Type:            "local",
			BlockCacheBytes: 64 << 20,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MemoryLimit < 0 || c.IOLimit < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Store.Type {
	case "", "local":
	case "s3", "minio":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store %s requires a bucket", c.Store.Type)
		}
		if c.Store.Type == "minio" && c.Store.Endpoint == "" {
			return fmt.Errorf("store minio requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}
