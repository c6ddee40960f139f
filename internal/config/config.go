// Package config handles application configuration management.
// It supports YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Gallery GalleryConfig `mapstructure:"gallery" yaml:"gallery"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Layout  LayoutConfig  `mapstructure:"layout" yaml:"layout"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// APIConfig holds the library service connection settings
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GalleryConfig holds display settings
type GalleryConfig struct {
	ThumbnailSize string `mapstructure:"thumbnail_size" yaml:"thumbnail_size"` // small, medium or large
	Columns       int    `mapstructure:"columns" yaml:"columns"`               // 0 = from terminal width
}

// CacheConfig holds query cache settings
type CacheConfig struct {
	MaxEntries   int           `mapstructure:"max_entries" yaml:"max_entries"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"` // 0 = none
}

// LayoutConfig holds layout engine settings
type LayoutConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// ServerConfig holds the local library service settings
type ServerConfig struct {
	Listen        string `mapstructure:"listen" yaml:"listen"`
	Database      string `mapstructure:"database" yaml:"database"`
	ThumbnailsDir string `mapstructure:"thumbnails_dir" yaml:"thumbnails_dir"`
	TopTags       int    `mapstructure:"top_tags" yaml:"top_tags"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("gallery.thumbnail_size", "medium")
	v.SetDefault("gallery.columns", 0)
	v.SetDefault("cache.max_entries", 512)
	v.SetDefault("cache.fetch_timeout", 0)
	v.SetDefault("layout.settle_delay", 300*time.Millisecond)
	v.SetDefault("server.listen", ":8000")
	v.SetDefault("server.database", filepath.Join(configDir, "vault.db"))
	v.SetDefault("server.thumbnails_dir", filepath.Join(configDir, "thumbnails"))
	v.SetDefault("server.top_tags", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from .env, the config file and environment variables
func Load() (*Config, error) {
	// .env only fills variables not already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine config directory: %w", err)
	}
	setDefaults(v, configDir)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	// VAULT_API_BASE_URL overrides api.base_url, and so on
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	switch c.Gallery.ThumbnailSize {
	case "small", "medium", "large":
	default:
		return fmt.Errorf("invalid gallery.thumbnail_size %q (want small, medium or large)", c.Gallery.ThumbnailSize)
	}
	if c.Gallery.Columns < 0 {
		return fmt.Errorf("invalid gallery.columns %d", c.Gallery.Columns)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("invalid cache.max_entries %d", c.Cache.MaxEntries)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// Save writes the configuration to config.yaml in the config directory
// and returns the path written
func Save(cfg *Config) (string, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	v := viper.New()
	v.Set("api", map[string]any{
		"base_url": cfg.API.BaseURL,
		"timeout":  cfg.API.Timeout.String(),
	})
	v.Set("gallery", map[string]any{
		"thumbnail_size": cfg.Gallery.ThumbnailSize,
		"columns":        cfg.Gallery.Columns,
	})
	v.Set("cache", map[string]any{
		"max_entries":   cfg.Cache.MaxEntries,
		"fetch_timeout": cfg.Cache.FetchTimeout.String(),
	})
	v.Set("layout", map[string]any{
		"settle_delay": cfg.Layout.SettleDelay.String(),
	})
	v.Set("server", map[string]any{
		"listen":         cfg.Server.Listen,
		"database":       cfg.Server.Database,
		"thumbnails_dir": cfg.Server.ThumbnailsDir,
		"top_tags":       cfg.Server.TopTags,
	})
	v.Set("log", map[string]any{
		"level":  cfg.Log.Level,
		"format": cfg.Log.Format,
	})

	if err := v.WriteConfigAs(configPath); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configPath, nil
}

// NewLogger builds a logger from the log settings
func NewLogger(c LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level := c.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(lvl)

	switch c.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", c.Format)
	}
	return log, nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	if configDir := os.Getenv("VAULT_CONFIG_DIR"); configDir != "" {
		return configDir, nil
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "visionary-vault"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".config", "visionary-vault"), nil
}

// GetConfigDir returns the configuration directory (exported for other packages)
func GetConfigDir() (string, error) {
	return getConfigDir()
}
