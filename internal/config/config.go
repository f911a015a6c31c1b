// Package config loads pagewatch configuration from file, environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the tool-level configuration. Reconciliation settings the
// user can change at runtime (auto-reload and friends) live in the store,
// not here.
type Config struct {
	// StorePath is the SQLite database holding pending changes,
	// snapshots and settings.
	StorePath string `mapstructure:"store_path"`

	// BatchDelayMs is the watch queue coalescing window in milliseconds.
	BatchDelayMs int `mapstructure:"batch_delay_ms"`

	// LogFile enables rotated file logging for the watch daemon when set.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	Notify NotifyConfig `mapstructure:"notify"`
}

// NotifyConfig configures the WebSocket notification server.
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads pagewatch.yaml from the working directory or
// ~/.config/pagewatch, applies PAGEWATCH_* environment overrides, and
// falls back to defaults. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("pagewatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pagewatch"))
	}

	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("batch_delay_ms", 100)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.port", 8735)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pagewatch/pagewatch.db"
	}
	return filepath.Join(home, ".pagewatch", "pagewatch.db")
}

// NewLogger builds the daemon logger: stderr, plus a lumberjack-rotated
// file when LogFile is configured.
func NewLogger(cfg *Config, prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}
