// Package config loads and validates the catalog configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/catalog-janitor/internal/common"
)

// Defaults for settings that have no config file entry.
const (
	DefaultBatchLimit       = 100
	DefaultMaxBatchLimit    = 5000
	DefaultMaxPasses        = 3
	DefaultImageThreshold   = 50
	DefaultMinContainLength = 4
	DefaultServerAddr       = "127.0.0.1:8080"
)

// Config is the validated application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Images   ImagesConfig   `mapstructure:"images"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Text     TextConfig     `mapstructure:"text"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig locates the catalog store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RulesConfig locates the rule and taxonomy file. An empty path uses the
// compiled-in rules.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// ImagesConfig configures the image pool.
type ImagesConfig struct {
	Dir              string `mapstructure:"dir"`
	URLPrefix        string `mapstructure:"url_prefix"`
	Threshold        int    `mapstructure:"threshold" validate:"gte=0,lte=100"`
	MinContainLength int    `mapstructure:"min_contain_length" validate:"gte=0"`
}

// BatchConfig bounds batch jobs.
type BatchConfig struct {
	Limit      int  `mapstructure:"limit" validate:"gt=0,ltefield=MaxLimit"`
	MaxLimit   int  `mapstructure:"max_limit" validate:"gt=0"`
	MaxPasses  int  `mapstructure:"max_passes" validate:"gte=1,lte=10"`
	Checkpoint bool `mapstructure:"checkpoint"`
}

// TextConfig tunes normalization.
type TextConfig struct {
	MinTokenLength int  `mapstructure:"min_token_length" validate:"gte=1"`
	FoldDiacritics bool `mapstructure:"fold_diacritics"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// MetricsConfig configures metrics output for CLI runs. An empty textfile
// path disables it.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=console text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultDatabasePath is the store location used when none is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "catalog.db"
	}
	return filepath.Join(home, ".local", "share", "catalog", "catalog.db")
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("rules.path", "")
	v.SetDefault("images.dir", "")
	v.SetDefault("images.url_prefix", "")
	v.SetDefault("images.threshold", DefaultImageThreshold)
	v.SetDefault("images.min_contain_length", DefaultMinContainLength)
	v.SetDefault("batch.limit", DefaultBatchLimit)
	v.SetDefault("batch.max_limit", DefaultMaxBatchLimit)
	v.SetDefault("batch.max_passes", DefaultMaxPasses)
	v.SetDefault("batch.checkpoint", true)
	v.SetDefault("text.min_token_length", 3)
	v.SetDefault("text.fold_diacritics", false)
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("metrics.textfile", "")
}

// Load reads and validates the configuration held by v. Paths are expanded
// with ExpandPath; a relative rules.path or images.dir is taken relative to
// the config file that v read.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	base := configDir(v)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Rules.Path = resolveFrom(base, cfg.Rules.Path)
	cfg.Images.Dir = resolveFrom(base, cfg.Images.Dir)
	cfg.Metrics.Textfile = ExpandPath(cfg.Metrics.Textfile)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidConfig, describe(err))
	}
	return &cfg, nil
}

// describe flattens validator errors to "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
