// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Storage  StorageConfig       `yaml:"storage"`
	Operator OperatorConfig      `yaml:"operator"`
	Quota    QuotaConfig         `yaml:"quota"`
	Upvotes  UpvotesConfig       `yaml:"upvotes"`
	Poll     PollConfig          `yaml:"poll"`
	Playlist PlaylistConfig      `yaml:"playlist"`
	Criteria []CriteriaSetConfig `yaml:"criteria"`
	Library  LibraryConfig       `yaml:"library"`
	Log      LogConfig           `yaml:"log"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// StorageConfig selects the entry store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" default:"memory" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" default:"karabox.db"`
}

// OperatorConfig represents operator access configuration.
type OperatorConfig struct {
	Token        string   `yaml:"token" validate:"required"`
	DisplayNames []string `yaml:"display_names"`
}

// QuotaConfig represents the per-user request quota.
type QuotaConfig struct {
	Kind  string `yaml:"kind" default:"none" validate:"oneof=none songs time"`
	Limit int    `yaml:"limit" validate:"gte=0"`
}

// UpvotesConfig represents the free-promotion threshold.
type UpvotesConfig struct {
	Percent int `yaml:"percent" default:"33" validate:"gte=0,lte=100"`
	Min     int `yaml:"min" default:"3" validate:"gte=1"`
}

// PollConfig represents the song poll parameters.
type PollConfig struct {
	Choices    int `yaml:"choices" default:"4" validate:"gte=2,lte=16"`
	TimeoutSec int `yaml:"timeout_sec" default:"30" validate:"gte=5,lte=600"`
}

// PlaylistConfig holds the defaults applied to the standard playlist.
type PlaylistConfig struct {
	DejavuHours     int  `yaml:"dejavu_hours" validate:"gte=0"`
	AllowDuplicates bool `yaml:"allow_duplicates"`
	AutoSortLikes   bool `yaml:"auto_sort_likes"`
}

// CriteriaSetConfig represents one criteria set loaded at startup. Settings
// maps are decoded into typed criteria later.
type CriteriaSetConfig struct {
	Name     string           `yaml:"name" validate:"required"`
	Active   bool             `yaml:"active"`
	Settings []map[string]any `yaml:"settings"`
}

// LibraryConfig represents the song library source.
type LibraryConfig struct {
	SongsFile string `yaml:"songs_file"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("KARABOX_OPERATOR_TOKEN"); v != "" {
		c.Operator.Token = v
	}
	if v := os.Getenv("KARABOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("KARABOX_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateCriteriaConsistency(); err != nil {
		return err
	}
	return nil
}

// validateCriteriaConsistency rejects configurations with more than one
// active criteria set.
func (c *Config) validateCriteriaConsistency() error {
	active := 0
	for _, set := range c.Criteria {
		if set.Active {
			active++
		}
	}
	if active > 1 {
		return errors.Newf("at most one criteria set may be active: got %d", active)
	}
	return nil
}

// IsOperatorDisplayName checks if the given display name is an operator.
func (c *Config) IsOperatorDisplayName(displayName string) bool {
	for _, name := range c.Operator.DisplayNames {
		if name == displayName {
			return true
		}
	}
	return false
}

// DejavuWindow returns the dejavu window as a duration. Zero disables the
// check.
func (c *Config) DejavuWindow() time.Duration {
	return time.Duration(c.Playlist.DejavuHours) * time.Hour
}

// PollTimeout returns the poll voting window as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Poll.TimeoutSec) * time.Second
}
