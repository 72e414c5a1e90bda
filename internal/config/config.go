// Package config loads taxcore's operating configuration, following
// the teacher's internal/config/yaml_config.go shape: a YAML file by
// default, viper-backed, hot-reloaded via fsnotify, with a TOML
// fallback format and TAXCORE_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RowFailurePolicy selects how the Row Transformer responds to a
// per-row error (spec §4.C, §7).
type RowFailurePolicy string

const (
	// FailurePerRow records the error, marks the Bronze row failed,
	// and continues to the next row (spec §7 default).
	FailurePerRow RowFailurePolicy = "per-row"
	// FailureAbort rethrows on the first row error, aborting the
	// load's transaction entirely.
	FailureAbort RowFailurePolicy = "abort"
)

// Config is taxcore's full runtime configuration.
type Config struct {
	Database struct {
		DSN         string `mapstructure:"dsn"`
		MaxConns    int32  `mapstructure:"max_conns"`
		MinConns    int32  `mapstructure:"min_conns"`
	} `mapstructure:"database"`

	Pipeline struct {
		OuterDeadline      time.Duration    `mapstructure:"outer_deadline"`
		DefaultMappingLevel int             `mapstructure:"default_mapping_level"`
		RowFailurePolicy   RowFailurePolicy `mapstructure:"row_failure_policy"`
		NALiterals         []string         `mapstructure:"na_literals"`
		MaxHierarchyDepth  int              `mapstructure:"max_hierarchy_depth"`
	} `mapstructure:"pipeline"`

	Logging struct {
		Level      string `mapstructure:"level"`
		FilePath   string `mapstructure:"file_path"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"logging"`
}

// Defaults returns a Config populated with the documented defaults
// (spec §4.C row-failure default, §5 outer deadline, §4.B N/A
// literals).
func Defaults() Config {
	var c Config
	c.Database.MaxConns = 8
	c.Database.MinConns = 1
	c.Pipeline.OuterDeadline = 5 * time.Minute
	c.Pipeline.DefaultMappingLevel = 0
	c.Pipeline.RowFailurePolicy = FailurePerRow
	c.Pipeline.NALiterals = []string{"n/a", "na"}
	c.Pipeline.MaxHierarchyDepth = 32
	c.Logging.Level = "info"
	return c
}

// Load reads configuration from path (YAML or TOML, selected by
// extension) layered over Defaults(), then applies TAXCORE_-prefixed
// environment variable overrides. An empty path returns Defaults()
// with environment overrides only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix("TAXCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv alone does not expose a key to Unmarshal unless a
	// config file sets it, so every key is bound to its variable.
	for _, key := range []string{"database.dsn", "database.max_conns", "database.min_conns",
		"pipeline.outer_deadline", "pipeline.default_mapping_level", "pipeline.row_failure_policy",
		"pipeline.na_literals", "pipeline.max_hierarchy_depth", "logging.level", "logging.file_path",
		"logging.max_size_mb", "logging.max_backups", "logging.max_age_days"} {
		_ = v.BindEnv(key)
	}

	if path == "" {
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("unmarshal default config: %w", err)
		}
		return cfg, nil
	}

	if strings.HasSuffix(path, ".toml") {
		var raw map[string]interface{}
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return cfg, fmt.Errorf("decode toml config %s: %w", path, err)
		}
		if err := v.MergeConfigMap(raw); err != nil {
			return cfg, fmt.Errorf("merge toml config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// WatchReload installs an fsnotify-backed watcher on path (when a
// YAML file) and invokes onChange with the reloaded Config whenever
// it changes on disk, following the teacher's viper+fsnotify hot
// reload wiring.
func WatchReload(path string, onChange func(Config)) error {
	if path == "" || strings.HasSuffix(path, ".toml") {
		return nil // TOML configs are loaded once at startup, not watched.
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := Defaults()
		if err := v.Unmarshal(&cfg); err == nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}
