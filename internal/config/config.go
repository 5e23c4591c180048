// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads gatehouse configuration from a YAML file and
// command-line flags, with flags taking precedence over the file.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the root configuration for the gatehouse process.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Schema   SchemaConfig   `koanf:"schema"`
	Database DatabaseConfig `koanf:"database"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Audit    AuditConfig    `koanf:"audit"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "text"
}

// SchemaConfig selects where schema source comes from and how it is
// refreshed. File and Name are mutually exclusive: File reads from
// disk, Name reads the named schema from the database store.
type SchemaConfig struct {
	File               string        `koanf:"file"`
	Name               string        `koanf:"name"`
	Watch              bool          `koanf:"watch"`
	StalenessThreshold time.Duration `koanf:"staleness_threshold"`
}

// DatabaseConfig holds the PostgreSQL connection string for the schema
// store. Empty means file-only operation.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// MetricsConfig controls the observability HTTP endpoint served by
// long-running commands. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// AuditConfig controls the decision audit trail.
type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Mode    string `koanf:"mode"` // "minimal", "denials_only", "all"
	LogPath string `koanf:"log_path"`
	WALPath string `koanf:"wal_path"`
}

// Default returns the configuration used when neither file nor flags
// override a value.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Schema: SchemaConfig{
			Watch:              false,
			StalenessThreshold: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled: false,
			Mode:    "denials_only",
			LogPath: "gatehouse-audit.jsonl",
			WALPath: "gatehouse-audit.wal",
		},
	}
}

// Load builds a Config from the optional YAML file at path and the
// given flag set. Precedence, lowest to highest: defaults, file,
// flags. A missing file is an error only when the path was set
// explicitly.
func Load(path string, explicit bool, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		if err != nil {
			if os.IsNotExist(err) && !explicit {
				// Default config path absent; run on defaults.
			} else {
				return cfg, oops.With("path", path).Wrapf(err, "load config file")
			}
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return cfg, oops.Wrapf(err, "load config flags")
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.Wrapf(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Schema.File != "" && c.Schema.Name != "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("schema.file and schema.name are mutually exclusive")
	}
	if c.Schema.Name != "" && c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("schema.name requires database.url")
	}
	switch c.Audit.Mode {
	case "minimal", "denials_only", "all":
	default:
		return oops.Code("CONFIG_INVALID").With("mode", c.Audit.Mode).
			Errorf("audit.mode must be minimal, denials_only, or all")
	}
	if c.Schema.StalenessThreshold <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("schema.staleness_threshold must be positive")
	}
	return nil
}
