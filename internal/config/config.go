// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package config loads service configuration from a YAML file and command
// line flags, flags winning. All fields carry working defaults so a bare
// `parley serve` against a local database just runs.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Notify        NotifyConfig        `koanf:"notify"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `koanf:"addr"`

	// BaseURL is the externally reachable prefix used in emailed links.
	BaseURL string `koanf:"base_url"`

	// SecureCookies marks the session cookie Secure. Turn off only for
	// plain-HTTP development.
	SecureCookies bool `koanf:"secure_cookies"`
}

// DatabaseConfig configures PostgreSQL connectivity.
type DatabaseConfig struct {
	// URL is a postgres:// connection string. Empty selects the in-memory
	// stores (development only; nothing survives a restart).
	URL string `koanf:"url"`
}

// ObservabilityConfig configures the metrics/health server.
type ObservabilityConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	// Approver receives admin elevation requests.
	Approver string `koanf:"approver"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:          ":8080",
			BaseURL:       "http://localhost:8080",
			SecureCookies: true,
		},
		Database: DatabaseConfig{
			URL: "",
		},
		Observability: ObservabilityConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9100",
		},
		Logging: LoggingConfig{
			Format: "json",
		},
		Notify: NotifyConfig{
			Approver: "",
		},
	}
}

// Load reads configuration from the YAML file at path (skipped when path is
// empty or the file does not exist) and overlays any set flags. Flags use
// dotted names matching the koanf keys (e.g. --server.addr).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, oops.Code("CONFIG_LOAD_FAILED").
					With("path", path).
					Wrap(err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr cannot be empty")
	}
	if c.Server.BaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.base_url cannot be empty")
	}
	if strings.HasSuffix(c.Server.BaseURL, "/") {
		return oops.Code("CONFIG_INVALID").Errorf("server.base_url must not end with a slash")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Logging.Format).
			Errorf("logging.format must be json or text")
	}
	if c.Observability.Enabled && c.Observability.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("observability.addr cannot be empty when enabled")
	}
	return nil
}
