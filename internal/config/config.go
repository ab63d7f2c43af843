// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to the OS keychain.
// Every key can be overridden with a ROWBASE_* environment variable, e.g.
// ROWBASE_API_URL or ROWBASE_SINK_TABLE.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rowbase/cli/internal/xdg"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ROWBASE"

const (
	DefaultAPIURL      = "https://api.rowbase.dev"
	DefaultLogLevel    = "info"
	DefaultHTTPTimeout = 10 * time.Second
	DefaultSinkTable   = "rowbase_changes"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	APIURL string `json:"api_url" mapstructure:"api_url"`
	// RealtimeURL is discovered from the API when empty.
	RealtimeURL string        `json:"realtime_url,omitempty" mapstructure:"realtime_url"`
	LogLevel    string        `json:"log_level" mapstructure:"log_level"`
	HTTPTimeout time.Duration `json:"http_timeout" mapstructure:"http_timeout"`
	Sink        SinkConfig    `json:"sink" mapstructure:"sink"`
}

// SinkConfig configures the Postgres mirror used by `rowbase watch --sink`.
// The DSN itself is a secret and lives in the keychain.
type SinkConfig struct {
	Table string `json:"table" mapstructure:"table"`
}

var keys = []string{"api_url", "realtime_url", "log_level", "http_timeout", "sink.table"}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; a missing file yields defaults. Environment
// overrides are applied on top of either.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Config{}, err
	}
	return load(p)
}

func load(p string) (Config, error) {
	var c Config

	v := viper.New()
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("realtime_url", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("sink.table", DefaultSinkTable)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return c, err
		}
	}

	if _, err := os.Stat(p); err == nil {
		v.SetConfigFile(p)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read %s: %w", p, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return c, err
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	return save(p, c)
}

func save(p string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
