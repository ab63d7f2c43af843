// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", c.APIURL, DefaultAPIURL)
	}
	if c.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", c.LogLevel, DefaultLogLevel)
	}
	if c.HTTPTimeout != DefaultHTTPTimeout {
		t.Errorf("HTTPTimeout = %v, want %v", c.HTTPTimeout, DefaultHTTPTimeout)
	}
	if c.Sink.Table != DefaultSinkTable {
		t.Errorf("Sink.Table = %q, want %q", c.Sink.Table, DefaultSinkTable)
	}
	if c.RealtimeURL != "" {
		t.Errorf("RealtimeURL = %q, want empty", c.RealtimeURL)
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := Config{
		APIURL:      "https://example.test",
		RealtimeURL: "wss://example.test/realtime",
		LogLevel:    "debug",
		HTTPTimeout: 3 * time.Second,
		Sink:        SinkConfig{Table: "mirror"},
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "rowbase", "config.json"))
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := Save(Config{APIURL: "https://from-file.test", LogLevel: "warn"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ROWBASE_API_URL", "http://localhost:8080/")
	t.Setenv("ROWBASE_HTTP_TIMEOUT", "45s")
	t.Setenv("ROWBASE_SINK_TABLE", "events")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"api url trimmed", c.APIURL, "http://localhost:8080"},
		{"log level from file", c.LogLevel, "warn"},
		{"timeout from env", c.HTTPTimeout, 45 * time.Second},
		{"sink table from env", c.Sink.Table, "events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := load(p); err == nil {
		t.Error("load() of malformed file succeeded, want error")
	}
}
