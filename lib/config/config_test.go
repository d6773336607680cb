// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auditdesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Setenv(EnvSessionFile, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Server.URL != "http://localhost:5000" {
		t.Errorf("expected server.url=http://localhost:5000, got %s", cfg.Server.URL)
	}
	if cfg.Snapshot.Attempts != 3 || cfg.Snapshot.InitialBackoff != 500*time.Millisecond || cfg.Snapshot.MaxBackoff != 5*time.Second {
		t.Errorf("unexpected snapshot defaults: %+v", cfg.Snapshot)
	}
	if cfg.Actions != cfg.Snapshot {
		t.Errorf("unexpected actions defaults: %+v", cfg.Actions)
	}
	if cfg.Stream.InitialBackoff != time.Second || cfg.Stream.MaxBackoff != 30*time.Second {
		t.Errorf("unexpected stream defaults: %+v", cfg.Stream)
	}
	if cfg.Session.File != "/xdg/auditdesk/session.json" {
		t.Errorf("expected session file under XDG_CONFIG_HOME, got %s", cfg.Session.File)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestDefaultSessionFileFromEnvironment(t *testing.T) {
	t.Setenv(EnvSessionFile, "/run/user/1000/auditdesk.json")

	if got := Default().Session.File; got != "/run/user/1000/auditdesk.json" {
		t.Errorf("session file = %s", got)
	}
}

func TestLoad_WithoutConfigUsesDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.URL != Default().Server.URL {
		t.Errorf("expected default server url, got %s", cfg.Server.URL)
	}
}

func TestLoad_FromEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, `
environment: staging
server:
  url: https://audit.staging.example.com
  request_timeout: 5s
`)
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Server.URL != "https://audit.staging.example.com" {
		t.Errorf("expected staging url, got %s", cfg.Server.URL)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("expected request_timeout=5s, got %v", cfg.Server.RequestTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.Stream.MaxBackoff != 30*time.Second {
		t.Errorf("expected default stream max_backoff, got %v", cfg.Stream.MaxBackoff)
	}
}

func TestLoad_FlagWinsOverEnvironment(t *testing.T) {
	fromFlag := writeConfig(t, "server:\n  url: https://flag.example.com\n")
	fromEnvironment := writeConfig(t, "server:\n  url: https://env.example.com\n")
	t.Setenv(EnvConfig, fromEnvironment)

	cfg, err := Load(fromFlag)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.URL != "https://flag.example.com" {
		t.Errorf("expected the --config file to win, got %s", cfg.Server.URL)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := loadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed\n")
	if _, err := loadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  url: http://localhost:5000
snapshot:
  attempts: 3
production:
  server:
    url: https://audit.example.com
  snapshot:
    attempts: 5
  actions:
    attempts: 1
    max_backoff: 2s
  log:
    level: warn
development:
  server:
    url: http://dev.invalid
`)

	cfg, err := loadFile(path)
	if err != nil {
		t.Fatalf("loadFile() failed: %v", err)
	}
	if cfg.Server.URL != "https://audit.example.com" {
		t.Errorf("expected production url, got %s", cfg.Server.URL)
	}
	if cfg.Snapshot.Attempts != 5 {
		t.Errorf("expected attempts=5, got %d", cfg.Snapshot.Attempts)
	}
	if cfg.Snapshot.InitialBackoff != 500*time.Millisecond {
		t.Errorf("zero override replaced initial_backoff: %v", cfg.Snapshot.InitialBackoff)
	}
	if cfg.Actions.Attempts != 1 || cfg.Actions.MaxBackoff != 2*time.Second {
		t.Errorf("actions override not applied: %+v", cfg.Actions)
	}
	if cfg.Snapshot.MaxBackoff != 5*time.Second {
		t.Errorf("actions override leaked into snapshot: %+v", cfg.Snapshot)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Log.Level)
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/auditor")
	t.Setenv("AUDITDESK_TEST_CACHE", "")

	path := writeConfig(t, `
session:
  file: ${HOME}/.auditdesk/session.json
journal:
  path: ${AUDITDESK_TEST_CACHE:-/var/cache/auditdesk}/journal.cbor
`)
	cfg, err := loadFile(path)
	if err != nil {
		t.Fatalf("loadFile() failed: %v", err)
	}
	if cfg.Session.File != "/home/auditor/.auditdesk/session.json" {
		t.Errorf("session.file = %s", cfg.Session.File)
	}
	if cfg.Journal.Path != "/var/cache/auditdesk/journal.cbor" {
		t.Errorf("journal.path = %s", cfg.Journal.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad environment", func(c *Config) { c.Environment = "qa" }, "invalid environment"},
		{"missing url", func(c *Config) { c.Server.URL = "" }, "server.url is required"},
		{"non-http url", func(c *Config) { c.Server.URL = "ftp://files" }, "http(s) URL"},
		{"zero attempts", func(c *Config) { c.Snapshot.Attempts = 0 }, "snapshot.attempts"},
		{"zero action attempts", func(c *Config) { c.Actions.Attempts = 0 }, "actions.attempts"},
		{"inverted action backoff", func(c *Config) { c.Actions.InitialBackoff = time.Minute }, "actions backoff"},
		{"inverted backoff", func(c *Config) { c.Stream.MaxBackoff = time.Millisecond }, "stream backoff"},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Session.File = "/tmp/session.json"
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() succeeded")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, test.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("SlogLevel(debug) = %v, %v", level, err)
	}
}
