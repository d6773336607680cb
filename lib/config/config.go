// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "AUDITDESK_CONFIG"

// EnvSessionFile overrides the session file location.
const EnvSessionFile = "AUDITDESK_SESSION_FILE"

// Environment represents the deployment the client talks to.
type Environment string

const (
	// Development is a service on the operator's machine.
	Development Environment = "development"
	// Staging is a pre-production service.
	Staging Environment = "staging"
	// Production is the live audit service.
	Production Environment = "production"
)

// Config is the auditdesk configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Server   ServerConfig  `yaml:"server"`
	Session  SessionConfig `yaml:"session"`
	Snapshot RetryConfig   `yaml:"snapshot"`
	Actions  RetryConfig   `yaml:"actions"`
	Stream   StreamConfig  `yaml:"stream"`
	Log      LogConfig     `yaml:"log"`
	Journal  JournalConfig `yaml:"journal"`
	UI       UIConfig      `yaml:"ui"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the fields an environment section may
// override. Zero values leave the base value in place.
type ConfigOverrides struct {
	Server   *ServerConfig  `yaml:"server,omitempty"`
	Snapshot *RetryConfig   `yaml:"snapshot,omitempty"`
	Actions  *RetryConfig   `yaml:"actions,omitempty"`
	Stream   *StreamConfig  `yaml:"stream,omitempty"`
	Log      *LogConfig     `yaml:"log,omitempty"`
	Journal  *JournalConfig `yaml:"journal,omitempty"`
}

// ServerConfig locates the audit service.
type ServerConfig struct {
	// URL is the service base URL. The HTTP API and the Socket.IO
	// endpoint share it.
	// Default: http://localhost:5000
	URL string `yaml:"url"`

	// RequestTimeout bounds each HTTP request (not the event stream).
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SessionConfig configures where the CLI keeps its session cookie.
type SessionConfig struct {
	// File is the session file path. Defaults to
	// $AUDITDESK_SESSION_FILE, else
	// $XDG_CONFIG_HOME/auditdesk/session.json.
	File string `yaml:"file"`
}

// RetryConfig bounds retries of idempotent requests. The snapshot
// section governs job list loads; the actions section governs stop and
// delete. Job submission is never retried.
type RetryConfig struct {
	// Attempts is the total number of tries including the first.
	// Default: 3
	Attempts int `yaml:"attempts"`

	// InitialBackoff is the wait after the first failure; it doubles
	// per attempt up to MaxBackoff.
	// Default: 500ms
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the wait between attempts.
	// Default: 5s
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// StreamConfig configures the event stream reconnect loop.
type StreamConfig struct {
	// InitialBackoff is the first reconnect delay.
	// Default: 1s
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the reconnect delay.
	// Default: 30s
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// HandshakeTimeout bounds the WebSocket upgrade plus the
	// Engine.IO and Socket.IO handshakes.
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// File, when set, receives log output instead of stderr. The
	// dashboard needs this to keep logs off the alternate screen.
	File string `yaml:"file"`
}

// JournalConfig configures recording of synchronizer inputs.
type JournalConfig struct {
	// Path is the journal file. Empty disables recording. A .zst
	// suffix enables zstd compression.
	Path string `yaml:"path"`
}

// UIConfig configures the terminal dashboard.
type UIConfig struct {
	// Plain disables colour.
	Plain bool `yaml:"plain"`
}

// Default returns the built-in configuration. A config file, when
// given, is layered over it.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			URL:            "http://localhost:5000",
			RequestTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			File: defaultSessionFile(),
		},
		Snapshot: RetryConfig{
			Attempts:       3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Actions: RetryConfig{
			Attempts:       3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Stream: StreamConfig{
			InitialBackoff:   time.Second,
			MaxBackoff:       30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultSessionFile() string {
	if path := os.Getenv(EnvSessionFile); path != "" {
		return path
	}
	configDirectory := os.Getenv("XDG_CONFIG_HOME")
	if configDirectory == "" {
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDirectory = filepath.Join(homeDirectory, ".config")
	}
	return filepath.Join(configDirectory, "auditdesk", "session.json")
}

// Load resolves the configuration for a command. An explicit path
// (from --config) wins over AUDITDESK_CONFIG; with neither, the
// defaults are used unchanged.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return loadFile(path)
}

// loadFile loads configuration from a specific file path, layered over
// Default(), with the matching environment section applied and
// variables expanded in path fields.
func loadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		override(&c.Server.URL, overrides.Server.URL)
		override(&c.Server.RequestTimeout, overrides.Server.RequestTimeout)
	}
	overrideRetry(&c.Snapshot, overrides.Snapshot)
	overrideRetry(&c.Actions, overrides.Actions)
	if overrides.Stream != nil {
		override(&c.Stream.InitialBackoff, overrides.Stream.InitialBackoff)
		override(&c.Stream.MaxBackoff, overrides.Stream.MaxBackoff)
		override(&c.Stream.HandshakeTimeout, overrides.Stream.HandshakeTimeout)
	}
	if overrides.Log != nil {
		override(&c.Log.Level, overrides.Log.Level)
		override(&c.Log.File, overrides.Log.File)
	}
	if overrides.Journal != nil {
		override(&c.Journal.Path, overrides.Journal.Path)
	}
}

func overrideRetry(target *RetryConfig, overrides *RetryConfig) {
	if overrides == nil {
		return
	}
	override(&target.Attempts, overrides.Attempts)
	override(&target.InitialBackoff, overrides.InitialBackoff)
	override(&target.MaxBackoff, overrides.MaxBackoff)
}

func override[T comparable](target *T, value T) {
	var zero T
	if value != zero {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Session.File = expandVars(c.Session.File, vars)
	c.Log.File = expandVars(c.Log.File, vars)
	c.Journal.Path = expandVars(c.Journal.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if parsed, err := url.Parse(c.Server.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Session.File == "" {
		errs = append(errs, errors.New("session.file is required (no home directory to default to)"))
	}

	errs = append(errs, c.Snapshot.validate("snapshot")...)
	errs = append(errs, c.Actions.validate("actions")...)
	if c.Stream.InitialBackoff <= 0 || c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		errs = append(errs, errors.New("stream backoff must satisfy 0 < initial_backoff <= max_backoff"))
	}
	if c.Stream.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("stream.handshake_timeout must be positive"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (r RetryConfig) validate(section string) []error {
	var errs []error
	if r.Attempts < 1 {
		errs = append(errs, fmt.Errorf("%s.attempts must be at least 1", section))
	}
	if r.InitialBackoff <= 0 || r.MaxBackoff < r.InitialBackoff {
		errs = append(errs, fmt.Errorf("%s backoff must satisfy 0 < initial_backoff <= max_backoff", section))
	}
	return errs
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
