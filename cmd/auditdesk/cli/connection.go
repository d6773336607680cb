// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/config"
	"github.com/bureau-foundation/auditdesk/lib/session"
)

// Connection holds the flags shared by every command that talks to
// the service. Embed it in a params struct; BindFlags registers its
// flags through AddFlags.
type Connection struct {
	ConfigPath  string
	Server      string
	SessionFile string
	LogLevel    string
}

// AddFlags registers the connection flags.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.ConfigPath, "config", "", "configuration file (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&c.Server, "server", "", "audit service URL (overrides server.url)")
	flagSet.StringVar(&c.SessionFile, "session-file", "", "session file (overrides session.file)")
	flagSet.StringVar(&c.LogLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
}

// Environment is everything a command needs to talk to the service.
type Environment struct {
	Config *config.Config
	Client *auditapi.Client
	Guard  *session.Guard
	Clock  clock.Clock

	// Logger is the command logger at the configured level.
	Logger *slog.Logger

	// FileHandler writes to log.file when one is configured; nil
	// otherwise.
	FileHandler slog.Handler

	// SessionPath is the resolved session file.
	SessionPath string

	// Restored is the session loaded from SessionPath, or nil.
	Restored *SavedSession

	closers []func() error
}

// Open loads the configuration, applies the flag overrides and builds
// the client with any saved session cookie restored. command scopes
// the environment's logger (e.g., "jobs/list"). The caller must Close
// the environment.
func (c *Connection) Open(command string) (*Environment, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, Validation("%w", err)
	}
	if c.Server != "" {
		cfg.Server.URL = strings.TrimRight(c.Server, "/")
	}
	if c.SessionFile != "" {
		cfg.Session.File = c.SessionFile
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, Validation("invalid configuration: %w", err)
	}
	level, _ := cfg.Log.SlogLevel()

	environment := &Environment{
		Config:      cfg,
		Clock:       clock.Real(),
		SessionPath: cfg.Session.File,
	}
	environment.Logger = slog.New(stderrHandler(level))
	if cfg.Log.File != "" {
		handler, closeFile, err := OpenLogFile(cfg.Log.File, level)
		if err != nil {
			return nil, Validation("cannot open log file %s: %w", cfg.Log.File, err)
		}
		environment.FileHandler = handler
		environment.Logger = slog.New(handler)
		environment.closers = append(environment.closers, closeFile)
	}
	environment.Logger = environment.Logger.With("command", command)

	client, err := auditapi.NewClient(auditapi.ClientConfig{
		BaseURL:        cfg.Server.URL,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         environment.Logger,
	})
	if err != nil {
		environment.Close()
		return nil, Validation("%w", err)
	}
	environment.Client = client
	environment.closers = append(environment.closers, func() error {
		client.CloseIdleConnections()
		return nil
	})

	saved, err := LoadSession(environment.SessionPath)
	switch {
	case err == nil && saved.Server == cfg.Server.URL:
		client.SetCookies(saved.Cookies)
		environment.Restored = saved
	case err == nil:
		environment.Logger.Debug("ignoring session saved for another server",
			"saved_server", saved.Server,
			"server", cfg.Server.URL,
		)
	case !errors.Is(err, ErrNoSavedSession):
		environment.Logger.Warn("ignoring unreadable session file", "error", err)
	}

	environment.Guard = session.New(session.Config{API: client, Logger: environment.Logger})
	return environment, nil
}

// Authenticate probes the restored session. Without a live session it
// returns a forbidden error and removes a stale session file.
func (e *Environment) Authenticate(ctx context.Context) (session.Status, error) {
	if e.Restored == nil {
		return session.Status{}, Forbidden("not logged in to %s", e.Config.Server.URL).WithHint(loginHint)
	}
	if err := e.Guard.Start(ctx); err != nil {
		return session.Status{}, Classify(err)
	}
	status := e.Guard.Status()
	if status.State != session.StateAuthenticated {
		if err := RemoveSession(e.SessionPath); err != nil {
			e.Logger.Warn("could not remove expired session", "error", err)
		}
		return status, Forbidden("session for %s has expired", e.Restored.Username).WithHint(loginHint)
	}
	return status, nil
}

// SaveSession persists the client's current session cookies.
func (e *Environment) SaveSession(username string) error {
	cookies := e.Client.Cookies()
	if len(cookies) == 0 {
		return Internal("the service set no session cookie")
	}
	saved := &SavedSession{
		Server:   e.Config.Server.URL,
		Username: username,
		Cookies:  cookies,
		SavedAt:  e.Clock.Now().UTC(),
	}
	if err := SaveSession(saved, e.SessionPath); err != nil {
		return Internal("%w", err)
	}
	return nil
}

// ForgetSession clears the cookie jar and removes the session file.
func (e *Environment) ForgetSession() error {
	e.Client.ClearCookies()
	if err := RemoveSession(e.SessionPath); err != nil {
		return Internal("%w", err)
	}
	return nil
}

// Fail classifies a command's error. When the service rejected the
// session, the saved session is forgotten so the next command asks for
// a login instead of replaying dead cookies.
func (e *Environment) Fail(err error) error {
	if err == nil {
		return nil
	}
	if auditapi.IsUnauthorized(err) {
		if forgetErr := e.ForgetSession(); forgetErr != nil {
			e.Logger.Warn("could not remove expired session", "error", forgetErr)
		}
	}
	return Classify(err)
}

// Close releases the log file and idle connections.
func (e *Environment) Close() error {
	var errs []error
	for index := len(e.closers) - 1; index >= 0; index-- {
		errs = append(errs, e.closers[index]())
	}
	e.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing environment: %w", err)
	}
	return nil
}
