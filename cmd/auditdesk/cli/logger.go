// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// NewCommandLogger creates the logger for a command run. On a
// terminal it writes text records to stderr; when stderr is piped it
// writes JSON records, so scripts can parse them.
func NewCommandLogger(level slog.Level) *slog.Logger {
	return slog.New(stderrHandler(level))
}

func stderrHandler(level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.NewTextHandler(os.Stderr, options)
	}
	return slog.NewJSONHandler(os.Stderr, options)
}

// OpenLogFile opens path for appending and returns a JSON handler
// writing to it. The dashboard logs here instead of stderr, which
// would corrupt the alternate screen.
func OpenLogFile(path string, level slog.Level) (slog.Handler, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}), file.Close, nil
}
