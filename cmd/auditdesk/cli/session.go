// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/auditdesk/auditapi"
)

// SavedSession is the session file written by "auditdesk login". It
// holds the service's session cookie, never the password, so later
// commands reuse the session the way a browser keeps its cookie.
type SavedSession struct {
	// Server is the service base URL the cookie belongs to.
	Server string `json:"server"`

	// Username is the account that logged in.
	Username string `json:"username"`

	// Cookies are the service's session cookies.
	Cookies []auditapi.SavedCookie `json:"cookies"`

	// SavedAt is when the login happened.
	SavedAt time.Time `json:"saved_at"`
}

// ErrNoSavedSession is returned by LoadSession when no session file
// exists.
var ErrNoSavedSession = errors.New("no saved session")

// LoadSession reads the session file at path.
func LoadSession(path string) (*SavedSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoSavedSession, path)
		}
		return nil, fmt.Errorf("reading session file %s: %w", path, err)
	}

	var saved SavedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parsing session file %s: %w", path, err)
	}
	if saved.Server == "" {
		return nil, fmt.Errorf("session file %s has no server", path)
	}
	if len(saved.Cookies) == 0 {
		return nil, fmt.Errorf("session file %s has no cookies", path)
	}
	return &saved, nil
}

// SaveSession writes saved to path with mode 0600, creating the
// directory with mode 0700. The file is replaced atomically.
func SaveSession(saved *SavedSession, path string) error {
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating session directory %s: %w", directory, err)
	}
	temporary, err := os.CreateTemp(directory, ".session-*")
	if err != nil {
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	defer os.Remove(temporary.Name())
	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	return nil
}

// RemoveSession deletes the session file. A missing file is not an
// error.
func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file %s: %w", path, err)
	}
	return nil
}
