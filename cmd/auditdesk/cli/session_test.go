// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/auditdesk/auditapi"
)

func TestSaveAndLoadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	saved := &SavedSession{
		Server:   "https://audit.example.com",
		Username: "alice",
		Cookies:  []auditapi.SavedCookie{{Name: "session", Value: "abc123"}},
		SavedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := SaveSession(saved, path); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("session file mode = %o, want 600", mode)
	}
	directoryInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Stat directory: %v", err)
	}
	if mode := directoryInfo.Mode().Perm(); mode != 0o700 {
		t.Errorf("session directory mode = %o, want 700", mode)
	}

	loaded, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Server != saved.Server || loaded.Username != saved.Username {
		t.Errorf("loaded %+v, want %+v", loaded, saved)
	}
	if len(loaded.Cookies) != 1 || loaded.Cookies[0] != saved.Cookies[0] {
		t.Errorf("Cookies = %v, want %v", loaded.Cookies, saved.Cookies)
	}
	if !loaded.SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", loaded.SavedAt, saved.SavedAt)
	}
}

func TestSaveSessionLeavesNoTemporaryFiles(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "session.json")
	saved := &SavedSession{Server: "http://localhost:5000", Cookies: []auditapi.SavedCookie{{Name: "s", Value: "1"}}}
	for range 2 {
		if err := SaveSession(saved, path); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the session file", len(entries))
	}
}

func TestLoadSession_Missing(t *testing.T) {
	_, err := LoadSession(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrNoSavedSession) {
		t.Errorf("error = %v, want ErrNoSavedSession", err)
	}
}

func TestLoadSession_Incomplete(t *testing.T) {
	tests := map[string]string{
		"no server":  `{"username": "alice", "cookies": [{"name": "s", "value": "1"}]}`,
		"no cookies": `{"server": "http://localhost:5000", "cookies": []}`,
		"malformed":  `{"server": `,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSession(path)
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrNoSavedSession) {
				t.Error("an unreadable session is not a missing one")
			}
		})
	}
}

func TestRemoveSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := RemoveSession(path); err != nil {
		t.Errorf("removing a missing session: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RemoveSession(path); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("session file still present: %v", err)
	}
}
