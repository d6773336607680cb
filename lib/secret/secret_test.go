// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromBytesZeroesSource(t *testing.T) {
	source := []byte("hunter2")
	password, err := FromBytes(source)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	defer password.Close()

	if password.String() != "hunter2" || password.Len() != 7 {
		t.Errorf("password = %q (len %d)", password.String(), password.Len())
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed", index)
		}
	}
}

func TestFromBytesEmpty(t *testing.T) {
	if _, err := FromBytes(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("FromBytes(nil) error = %v, want ErrEmpty", err)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	password, err := FromBytes([]byte("x"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if err := password.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := password.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("String after Close did not panic")
		}
	}()
	_ = password.String()
}

func TestReadFile(t *testing.T) {
	directory := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "s3cret", "s3cret"},
		{"newline", "s3cret\n", "s3cret"},
		{"crlf", "s3cret\r\n", "s3cret"},
		{"inner spaces kept", " pass phrase \n", " pass phrase "},
		{"first line only", "first\nsecond\n", "first"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(directory, test.name)
			if err := os.WriteFile(path, []byte(test.content), 0o600); err != nil {
				t.Fatalf("writing %s: %v", path, err)
			}
			password, err := ReadFile(path, nil)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			defer password.Close()
			if got := password.String(); got != test.want {
				t.Errorf("ReadFile = %q, want %q", got, test.want)
			}
		})
	}
}

func TestReadFileStdin(t *testing.T) {
	password, err := ReadFile("-", strings.NewReader("from-pipe\nignored\n"))
	if err != nil {
		t.Fatalf("ReadFile(-): %v", err)
	}
	defer password.Close()
	if password.String() != "from-pipe" {
		t.Errorf("stdin password = %q", password.String())
	}

	if _, err := ReadFile("-", strings.NewReader("\n")); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty stdin error = %v, want ErrEmpty", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Error("missing file returned no error")
	}
}
