// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/coder/websocket"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`[{"id":1}]`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `[{"id":1}]` {
			t.Fatalf("got %q", data)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestMessageFromBody(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error": "Job cannot be deleted while running"}`, "Job cannot be deleted while running"},
		{`{"message": "Invalid credentials"}`, "Invalid credentials"},
		{`{"error": "", "message": "fallback"}`, "fallback"},
		{"  Internal Server Error\n", "Internal Server Error"},
		{"", ""},
	}
	for _, test := range tests {
		if got := MessageFromBody([]byte(test.body)); got != test.want {
			t.Errorf("MessageFromBody(%q) = %q, want %q", test.body, got, test.want)
		}
	}
}

func TestMessageFromBodyTruncatesLongText(t *testing.T) {
	got := MessageFromBody([]byte(strings.Repeat("x", 2000)))
	if len(got) != maxErrorText+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation: %d bytes", len(got))
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	expected := []error{
		io.EOF,
		fmt.Errorf("reading frame: %w", io.EOF),
		net.ErrClosed,
		context.Canceled,
		syscall.ECONNRESET,
		syscall.EPIPE,
		websocket.CloseError{Code: websocket.StatusNormalClosure},
		fmt.Errorf("stream: %w", websocket.CloseError{Code: websocket.StatusGoingAway}),
	}
	for _, err := range expected {
		if !IsExpectedCloseError(err) {
			t.Errorf("IsExpectedCloseError(%v) = false", err)
		}
	}

	unexpected := []error{
		nil,
		io.ErrUnexpectedEOF,
		syscall.ECONNREFUSED,
		websocket.CloseError{Code: websocket.StatusPolicyViolation},
		context.DeadlineExceeded,
	}
	for _, err := range unexpected {
		if IsExpectedCloseError(err) {
			t.Errorf("IsExpectedCloseError(%v) = true", err)
		}
	}
}

type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
