// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads and classifies the
// errors that end a WebSocket connection.
//
// The response helpers are for the audit service's JSON API: job
// lists, error bodies, login replies. Every read stops at
// MaxResponseSize so a misbehaving server cannot exhaust memory.
//
// IsExpectedCloseError separates an orderly disconnect (peer closed,
// context canceled, normal WebSocket close) from a failure worth a
// warning in the event stream's reconnect loop.
package netutil

import (
	"encoding/json"
	"io"
	"strings"
)

// MaxResponseSize bounds JSON API response reads: 64 MB. A job list
// with tens of thousands of entries is a few megabytes.
const MaxResponseSize int64 = 64 << 20

// maxErrorText bounds the error text surfaced to the operator.
const maxErrorText = 512

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// MessageFromBody extracts the human-readable message from an error
// response body. The service answers failures with {"error": ...},
// {"message": ...}, or plain text; all three are accepted.
func MessageFromBody(data []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return text
}
