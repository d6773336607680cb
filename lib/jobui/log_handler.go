// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg carries a log record to the status bar.
type logRecordMsg struct {
	summary string
	level   slog.Level
}

// noticeFadeMsg clears the status bar notice it was scheduled for.
type noticeFadeMsg struct {
	serial uint64
}

// noticeFadeDelay is how long a notice stays in the status bar.
const noticeFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that shows records at or above its
// level in the dashboard's status bar, and passes every record to an
// optional next handler (typically a log file, since the dashboard
// owns the terminal).
//
// Create the handler before the program, then call SetProgram.
// Records that arrive before SetProgram only reach next. Handlers
// derived through WithAttrs and WithGroup share the program pointer.
type LogHandler struct {
	level   slog.Level
	next    slog.Handler
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	group   string
}

// NewLogHandler returns a handler that surfaces records at level and
// above. next may be nil.
func NewLogHandler(level slog.Level, next slog.Handler) *LogHandler {
	return &LogHandler{
		level:   level,
		next:    next,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives records. Safe to call
// from any goroutine.
func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

// Enabled implements slog.Handler.
func (handler *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= handler.level {
		return true
	}
	return handler.next != nil && handler.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (handler *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if handler.next != nil && handler.next.Enabled(ctx, record.Level) {
		err = handler.next.Handle(ctx, record)
	}
	if record.Level < handler.level {
		return err
	}
	program := handler.program.Load()
	if program == nil {
		return err
	}
	program.Send(logRecordMsg{summary: handler.summarize(record), level: record.Level})
	return err
}

// summarize renders "message (key=value, ...)".
func (handler *LogHandler) summarize(record slog.Record) string {
	parts := make([]string, 0, len(handler.attrs)+record.NumAttrs())
	for _, attr := range handler.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s%s=%s", handler.group, attr.Key, attr.Value))
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

// WithAttrs implements slog.Handler.
func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *handler
	derived.attrs = slices.Clone(handler.attrs)
	for _, attr := range attrs {
		attr.Key = handler.group + attr.Key
		derived.attrs = append(derived.attrs, attr)
	}
	if handler.next != nil {
		derived.next = handler.next.WithAttrs(attrs)
	}
	return &derived
}

// WithGroup implements slog.Handler.
func (handler *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	derived := *handler
	derived.attrs = slices.Clone(handler.attrs)
	derived.group = handler.group + name + "."
	if handler.next != nil {
		derived.next = handler.next.WithGroup(name)
	}
	return &derived
}
