// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/session"
)

// ErrorCategory classifies command errors so scripts can decide
// whether to retry, fix their input, or log in again without parsing
// the message.
type ErrorCategory string

const (
	// CategoryValidation: bad arguments, or a job precondition that
	// failed before anything was sent.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: the job does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden: not logged in, session expired, or login
	// refused.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryConflict: the service refused the action in the job's
	// current state.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: network failure or timeout; retrying may
	// succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: anything else.
	CategoryInternal ErrorCategory = "internal"
)

// exitCodes maps categories to process exit codes.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryNotFound:   3,
	CategoryForbidden:  4,
	CategoryConflict:   5,
	CategoryTransient:  6,
	CategoryInternal:   1,
}

// ToolError is a categorized command error. It wraps the underlying
// error so errors.Is and errors.As still see the whole chain.
type ToolError struct {
	Category ErrorCategory
	Err      error

	// Hint is an optional next step, printed after a blank line.
	Hint string
}

func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

func (e *ToolError) Unwrap() error { return e.Err }

// WithHint sets Hint and returns e for chaining.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// ExitCode returns the exit code for the category.
func (e *ToolError) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// Validation creates a validation error.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Forbidden creates a forbidden error.
func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

const loginHint = "Run 'auditdesk login <username>' to start a session."

const provisionalHint = "The service has not announced this job's ID yet. Run 'auditdesk jobs list' again shortly."

// Classify wraps err in a ToolError chosen by the library error types
// in its chain. An err that already carries a ToolError is returned
// unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return err
	}

	var validationErr *actions.ValidationError
	var loginErr *session.LoginError
	var rejectedErr *actions.RejectedError
	switch {
	case errors.As(err, &validationErr):
		return &ToolError{Category: CategoryValidation, Err: err}
	case errors.As(err, &loginErr):
		return &ToolError{Category: CategoryForbidden, Err: errors.New(loginErr.Message)}
	case auditapi.IsUnauthorized(err):
		return (&ToolError{Category: CategoryForbidden, Err: fmt.Errorf("session expired: %w", err)}).WithHint(loginHint)
	case errors.Is(err, jobstore.ErrNotFound), auditapi.StatusCode(err) == http.StatusNotFound:
		return &ToolError{Category: CategoryNotFound, Err: err}
	case errors.As(err, &rejectedErr), auditapi.StatusCode(err) == http.StatusConflict:
		return Conflict("%w", err)
	case errors.Is(err, jobstore.ErrProvisional):
		return Conflict("%w", err).WithHint(provisionalHint)
	case errors.Is(err, jobstore.ErrOverlayActive), errors.Is(err, actions.ErrBusy):
		return Conflict("%w", err)
	case auditapi.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return &ToolError{Category: CategoryTransient, Err: err}
	}
	return &ToolError{Category: CategoryInternal, Err: err}
}
