// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingAction is returned by Confirm when nothing awaits
	// confirmation.
	ErrNoPendingAction = errors.New("actions: no action awaiting confirmation")

	// ErrBusy is returned by Request while an action is in flight.
	ErrBusy = errors.New("actions: another action is in flight")

	// ErrDiscarded is returned when the session ended while the
	// request was in flight; its result was not applied.
	ErrDiscarded = errors.New("actions: session changed while the request was in flight; result discarded")
)

// ValidationError is a local precondition failure. No request was
// sent and no state changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "actions: " + e.Message
	}
	return fmt.Sprintf("actions: %s: %s", e.Field, e.Message)
}

// RejectedError is a request the service declined with a 4xx other
// than 401. Message is the service's explanation. Rejections are not
// retried.
type RejectedError struct {
	Kind    Kind
	Target  string
	Message string
	Err     error
}

func (e *RejectedError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("actions: %s rejected: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("actions: %s %s rejected: %s", e.Kind, e.Target, e.Message)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsRejected reports whether err is a *RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
