// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized means the service rejected the session cookie (or
// the credentials, for Login). Every component treats it as the end of
// the session.
var ErrUnauthorized = errors.New("auditapi: session expired or not logged in")

// APIError is a non-2xx response from the audit service. Callers use
// errors.As to reach the status and the server's message:
//
//	var apiErr *auditapi.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
//	    fmt.Println(apiErr.Message)
//	}
type APIError struct {
	// Method and Path identify the request.
	Method string
	Path   string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Message is the server's explanation, taken from the "error" or
	// "message" field of a JSON body or from a plain-text body.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auditapi: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("auditapi: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is makes a 401 match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// TransientError is a failure worth retrying: the request never got
// a response (connection refused, reset, timeout) or the service
// answered with a 5xx.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("auditapi: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a
// TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsUnauthorized reports whether err means the session is gone.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ServerMessage returns the server's explanation carried by err, or
// err's text when the failure has no server message.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
