// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditapi is the HTTP client for the document audit service.
//
// Authentication is a session cookie set by POST /login and held in
// the client's cookie jar. The same jar authenticates the Socket.IO
// event stream (see lib/eventstream), which dials through
// [Client.StreamHTTPClient]. Commands that outlive one process persist
// the cookie with [Client.Cookies] and restore it with
// [Client.SetCookies].
//
// Failures are typed so callers can decide what to do without string
// matching:
//
//   - errors.Is(err, [ErrUnauthorized]): the session is gone (401, or a
//     redirect to the login page). End the session.
//   - [*TransientError]: no response, or a 5xx. Safe to retry for
//     idempotent requests.
//   - [*APIError]: any other non-2xx. Message carries the server's
//     reason ("Job 12 already finished") for display.
package auditapi
