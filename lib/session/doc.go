// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks whether the client holds a valid session
// with the audit service.
//
// A [Guard] starts in [StateUnknown], probes the service once, and
// then moves between [StateAuthenticated] and [StateAnonymous] on
// login, logout, and any 401 reported by another component. Every
// move into or out of the authenticated state increments the
// generation counter, which dependents use to discard results that
// belong to a session that has since ended.
//
// Listeners registered with [Guard.Subscribe] run synchronously, in
// registration order, before the transitioning call returns.
package session
