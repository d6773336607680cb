// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds channel helpers shared by the package tests.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout pattern so tests that wait on store
// notifications, stream events, or server-side handshakes never hang
// and never call time.After themselves. They are the only place test
// code touches the wall clock.
package testutil
