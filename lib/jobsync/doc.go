// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobsync runs the job synchronizer for the lifetime of a
// session.
//
// A [Runtime] listens to the session guard. Every move into the
// authenticated state opens a generation: a context derived from the
// runtime's, one snapshot load, and the event stream's reconnect loop.
// Every move out of it cancels the generation, waits for its
// goroutines, and clears the job store and the pending action. Results
// that arrive for a generation that is no longer current are dropped,
// so a slow snapshot from a previous session can never repopulate the
// store.
//
// A 401 seen by the snapshot loader or the stream ends the session
// through [session.Guard.Unauthorized], which in turn tears the
// generation down. After every stream reconnect the snapshot is
// loaded again, since the stream does not replay missed events.
package jobsync
