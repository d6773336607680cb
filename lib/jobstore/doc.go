// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobstore holds the client's view of the user's audit jobs
// and reconciles the three sources that change it: the snapshot
// fetched once per session, the unordered event stream, and local
// actions applied optimistically before the service confirms them.
//
// Every input is a [job.Patch]. A patch for an unknown ID inserts a
// job; a patch for a known ID merges into it. Descriptive fields are
// last-writer-wins. The status only moves along the graph in
// [job.CanTransition], so a late or duplicated event can never reopen
// a finished job or move a job backwards, and any interleaving of the
// same inputs converges to the same state.
//
// Jobs created locally are inserted under a provisional ID (see
// [ProvisionalPrefix]) and replaced in place when the service
// announces them. Optimistic actions install an overlay that hides
// the server-derived status until the action is committed or rolled
// back.
//
// The store performs no I/O. Subscribers receive one [Change] per
// mutating call.
package jobstore
