// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package actions runs the user's mutations against the audit
// service: creating jobs, and the destructive stop, delete, and
// logout actions.
//
// Destructive actions are two-phase. [Coordinator.Request] raises a
// [PendingAction] awaiting confirmation; nothing is sent until
// [Coordinator.Confirm]. The pending action moves through
//
//	None -> AwaitingConfirmation -> InFlight -> None
//
// and is cleared on success, failure, cancel, and every session
// transition ([Coordinator.Reset]). A result that arrives after the
// session it belongs to has ended is discarded without touching the
// job store.
//
// Stop is applied optimistically: the job shows as stopped while the
// request is in flight and reverts if the service refuses. Delete
// removes the job only after the service confirms.
package actions
