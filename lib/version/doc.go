// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the auditdesk binary.
//
// Release builds inject [GitCommit], [GitDirty], [BuildTime] and
// [Version] with -ldflags -X. Builds without them (go install, test
// runs) fall back to the VCS stamp the Go toolchain records in the
// binary, read through runtime/debug.
package version
