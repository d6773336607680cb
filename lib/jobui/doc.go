// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobui is the terminal dashboard for audit jobs.
//
// The [Model] is a bubbletea model that renders a [jobstore.Store]:
// a job list on the left, the selected job's detail on the right, and
// a status bar with the synchronizer's state and the latest notice.
// It never mutates the store directly. Stop, delete and logout go
// through the action coordinator, which raises a confirmation overlay
// before anything is sent; the store's change notifications and the
// synchronizer's status wakeups are turned into bubbletea messages.
//
// Typing / opens an fzf-style filter over case number, branch,
// feature, status and ID. Jobs that just changed glow for a few
// seconds, amber for updates and red for reverted optimistic changes.
// Descriptions are rendered as Markdown.
package jobui
