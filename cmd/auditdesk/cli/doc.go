// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework shared by the auditdesk
// subcommands.
//
// A [Command] tree dispatches on the first positional argument and
// binds flags either from a pflag.FlagSet or from a tagged params
// struct ([BindFlags]). Commands return categorized [ToolError]s so
// scripts can tell a bad argument from a refused session or a network
// problem; [Classify] maps the library error types onto those
// categories.
//
// [Connection] carries the flags every networked command shares
// (--config, --server, --session-file) and opens an [Environment]:
// the loaded configuration, the service client with the saved session
// cookie restored, the session guard and the command logger.
package cli
