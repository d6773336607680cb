// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by every
// auditdesk command.
//
// The file is named by the --config flag or, failing that, the
// AUDITDESK_CONFIG environment variable. With neither, [Default]
// applies as-is: a development service on localhost:5000. There is no
// search path and no per-field environment override, so what a
// command does is decided by one file.
//
// The file may contain development, staging, and production sections
// that override base values when [Config].Environment matches.
// Path fields (session.file, log.file, journal.path) expand ${HOME}
// and ${VAR:-default} after loading.
//
// Durations are written the way time.ParseDuration reads them:
//
//	server:
//	  url: https://audit.example.com
//	  request_timeout: 20s
//	snapshot:
//	  attempts: 3
//	  initial_backoff: 500ms
//	actions:
//	  attempts: 2
//	journal:
//	  path: ${HOME}/.cache/auditdesk/journal.cbor.zst
package config
