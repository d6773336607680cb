// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs implements "auditdesk jobs": listing, following,
// submitting, stopping and deleting audit jobs from the command line.
package jobs

import (
	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
)

// Command returns the "jobs" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Summary: "List and manage audit jobs",
		Description: `List, follow, submit, stop and delete audit jobs.

Every subcommand uses the session saved by "auditdesk login".`,
		Subcommands: []*cli.Command{
			listCommand(),
			watchCommand(),
			addCommand(),
			stopCommand(),
			deleteCommand(),
		},
	}
}
