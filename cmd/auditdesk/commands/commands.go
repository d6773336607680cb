// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete auditdesk command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	dashboardcmd "github.com/bureau-foundation/auditdesk/cmd/auditdesk/dashboard"
	jobscmd "github.com/bureau-foundation/auditdesk/cmd/auditdesk/jobs"
	replaycmd "github.com/bureau-foundation/auditdesk/cmd/auditdesk/replay"
	"github.com/bureau-foundation/auditdesk/lib/version"
)

// Root builds and returns the auditdesk command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "auditdesk",
		Description: `auditdesk: client for the claim audit job service.

Submit audit jobs, follow their progress live, and stop or delete them.
Run "auditdesk login" first; the session is saved locally and reused by
every other command.`,
		Subcommands: []*cli.Command{
			cli.LoginCommand(),
			cli.LogoutCommand(),
			cli.WhoAmICommand(),
			dashboardcmd.Command(),
			jobscmd.Command(),
			replaycmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Printf("auditdesk %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Log in to the audit service", Command: "auditdesk login --server https://audit.example.com alice"},
			{Description: "Open the live dashboard", Command: "auditdesk dashboard"},
			{Description: "List failed jobs", Command: "auditdesk jobs list --status failed"},
			{Description: "Submit a case with its claim files", Command: "auditdesk jobs add --case C-2031 claim.pdf notes.txt"},
		},
	}
}
