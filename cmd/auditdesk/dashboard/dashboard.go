// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard provides the "auditdesk dashboard" command. It is
// a separate package so the bubbletea stack is only linked where the
// dashboard is.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	"github.com/bureau-foundation/auditdesk/lib/jobui"
	"github.com/bureau-foundation/auditdesk/lib/session"
)

type dashboardParams struct {
	cli.Connection
	Plain bool `json:"-" flag:"plain" desc:"no colors (overrides ui.plain)"`
}

// Command returns the "dashboard" command.
func Command() *cli.Command {
	var params dashboardParams

	return &cli.Command{
		Name:    "dashboard",
		Summary: "Interactive job dashboard",
		Description: `Show your audit jobs in a live terminal dashboard.

The job list follows the service's event stream. Select a job with the
arrow keys or j/k, filter with /, stop a running job with s, delete a
finished one with d and log out with L. Every action asks for
confirmation first. r reloads the list, q quits.

Warnings appear in the status bar. Set log.file in the configuration to
keep a full log, since the dashboard owns the terminal.`,
		Usage: "auditdesk dashboard [flags]",
		Examples: []cli.Example{
			{Description: "Open the dashboard", Command: "auditdesk dashboard"},
			{Description: "Open it without colors", Command: "auditdesk dashboard --plain"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			return run(ctx, &params)
		},
	}
}

func run(ctx context.Context, params *dashboardParams) error {
	environment, err := params.Open("dashboard")
	if err != nil {
		return err
	}
	defer environment.Close()
	if _, err := environment.Authenticate(ctx); err != nil {
		return err
	}

	// Background records go to the status bar (warnings and up) and
	// to log.file when set. Stderr would corrupt the alternate screen.
	level, _ := environment.Config.Log.SlogLevel()
	fileHandler := environment.FileHandler
	if fileHandler != nil {
		fileHandler = fileHandler.WithAttrs([]slog.Attr{slog.String("command", "dashboard")})
	}
	handler := jobui.NewLogHandler(max(level, slog.LevelWarn), fileHandler)
	logger := slog.New(handler)

	synchronizer, err := environment.NewSynchronizer(true, logger)
	if err != nil {
		return err
	}
	defer synchronizer.Close()

	model := jobui.NewModel(jobui.Config{
		Store:          synchronizer.Store,
		Actions:        synchronizer.Coordinator,
		Sync:           synchronizer.Runtime,
		Plain:          params.Plain || environment.Config.UI.Plain,
		Output:         os.Stdout,
		RequestTimeout: environment.Config.Server.RequestTimeout,
		Clock:          environment.Clock,
	})
	defer model.Close()

	if err := synchronizer.Runtime.Start(ctx); err != nil {
		return cli.Classify(err)
	}

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(os.Stdout))
	handler.SetProgram(program)
	final, runErr := program.Run()
	handler.SetProgram(nil)

	reason := ""
	if finished, ok := final.(jobui.Model); ok {
		reason = finished.ExitReason()
	}
	if environment.Guard.Status().State != session.StateAuthenticated {
		if err := environment.ForgetSession(); err != nil {
			return err
		}
	}
	if runErr != nil && ctx.Err() == nil {
		return cli.Internal("dashboard: %w", runErr)
	}
	if reason != "" {
		fmt.Fprintln(os.Stderr, reason)
	}
	return nil
}
