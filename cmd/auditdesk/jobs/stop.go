// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	"github.com/bureau-foundation/auditdesk/lib/actions"
)

type actionParams struct {
	cli.Connection
	Yes bool `json:"yes" flag:"yes,y" desc:"do not ask for confirmation"`
}

func stopCommand() *cli.Command {
	var params actionParams
	return &cli.Command{
		Name:    "stop",
		Summary: "Stop a queued or running job",
		Description: `Ask the service to stop a job that has not finished.

The command asks for confirmation unless --yes is given. The service
may refuse, for example when the job finished in the meantime; the
refusal is reported and nothing changes.`,
		Usage:  "auditdesk jobs stop <id> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			return runAction(ctx, &params, actions.KindStop, args)
		},
	}
}

func deleteCommand() *cli.Command {
	var params actionParams
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a finished job",
		Description: `Delete a job that has completed, failed, or been stopped or canceled.
Running jobs must be stopped first.

The command asks for confirmation unless --yes is given.`,
		Usage:  "auditdesk jobs delete <id> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			return runAction(ctx, &params, actions.KindDelete, args)
		},
	}
}

// runAction drives the coordinator through request, confirmation and
// execution, the same path the dashboard takes.
func runAction(ctx context.Context, params *actionParams, kind actions.Kind, args []string) error {
	if len(args) != 1 {
		return cli.Validation("exactly one job ID is required")
	}
	id := args[0]

	environment, err := params.Open("jobs/" + string(kind))
	if err != nil {
		return err
	}
	defer environment.Close()
	if _, err := environment.Authenticate(ctx); err != nil {
		return err
	}
	synchronizer, err := environment.NewSynchronizer(false, nil)
	if err != nil {
		return err
	}
	defer synchronizer.Close()
	if err := synchronizer.LoadSnapshot(ctx); err != nil {
		return environment.Fail(err)
	}

	view, ok := synchronizer.Store.Get(id)
	if !ok {
		return cli.NotFound("job %s not found", id).WithHint("Run 'auditdesk jobs list' to see your jobs.")
	}
	if _, err := synchronizer.Coordinator.Request(kind, id); err != nil {
		return cli.Classify(err)
	}

	if !params.Yes {
		question := fmt.Sprintf("%s job %s (%s)?", titleCase(string(kind)), id, view.CaseNumber)
		if kind == actions.KindDelete {
			question += " This cannot be undone."
		}
		confirmed, err := askConfirmation(os.Stdin, os.Stderr, question)
		if err != nil {
			synchronizer.Coordinator.Cancel()
			return err
		}
		if !confirmed {
			synchronizer.Coordinator.Cancel()
			fmt.Fprintln(os.Stderr, "Cancelled.")
			return nil
		}
	}

	if _, err := synchronizer.Coordinator.Confirm(ctx); err != nil {
		return environment.Fail(err)
	}
	past := map[actions.Kind]string{actions.KindStop: "Stopped", actions.KindDelete: "Deleted"}[kind]
	fmt.Fprintf(os.Stdout, "%s job %s (%s)\n", past, id, view.CaseNumber)
	return nil
}

// askConfirmation asks a yes/no question on a terminal. Without a
// terminal it refuses rather than guess.
func askConfirmation(input *os.File, output io.Writer, question string) (bool, error) {
	if !term.IsTerminal(int(input.Fd())) {
		return false, cli.Validation("no terminal to confirm on").WithHint("Pass --yes to skip the confirmation.")
	}
	fmt.Fprintf(output, "%s [y/N] ", question)
	answer, err := bufio.NewReader(input).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, cli.Internal("reading answer: %w", err)
	}
	return parseAnswer(answer), nil
}

func parseAnswer(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
