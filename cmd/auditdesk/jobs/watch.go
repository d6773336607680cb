// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/jobsync"
)

type watchParams struct {
	cli.Connection
	cli.JSONOutput
}

// watchLine is one change as printed by "watch --json".
type watchLine struct {
	Time   time.Time `json:"time"`
	Change string    `json:"change"`
	Job    *Row      `json:"job,omitempty"`
	ID     string    `json:"id,omitempty"`
}

func watchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Follow job changes live",
		Description: `Load the job list, follow the service's event stream and print every
change as it is applied, until interrupted or the session ends.

The stream reconnects on its own with growing delays; the job list is
loaded again after every reconnect.`,
		Usage: "auditdesk jobs watch [flags]",
		Examples: []cli.Example{
			{Description: "Follow changes as JSON lines", Command: "auditdesk jobs watch --json | jq ."},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			environment, err := params.Open("jobs/watch")
			if err != nil {
				return err
			}
			defer environment.Close()
			if _, err := environment.Authenticate(ctx); err != nil {
				return err
			}
			synchronizer, err := environment.NewSynchronizer(true, nil)
			if err != nil {
				return err
			}
			defer synchronizer.Close()

			changes, cancelChanges := synchronizer.Store.Subscribe()
			defer cancelChanges()
			wakes, cancelWakes := synchronizer.Runtime.Subscribe()
			defer cancelWakes()

			if err := synchronizer.Runtime.Start(ctx); err != nil {
				return cli.Classify(err)
			}

			printer := &changePrinter{output: os.Stdout, json: params.OutputJSON, store: synchronizer.Store}
			lastState := jobsync.State("")
			for {
				select {
				case <-ctx.Done():
					return nil
				case change := <-changes:
					if err := printer.print(change, environment.Clock.Now()); err != nil {
						return cli.Internal("writing output: %w", err)
					}
				case _, ok := <-wakes:
					if !ok {
						return nil
					}
					status := synchronizer.Runtime.Status()
					if status.State != lastState {
						environment.Logger.Info("sync state", "state", string(status.State), "error", status.LastError)
						lastState = status.State
					}
					if status.State == jobsync.StateOffline {
						return cli.Forbidden("session ended").WithHint("Run 'auditdesk login <username>' to start a new session.")
					}
				}
			}
		},
	}
}

type changePrinter struct {
	output io.Writer
	json   bool
	store  *jobstore.Store
}

// writeLine writes one compact JSON line.
func (p *changePrinter) writeLine(line watchLine) error {
	return json.NewEncoder(p.output).Encode(line)
}

func (p *changePrinter) print(change jobstore.Change, now time.Time) error {
	if change.Kind == jobstore.ChangeSnapshot || change.Kind == jobstore.ChangeReset {
		if p.json {
			return p.writeLine(watchLine{Time: now, Change: string(change.Kind)})
		}
		_, err := fmt.Fprintf(p.output, "%s %s: %d jobs\n", now.Local().Format(time.TimeOnly), change.Kind, p.store.Len())
		return err
	}
	for _, id := range change.IDs {
		line := watchLine{Time: now, Change: string(change.Kind), ID: id}
		view, ok := p.store.Get(id)
		if ok {
			row := NewRow(view)
			line.Job = &row
		}
		if p.json {
			if err := p.writeLine(line); err != nil {
				return err
			}
			continue
		}
		text := id + " removed"
		if ok {
			text = Describe(view)
		}
		if _, err := fmt.Fprintf(p.output, "%s %-8s %s\n", now.Local().Format(time.TimeOnly), change.Kind, text); err != nil {
			return err
		}
	}
	return nil
}
