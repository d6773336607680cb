// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay provides "auditdesk replay", which runs a recorded
// journal or a hand-written scenario through the job store offline.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/jobs"
	"github.com/bureau-foundation/auditdesk/lib/codec"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/journal"
)

type replayParams struct {
	cli.JSONOutput
	Diagnose bool `json:"diagnose" flag:"diagnose" desc:"print the journal's records in CBOR diagnostic notation instead of replaying"`
	Quiet    bool `json:"quiet"    flag:"quiet,q"  desc:"print only the final job list"`
}

// Command returns the "replay" command.
func Command() *cli.Command {
	var params replayParams

	return &cli.Command{
		Name:    "replay",
		Summary: "Replay a journal or scenario through the job store",
		Description: `Apply a recorded journal, or a hand-written scenario, to an empty job
store and print what each input changed and the resulting job list.

Journals are recorded by the dashboard and "jobs watch" when
journal.path is set. Scenarios are JSONC files (.json or .jsonc) with a
"steps" array of {"snapshot": [...]}, {"event": "...", "data": {...}}
and {"reset": true} entries. No network access is needed.`,
		Usage: "auditdesk replay [flags] <journal|scenario>",
		Examples: []cli.Example{
			{Description: "Replay a recorded session", Command: "auditdesk replay ~/.cache/auditdesk/journal.cbor.zst"},
			{Description: "Inspect the raw records", Command: "auditdesk replay --diagnose journal.cbor"},
			{Description: "Check a scenario's final state", Command: "auditdesk replay --quiet --json stale-progress.jsonc"},
		},
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one journal or scenario file is required")
			}
			path := args[0]
			if params.Diagnose {
				if isScenario(path) {
					return cli.Validation("--diagnose reads journals, not scenarios")
				}
				return diagnose(os.Stdout, path)
			}

			source, closeSource, err := openSource(path)
			if err != nil {
				return err
			}
			defer closeSource()

			store := jobstore.New(jobstore.Config{Logger: logger})
			var observe func(journal.Record, bool)
			if !params.Quiet {
				observe = func(record journal.Record, changed bool) {
					fmt.Fprintln(os.Stderr, describeRecord(record, changed))
				}
			}
			stats, err := journal.Replay(store, source, observe)
			if err != nil {
				return cli.Validation("replaying %s: %w", path, err)
			}

			views := store.List()
			rows := make([]jobs.Row, len(views))
			for index, view := range views {
				rows[index] = jobs.NewRow(view)
			}
			if done, err := params.EmitJSON(rows); done {
				return err
			}
			if !params.Quiet {
				fmt.Fprintf(os.Stderr, "%d records (%d snapshots, %d events, %d resets), %d changed the store\n\n",
					stats.Records, stats.Snapshots, stats.Events, stats.Resets, stats.Changed)
			}
			return jobs.PrintTable(os.Stdout, views)
		},
	}
}

func isScenario(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

// openSource opens a scenario or a journal as a replay source.
func openSource(path string) (journal.Source, func() error, error) {
	if isScenario(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, cli.Validation("%w", err)
		}
		records, err := journal.ParseScenario(data)
		if err != nil {
			return nil, nil, cli.Validation("%s: %w", path, err)
		}
		return journal.Slice(records), func() error { return nil }, nil
	}
	reader, err := journal.Open(path)
	if err != nil {
		return nil, nil, cli.Validation("%w", err)
	}
	return reader, reader.Close, nil
}

func describeRecord(record journal.Record, changed bool) string {
	effect := "no change"
	if changed {
		effect = "changed"
	}
	prefix := fmt.Sprintf("#%d", record.Sequence)
	if record.Generation != 0 {
		prefix += fmt.Sprintf(" gen %d", record.Generation)
	}
	switch record.Kind {
	case journal.KindSnapshot:
		return fmt.Sprintf("%s snapshot of %d jobs: %s", prefix, len(record.Jobs), effect)
	case journal.KindEvent:
		id, status := "", ""
		if record.Patch != nil {
			id = record.Patch.ID
			if record.Patch.Status != nil {
				status = " " + string(*record.Patch.Status)
			}
		}
		return fmt.Sprintf("%s %s %s%s: %s", prefix, record.Event, id, status, effect)
	default:
		return fmt.Sprintf("%s %s: %s", prefix, record.Kind, effect)
	}
}

// diagnose prints every record of the journal at path in CBOR
// diagnostic notation, one per line.
func diagnose(output io.Writer, path string) error {
	reader, err := journal.Open(path)
	if err != nil {
		return cli.Validation("%w", err)
	}
	defer reader.Close()

	for {
		raw, err := reader.NextRaw()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return cli.Validation("%s: %w", path, err)
		}
		text, err := codec.Diagnose(raw)
		if err != nil {
			return cli.Internal("diagnosing record: %w", err)
		}
		if _, err := fmt.Fprintln(output, text); err != nil {
			return cli.Internal("writing output: %w", err)
		}
	}
}
