// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

type listParams struct {
	cli.Connection
	cli.JSONOutput
	Status  []string `json:"status"  flag:"status"  desc:"only jobs with these statuses (repeatable)"`
	Branch  string   `json:"branch"  flag:"branch"  desc:"only jobs of this branch"`
	Feature string   `json:"feature" flag:"feature" desc:"only jobs of this feature (general or cross-check)"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List jobs",
		Description: `Load the job list once and print it, newest first.

Statuses are queued, processing, completed, failed, stopped and canceled.`,
		Usage: "auditdesk jobs list [flags]",
		Examples: []cli.Example{
			{Description: "Failed jobs of the Peoria branch", Command: "auditdesk jobs list --status failed --branch Peoria"},
			{Description: "Everything, as JSON", Command: "auditdesk jobs list --json"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			filter, err := newListFilter(params)
			if err != nil {
				return err
			}

			environment, err := params.Open("jobs/list")
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
				return err
			}

			views := filter.apply(synchronizer.Store.List())
			if done, err := params.EmitJSON(rows(views)); done {
				return err
			}
			return PrintTable(os.Stdout, views)
		},
	}
}

type listFilter struct {
	statuses []job.Status
	branch   string
	feature  job.Feature
}

func newListFilter(params listParams) (listFilter, error) {
	var filter listFilter
	for _, value := range params.Status {
		status := job.Status(strings.ToLower(strings.TrimSpace(value)))
		if !status.Valid() {
			return listFilter{}, cli.Validation("unknown status %q", value)
		}
		filter.statuses = append(filter.statuses, status)
	}
	if params.Feature != "" {
		filter.feature = job.Feature(params.Feature)
		if !filter.feature.Valid() {
			return listFilter{}, cli.Validation("unknown feature %q", params.Feature)
		}
	}
	filter.branch = strings.TrimSpace(params.Branch)
	return filter, nil
}

func (f listFilter) apply(views []jobstore.View) []jobstore.View {
	return slices.DeleteFunc(views, func(view jobstore.View) bool {
		if len(f.statuses) > 0 && !slices.Contains(f.statuses, view.Status) {
			return true
		}
		if f.branch != "" && !strings.EqualFold(view.Branch, f.branch) {
			return true
		}
		return f.feature != "" && view.Feature != f.feature
	})
}

func rows(views []jobstore.View) []Row {
	result := make([]Row, len(views))
	for index, view := range views {
		result[index] = NewRow(view)
	}
	return result
}
