// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Row is one job as printed by "jobs list" and "replay".
type Row struct {
	ID          string     `json:"id"`
	CaseNumber  string     `json:"case_number"`
	Feature     string     `json:"feature,omitempty"`
	Branch      string     `json:"branch,omitempty"`
	Status      string     `json:"status"`
	Accuracy    *float64   `json:"accuracy,omitempty"`
	Issues      []string   `json:"issues,omitempty"`
	Error       string     `json:"error,omitempty"`
	Files       []string   `json:"files,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Provisional bool       `json:"provisional,omitempty"`
	Optimistic  bool       `json:"optimistic,omitempty"`
}

// NewRow converts a store view.
func NewRow(view jobstore.View) Row {
	return Row{
		ID:          view.ID,
		CaseNumber:  view.CaseNumber,
		Feature:     string(view.Feature),
		Branch:      view.Branch,
		Status:      string(view.Status),
		Accuracy:    view.Accuracy,
		Issues:      view.Issues,
		Error:       view.Error,
		Files:       view.Files.Names,
		Description: view.Description,
		CreatedAt:   view.CreatedAt,
		CompletedAt: view.CompletedAt,
		Provisional: view.Provisional,
		Optimistic:  view.Optimistic,
	}
}

// PrintTable writes views as an aligned table.
func PrintTable(w io.Writer, views []jobstore.View) error {
	table := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tCASE\tFEATURE\tBRANCH\tSTATUS\tACCURACY\tCREATED")
	for _, view := range views {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			displayID(view),
			view.CaseNumber,
			view.Feature,
			view.Branch,
			displayStatus(view),
			displayAccuracy(view.Accuracy),
			displayTime(view.CreatedAt),
		)
	}
	return table.Flush()
}

// Describe is the one-line summary of a job used by "watch".
func Describe(view jobstore.View) string {
	line := fmt.Sprintf("%s %s [%s]", displayID(view), view.CaseNumber, displayStatus(view))
	switch {
	case view.Status == job.StatusFailed && view.Error != "":
		line += " " + view.Error
	case view.Status == job.StatusCompleted && view.Accuracy != nil:
		line += " accuracy " + displayAccuracy(view.Accuracy)
		if len(view.Issues) > 0 {
			line += fmt.Sprintf(", %d issues", len(view.Issues))
		}
	}
	return line
}

func displayID(view jobstore.View) string {
	if view.Provisional {
		return "(pending)"
	}
	return view.ID
}

func displayStatus(view jobstore.View) string {
	if view.Optimistic {
		return string(view.Status) + "*"
	}
	return string(view.Status)
}

func displayAccuracy(accuracy *float64) string {
	if accuracy == nil {
		return "-"
	}
	return strconv.FormatFloat(*accuracy, 'f', -1, 64) + "%"
}

func displayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
