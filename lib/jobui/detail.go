// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

const timeLayout = "2006-01-02 15:04"

// formatAccuracy renders a score as a percentage, without trailing zeros.
func formatAccuracy(accuracy float64) string {
	return strconv.FormatFloat(accuracy, 'f', -1, 64) + "%"
}

// detailPane renders the selected job: identity, status, result, files
// and description. Lines past height are cut.
type detailPane struct {
	renderer *lipgloss.Renderer
	theme    Theme
	plain    bool
}

func (pane detailPane) render(view *jobstore.View, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	frame := pane.renderer.NewStyle().Width(width).Height(height).MaxHeight(height)
	if view == nil {
		return frame.Foreground(pane.theme.FaintText).Render(" No job selected.")
	}

	contentWidth := max(width-2, 10)
	var lines []string
	add := func(line string) {
		lines = append(lines, " "+line)
	}

	label := pane.renderer.NewStyle().Foreground(pane.theme.FaintText)
	value := pane.renderer.NewStyle().Foreground(pane.theme.NormalText)
	field := func(name, text string) {
		if text == "" {
			return
		}
		add(label.Render(fmt.Sprintf("%-10s", name)) + value.Render(ansi.Truncate(text, contentWidth-10, "…")))
	}

	title := pane.renderer.NewStyle().Bold(true).Foreground(pane.theme.HeaderForeground)
	heading := view.CaseNumber
	if heading == "" {
		heading = "(no case number)"
	}
	add(title.Render(ansi.Truncate(heading, contentWidth, "…")))

	idText := view.ID
	if view.Provisional {
		idText = "pending (not yet announced by the service)"
	}
	field("Job", idText)

	statusText := pane.renderer.NewStyle().Foreground(pane.theme.StatusColor(view.Status)).Bold(true).Render(string(view.Status))
	if view.Optimistic {
		statusText += label.Render("  (awaiting the service)")
	}
	add(label.Render(fmt.Sprintf("%-10s", "Status")) + statusText)

	field("Feature", string(view.Feature))
	field("Branch", view.Branch)
	if !view.CreatedAt.IsZero() {
		field("Created", view.CreatedAt.Local().Format(timeLayout))
	}
	if view.CompletedAt != nil {
		field("Completed", view.CompletedAt.Local().Format(timeLayout))
	}
	if view.Accuracy != nil {
		field("Accuracy", formatAccuracy(*view.Accuracy))
	}
	if view.Error != "" {
		add("")
		failure := pane.renderer.NewStyle().Foreground(pane.theme.StatusFailed)
		for _, line := range strings.Split(ansi.Wrap(view.Error, contentWidth, wrapBreakpoints), "\n") {
			add(failure.Render(line))
		}
	}

	if view.Status == job.StatusCompleted {
		add("")
		if len(view.Issues) == 0 {
			add(label.Render("No issues found."))
		} else {
			add(label.Render(fmt.Sprintf("Issues (%d)", len(view.Issues))))
			for _, issue := range view.Issues {
				wrapped := strings.Split(ansi.Wrap(issue, contentWidth-2, wrapBreakpoints), "\n")
				for index, line := range wrapped {
					prefix := "  "
					if index == 0 {
						prefix = "• "
					}
					add(value.Render(prefix + line))
				}
			}
		}
	}

	if files := describeFiles(view.Files); files != "" {
		add("")
		add(label.Render("Files"))
		for _, name := range view.Files.Names {
			add(value.Render("  " + ansi.Truncate(name, contentWidth-2, "…")))
		}
		if len(view.Files.Names) == 0 {
			add(value.Render("  " + files))
		}
	}

	if description := renderMarkdown(view.Description, pane.renderer, pane.theme, contentWidth, pane.plain); description != "" {
		add("")
		add(label.Render("Description"))
		for _, line := range strings.Split(description, "\n") {
			add(line)
		}
	}

	if hint := actionHint(*view); hint != "" {
		add("")
		add(pane.renderer.NewStyle().Foreground(pane.theme.HelpText).Render(hint))
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	return frame.Render(strings.Join(lines, "\n"))
}

// describeFiles summarizes a file set: the count, or "" for none.
func describeFiles(files job.FileSet) string {
	count := max(files.Count, len(files.Names))
	switch count {
	case 0:
		return ""
	case 1:
		return "1 document"
	default:
		return fmt.Sprintf("%d documents", count)
	}
}

// actionHint names the keys that apply to a job: stop while it runs,
// delete once it has finished.
func actionHint(view jobstore.View) string {
	switch {
	case view.Provisional || view.Optimistic:
		return ""
	case view.Status.Terminal():
		return "d delete"
	default:
		return "s stop"
	}
}
