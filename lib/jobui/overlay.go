// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/auditdesk/lib/actions"
)

// spliceOverlay replaces a rectangle of view with overlayLines,
// starting at column anchorX of line anchorY. Truncation is ANSI-aware
// so styling on both sides of the overlay survives.
func spliceOverlay(view string, overlayLines []string, anchorX, anchorY int) string {
	if len(overlayLines) == 0 {
		return view
	}
	viewLines := strings.Split(view, "\n")
	overlayWidth := ansi.StringWidth(overlayLines[0])

	for index, overlayLine := range overlayLines {
		lineIndex := anchorY + index
		if lineIndex < 0 || lineIndex >= len(viewLines) {
			continue
		}
		viewLine := viewLines[lineIndex]

		var result strings.Builder
		if anchorX > 0 {
			prefix := ansi.Truncate(viewLine, anchorX, "")
			result.WriteString(prefix)
			// Short lines leave the overlay floating; pad to the anchor.
			if gap := anchorX - ansi.StringWidth(prefix); gap > 0 {
				result.WriteString(strings.Repeat(" ", gap))
			}
		}
		result.WriteString("\x1b[0m")
		result.WriteString(overlayLine)
		result.WriteString("\x1b[0m")
		if suffixStart := anchorX + overlayWidth; suffixStart < ansi.StringWidth(viewLine) {
			result.WriteString(ansi.TruncateLeft(viewLine, suffixStart, ""))
		}
		viewLines[lineIndex] = result.String()
	}
	return strings.Join(viewLines, "\n")
}

// confirmPrompt is the question the overlay asks for a pending action.
func confirmPrompt(pending actions.PendingAction, caseNumber string) string {
	switch pending.Kind {
	case actions.KindStop:
		return fmt.Sprintf("Stop job %s (%s)?", pending.Target, caseNumber)
	case actions.KindDelete:
		return fmt.Sprintf("Delete job %s (%s)? This cannot be undone.", pending.Target, caseNumber)
	case actions.KindLogout:
		return "Log out? Unfinished jobs keep running on the server."
	default:
		return fmt.Sprintf("Confirm %s?", pending.Kind)
	}
}

// renderConfirm draws the confirmation box and returns its lines and
// the anchor that centers it on a width by height screen.
func renderConfirm(renderer *lipgloss.Renderer, theme Theme, pending actions.PendingAction, caseNumber string, width, height int) ([]string, int, int) {
	prompt := confirmPrompt(pending, caseNumber)
	answer := "y confirm   n cancel"
	if pending.Phase == actions.PhaseInFlight {
		answer = "working…"
	}

	innerWidth := max(ansi.StringWidth(prompt), ansi.StringWidth(answer)) + 2
	if limit := width - 4; limit > 10 && innerWidth > limit {
		innerWidth = limit
	}

	text := renderer.NewStyle().
		Foreground(theme.ModalForeground).
		Background(theme.ModalBackground).
		Width(innerWidth).
		Padding(0, 1)
	hint := text.Foreground(theme.HelpText)
	body := lipgloss.JoinVertical(lipgloss.Left,
		text.Bold(true).Render(prompt),
		text.Render(""),
		hint.Render(answer),
	)
	box := renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ModalBorder).
		BorderBackground(theme.ModalBackground).
		Render(body)

	lines := strings.Split(box, "\n")
	anchorX := max((width-ansi.StringWidth(lines[0]))/2, 0)
	anchorY := max((height-len(lines))/2, 0)
	return lines, anchorX, anchorY
}
