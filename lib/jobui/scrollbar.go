// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderScrollbar draws a one-column scrollbar of the given height.
// The thumb spans the whole track when everything fits.
func renderScrollbar(renderer *lipgloss.Renderer, theme Theme, height, total, visible, offset int) string {
	if height <= 0 {
		return ""
	}
	track := renderer.NewStyle().Foreground(theme.BorderColor)
	thumb := renderer.NewStyle().Foreground(theme.StatusProcessing)

	lines := make([]string, height)
	if total <= visible || total <= 0 {
		for index := range lines {
			lines[index] = thumb.Render("┃")
		}
		return strings.Join(lines, "\n")
	}

	thumbSize := max(height*visible/total, 1)
	thumbOffset := 0
	if scrollable, trackRange := total-visible, height-thumbSize; scrollable > 0 && trackRange > 0 {
		thumbOffset = offset * trackRange / scrollable
	}
	thumbOffset = min(thumbOffset, height-thumbSize)

	for index := range lines {
		if index >= thumbOffset && index < thumbOffset+thumbSize {
			lines[index] = thumb.Render("┃")
		} else {
			lines[index] = track.Render("│")
		}
	}
	return strings.Join(lines, "\n")
}
