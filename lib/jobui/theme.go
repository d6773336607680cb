// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Theme is the dashboard's color palette. All colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// One color per job status.
	StatusQueued     lipgloss.Color
	StatusProcessing lipgloss.Color
	StatusCompleted  lipgloss.Color
	StatusFailed     lipgloss.Color
	StatusStopped    lipgloss.Color
	StatusCanceled   lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Background tint for recently changed rows. HotAccentRevert marks
	// an optimistic change that was rolled back.
	HotAccentPut    lipgloss.Color
	HotAccentRevert lipgloss.Color

	// Background for characters matched by the filter.
	MatchBackground lipgloss.Color

	NoticeInfo  lipgloss.Color
	NoticeError lipgloss.Color

	ModalForeground lipgloss.Color
	ModalBackground lipgloss.Color
	ModalBorder     lipgloss.Color
}

// StatusColor returns the color for a job status, FaintText for
// anything unknown.
func (theme Theme) StatusColor(status job.Status) lipgloss.Color {
	switch status {
	case job.StatusQueued:
		return theme.StatusQueued
	case job.StatusProcessing:
		return theme.StatusProcessing
	case job.StatusCompleted:
		return theme.StatusCompleted
	case job.StatusFailed:
		return theme.StatusFailed
	case job.StatusStopped:
		return theme.StatusStopped
	case job.StatusCanceled:
		return theme.StatusCanceled
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in scheme for 256-color terminals with a
// dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StatusQueued:     lipgloss.Color("75"),  // blue
	StatusProcessing: lipgloss.Color("220"), // amber
	StatusCompleted:  lipgloss.Color("114"), // green
	StatusFailed:     lipgloss.Color("196"), // red
	StatusStopped:    lipgloss.Color("208"), // orange
	StatusCanceled:   lipgloss.Color("245"), // gray

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	HotAccentPut:    lipgloss.Color("58"),
	HotAccentRevert: lipgloss.Color("52"),

	MatchBackground: lipgloss.Color("58"),

	NoticeInfo:  lipgloss.Color("114"),
	NoticeError: lipgloss.Color("196"),

	ModalForeground: lipgloss.Color("252"),
	ModalBackground: lipgloss.Color("237"),
	ModalBorder:     lipgloss.Color("220"),
}

// statusIcon is the single-character status marker shown in the list.
// It carries the status in plain mode, where colors are dropped.
func statusIcon(status job.Status) string {
	switch status {
	case job.StatusQueued:
		return "○"
	case job.StatusProcessing:
		return "●"
	case job.StatusCompleted:
		return "✓"
	case job.StatusFailed:
		return "✗"
	case job.StatusStopped:
		return "■"
	case job.StatusCanceled:
		return "-"
	default:
		return "?"
	}
}

// newRenderer returns a lipgloss renderer for output. Plain forces the
// ASCII profile, which strips every color and attribute. Otherwise the
// profile is fixed at ANSI256 so output does not depend on what the
// environment advertises.
func newRenderer(output io.Writer, plain bool) *lipgloss.Renderer {
	profile := termenv.ANSI256
	if plain {
		profile = termenv.Ascii
	}
	renderer := lipgloss.NewRenderer(output, termenv.WithProfile(profile))
	// SetColorProfile pins the profile; without it the renderer
	// re-detects from the environment.
	renderer.SetColorProfile(profile)
	return renderer
}
