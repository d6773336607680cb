// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/auditdesk/lib/jobstore"
)

// Filter narrows the job list with fzf-style matching. The input is
// split on whitespace and every term must match at least one of the
// job's case number, branch, feature, status or ID.
type Filter struct {
	// Input is the query text.
	Input string

	// Active is true while the filter input has keyboard focus.
	Active bool
}

// FilterMatch is a job that passed the filter.
type FilterMatch struct {
	View  jobstore.View
	Score int

	// CasePositions are the matched rune indexes in the case number,
	// for highlighting. Terms that matched other fields add none.
	CasePositions []int
}

// Apply returns the views matching the input, best score first. Ties
// keep their order in views. An empty input returns every view with a
// zero score.
func (filter *Filter) Apply(views []jobstore.View, slab *util.Slab) []FilterMatch {
	terms := strings.Fields(filter.Input)
	matches := make([]FilterMatch, 0, len(views))
	for _, view := range views {
		if len(terms) == 0 {
			matches = append(matches, FilterMatch{View: view})
			continue
		}
		if match, ok := matchTerms(view, terms, slab); ok {
			matches = append(matches, match)
		}
	}
	if len(terms) > 0 {
		slices.SortStableFunc(matches, func(a, b FilterMatch) int {
			return cmp.Compare(b.Score, a.Score)
		})
	}
	return matches
}

func matchTerms(view jobstore.View, terms []string, slab *util.Slab) (FilterMatch, bool) {
	fields := []string{
		view.CaseNumber,
		view.Branch,
		string(view.Feature),
		string(view.Status),
		view.ID,
	}
	match := FilterMatch{View: view}
	for _, term := range terms {
		pattern := []rune(term)
		best := FuzzyResult{}
		bestField := -1
		for index, field := range fields {
			result := fuzzyMatch(field, pattern, slab)
			if result.Score > best.Score {
				best = result
				bestField = index
			}
		}
		if bestField < 0 {
			return FilterMatch{}, false
		}
		match.Score += best.Score
		if bestField == 0 {
			match.CasePositions = append(match.CasePositions, best.Positions...)
		}
	}
	slices.Sort(match.CasePositions)
	match.CasePositions = slices.Compact(match.CasePositions)
	return match, true
}

// HandleRune appends a typed character.
func (filter *Filter) HandleRune(character rune) {
	filter.Input += string(character)
}

// HandleBackspace removes the last character. Returns false when the
// input was already empty.
func (filter *Filter) HandleBackspace() bool {
	if filter.Input == "" {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear empties the input and gives up focus.
func (filter *Filter) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar, or "" when the filter is neither
// focused nor holding text.
func (filter *Filter) View(renderer *lipgloss.Renderer, theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}
	if filter.Active {
		cursor := renderer.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return renderer.NewStyle().
			Foreground(theme.NormalText).
			Width(width).
			Render(" / " + filter.Input + cursor)
	}
	return renderer.NewStyle().
		Foreground(theme.FaintText).
		Width(width).
		Render(" filter: " + filter.Input)
}
