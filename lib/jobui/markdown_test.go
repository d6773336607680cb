// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func renderPlain(input string, width int) string {
	return renderMarkdown(input, newRenderer(io.Discard, true), DefaultTheme, width, true)
}

func TestRenderMarkdownReflowsParagraphs(t *testing.T) {
	input := "Scanned copies of the\nlease and the deed,\nsecond page rotated."
	got := renderPlain(input, 120)
	if strings.Contains(got, "\n") {
		t.Errorf("soft breaks were kept:\n%s", got)
	}
	if !strings.Contains(got, "the lease and the deed, second page") {
		t.Errorf("unexpected reflow: %q", got)
	}

	narrow := renderPlain(input, 20)
	for _, line := range strings.Split(narrow, "\n") {
		if ansi.StringWidth(line) > 20 {
			t.Errorf("line %q exceeds width 20", line)
		}
	}
}

func TestRenderMarkdownBlocks(t *testing.T) {
	input := strings.Join([]string{
		"# Notes",
		"",
		"Check **both** signatures:",
		"",
		"1. buyer",
		"2. seller",
		"",
		"- [x] notarized",
		"",
		"```json",
		`{"ref": 12}`,
		"```",
		"",
		"> from the branch office",
	}, "\n")
	got := renderPlain(input, 60)

	for _, want := range []string{"Notes", "Check both signatures:", "1. buyer", "2. seller", "[x] notarized", `{"ref": 12}`, "│ from the branch office"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered markdown is missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("plain rendering contains escape sequences: %q", got)
	}
}

func TestRenderMarkdownHighlightsCode(t *testing.T) {
	input := "```go\nfunc main() {}\n```"
	styled := renderMarkdown(input, newRenderer(io.Discard, false), DefaultTheme, 60, false)
	if !strings.Contains(styled, "\x1b[") {
		t.Error("fenced code was not highlighted")
	}
	if !strings.Contains(ansi.Strip(styled), "func main() {}") {
		t.Errorf("code text lost: %q", ansi.Strip(styled))
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	if got := renderPlain("  \n", 40); got != "" {
		t.Errorf("blank description rendered as %q", got)
	}
}
