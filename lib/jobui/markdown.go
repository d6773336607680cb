// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The parser is stateless between calls; Parse creates per-call state.
var markdownParser = sync.OnceValue(func() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
})

// wrapBreakpoints are the characters ansi.Wrap may break after, in
// addition to spaces.
const wrapBreakpoints = " ,.;-+|"

// renderMarkdown renders a job description for the detail pane.
// Paragraphs are reflowed to width, so hard-wrapped text reads the
// same at any terminal size. Fenced code is highlighted by chroma
// unless the renderer is in plain mode.
func renderMarkdown(input string, renderer *lipgloss.Renderer, theme Theme, width int, plain bool) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := markdownParser().Parser().Parse(text.NewReader(source))

	writer := &markdownWriter{
		source:   source,
		renderer: renderer,
		theme:    theme,
		width:    width,
		plain:    plain,
	}
	ast.Walk(document, writer.walk)
	return strings.TrimRight(writer.output.String(), "\n")
}

// markdownWriter walks the goldmark AST directly. Inline content of a
// block collects in inline and is wrapped as a unit when the block
// closes.
type markdownWriter struct {
	source   []byte
	renderer *lipgloss.Renderer
	theme    Theme
	width    int
	plain    bool

	output   strings.Builder
	inline   strings.Builder
	newlines int // trailing newlines in output

	// indent is the prefix for every line inside lists and quotes;
	// bullet replaces it for the first line of a list item.
	indent      []indentLevel
	indentWidth int
	bullet      string

	bold, italic, strike int
	lists                []listLevel
}

type indentLevel struct {
	text  string
	width int
}

type listLevel struct {
	ordered bool
	next    int
	tight   bool
}

func (w *markdownWriter) style() lipgloss.Style {
	return w.renderer.NewStyle()
}

func (w *markdownWriter) write(s string) {
	if s == "" {
		return
	}
	w.output.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		w.newlines += len(s)
	} else {
		w.newlines = len(s) - len(trimmed)
	}
}

func (w *markdownWriter) newline() {
	if w.newlines < 1 {
		w.write("\n")
	}
}

func (w *markdownWriter) blankLine() {
	for w.newlines < 2 {
		w.write("\n")
	}
}

func (w *markdownWriter) pushIndent(text string, width int) {
	w.indent = append(w.indent, indentLevel{text: text, width: width})
	w.indentWidth += width
}

func (w *markdownWriter) popIndent() {
	if len(w.indent) > 0 {
		w.indentWidth -= w.indent[len(w.indent)-1].width
		w.indent = w.indent[:len(w.indent)-1]
	}
}

func (w *markdownWriter) indentText() string {
	var text strings.Builder
	for _, level := range w.indent {
		text.WriteString(level.text)
	}
	return text.String()
}

func (w *markdownWriter) tight() bool {
	return len(w.lists) > 0 && w.lists[len(w.lists)-1].tight
}

// prefix applies the indent to every line of content, and the pending
// bullet to the first.
func (w *markdownWriter) prefix(content string) string {
	indent := w.indentText()
	lines := strings.Split(content, "\n")
	for index, line := range lines {
		if index == 0 && w.bullet != "" {
			lines[index] = w.bullet + line
			w.bullet = ""
			continue
		}
		lines[index] = indent + line
	}
	return strings.Join(lines, "\n")
}

func (w *markdownWriter) flush() {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return
	}
	w.write(w.prefix(ansi.Wrap(content, max(w.width-w.indentWidth, 10), wrapBreakpoints)))
	w.newline()
}

func (w *markdownWriter) styled(content string) string {
	style := w.style().Foreground(w.theme.NormalText)
	if w.bold > 0 {
		style = style.Bold(true)
	}
	if w.italic > 0 {
		style = style.Italic(true)
	}
	if w.strike > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

func (w *markdownWriter) lines(node ast.Node) string {
	var content strings.Builder
	segments := node.Lines()
	for index := 0; index < segments.Len(); index++ {
		segment := segments.At(index)
		content.Write(segment.Value(w.source))
	}
	return content.String()
}

func (w *markdownWriter) highlight(code, language string) string {
	faint := w.style().Foreground(w.theme.FaintText)
	if language == "" || w.plain {
		return faint.Render(code)
	}
	var highlighted strings.Builder
	if err := quick.Highlight(&highlighted, code, language, "terminal256", "monokai"); err != nil {
		return faint.Render(code)
	}
	return highlighted.String()
}

func (w *markdownWriter) codeBlock(code string) {
	w.blankLine()
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		w.write(w.prefix(line))
		w.newline()
	}
	w.blankLine()
}

func (w *markdownWriter) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if !entering {
			w.flush()
			if !w.tight() {
				w.blankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			break
		}
		content := ansi.Strip(w.inline.String())
		w.inline.Reset()
		style := w.style().Bold(true).Foreground(w.theme.HeaderForeground)
		w.blankLine()
		w.write(w.prefix(style.Render(content)))
		w.newline()
		w.blankLine()

	case ast.KindFencedCodeBlock:
		if entering {
			fenced := node.(*ast.FencedCodeBlock)
			w.codeBlock(w.highlight(w.lines(fenced), string(fenced.Language(w.source))))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock, ast.KindHTMLBlock:
		if entering {
			w.codeBlock(w.style().Foreground(w.theme.FaintText).Render(w.lines(node)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			w.pushIndent("│ ", 2)
		} else {
			w.popIndent()
			w.blankLine()
		}

	case ast.KindList:
		list := node.(*ast.List)
		if entering {
			w.lists = append(w.lists, listLevel{ordered: list.IsOrdered(), next: list.Start, tight: list.IsTight})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			if !w.tight() {
				w.blankLine()
			}
		}

	case ast.KindListItem:
		if len(w.lists) == 0 {
			break
		}
		if !entering {
			w.popIndent()
			w.newline()
			break
		}
		level := &w.lists[len(w.lists)-1]
		marker := "- "
		if level.ordered {
			marker = fmt.Sprintf("%d. ", level.next)
			level.next++
		}
		w.bullet = w.indentText() + marker
		w.pushIndent(strings.Repeat(" ", len(marker)), len(marker))

	case ast.KindThematicBreak:
		if entering {
			rule := w.style().Foreground(w.theme.BorderColor).Render(strings.Repeat("─", max(w.width-w.indentWidth, 10)))
			w.blankLine()
			w.write(w.prefix(rule))
			w.newline()
			w.blankLine()
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			w.inline.WriteString(w.styled(string(textNode.Segment.Value(w.source))))
			switch {
			case textNode.HardLineBreak():
				w.inline.WriteString("\n")
			case textNode.SoftLineBreak():
				w.inline.WriteString(" ")
			}
		}

	case ast.KindString:
		if entering {
			w.inline.WriteString(w.styled(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		counter := &w.italic
		if node.(*ast.Emphasis).Level >= 2 {
			counter = &w.bold
		}
		if entering {
			*counter++
		} else {
			*counter--
		}

	case ast.KindCodeSpan:
		if entering {
			var code strings.Builder
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					code.Write(textNode.Segment.Value(w.source))
				}
			}
			w.inline.WriteString(w.style().Foreground(w.theme.StatusProcessing).Render(code.String()))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if !entering {
			if destination := string(node.(*ast.Link).Destination); destination != "" {
				w.inline.WriteString(" " + w.style().Foreground(w.theme.FaintText).Render("("+destination+")"))
			}
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(w.source))
			w.inline.WriteString(w.style().Foreground(w.theme.FaintText).Render(url))
		}

	case ast.KindRawHTML:
		if entering {
			raw := node.(*ast.RawHTML)
			for index := 0; index < raw.Segments.Len(); index++ {
				segment := raw.Segments.At(index)
				w.inline.WriteString(w.style().Foreground(w.theme.FaintText).Render(string(segment.Value(w.source))))
			}
		}

	case extast.KindStrikethrough:
		if entering {
			w.strike++
		} else {
			w.strike--
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				w.inline.WriteString(w.style().Foreground(w.theme.StatusCompleted).Render("[x]") + " ")
			} else {
				w.inline.WriteString(w.styled("[ ] "))
			}
		}

	case extast.KindTable:
		if entering {
			w.codeBlock(w.style().Foreground(w.theme.FaintText).Render(w.tableText(node)))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

// tableText lays a table out as pipe-separated rows.
func (w *markdownWriter) tableText(table ast.Node) string {
	var rows []string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			var content strings.Builder
			_ = ast.Walk(cell, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
				if textNode, ok := node.(*ast.Text); ok && entering {
					content.Write(textNode.Segment.Value(w.source))
				}
				return ast.WalkContinue, nil
			})
			cells = append(cells, content.String())
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}
