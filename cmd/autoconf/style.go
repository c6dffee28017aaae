package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"blake.io/autoconf"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorMacro   = lipgloss.Color("#06B6D4") // cyan
	colorKeyword = lipgloss.Color("#8B5CF6") // violet
	colorPattern = lipgloss.Color("#F59E0B") // amber
	colorError   = lipgloss.Color("#EF4444") // red
	colorMuted   = lipgloss.Color("#6B7280") // gray
)

// styles holds the styles of the text outline, bound to the renderer of
// the output. A renderer writing to something other than a terminal drops
// all styling.
type styles struct {
	line    lipgloss.Style
	macro   lipgloss.Style
	keyword lipgloss.Style
	pattern lipgloss.Style
	title   lipgloss.Style
	muted   lipgloss.Style
	error   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *styles {
	return &styles{
		line:    r.NewStyle().Foreground(colorMuted),
		macro:   r.NewStyle().Foreground(colorMacro).Bold(true),
		keyword: r.NewStyle().Foreground(colorKeyword).Bold(true),
		pattern: r.NewStyle().Foreground(colorPattern),
		title:   r.NewStyle().Foreground(colorKeyword).Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted).Italic(true),
		error:   r.NewStyle().Foreground(colorError),
	}
}

// label renders the outline label of e, styling the macro name or keyword
// it starts with.
func (s *styles) label(e *autoconf.Element) string {
	label := e.Label()
	head, rest := label, ""
	if r, ok := strings.CutPrefix(label, e.Name); ok {
		head, rest = e.Name, r
	}
	switch {
	case e.Kind == autoconf.KindMacro:
		head = s.macro.Render(head)
	case e.Kind == autoconf.KindCaseCondition:
		head = s.pattern.Render(head)
	case e.Kind.IsConstruct():
		head = s.keyword.Render(head)
	}
	return head + rest
}

// writeStyledOutline writes the outline of root in the layout of
// autoconf.WriteOutline.
func writeStyledOutline(w io.Writer, root *autoconf.Element, s *styles) error {
	bw := bufio.NewWriter(w)
	var walk func(e *autoconf.Element, depth int)
	walk = func(e *autoconf.Element, depth int) {
		for _, c := range e.Outline() {
			line, _ := c.Document().Position(c.Start)
			fmt.Fprintf(bw, "%s:%s%s\n", s.line.Render(fmt.Sprint(line)), strings.Repeat("  ", depth+1), s.label(c))
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return bw.Flush()
}
