package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newViewCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "view FILE",
		Short: "Browse the outline of a file in a terminal pager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			m := newViewer(f, newStyles(lipgloss.NewRenderer(out)))
			p := tea.NewProgram(m,
				tea.WithAltScreen(),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(out),
			)
			_, err = p.Run()
			return err
		},
	}
}

const (
	headerHeight = 2 // title and a blank line
	footerHeight = 2 // blank line and status
)

// viewer is a pager over the outline of a file, followed by the problems
// found in it.
type viewer struct {
	title   string
	status  string
	content string
	styles  *styles

	viewport viewport.Model
	ready    bool
}

func newViewer(f *file, s *styles) viewer {
	var b strings.Builder
	writeStyledOutline(&b, f.root, s)
	if len(f.errs) > 0 {
		b.WriteString("\n")
		for _, e := range f.errs {
			b.WriteString(s.error.Render(fmt.Sprintf("%d:%d: %s: %s", e.Line, e.Column+1, e.Severity, e.Message())))
			b.WriteString("\n")
		}
	}

	status := "no problems"
	switch n := len(f.errs); n {
	case 0:
	case 1:
		status = "1 problem"
	default:
		status = fmt.Sprintf("%d problems", n)
	}
	return viewer{
		title:   f.name,
		status:  status,
		content: strings.TrimSuffix(b.String(), "\n"),
		styles:  s,
	}
}

func (m viewer) Init() tea.Cmd {
	return nil
}

func (m viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyRunes:
			switch string(msg.Runes) {
			case "q":
				return m, tea.Quit
			case "g":
				m.viewport.GotoTop()
				return m, nil
			case "G":
				m.viewport.GotoBottom()
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		height := max(msg.Height-headerHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m viewer) View() string {
	if !m.ready {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.title))
	b.WriteString("  ")
	b.WriteString(m.styles.muted.Render(m.status))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")
	b.WriteString(m.styles.muted.Render(fmt.Sprintf("%3.f%%  q quit  g/G top/bottom  ↑/↓ scroll", m.viewport.ScrollPercent()*100)))
	return b.String()
}
