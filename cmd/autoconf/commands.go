package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"blake.io/autoconf"
	"blake.io/autoconf/checks"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newOutlineCmd(opts *options) *cobra.Command {
	var (
		format string
		color  bool
	)
	cmd := &cobra.Command{
		Use:   "outline [--format text|json|html] FILE...",
		Short: "Print the macro calls and shell constructs of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, name := range args {
				f, err := opts.parse(name)
				if err != nil {
					return err
				}
				if len(args) > 1 {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "%s:\n", name)
				}
				fm := f.cfg.Outline.Format
				if cmd.Flags().Changed("format") {
					fm = format
				}
				styled := f.cfg.Outline.Color
				if cmd.Flags().Changed("color") {
					styled = color
				}
				if err := writeOutline(out, f, fm, styled); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				writeProblems(cmd.ErrOrStderr(), f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or html")
	cmd.Flags().BoolVar(&color, "color", true, "style the text outline when the output is a terminal")
	return cmd
}

func writeOutline(w io.Writer, f *file, format string, styled bool) error {
	switch format {
	case "text":
		if styled {
			return writeStyledOutline(w, f.root, newStyles(lipgloss.NewRenderer(w)))
		}
		return autoconf.WriteOutline(w, f.root)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "\t")
		return enc.Encode(f.root)
	case "html":
		if err := autoconf.WriteHTML(w, f.root); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}

func newCheckCmd(opts *options) *cobra.Command {
	var expectJSON, expectHTML []string
	cmd := &cobra.Command{
		Use:   "check [--expect CHECK]... FILE...",
		Short: "Report the problems found in each file",
		Long: `check prints the problems found in each file, one per line,
and exits with status 1 if any of them is an error.

Each --expect CHECK is a JSON check against the tree of every file, as
printed by "outline --format json", for example

	autoconf check --expect '/children/0/name == "AC_INIT"' configure.ac

and each --expect-html CHECK is a CSS selector check against the HTML
outline. A failed expectation also makes check exit with status 1.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false
			for _, name := range args {
				f, err := opts.parse(name)
				if err != nil {
					return err
				}
				writeProblems(out, f)
				if f.failed() {
					failed = true
				}
				msgs, err := expect(f, expectJSON, expectHTML)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				for _, msg := range msgs {
					fmt.Fprintf(out, "%s: %s\n", name, msg)
					failed = true
				}
			}
			if failed {
				return exitError{1}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&expectJSON, "expect", nil, "JSON `check` the tree must pass")
	cmd.Flags().StringArrayVar(&expectHTML, "expect-html", nil, "HTML outline `check` the tree must pass")
	return cmd
}

// expect runs the JSON and HTML checks against the tree of f and returns
// the messages of those that fail.
func expect(f *file, jsonChecks, htmlChecks []string) ([]string, error) {
	var msgs []string
	if len(jsonChecks) > 0 {
		body, err := json.Marshal(f.root)
		if err != nil {
			return nil, err
		}
		for _, c := range jsonChecks {
			if msg := checks.JSON(c, string(body)); msg != "" {
				msgs = append(msgs, msg)
			}
		}
	}
	if len(htmlChecks) > 0 {
		var b strings.Builder
		if err := autoconf.WriteHTML(&b, f.root); err != nil {
			return nil, err
		}
		for _, c := range htmlChecks {
			if msg := checks.HTML(c, b.String()); msg != "" {
				msgs = append(msgs, msg)
			}
		}
	}
	return msgs, nil
}

// writeProblems writes the problems found in f in the file:line:column
// form editors understand. Columns are 1-indexed.
func writeProblems(w io.Writer, f *file) {
	for _, e := range f.errs {
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", f.name, e.Line, e.Column+1, e.Severity, e.Message())
	}
}

func newTokensCmd(opts *options) *cobra.Command {
	var macro bool
	cmd := &cobra.Command{
		Use:   "tokens [--macro] FILE",
		Short: "Print the tokens of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.parse(args[0])
			if err != nil {
				return err
			}
			f.errs = f.errs[:0]
			tok := autoconf.NewTokenizer(f.doc, &f.errs)
			q := f.cfg.MacroQuotes()
			tok.SetMacroQuote(q.Open, q.Close)
			tok.SetMacroContext(macro)

			out := cmd.OutOrStdout()
			for {
				t := tok.Read()
				line, col := f.doc.Position(t.Offset)
				fmt.Fprintf(out, "%d:%d: %s\n", line, col+1, t)
				if t.Kind == autoconf.TokenEOF {
					break
				}
			}
			writeProblems(cmd.ErrOrStderr(), f)
			return nil
		},
	}
	cmd.Flags().BoolVar(&macro, "macro", false, "read the file as a macro argument")
	return cmd
}

func newMacrosCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "macros FILE",
		Short: "List every macro call with its arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range f.root.Macros() {
				line, _ := f.doc.Position(m.Start)
				fmt.Fprintf(out, "%d: %s %q\n", line, m.Name, m.Args())
			}
			return nil
		},
	}
}
