/*
Command autoconf inspects autoconf scripts without running m4 or a shell.

# Installation

To install the latest version of autoconf, run:

	go install blake.io/autoconf/cmd/autoconf@latest

# Usage

	autoconf outline [--format text|json|html] FILE...
	autoconf check [--expect CHECK]... [--expect-html CHECK]... FILE...
	autoconf tokens [--macro] FILE
	autoconf macros FILE
	autoconf view FILE

The outline command prints the macro calls and shell constructs of each
file, indented by nesting. The check command prints the problems found in
each file and exits with status 1 if any of them is an error or if the
tree fails one of the --expect checks. The tokens command prints the
tokens of a file, read in shell mode or, with --macro, in macro argument
mode. The macros command lists every macro call with its arguments. The
view command opens the outline in a scrollable terminal pager.

# Configuration

Settings are read from the nearest .autoconf.toml, .autoconf.yaml or
.autoconf.yml in the directory of each file or its parents, or from the
file named by --config. The --m4-quotes flag starts every file with the m4
quotes ` and ' instead of [ and ].
*/
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"blake.io/autoconf"
	"blake.io/autoconf/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var e exitError
		if errors.As(err, &e) {
			os.Exit(e.code)
		}
		fmt.Fprintf(os.Stderr, "autoconf: %v\n", err)
		os.Exit(2)
	}
}

// exitError ends the command with a status but no message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// options are the flags shared by all commands.
type options struct {
	configPath string
	m4Quotes   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "autoconf",
		Short:         "Inspect autoconf scripts",
		Long:          "autoconf parses autoconf scripts into macro calls and shell constructs\nand reports structural mistakes without expanding anything.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "configuration file (default: nearest .autoconf.toml or .autoconf.yaml)")
	root.PersistentFlags().BoolVar(&opts.m4Quotes, "m4-quotes", false, "start with the m4 quotes ` and '")

	root.AddCommand(
		newOutlineCmd(opts),
		newCheckCmd(opts),
		newTokensCmd(opts),
		newMacrosCmd(opts),
		newViewCmd(opts),
	)
	return root
}

// config returns the configuration that applies to file.
func (o *options) config(file string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.ForDir(filepath.Dir(file))
	}
	if err != nil {
		return nil, err
	}
	if o.m4Quotes {
		cfg.Quotes = "m4"
	}
	return cfg, nil
}

// file is a parsed script.
type file struct {
	name string
	cfg  *config.Config
	doc  *autoconf.Document
	root *autoconf.Element
	errs autoconf.ErrorList
}

func (o *options) parse(name string) (*file, error) {
	cfg, err := o.config(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	f := &file{name: name, cfg: cfg, doc: autoconf.NewDocument(string(data))}
	f.root = cfg.Parser(&f.errs).Parse(f.doc)
	return f, nil
}

// failed reports whether any of the problems found is an error.
func (f *file) failed() bool {
	for _, e := range f.errs {
		if e.Severity == autoconf.SeverityError {
			return true
		}
	}
	return false
}
