// Package config loads the configuration shared by the autoconf tools.
//
// Configuration lives in a file named .autoconf.toml, .autoconf.yaml or
// .autoconf.yml, found by walking up from the directory of the script being
// processed. The format follows the file extension:
//
//	quotes = "autoconf"
//
//	[macros]
//	prefixes = ["AC_", "AM_", "MY_"]
//	names = ["dnl"]
//
//	[macros.arity]
//	AC_INIT = [2, 5]
//
//	[outline]
//	format = "text"
//	color = true
//
//	[lsp]
//	log_level = "debug"
//
// Values in the file replace the defaults; lists are not merged.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"blake.io/autoconf"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Names are the file names searched for, in order of preference.
var Names = []string{".autoconf.toml", ".autoconf.yaml", ".autoconf.yml"}

// Config is the tool configuration.
type Config struct {
	// Quotes selects the initial macro quotes: "autoconf" for [ and ],
	// "m4" for ` and '.
	Quotes  string  `toml:"quotes" yaml:"quotes"`
	Macros  Macros  `toml:"macros" yaml:"macros"`
	Outline Outline `toml:"outline" yaml:"outline"`
	LSP     LSP     `toml:"lsp" yaml:"lsp"`

	// File is the file the configuration was loaded from, if any.
	File string `toml:"-" yaml:"-"`
}

// Macros configures macro detection and validation.
type Macros struct {
	Names    []string         `toml:"names" yaml:"names"`
	Prefixes []string         `toml:"prefixes" yaml:"prefixes"`
	Arity    map[string][]int `toml:"arity" yaml:"arity"` // name -> [min, max]; max < 0 is unbounded

	// Builtins enables argument count checks for the m4 builtins.
	Builtins bool `toml:"builtins" yaml:"builtins"`
}

// Outline configures the outline command.
type Outline struct {
	Format string `toml:"format" yaml:"format"` // text, json or html
	Color  bool   `toml:"color" yaml:"color"`
}

// LSP configures the language server.
type LSP struct {
	LogLevel string `toml:"log_level" yaml:"log_level"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Quotes: "autoconf",
		Macros: Macros{
			Prefixes: []string{"AC_", "AM_", "AS_", "AH_", "AU_", "LT_", "PKG_", "m4_"},
			Builtins: true,
		},
		Outline: Outline{Format: "text", Color: true},
		LSP:     LSP{LogLevel: "info"},
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	c.File = path
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return nil, fmt.Errorf("%s: unknown key %q", path, keys[0].String())
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Find returns the nearest configuration file in dir or its parents.
// It returns fs.ErrNotExist if there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range Names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fs.ErrNotExist
		}
		dir = parent
	}
}

// ForDir loads the configuration that applies to files in dir,
// or the defaults if there is none.
func ForDir(dir string) (*Config, error) {
	path, err := Find(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Quotes {
	case "autoconf", "m4":
	default:
		return fmt.Errorf("quotes: unknown quote style %q", c.Quotes)
	}
	switch c.Outline.Format {
	case "text", "json", "html":
	default:
		return fmt.Errorf("outline.format: unknown format %q", c.Outline.Format)
	}
	for name, a := range c.Macros.Arity {
		if len(a) != 2 {
			return fmt.Errorf("macros.arity.%s: want [min, max], got %v", name, a)
		}
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LSP.LogLevel)); err != nil {
		return fmt.Errorf("lsp.log_level: %w", err)
	}
	return nil
}

// LogLevel returns the language server log level.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LSP.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// MacroQuotes returns the configured initial quote pair.
func (c *Config) MacroQuotes() autoconf.Quotes {
	if c.Quotes == "m4" {
		return autoconf.M4Quotes
	}
	return autoconf.AutoconfQuotes
}

// Detector returns the configured macro detector.
func (c *Config) Detector() *autoconf.MacroSet {
	return &autoconf.MacroSet{Names: c.Macros.Names, Prefixes: c.Macros.Prefixes}
}

// Validator returns the configured macro validator, or nil if no checks
// are enabled.
func (c *Config) Validator() autoconf.MacroValidator {
	var vs autoconf.Validators
	if len(c.Macros.Arity) > 0 {
		v := make(autoconf.ArityValidator)
		for name, a := range c.Macros.Arity {
			v[name] = autoconf.Arity{Min: a[0], Max: a[1]}
		}
		vs = append(vs, v)
	}
	if c.Macros.Builtins {
		vs = append(vs, autoconf.BuiltinArities)
	}
	if len(vs) == 0 {
		return nil
	}
	return vs
}

// Parser returns a parser configured by c, reporting to sink.
func (c *Config) Parser(sink autoconf.ErrorSink) *autoconf.Parser {
	p := autoconf.NewParser(sink, c.Detector(), c.Validator())
	p.Quotes = c.MacroQuotes()
	return p
}
