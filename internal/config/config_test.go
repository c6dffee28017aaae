package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"blake.io/autoconf"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".autoconf.toml")
	writeFile(t, path, `
quotes = "m4"

[macros]
prefixes = ["MY_"]
builtins = false

[macros.arity]
MY_CHECK = [1, 2]

[outline]
format = "json"

[lsp]
log_level = "debug"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Quotes != "m4" || c.MacroQuotes() != autoconf.M4Quotes {
		t.Errorf("quotes = %q, %v", c.Quotes, c.MacroQuotes())
	}
	if !slices.Equal(c.Macros.Prefixes, []string{"MY_"}) {
		t.Errorf("prefixes = %q, want [MY_]", c.Macros.Prefixes)
	}
	if c.Outline.Format != "json" || !c.Outline.Color {
		t.Errorf("outline = %+v", c.Outline)
	}
	if c.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", c.LogLevel())
	}
	if c.File != path {
		t.Errorf("File = %q, want %q", c.File, path)
	}

	d := c.Detector()
	if !d.IsMacro("MY_CHECK") || d.IsMacro("AC_INIT") {
		t.Errorf("detector: MY_CHECK=%v AC_INIT=%v", d.IsMacro("MY_CHECK"), d.IsMacro("AC_INIT"))
	}

	var errs autoconf.ErrorList
	root := c.Parser(&errs).Parse(autoconf.NewDocument("MY_CHECK(`a', `b', `c')\n"))
	m := root.Children[0]
	if !m.Known || !slices.Equal(m.Args(), []string{"a", "b", "c"}) {
		t.Errorf("MY_CHECK: known=%v args=%q", m.Known, m.Args())
	}
	if !slices.Equal(errs.Keys(), []string{autoconf.M4MacroArgsTooMany}) {
		t.Errorf("errors = %v, want [%s]", errs.Keys(), autoconf.M4MacroArgsTooMany)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".autoconf.yaml")
	writeFile(t, path, `
macros:
  names: [LOCAL_MACRO]
outline:
  color: false
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Quotes != "autoconf" {
		t.Errorf("quotes = %q, want default", c.Quotes)
	}
	if !c.Detector().IsMacro("LOCAL_MACRO") || !c.Detector().IsMacro("AC_INIT") {
		t.Error("detector lost names or default prefixes")
	}
	if c.Outline.Color {
		t.Error("outline.color = true, want false")
	}
	if c.Validator() == nil {
		t.Error("Validator() = nil, want builtin checks")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, data, want string
	}{
		{".autoconf.toml", "colour = true\n", `unknown key "colour"`},
		{".autoconf.toml", "quotes = \"perl\"\n", `unknown quote style "perl"`},
		{".autoconf.toml", "[outline]\nformat = \"pdf\"\n", `unknown format "pdf"`},
		{".autoconf.toml", "[macros.arity]\nX = [1]\n", `want [min, max]`},
		{".autoconf.toml", "[lsp]\nlog_level = \"loud\"\n", `lsp.log_level`},
		{".autoconf.yml", "outline:\n  colour: true\n", `colour`},
		{".autoconf.toml", "quotes = \n", `toml: line 1`},
	}
	for i, tt := range tests {
		path := filepath.Join(dir, string(rune('a'+i)), tt.name)
		writeFile(t, path, tt.data)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%q) error = %v, want containing %q", tt.data, err, tt.want)
		}
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	// The temp dir may sit below a directory holding a config file of its
	// own; only check that nothing inside root is reported.
	if path, err := Find(nested); err == nil && strings.HasPrefix(path, root) {
		t.Fatalf("Find found %q before any file was written", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatal(err)
	}

	want := filepath.Join(root, "a", ".autoconf.yml")
	writeFile(t, want, "quotes: m4\n")
	got, err := Find(nested)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Find = %q, want %q", got, want)
	}

	c, err := ForDir(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Quotes != "m4" {
		t.Errorf("ForDir quotes = %q, want m4", c.Quotes)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	for _, name := range []string{"AC_INIT", "AM_INIT_AUTOMAKE", "AS_IF", "PKG_CHECK_MODULES", "m4_define"} {
		if !c.Detector().IsMacro(name) {
			t.Errorf("default detector misses %s", name)
		}
	}
	if c.Detector().IsMacro("foo") {
		t.Error("default detector matches foo")
	}
}
