package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"kr.dev/diff"
)

const configure = "" +
	"AC_INIT([hello], [1.0])\n" +
	"if test x; then\n" +
	"  AC_MSG_RESULT([yes])\n" +
	"fi\n"

// writeFiles writes files into a new directory, along with a configuration
// that keeps the defaults, and returns the directory.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if _, ok := files[".autoconf.toml"]; !ok {
		files[".autoconf.toml"] = "quotes = \"autoconf\"\n"
	}
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o666); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(args ...string) (stdout, stderr string, err error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestOutline(t *testing.T) {
	dir := writeFiles(t, map[string]string{"configure.ac": configure})
	file := filepath.Join(dir, "configure.ac")

	want := "" +
		"1:  AC_INIT(hello)\n" +
		"2:  if test x\n" +
		"3:    AC_MSG_RESULT(yes)\n"
	for _, color := range []string{"--color=false", "--color=true"} {
		got, stderr, err := run("outline", color, file)
		if err != nil {
			t.Fatal(err)
		}
		diff.Test(t, t.Errorf, got, want)
		if stderr != "" {
			t.Errorf("stderr = %q", stderr)
		}
	}
}

func TestOutlineFormats(t *testing.T) {
	dir := writeFiles(t, map[string]string{"configure.ac": configure})
	file := filepath.Join(dir, "configure.ac")

	out, _, err := run("outline", "--format", "json", file)
	if err != nil {
		t.Fatal(err)
	}
	var tree struct {
		Kind     string `json:"kind"`
		Children []struct {
			Kind string `json:"kind"`
			Name string `json:"name"`
		} `json:"children"`
	}
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if tree.Kind != "root" || len(tree.Children) != 2 || tree.Children[0].Name != "AC_INIT" || tree.Children[1].Kind != "if" {
		t.Errorf("json tree = %+v", tree)
	}

	out, _, err = run("outline", "--format", "html", file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, `<ul class="outline">`) || !strings.Contains(out, "<span>AC_MSG_RESULT(yes)</span>") {
		t.Errorf("html output = %q", out)
	}

	_, _, err = run("outline", "--format", "yaml", file)
	if err == nil || !strings.Contains(err.Error(), `unknown format "yaml"`) {
		t.Errorf("outline --format yaml: err = %v", err)
	}
}

func TestOutlineConfigFormat(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		".autoconf.yaml": "outline:\n  format: json\n",
		"configure.ac":   "AC_INIT([x])\n",
	})
	// The toml file written by default takes precedence; use the yaml one.
	out, _, err := run("--config", filepath.Join(dir, ".autoconf.yaml"), "outline", filepath.Join(dir, "configure.ac"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "{") {
		t.Errorf("outline with json config = %q", out)
	}
}

func TestOutlineMultipleFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.ac": "AC_INIT([a])\n",
		"b.ac": "if true; then\n",
	})
	a, b := filepath.Join(dir, "a.ac"), filepath.Join(dir, "b.ac")
	out, stderr, err := run("outline", "--color=false", a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := a + ":\n1:  AC_INIT(a)\n\n" + b + ":\n1:  if true\n"
	diff.Test(t, t.Errorf, out, want)
	if want := b + ":1:1: error: unterminated \"if\" construct\n"; stderr != want {
		t.Errorf("stderr = %q, want %q", stderr, want)
	}
}

func TestCheck(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.ac": configure,
		"warn.ac": "define([x], [1], [2])\n",
		"bad.ac":  "while true; do\n  AC_FOO([x)\n",
	})
	good := filepath.Join(dir, "good.ac")
	warn := filepath.Join(dir, "warn.ac")
	bad := filepath.Join(dir, "bad.ac")

	out, _, err := run("check", good)
	if err != nil || out != "" {
		t.Errorf("check good.ac = %q, %v", out, err)
	}

	out, _, err = run("check", warn)
	if err != nil {
		t.Errorf("check warn.ac: %v", err)
	}
	if want := warn + ":1:1: warning: define expects at most 2 arguments, got 3\n"; out != want {
		t.Errorf("check warn.ac = %q, want %q", out, want)
	}

	out, _, err = run("check", good, bad)
	var e exitError
	if !errors.As(err, &e) || e.code != 1 {
		t.Errorf("check bad.ac: err = %v, want exit 1", err)
	}
	if !strings.Contains(out, bad+":2:") || !strings.Contains(out, `unterminated "while" construct`) {
		t.Errorf("check bad.ac = %q", out)
	}
}

func TestCheckExpect(t *testing.T) {
	dir := writeFiles(t, map[string]string{"configure.ac": configure})
	file := filepath.Join(dir, "configure.ac")

	out, _, err := run("check",
		"--expect", `/children/0/name == "AC_INIT"`,
		"--expect", `/children/1/kind == "if"`,
		"--expect-html", "li.if>ul>li.macro count 1",
		file)
	if err != nil || out != "" {
		t.Errorf("check with passing expectations = %q, %v", out, err)
	}

	out, _, err = run("check", "--expect", `/children/0/name == "AC_OUTPUT"`, file)
	var e exitError
	if !errors.As(err, &e) || e.code != 1 {
		t.Errorf("check with failing expectation: err = %v, want exit 1", err)
	}
	if !strings.HasPrefix(out, file+": ") || !strings.Contains(out, "AC_OUTPUT") {
		t.Errorf("check with failing expectation = %q", out)
	}
}

func TestM4Quotes(t *testing.T) {
	dir := writeFiles(t, map[string]string{"configure.ac": "AC_INIT(`a, b', [c])\n"})
	file := filepath.Join(dir, "configure.ac")

	out, _, err := run("--m4-quotes", "macros", file)
	if err != nil {
		t.Fatal(err)
	}
	if want := "1: AC_INIT [\"a, b\" \"[c]\"]\n"; out != want {
		t.Errorf("macros with m4 quotes = %q, want %q", out, want)
	}

	out, _, err = run("macros", file)
	if err != nil {
		t.Fatal(err)
	}
	if want := "1: AC_INIT [\"`a\" \"b'\" \"c\"]\n"; out != want {
		t.Errorf("macros = %q, want %q", out, want)
	}
}

func TestTokens(t *testing.T) {
	dir := writeFiles(t, map[string]string{"script": "if [x]; then\n"})
	file := filepath.Join(dir, "script")

	out, _, err := run("tokens", file)
	if err != nil {
		t.Fatal(err)
	}
	want := "" +
		"1:1: if \"if\"\n" +
		"1:4: TEXT \"[\"\n" +
		"1:5: WORD \"x\"\n" +
		"1:6: TEXT \"]\"\n" +
		"1:7: SEMI \";\"\n" +
		"1:9: then \"then\"\n" +
		"1:13: EOL \"\\n\"\n" +
		"2:1: EOF \"\"\n"
	diff.Test(t, t.Errorf, out, want)

	out, _, err = run("tokens", "--macro", file)
	if err != nil {
		t.Fatal(err)
	}
	want = "" +
		"1:1: WORD \"if\"\n" +
		"1:4: STRING \"x\"\n" +
		"1:7: TEXT \";\"\n" +
		"1:9: WORD \"then\"\n" +
		"1:13: EOL \"\\n\"\n" +
		"2:1: EOF \"\"\n"
	diff.Test(t, t.Errorf, out, want)
}

func TestMissingFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{})
	_, _, err := run("outline", filepath.Join(dir, "nope.ac"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("outline of a missing file: err = %v", err)
	}
	_, _, err = run("check")
	if err == nil {
		t.Error("check with no files succeeded")
	}
}

func TestBadConfig(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		".autoconf.toml": "quotes = \"fancy\"\n",
		"configure.ac":   configure,
	})
	_, _, err := run("outline", filepath.Join(dir, "configure.ac"))
	if err == nil || !strings.Contains(err.Error(), "fancy") {
		t.Errorf("outline with bad config: err = %v", err)
	}
}

func TestViewer(t *testing.T) {
	var text strings.Builder
	for range 30 {
		text.WriteString("AC_MSG_RESULT([yes])\n")
	}
	text.WriteString("if true; then\n")
	dir := writeFiles(t, map[string]string{"configure.ac": text.String()})
	f, err := (&options{}).parse(filepath.Join(dir, "configure.ac"))
	if err != nil {
		t.Fatal(err)
	}

	var m tea.Model = newViewer(f, newStyles(lipgloss.NewRenderer(&bytes.Buffer{})))
	if got := m.View(); got != "loading..." {
		t.Errorf("View before size = %q", got)
	}

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 14})
	v := m.(viewer)
	if !strings.Contains(v.View(), "1 problem") || !strings.Contains(v.View(), "1:  AC_MSG_RESULT(yes)") {
		t.Errorf("View = %q", v.View())
	}
	if !v.viewport.AtTop() {
		t.Error("viewer does not start at the top")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	v = m.(viewer)
	if !v.viewport.AtBottom() || !strings.Contains(v.View(), `unterminated "if" construct`) {
		t.Errorf("G did not scroll to the problems:\n%s", v.View())
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	if !m.(viewer).viewport.AtTop() {
		t.Error("g did not scroll to the top")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
