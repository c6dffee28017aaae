package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"kr.dev/diff"
)

const defunScript = "" +
	"dnl Check for the frobnicator.\n" + // 0
	"dnl Sets HAVE_FROB.\n" + // 1
	"AC_DEFUN([MY_CHECK], [\n" + // 2
	"  AC_MSG_CHECKING([for frob])\n" + // 3
	"])\n" + // 4
	"MY_CHECK()\n" + // 5
	"if test x; then\n" + // 6
	"  MY_CHECK([a])\n" + // 7
	"fi\n" // 8

func TestDocumentParse(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantDefs   []string
		wantErrors []string
	}{
		{
			name:     "AC_DEFUN",
			text:     defunScript,
			wantDefs: []string{"MY_CHECK"},
		},
		{
			name:     "several definers",
			text:     "AU_DEFUN([OLD], [NEW])\nm4_define([m4_x], [1])\ndefine([y], [2])\n",
			wantDefs: []string{"OLD", "m4_x", "y"},
		},
		{
			name:     "not a macro name",
			text:     "AC_DEFUN([$1_x], [y])\nAC_DEFUN([], [y])\n",
			wantDefs: nil,
		},
		{
			name:       "used before definition",
			text:       "MY_X()\nAC_DEFUN([MY_X], [y])\nMY_X()\n",
			wantDefs:   []string{"MY_X"},
			wantErrors: []string{`macro "MY_X" used before its definition on line 2`},
		},
		{
			name:       "syntax error",
			text:       "while true; do\n",
			wantErrors: []string{`unterminated "while" construct`},
		},
		{
			name:       "builtin arity",
			text:       "define([a], [b], [c])\n",
			wantDefs:   []string{"a"},
			wantErrors: []string{"define expects at most 2 arguments, got 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDocument("file:///configure.ac", tt.text, nil)

			var gotDefs []string
			for name := range doc.defs {
				gotDefs = append(gotDefs, name)
			}
			slices.Sort(gotDefs)
			want := slices.Clone(tt.wantDefs)
			slices.Sort(want)
			if !slices.Equal(gotDefs, want) {
				t.Errorf("defs: got %v, want %v", gotDefs, want)
			}

			var gotErrors []string
			for _, p := range doc.problems {
				gotErrors = append(gotErrors, p.msg)
			}
			if !slices.Equal(gotErrors, tt.wantErrors) {
				t.Errorf("errors: got %q, want %q", gotErrors, tt.wantErrors)
			}
		})
	}
}

func TestDefinitionComment(t *testing.T) {
	doc := newDocument("file:///configure.ac", defunScript, nil)
	def := doc.defs["MY_CHECK"]
	if def == nil {
		t.Fatal("MY_CHECK not defined")
	}
	if want := "Check for the frobnicator.\nSets HAVE_FROB."; def.doc != want {
		t.Errorf("doc = %q, want %q", def.doc, want)
	}
	if got := doc.span(def.start, def.end); got != (span{2, 10, 2, 18}) {
		t.Errorf("name span = %v", got)
	}
}

func TestSymbolAt(t *testing.T) {
	doc := newDocument("file:///configure.ac", defunScript, nil)

	tests := []struct {
		line, char int
		wantName   string
		wantOK     bool
	}{
		{2, 0, "AC_DEFUN", true},   // on "AC_DEFUN"
		{2, 7, "AC_DEFUN", true},   // still on "AC_DEFUN"
		{2, 9, "", false},          // on the quote
		{2, 10, "MY_CHECK", true},  // on the defined name
		{2, 17, "MY_CHECK", true},  // still on it
		{3, 2, "", false},          // quoted text is not a call
		{5, 0, "MY_CHECK", true},   // call
		{5, 8, "", false},          // on "("
		{7, 0, "", false},          // indentation
		{7, 2, "MY_CHECK", true},   // call inside if
		{99, 0, "", false},         // past the end
		{8, 0, "", false},          // on "fi"
		{0, 4, "", false},          // in a comment
		{6, 0, "", false},          // keywords are not symbols
		{7, 11, "", false},         // argument
		{5, 3, "MY_CHECK", true},   // middle of a call
		{2, 18, "", false},         // just past the defined name
		{5, 7, "MY_CHECK", true},   // last character of the call name
		{2, 8, "", false},          // on "(" of AC_DEFUN
		{4, 0, "", false},          // closing quote
		{6, 3, "", false},          // condition
		{1, 0, "", false},          // dnl
		{7, 10, "", false},         // on "(" of the call
	}

	for _, tt := range tests {
		name, _, ok := doc.symbolAt(tt.line, tt.char)
		if ok != tt.wantOK {
			t.Errorf("symbolAt(%d, %d): ok=%v, want %v", tt.line, tt.char, ok, tt.wantOK)
		}
		if ok && name != tt.wantName {
			t.Errorf("symbolAt(%d, %d): name=%q, want %q", tt.line, tt.char, name, tt.wantName)
		}
	}
}

func TestReferences(t *testing.T) {
	doc := newDocument("file:///configure.ac", defunScript, nil)

	refs := doc.references("MY_CHECK", true)
	want := []span{{2, 10, 2, 18}, {5, 0, 5, 8}, {7, 2, 7, 10}}
	if !slices.Equal(refs, want) {
		t.Errorf("references(MY_CHECK, true) = %v, want %v", refs, want)
	}

	refs = doc.references("MY_CHECK", false)
	if !slices.Equal(refs, want[1:]) {
		t.Errorf("references(MY_CHECK, false) = %v, want %v", refs, want[1:])
	}

	if refs := doc.references("AC_INIT", true); len(refs) != 0 {
		t.Errorf("references(AC_INIT) = %v", refs)
	}
}

func TestDocumentSymbols(t *testing.T) {
	doc := newDocument("file:///configure.ac", defunScript, nil)
	syms := doc.symbols(doc.root)

	var b strings.Builder
	var walk func(syms []documentSymbol, depth int)
	walk = func(syms []documentSymbol, depth int) {
		for _, s := range syms {
			fmt.Fprintf(&b, "%s%s (%d, %s) %d:%d-%d:%d\n", strings.Repeat("\t", depth), s.Name, s.Kind, s.Detail,
				s.SelectionRange.Start.Line, s.SelectionRange.Start.Character,
				s.SelectionRange.End.Line, s.SelectionRange.End.Character)
			walk(s.Children, depth+1)
		}
	}
	walk(syms, 0)

	want := "" +
		"AC_DEFUN(MY_CHECK) (12, defines MY_CHECK) 2:0-2:8\n" +
		"MY_CHECK (12, macro) 5:0-5:8\n" +
		"if test x (3, if) 6:0-6:2\n" +
		"\tMY_CHECK(a) (12, macro) 7:2-7:10\n"
	diff.Test(t, t.Errorf, b.String(), want)

	for _, s := range syms {
		if s.Range.Start.Line > s.SelectionRange.Start.Line || s.Range.End.Line < s.SelectionRange.End.Line {
			t.Errorf("%s: selection %v outside range %v", s.Name, s.SelectionRange, s.Range)
		}
	}
}

func TestDocumentSymbolsCase(t *testing.T) {
	doc := newDocument("file:///configure.ac", "case $host in\n*-linux*) AC_MSG_NOTICE([linux]) ;;\nesac\n", nil)
	syms := doc.symbols(doc.root)
	if len(syms) != 1 || syms[0].Name != "case $host" || len(syms[0].Children) != 1 {
		t.Fatalf("symbols = %+v", syms)
	}
	cond := syms[0].Children[0]
	if cond.Name != "*-linux*" || cond.Kind != symbolEnumMember || len(cond.Children) != 1 {
		t.Errorf("condition = %+v", cond)
	}
	if cond.SelectionRange != cond.Range {
		t.Errorf("condition selection %v, range %v", cond.SelectionRange, cond.Range)
	}
}

func TestFoldingRanges(t *testing.T) {
	doc := newDocument("file:///configure.ac", defunScript, nil)
	got := doc.foldingRanges()
	want := []foldingRange{
		{StartLine: 0, EndLine: 1, Kind: "comment"},
		{StartLine: 2, EndLine: 4},
		{StartLine: 6, EndLine: 8},
	}
	if !slices.Equal(got, want) {
		t.Errorf("foldingRanges = %+v, want %+v", got, want)
	}
}

func TestSemanticTokens(t *testing.T) {
	doc := newDocument("file:///configure.ac", "# setup\nAC_INIT([x])\nif test $x; then\n  echo ${y} $1\nfi\n", nil)
	got := doc.semanticTokens()
	want := []uint32{
		0, 0, 7, tokComment, 0,
		1, 0, 7, tokFunction, 0,
		1, 0, 2, tokKeyword, 0,
		0, 8, 2, tokVariable, 0,
		1, 7, 4, tokVariable, 0,
		0, 5, 2, tokParameter, 0,
	}
	if !slices.Equal(got, want) {
		t.Errorf("semanticTokens =\n%v\nwant\n%v", got, want)
	}
}

func TestSemanticTokensQuotedComment(t *testing.T) {
	// "#" inside a quoted argument is text.
	doc := newDocument("file:///configure.ac", "AC_DEFUN([X], [\n# not a comment\n])\n", nil)
	got := doc.semanticTokens()
	want := []uint32{
		0, 0, 8, tokFunction, 0,
		0, 10, 1, tokFunction, 0,
	}
	if !slices.Equal(got, want) {
		t.Errorf("semanticTokens = %v, want %v", got, want)
	}
}

func TestSemanticTokensEmpty(t *testing.T) {
	doc := newDocument("file:///configure.ac", "echo hello\n", nil)
	if got := doc.semanticTokens(); got != nil {
		t.Errorf("semanticTokens = %v, want none", got)
	}
}

func TestFormatComment(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"# hello\n", "hello"},
		{"# hello\n# world\n", "hello\nworld"},
		{"#hello\n", "hello"},
		{"  # indented\n", "indented"},
		{"dnl hello\n", "hello"},
		{"dnl\ndnl after blank\n", "after blank"},
		{"m4_dnl hi\n", "hi"},
		{"# line1\n#\n# line2\n", "line1\n\nline2"},
		{"", ""},
	}

	for _, tt := range tests {
		got := formatComment(tt.input)
		if got != tt.want {
			t.Errorf("formatComment(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsCommentLine(t *testing.T) {
	for line, want := range map[string]bool{
		"# x":        true,
		"  dnl x":    true,
		"dnl":        true,
		"dnlx":       false,
		"AC_INIT":    false,
		"echo # x":   false,
		"\tm4_dnl y": true,
	} {
		if got := isCommentLine(line); got != want {
			t.Errorf("isCommentLine(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestSpanToLSP(t *testing.T) {
	s := span{1, 2, 3, 4}
	got := s.toLSP()
	want := lspRange{
		Start: position{Line: 1, Character: 2},
		End:   position{Line: 3, Character: 4},
	}
	if got != want {
		t.Errorf("span.toLSP() = %v, want %v", got, want)
	}
}

func formatLSPMessage(msg any) []byte {
	data, _ := json.Marshal(msg)
	return []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(data), data))
}

type message struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *responseError  `json:"error"`
}

// session runs a server over the given messages and returns what it wrote.
func session(t *testing.T, s *server, in *bytes.Buffer, out *bytes.Buffer, msgs ...any) ([]message, error) {
	t.Helper()
	for _, m := range msgs {
		in.Write(formatLSPMessage(m))
	}
	err := s.run()

	r := newServer(out, io.Discard, s.log)
	var got []message
	for {
		data, rerr := r.readMessage()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			t.Fatal(rerr)
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatal(err)
		}
		got = append(got, m)
	}
	return got, err
}

func textDocument(uri string) map[string]any {
	return map[string]any{"textDocument": map[string]any{"uri": uri}}
}

func TestServer(t *testing.T) {
	const uri = "file:///project/configure.ac"
	var in, out bytes.Buffer
	s := newServer(&in, &out, slog.New(slog.DiscardHandler))

	got, err := session(t, s, &in, &out,
		map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{}},
		map[string]any{"jsonrpc": "2.0", "method": "initialized", "params": map[string]any{}},
		map[string]any{"jsonrpc": "2.0", "method": "textDocument/didOpen", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri, "text": "if true; then\n"},
		}},
		map[string]any{"jsonrpc": "2.0", "id": 2, "method": "textDocument/documentSymbol", "params": textDocument(uri)},
		map[string]any{"jsonrpc": "2.0", "id": 3, "method": "textDocument/bogus", "params": textDocument(uri)},
		map[string]any{"jsonrpc": "2.0", "method": "textDocument/didChange", "params": map[string]any{
			"textDocument":   map[string]any{"uri": uri},
			"contentChanges": []any{map[string]any{"text": "if true; then\n  AC_INIT([x])\nfi\n"}},
		}},
		map[string]any{"jsonrpc": "2.0", "id": 4, "method": "textDocument/definition", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"position":     map[string]any{"line": 1, "character": 3},
		}},
		map[string]any{"jsonrpc": "2.0", "id": 5, "method": "shutdown"},
		map[string]any{"jsonrpc": "2.0", "method": "exit"},
	)
	var e exitError
	if !errors.As(err, &e) || e.code != 0 {
		t.Fatalf("run = %v, want exit 0", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d messages, want 7: %+v", len(got), got)
	}

	var init struct {
		Capabilities struct {
			DocumentSymbolProvider bool `json:"documentSymbolProvider"`
			FoldingRangeProvider   bool `json:"foldingRangeProvider"`
		} `json:"capabilities"`
		ServerInfo struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(got[0].Result, &init); err != nil {
		t.Fatal(err)
	}
	if !init.Capabilities.DocumentSymbolProvider || !init.Capabilities.FoldingRangeProvider || init.ServerInfo.Name != "aclsp" {
		t.Errorf("initialize result = %s", got[0].Result)
	}

	var diags struct {
		URI         string       `json:"uri"`
		Diagnostics []diagnostic `json:"diagnostics"`
	}
	if got[1].Method != "textDocument/publishDiagnostics" {
		t.Fatalf("message 1 = %+v", got[1])
	}
	if err := json.Unmarshal(got[1].Params, &diags); err != nil {
		t.Fatal(err)
	}
	wantDiag := diagnostic{
		Range:    span{0, 0, 0, 2}.toLSP(),
		Severity: 1,
		Code:     "UnterminatedConstruct",
		Source:   "aclsp",
		Message:  `unterminated "if" construct`,
	}
	if diags.URI != uri || len(diags.Diagnostics) != 1 || diags.Diagnostics[0] != wantDiag {
		t.Errorf("diagnostics = %+v", diags)
	}

	var syms []documentSymbol
	if err := json.Unmarshal(got[2].Result, &syms); err != nil {
		t.Fatal(err)
	}
	if len(syms) != 1 || syms[0].Name != "if true" {
		t.Errorf("documentSymbol = %s", got[2].Result)
	}

	if got[3].Error == nil || got[3].Error.Code != codeMethodNotFound || string(got[3].ID) != "3" {
		t.Errorf("bogus method reply = %+v", got[3])
	}

	if err := json.Unmarshal(got[4].Params, &diags); err != nil {
		t.Fatal(err)
	}
	if len(diags.Diagnostics) != 0 {
		t.Errorf("diagnostics after fix = %+v", diags.Diagnostics)
	}

	// AC_INIT is not defined in the document.
	if string(got[5].Result) != "null" {
		t.Errorf("definition = %s", got[5].Result)
	}
	if string(got[6].ID) != "5" || string(got[6].Result) != "null" {
		t.Errorf("shutdown reply = %+v", got[6])
	}
}

func TestServerExitWithoutShutdown(t *testing.T) {
	var in, out bytes.Buffer
	s := newServer(&in, &out, slog.New(slog.DiscardHandler))
	_, err := session(t, s, &in, &out, map[string]any{"jsonrpc": "2.0", "method": "exit"})
	var e exitError
	if !errors.As(err, &e) || e.code != 1 {
		t.Errorf("run = %v, want exit 1", err)
	}
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := "quotes = \"m4\"\n\n[lsp]\nlog_level = \"debug\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".autoconf.toml"), []byte(cfg), 0o666); err != nil {
		t.Fatal(err)
	}

	var in, out bytes.Buffer
	s := newServer(&in, &out, slog.New(slog.DiscardHandler))
	s.level = new(slog.LevelVar)
	uri := "file://" + filepath.ToSlash(filepath.Join(dir, "configure.ac"))
	got, err := session(t, s, &in, &out,
		map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{"rootUri": "file://" + filepath.ToSlash(dir)}},
		map[string]any{"jsonrpc": "2.0", "method": "textDocument/didOpen", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri, "text": "AC_DEFUN(`MY_X', `y')\nMY_X()\n"},
		}},
		map[string]any{"jsonrpc": "2.0", "id": 2, "method": "textDocument/definition", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"position":     map[string]any{"line": 1, "character": 0},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if s.cfg.Quotes != "m4" || s.level.Level() != slog.LevelDebug {
		t.Errorf("config not applied: quotes %q, level %v", s.cfg.Quotes, s.level.Level())
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	var loc location
	if err := json.Unmarshal(got[2].Result, &loc); err != nil {
		t.Fatal(err)
	}
	if want := (location{URI: uri, Range: span{0, 10, 0, 14}.toLSP()}); loc != want {
		t.Errorf("definition = %+v, want %+v", loc, want)
	}
}

func TestServerBadMessage(t *testing.T) {
	var in, out bytes.Buffer
	in.WriteString("Content-Length: 5\r\n\r\n{bad}")
	s := newServer(&in, &out, slog.New(slog.DiscardHandler))
	got, err := session(t, s, &in, &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Error == nil || got[0].Error.Code != codeParseError {
		t.Errorf("reply to bad message = %+v", got)
	}
}
