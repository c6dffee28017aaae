package main

import (
	"fmt"
	"slices"
	"strings"

	"blake.io/autoconf"
	"blake.io/autoconf/internal/config"
)

// definers are the macros whose first argument names a new macro.
var definers = map[string]bool{
	"AC_DEFUN":      true,
	"AC_DEFUN_ONCE": true,
	"AU_DEFUN":      true,
	"m4_define":     true,
	"m4_defun":      true,
	"define":        true,
}

// LSP symbol kinds
const (
	symbolNamespace  = 3
	symbolFunction   = 12
	symbolEnumMember = 22
)

type document struct {
	uri      string
	cfg      *config.Config
	doc      *autoconf.Document
	root     *autoconf.Element
	errs     autoconf.ErrorList
	calls    []*autoconf.Element
	defs     map[string]*definition
	problems []problem
}

type definition struct {
	call       *autoconf.Element // the defining call
	start, end int               // offsets of the defined name
	doc        string
}

type problem struct {
	start, end int
	severity   int // LSP DiagnosticSeverity
	code       string
	msg        string
}

type span struct{ startLine, startChar, endLine, endChar int }

func (s span) toLSP() lspRange {
	return lspRange{
		Start: position{Line: s.startLine, Character: s.startChar},
		End:   position{Line: s.endLine, Character: s.endChar},
	}
}

func newDocument(uri, text string, cfg *config.Config) *document {
	if cfg == nil {
		cfg = config.Default()
	}
	d := &document{uri: uri, cfg: cfg, defs: make(map[string]*definition)}
	d.setText(text)
	return d
}

func (d *document) setText(text string) {
	d.doc = autoconf.NewDocument(text)
	d.parse()
}

func (d *document) parse() {
	d.errs = d.errs[:0]
	d.root = d.cfg.Parser(&d.errs).Parse(d.doc)
	d.calls = d.root.Macros()
	clear(d.defs)

	d.problems = d.problems[:0]
	for _, e := range d.errs {
		sev := 1
		if e.Severity == autoconf.SeverityWarning {
			sev = 2
		}
		d.problems = append(d.problems, problem{e.Offset, e.End, sev, e.Key, e.Message()})
	}

	for _, m := range d.calls {
		if !definers[m.Name] || len(m.Children) == 0 {
			continue
		}
		arg := m.Children[0]
		name := strings.TrimSpace(arg.Name)
		if !isMacroName(name) {
			continue
		}
		if _, exists := d.defs[name]; exists {
			continue
		}
		// The name is the argument text with its quotes removed.
		i := strings.Index(d.doc.Slice(arg.Start, arg.End), name)
		if i < 0 {
			continue
		}
		d.defs[name] = &definition{
			call:  m,
			start: arg.Start + i,
			end:   arg.Start + i + len(name),
			doc:   formatComment(d.commentAbove(m.Start)),
		}
	}

	// m4 only expands a macro once it is defined.
	for _, m := range d.calls {
		def, ok := d.defs[m.Name]
		if !ok || m.Start >= def.call.Start {
			continue
		}
		line, _ := d.doc.Position(def.start)
		d.problems = append(d.problems, problem{
			start:    m.Start,
			end:      m.Start + len(m.Name),
			severity: 2,
			code:     "UsedBeforeDefinition",
			msg:      fmt.Sprintf("macro %q used before its definition on line %d", m.Name, line),
		})
	}
}

func isMacroName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isIdentStart(c) && (i == 0 || c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// line returns the text of the 0-indexed line without its line ending.
func (d *document) line(n int) string {
	s := d.doc.Slice(d.doc.LineStart(n+1), d.doc.LineStart(n+2))
	return strings.TrimRight(s, "\r\n")
}

// commentAbove returns the block of comment lines directly above the line
// containing offset.
func (d *document) commentAbove(offset int) string {
	l, _ := d.doc.UTF16Position(offset)
	first := l
	for first > 0 && isCommentLine(d.line(first-1)) {
		first--
	}
	var b strings.Builder
	for n := first; n < l; n++ {
		b.WriteString(d.line(n))
		b.WriteString("\n")
	}
	return b.String()
}

// isCommentLine reports whether line is a shell comment or a dnl line.
func isCommentLine(line string) bool {
	_, ok := commentText(line)
	return ok
}

// commentText returns the text of a comment line with its marker removed.
func commentText(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(s, "#"); ok {
		return rest, true
	}
	for _, marker := range []string{"dnl", "m4_dnl"} {
		if rest, ok := strings.CutPrefix(s, marker); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			return rest, true
		}
	}
	return "", false
}

// span converts the byte range [start, end) to editor coordinates.
func (d *document) span(start, end int) span {
	sl, sc := d.doc.UTF16Position(start)
	el, ec := d.doc.UTF16Position(end)
	return span{sl, sc, el, ec}
}

// symbolAt returns the macro name at a position: either a call or the name
// in a definition.
func (d *document) symbolAt(line, char int) (string, span, bool) {
	off := d.doc.Offset(line, char)
	for name, def := range d.defs {
		if off >= def.start && off < def.end {
			return name, d.span(def.start, def.end), true
		}
	}
	for _, m := range d.calls {
		if end := m.Start + len(m.Name); off >= m.Start && off < end {
			return m.Name, d.span(m.Start, end), true
		}
	}
	return "", span{}, false
}

func (d *document) references(name string, includeDecl bool) []span {
	var refs []span
	def := d.defs[name]
	declared := false
	for _, m := range d.calls {
		if includeDecl && !declared && def != nil && def.call.Start < m.Start {
			refs = append(refs, d.span(def.start, def.end))
			declared = true
		}
		if m.Name == name {
			refs = append(refs, d.span(m.Start, m.Start+len(m.Name)))
		}
	}
	if includeDecl && !declared && def != nil {
		refs = append(refs, d.span(def.start, def.end))
	}
	return refs
}

// symbols returns the outline below e as document symbols.
func (d *document) symbols(e *autoconf.Element) []documentSymbol {
	var syms []documentSymbol
	for _, c := range e.Outline() {
		sym := documentSymbol{
			Name:     c.Label(),
			Detail:   c.Kind.String(),
			Kind:     symbolNamespace,
			Range:    d.span(c.Start, c.End).toLSP(),
			Children: d.symbols(c),
		}
		sel := d.span(c.Start, min(c.Start+len(c.Name), c.End))
		switch c.Kind {
		case autoconf.KindMacro:
			sym.Kind = symbolFunction
			if def := d.defs[strings.TrimSpace(c.Var)]; def != nil && def.call == c {
				sym.Detail = "defines " + strings.TrimSpace(c.Var)
			}
		case autoconf.KindCaseCondition:
			sym.Kind = symbolEnumMember
			sel = d.span(c.Start, c.End)
		}
		if sym.Name == "" {
			sym.Name = c.Kind.String()
		}
		sym.SelectionRange = sel.toLSP()
		syms = append(syms, sym)
	}
	return syms
}

// foldingRanges returns a range for every element and comment block that
// spans more than one line.
func (d *document) foldingRanges() []foldingRange {
	var ranges []foldingRange
	for e := range d.root.All() {
		if e.Kind == autoconf.KindRoot || e.Kind == autoconf.KindMacroArgument {
			continue
		}
		start, _ := d.doc.UTF16Position(e.Start)
		end, _ := d.doc.UTF16Position(e.End)
		if end > start {
			ranges = append(ranges, foldingRange{StartLine: start, EndLine: end})
		}
	}
	for n := 0; n < d.doc.Lines(); {
		first := n
		for n < d.doc.Lines() && d.isComment(n) {
			n++
		}
		if n-first > 1 {
			ranges = append(ranges, foldingRange{StartLine: first, EndLine: n - 1, Kind: "comment"})
		}
		if n == first {
			n++
		}
	}
	slices.SortStableFunc(ranges, func(a, b foldingRange) int { return a.StartLine - b.StartLine })
	return ranges
}

// isComment reports whether the 0-indexed line is a comment line outside
// of any macro argument. Inside a quoted argument "#" is plain text.
func (d *document) isComment(n int) bool {
	line := d.line(n)
	if !isCommentLine(line) {
		return false
	}
	indent := len(line) - len(strings.TrimLeft(line, " \t"))
	e := d.root.Find(d.doc.LineStart(n+1) + indent)
	return e == nil || e.Kind != autoconf.KindMacroArgument
}

// Semantic token types, in the order of the legend sent at initialization.
const (
	tokComment   = 0
	tokKeyword   = 1
	tokFunction  = 2
	tokVariable  = 3 // $name and ${name}
	tokParameter = 4 // $1, $@, $# and the like
)

type semToken struct {
	line, start, length, typ int
}

// token returns the semantic token for [start, end), which lies on a
// single line.
func (d *document) token(start, end, typ int) semToken {
	s := d.span(start, end)
	return semToken{s.startLine, s.startChar, s.endChar - s.startChar, typ}
}

func (d *document) semanticTokens() []uint32 {
	var tokens []semToken

	comments := make(map[int]bool)
	for n := range d.doc.Lines() {
		if d.isComment(n) {
			comments[n] = true
			line := d.line(n)
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			start := d.doc.LineStart(n+1) + indent
			tokens = append(tokens, d.token(start, start+len(line)-indent, tokComment))
		}
	}

	for e := range d.root.All() {
		switch {
		case e.Kind == autoconf.KindMacro:
			tokens = append(tokens, d.token(e.Start, e.Start+len(e.Name), tokFunction))
		case e.Kind.IsConstruct() && e.Kind != autoconf.KindCaseCondition:
			tokens = append(tokens, d.token(e.Start, e.Start+len(e.Name), tokKeyword))
		}
	}
	for _, def := range d.defs {
		tokens = append(tokens, d.token(def.start, def.end, tokFunction))
	}

	for n := range d.doc.Lines() {
		if !comments[n] {
			tokens = append(tokens, scanVariables(n, d.line(n))...)
		}
	}

	slices.SortFunc(tokens, func(a, b semToken) int {
		if a.line != b.line {
			return a.line - b.line
		}
		return a.start - b.start
	})

	if len(tokens) == 0 {
		return nil
	}
	data := make([]uint32, 0, len(tokens)*5)
	prevLine, prevChar, prevEnd := 0, 0, 0
	for i, t := range tokens {
		if t.length <= 0 {
			continue
		}
		if i > 0 && t.line == prevLine && t.start < prevEnd {
			continue // overlaps the previous token
		}
		deltaLine := t.line - prevLine
		deltaChar := t.start
		if deltaLine == 0 {
			deltaChar = t.start - prevChar
		}
		data = append(data, uint32(deltaLine), uint32(deltaChar), uint32(t.length), uint32(t.typ), 0)
		prevLine, prevChar, prevEnd = t.line, t.start, t.start+t.length
	}
	return data
}

// scanVariables finds shell variable expansions in a line: $name, ${name}
// and the special parameters $0 to $9, $@, $*, $# and $?.
func scanVariables(lineNum int, line string) []semToken {
	var tokens []semToken
	i := 0
	for i < len(line) {
		if line[i] != '$' {
			i++
			continue
		}
		b := i
		start := autoconf.UTF16Len(line[:i])
		i++
		if i >= len(line) {
			break
		}
		switch c := line[i]; {
		case c == '{':
			i++
			nameStart := i
			for i < len(line) && line[i] != '}' {
				i++
			}
			if i < len(line) && i > nameStart {
				tokens = append(tokens, semToken{lineNum, start, autoconf.UTF16Len(line[b : i+1]), tokVariable})
			}
			i++ // skip }
		case isIdentStart(c):
			for i < len(line) && isIdentContinue(line[i]) {
				i++
			}
			tokens = append(tokens, semToken{lineNum, start, autoconf.UTF16Len(line[b:i]), tokVariable})
		case c >= '0' && c <= '9', strings.IndexByte("@*#?", c) >= 0:
			i++
			tokens = append(tokens, semToken{lineNum, start, 2, tokParameter})
		}
	}
	return tokens
}

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentContinue(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// Helpers

// formatComment turns a block of comment lines into hover text.
func formatComment(comment string) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSuffix(comment, "\n"), "\n") {
		text, _ := commentText(line)
		lines = append(lines, strings.TrimSpace(text))
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
