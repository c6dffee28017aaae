package autoconf

import (
	"errors"
	"slices"
	"strings"
)

// Quotes is a pair of macro quote delimiters.
type Quotes struct {
	Open, Close string
}

var (
	// AutoconfQuotes are the quotes autoconf installs before reading a script.
	AutoconfQuotes = Quotes{"[", "]"}

	// M4Quotes are the default quotes of m4.
	M4Quotes = Quotes{"`", "'"}
)

// Parser builds element trees from documents.
//
// A Parser holds no state between calls to Parse; each call reads the
// document with a fresh Tokenizer. The collaborators only observe the parse:
// supplying or omitting them never changes the shape of the tree.
type Parser struct {
	// Quotes is the macro quote pair in effect at the start of a document.
	// The zero value disables quoting; NewParser sets AutoconfQuotes.
	Quotes Quotes

	sink      ErrorSink
	detector  MacroDetector
	validator MacroValidator
}

// NewParser returns a Parser reporting to sink, classifying macro calls with
// detector and passing completed calls to validator. Any of them may be nil.
func NewParser(sink ErrorSink, detector MacroDetector, validator MacroValidator) *Parser {
	return &Parser{
		Quotes:    AutoconfQuotes,
		sink:      sink,
		detector:  detector,
		validator: validator,
	}
}

// Parse parses doc and returns the root element, which spans the whole
// document. It never fails; problems are reported to the ErrorSink.
// Parse panics if doc is nil.
func (p *Parser) Parse(doc *Document) *Element {
	if doc == nil {
		panic("autoconf: nil Document")
	}
	s := &state{Parser: p, doc: doc, tok: NewTokenizer(doc, p.sink)}
	s.tok.SetMacroQuote(p.Quotes.Open, p.Quotes.Close)
	root := newElement(KindRoot, doc, 0)
	root.End = doc.Len()
	s.statements(root)
	s.validate()
	return root
}

// Parse parses text with autoconf quotes and returns the tree along with
// the errors found.
func Parse(text string) (*Element, ErrorList) {
	var errs ErrorList
	root := NewParser(&errs, nil, nil).Parse(NewDocument(text))
	return root, errs
}

// state is the per-document state of a parse.
type state struct {
	*Parser
	doc *Document
	tok *Tokenizer

	// frames holds the terminators each active statement list stops at,
	// innermost last.
	frames [][]TokenKind

	pending []*Element // macro calls awaiting validation, in pre-order
	depth   int        // macro call nesting
}

func (s *state) error(key string, start, end int, args ...any) {
	if s.sink != nil {
		s.sink.OnError(newError(s.doc, key, start, end, SeverityError, args...))
	}
}

func (s *state) errorAt(key string, tok Token, args ...any) {
	s.error(key, tok.Offset, tok.End(), args...)
}

var strayKeys = map[TokenKind]string{
	TokenThen:    InvalidThen,
	TokenDo:      InvalidDo,
	TokenElif:    InvalidElif,
	TokenElse:    InvalidElse,
	TokenFi:      InvalidFi,
	TokenDone:    InvalidDone,
	TokenEsac:    InvalidEsac,
	TokenCaseEnd: ImproperCaseCondition,
}

func isTerminator(k TokenKind) bool {
	_, ok := strayKeys[k]
	return ok
}

func isOpener(k TokenKind) bool {
	switch k {
	case TokenIf, TokenWhile, TokenUntil, TokenFor, TokenSelect, TokenCase:
		return true
	}
	return false
}

// isSeparator reports whether a text token ends a command, so that a
// keyword may follow it.
func isSeparator(text string) bool {
	switch text {
	case "|", "||", "&", "&&", "|&", "!", "{", "}":
		return true
	}
	return false
}

// guarded reports whether tok directly follows a "$", which makes it a
// variable name.
func guarded(prev, tok Token) bool {
	if prev.Len == 0 || prev.End() != tok.Offset {
		return false
	}
	return (prev.Kind == TokenDollar || prev.Kind == TokenText) && strings.HasSuffix(prev.Text, "$")
}

// isCall reports whether tok is a word immediately followed by "(".
func (s *state) isCall(tok Token) bool {
	end := tok.End()
	return tok.Kind == TokenWord && end < len(s.doc.text) && s.doc.text[end] == '('
}

// enclosed reports whether an active statement list stops at k.
func (s *state) enclosed(k TokenKind) bool {
	for _, f := range s.frames {
		if slices.Contains(f, k) {
			return true
		}
	}
	return false
}

// statements adds the macro calls and constructs found in a statement list
// to parent. It stops at EOF and at any terminator that this list or an
// enclosing one stops at, leaving that token unread, and returns it.
// Terminators nobody waits for are reported and dropped.
func (s *state) statements(parent *Element, stops ...TokenKind) Token {
	s.frames = append(s.frames, stops)
	defer func() { s.frames = s.frames[:len(s.frames)-1] }()

	atStart := true
	var prev Token
	for {
		tok := s.tok.Read()
		if tok.Kind.IsKeyword() && guarded(prev, tok) {
			tok.Kind = TokenWord
		}
		switch k := tok.Kind; {
		case k == TokenEOF:
			s.tok.Unread(tok)
			return tok
		case k == TokenEOL, k == TokenSemi, k == TokenLParen:
			atStart = true
		case k == TokenWord:
			if s.word(parent, tok, prev) {
				tok = Token{}
			}
			atStart = false
		case k == TokenHere, k == TokenHereDash:
			s.heredoc(parent, tok)
		case isOpener(k):
			if !atStart {
				s.errorAt(InvalidTermination, tok, tok.Text)
			}
			// An unterminated construct was cut short by a terminator that
			// belongs to an enclosing list; that terminator is next.
			atStart = !s.construct(parent, tok)
			tok = Token{}
		case isTerminator(k):
			if s.enclosed(k) {
				if !atStart && k != TokenCaseEnd {
					s.errorAt(InvalidTermination, tok, tok.Text)
				}
				s.tok.Unread(tok)
				return tok
			}
			s.errorAt(strayKeys[k], tok, tok.Text)
			atStart = true
		case k == TokenText:
			atStart = isSeparator(tok.Text)
		default:
			atStart = false
		}
		prev = tok
	}
}

// word handles a word in shell or here-document text: macro calls and the
// builtins that act on the input itself. It reports whether a call was parsed.
func (s *state) word(parent *Element, tok, prev Token) bool {
	if guarded(prev, tok) {
		return false
	}
	switch tok.Text {
	case "dnl", "m4_dnl":
		s.tok.skipLine()
		return false
	}
	if !s.isCall(tok) {
		s.builtin(tok.Text, nil)
		return false
	}
	s.macro(parent, tok)
	return true
}

// builtin applies the m4 builtins that reconfigure the tokenizer.
// Missing arguments take the GNU m4 defaults.
func (s *state) builtin(name string, args []string) {
	arg := func(i int, def string) string {
		if i < len(args) {
			return args[i]
		}
		return def
	}
	switch name {
	case "changequote", "m4_changequote":
		s.tok.SetMacroQuote(arg(0, M4Quotes.Open), arg(1, M4Quotes.Close))
	case "changecom", "m4_changecom":
		s.tok.SetMacroComment(arg(0, ""), arg(1, "\n"))
	}
}

func (s *state) element(parent *Element, kind Kind, kw Token) *Element {
	e := newElement(kind, s.doc, kw.Offset)
	e.Name = kw.Text
	e.End = kw.End()
	parent.add(e)
	return e
}

// construct parses the construct opened by kw and reports whether its
// terminator was found.
func (s *state) construct(parent *Element, kw Token) bool {
	switch kw.Kind {
	case TokenIf:
		return s.ifClause(parent, kw)
	case TokenCase:
		return s.caseClause(parent, kw)
	case TokenWhile:
		return s.loop(parent, KindWhile, kw)
	case TokenUntil:
		return s.loop(parent, KindUntil, kw)
	case TokenFor:
		return s.loop(parent, KindFor, kw)
	case TokenSelect:
		return s.loop(parent, KindSelect, kw)
	}
	return false
}

// endBefore returns where e ends when cut short by a token at off: off
// with preceding whitespace trimmed, but not before e's start or last child.
func (s *state) endBefore(e *Element, off int) int {
	low := e.Start
	if n := len(e.Children); n > 0 {
		low = max(low, e.Children[n-1].End)
	}
	end := off
	for end > low && strings.IndexByte(" \t\r\n", s.doc.text[end-1]) >= 0 {
		end--
	}
	return max(end, low)
}

// close ends e, and its open branch last, at tok.
func (s *state) close(e, last *Element, tok Token) {
	if tok.Kind == TokenEOF {
		last.End, e.End = s.doc.Len(), s.doc.Len()
		return
	}
	if last != e {
		last.End = s.endBefore(last, tok.Offset)
	}
	e.End = s.endBefore(e, tok.Offset)
}

func (s *state) unterminated(e, last *Element, tok Token) {
	s.error(UnterminatedConstruct, e.Start, e.Start+len(e.Name), e.Name)
	s.close(e, last, tok)
}

func conditionText(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, ";"))
}

// condition scans the condition after kw up to the specifier want, which it
// consumes, and records the condition text in e.Var. Closers end the scan
// early. It reports whether a specifier was found.
func (s *state) condition(e *Element, kw Token, want TokenKind, closers ...TokenKind) bool {
	tok := s.statements(e, append([]TokenKind{TokenThen, TokenDo}, closers...)...)
	e.Var = conditionText(s.doc.Slice(kw.End(), tok.Offset))
	if tok.Kind != TokenThen && tok.Kind != TokenDo {
		s.errorAt(MissingSpecifier, tok, want.String())
		return false
	}
	s.tok.Read()
	if e.Var == "" {
		s.errorAt(MissingCondition, kw, kw.Text)
	}
	if tok.Kind != want {
		if want == TokenThen {
			s.errorAt(InvalidSpecifier, tok, tok.Text)
		} else {
			s.errorAt(InvalidDo, tok, tok.Text)
		}
	}
	return true
}

// ifClause parses
//
//	if COND then BODY {elif COND then BODY} [else BODY] fi
//
// The first body belongs to the If element itself; each elif and else opens
// a branch element under it.
func (s *state) ifClause(parent *Element, kw Token) bool {
	e := s.element(parent, KindIf, kw)
	branch := e
	next := kw
	seenElse := false
	for {
		if next.Kind == TokenElse || s.condition(branch, next, TokenThen, TokenElif, TokenElse, TokenFi) {
			s.statements(branch, TokenElif, TokenElse, TokenFi)
		}
		tok := s.tok.Read()
		switch tok.Kind {
		case TokenElif, TokenElse:
			if seenElse {
				s.errorAt(strayKeys[tok.Kind], tok, tok.Text)
			}
			seenElse = seenElse || tok.Kind == TokenElse
			if branch != e {
				branch.End = s.endBefore(branch, tok.Offset)
			}
			kind := KindElif
			if tok.Kind == TokenElse {
				kind = KindElse
			}
			branch = s.element(e, kind, tok)
			next = tok
		case TokenFi:
			if branch != e {
				branch.End = s.endBefore(branch, tok.Offset)
			}
			e.End = tok.End()
			return true
		default:
			s.tok.Unread(tok)
			s.unterminated(e, branch, tok)
			return false
		}
	}
}

// loop parses while, until, for and select:
//
//	KEYWORD COND do BODY done
//
// A for loop may use the arithmetic form for (( ... )).
func (s *state) loop(parent *Element, kind Kind, kw Token) bool {
	e := s.element(parent, kind, kw)
	if kind == KindFor && strings.HasPrefix(strings.TrimLeft(s.doc.text[kw.End():], " \t"), "((") {
		s.arithmetic(e)
	}
	if s.condition(e, kw, TokenDo, TokenDone) {
		s.statements(e, TokenDone)
	}
	tok := s.tok.Read()
	if tok.Kind == TokenDone {
		e.End = tok.End()
		return true
	}
	s.tok.Unread(tok)
	s.unterminated(e, e, tok)
	return false
}

// arithmetic scans the (( ... )) clause of a for loop in macro mode, so
// that calls inside it are found. The clause ends at the end of its line;
// an unclosed one leaves the rest of the loop to the caller.
func (s *state) arithmetic(e *Element) {
	open := s.tok.Read()
	s.tok.Read()
	mode := s.tok.setMode(macroMode)
	defer s.tok.setMode(mode)

	depth := 2
	var prev Token
	for depth > 0 {
		tok := s.tok.Read()
		switch tok.Kind {
		case TokenEOF, TokenEOL:
			s.errorAt(UnmatchedLeftParenthesis, open)
			s.tok.Unread(tok)
			return
		case TokenText:
			// $# is the argument count, not a comment.
			if c := s.tok.commentStart; tok.Text == "$" && c != "" && strings.HasPrefix(s.doc.text[tok.End():], c) {
				s.tok.skipTo(tok.End() + len(c))
			}
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenWord:
			if !guarded(prev, tok) && s.isCall(tok) {
				s.macro(e, tok)
				prev = Token{}
				continue
			}
		}
		prev = tok
	}
}

// caseClause parses
//
//	case WORD in {PATTERN) BODY ;;} esac
func (s *state) caseClause(parent *Element, kw Token) bool {
	e := s.element(parent, KindCase, kw)
	subjectEnd := kw.End()
	broken := false // a newline ended the subject; only "in" may follow
	var prev Token
subject:
	for {
		tok := s.tok.Read()
		if tok.Kind.IsKeyword() && guarded(prev, tok) {
			tok.Kind = TokenWord
		}
		switch {
		case tok.Kind == TokenIn:
			break subject
		case tok.Kind == TokenEOL:
			broken = true
			continue
		case tok.Kind == TokenSemi:
			s.errorAt(InvalidIn, tok)
			break subject
		case broken || tok.Kind == TokenEOF || tok.Kind.IsKeyword():
			s.errorAt(InvalidIn, tok)
			s.tok.Unread(tok)
			break subject
		case tok.Kind == TokenWord && !guarded(prev, tok) && s.isCall(tok):
			m := s.macro(e, tok)
			subjectEnd = m.End
			prev = Token{}
			continue
		}
		subjectEnd = tok.End()
		prev = tok
	}
	e.Var = conditionText(s.doc.Slice(kw.End(), subjectEnd))

	for {
		tok := s.tok.Read()
		switch {
		case tok.Kind == TokenEOL, tok.Kind == TokenSemi:
			continue
		case tok.Kind == TokenEsac:
			e.End = tok.End()
			return true
		case tok.Kind == TokenEOF:
			s.errorAt(InvalidTermination, tok, "esac")
			s.close(e, e, tok)
			return false
		case isTerminator(tok.Kind) && s.enclosed(tok.Kind):
			s.tok.Unread(tok)
			s.unterminated(e, e, tok)
			return false
		}
		s.tok.Unread(tok)
		s.caseCondition(e)
	}
}

// caseCondition parses one PATTERN) BODY ;; item. Reserved words inside a
// pattern are plain text, except esac.
func (s *state) caseCondition(e *Element) {
	tok := s.tok.Read()
	c := newElement(KindCaseCondition, s.doc, tok.Offset)
	e.add(c)
	if tok.Kind == TokenLParen {
		tok = s.tok.Read()
	}
	from := tok.Offset
pattern:
	for ; ; tok = s.tok.Read() {
		switch tok.Kind {
		case TokenRParen:
			break pattern
		case TokenEOL, TokenSemi:
			s.errorAt(ImproperCaseCondition, tok)
			break pattern
		case TokenCaseEnd:
			s.errorAt(ImproperCaseCondition, tok)
			c.Name = conditionText(s.doc.Slice(from, tok.Offset))
			c.Var = c.Name
			c.End = tok.End()
			return
		case TokenEsac, TokenEOF:
			if tok.Kind == TokenEsac {
				s.errorAt(ImproperCaseCondition, tok)
			}
			c.Name = conditionText(s.doc.Slice(from, tok.Offset))
			c.Var = c.Name
			s.tok.Unread(tok)
			s.close(c, c, tok)
			return
		}
	}
	c.Name = conditionText(s.doc.Slice(from, tok.Offset))
	c.Var = c.Name
	c.End = tok.End()

	tok = s.statements(c, TokenCaseEnd, TokenEsac)
	if tok.Kind == TokenCaseEnd {
		s.tok.Read()
		c.End = tok.End()
		return
	}
	s.close(c, c, tok)
}

// heredoc skips a here-document body. Only macro calls are recognized in
// the body; it ends after the first line holding just the marker.
func (s *state) heredoc(parent *Element, op Token) {
	tag, end := s.marker(op.End())
	if tag == "" {
		s.errorAt(IncompleteInlineMarker, op)
		return
	}
	s.tok.skipTo(end)
	mode := s.tok.setMode(heredocMode)
	defer s.tok.setMode(mode)

	var prev Token
	for {
		tok := s.tok.Read()
		switch tok.Kind {
		case TokenEOF:
			s.error(UnterminatedInlineDocument, op.Offset, tok.Offset, tag)
			return
		case TokenEOL:
			if s.markerLine(tok.End(), tag, op.Kind == TokenHereDash) {
				s.tok.skipTo(s.tok.recoverEnd(tok.End()))
				return
			}
		case TokenWord:
			if s.word(parent, tok, prev) {
				prev = Token{}
				continue
			}
		}
		prev = tok
	}
}

// marker reads the here-document marker starting at i. It returns the
// marker with quoting removed and the offset just past it.
func (s *state) marker(i int) (string, int) {
	text := s.doc.text
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	var b strings.Builder
	for i < len(text) {
		switch c := text[i]; {
		case c == '\'' || c == '"':
			j := strings.IndexByte(text[i+1:], c)
			if j < 0 || strings.IndexByte(text[i+1:i+1+j], '\n') >= 0 {
				return b.String(), i
			}
			b.WriteString(text[i+1 : i+1+j])
			i += j + 2
		case c == '\\' && i+1 < len(text) && text[i+1] != '\n':
			b.WriteByte(text[i+1])
			i += 2
		case strings.IndexByte(" \t\r\n;|&<>()", c) >= 0:
			return b.String(), i
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

func (s *state) markerLine(start int, tag string, dash bool) bool {
	line := s.doc.Slice(start, s.tok.recoverEnd(start))
	if dash {
		line = strings.TrimLeft(line, "\t")
	}
	return line == tag
}

// argument accumulates the text of one macro argument.
type argument struct {
	e     *Element
	text  strings.Builder
	empty bool
}

func (s *state) newArgument() *argument {
	return &argument{e: newElement(KindMacroArgument, s.doc, 0), empty: true}
}

// add appends source text spanning [start, end). Tokens separated by
// whitespace are joined with a single space.
func (a *argument) add(start, end int, text string) {
	if a.empty {
		a.e.Start = start
		a.empty = false
	} else if start > a.e.End {
		a.text.WriteByte(' ')
	}
	a.text.WriteString(text)
	a.e.End = end
}

// finish closes the argument; an empty argument sits just before at.
func (a *argument) finish(m *Element, at int) {
	if a.empty {
		a.e.Start, a.e.End = at, at
	}
	a.e.Name = a.text.String()
	m.add(a.e)
}

// macro parses the call named by name, whose "(" is next in the input.
// Arguments are read in macro mode; unquoted parentheses nest.
func (s *state) macro(parent *Element, name Token) *Element {
	m := newElement(KindMacro, s.doc, name.Offset)
	m.Name = name.Text
	m.End = name.End()
	m.Known = s.detector != nil && s.detector.IsMacro(name.Text)
	parent.add(m)
	s.pending = append(s.pending, m)
	s.depth++
	defer func() {
		if s.depth--; s.depth == 0 {
			s.validate()
		}
	}()

	mode := s.tok.setMode(macroMode)
	open := s.tok.Read()
	if open.Kind != TokenLParen {
		// A quote or comment delimiter beginning with "(" took it.
		s.tok.Unread(open)
		s.tok.setMode(mode)
		return m
	}

	arg := s.newArgument()
	parens := 0
	var prev Token
args:
	for {
		tok := s.tok.Read()
		switch tok.Kind {
		case TokenEOF:
			s.errorAt(UnmatchedLeftParenthesis, open)
			if !arg.empty || len(m.Children) > 0 {
				arg.finish(m, tok.Offset)
			}
			m.End = s.doc.Len()
			break args
		case TokenEOL:
			continue
		case TokenComma:
			if parens == 0 {
				arg.finish(m, tok.Offset)
				arg = s.newArgument()
				continue
			}
		case TokenRParen:
			if parens == 0 {
				if !arg.empty || len(m.Children) > 0 {
					arg.finish(m, tok.Offset)
				}
				m.End = tok.End()
				break args
			}
			parens--
		case TokenLParen:
			parens++
		case TokenWord:
			if !guarded(prev, tok) && s.isCall(tok) {
				n := s.macro(arg.e, tok)
				arg.add(n.Start, n.End, n.Source())
				prev = Token{}
				continue
			}
		}
		arg.add(tok.Offset, tok.End(), tok.Text)
		prev = tok
	}
	s.tok.setMode(mode)

	args := m.Args()
	if len(args) > 0 {
		m.Var = args[0]
	}
	s.builtin(m.Name, args)
	return m
}

// validate passes the pending macro calls to the validator in the order
// they were found.
func (s *state) validate() {
	pending := s.pending
	s.pending = nil
	if s.validator == nil {
		return
	}
	for _, m := range pending {
		err := s.validator.ValidateMacro(m)
		if err == nil || s.sink == nil {
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			pe = newError(s.doc, InvalidMacro, m.Start, m.End, SeverityError, err)
			pe.Err = err
		}
		s.sink.OnError(pe)
	}
}
