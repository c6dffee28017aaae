package autoconf

import "strings"

type lexMode int

const (
	shellMode lexMode = iota
	macroMode
	heredocMode // words, parentheses and commas only; no quotes or keywords
)

// Tokenizer splits a Document into tokens.
//
// It starts in shell mode. The parser switches it into macro mode for
// macro arguments; the switch takes effect at the next token boundary.
// Lexical errors are reported to the sink and never stop the tokenizer.
type Tokenizer struct {
	doc  *Document
	sink ErrorSink
	pos  int
	mode lexMode

	pushed    Token
	hasPushed bool

	quoteOpen, quoteClose    string
	commentStart, commentEnd string
}

// NewTokenizer returns a Tokenizer reading doc in shell mode.
// The sink may be nil.
func NewTokenizer(doc *Document, sink ErrorSink) *Tokenizer {
	if doc == nil {
		panic("autoconf: nil Document")
	}
	return &Tokenizer{
		doc:          doc,
		sink:         sink,
		quoteOpen:    "`",
		quoteClose:   "'",
		commentStart: "#",
		commentEnd:   "\n",
	}
}

// SetMacroContext selects macro mode (true) or shell mode (false).
func (t *Tokenizer) SetMacroContext(on bool) {
	if on {
		t.mode = macroMode
	} else {
		t.mode = shellMode
	}
}

// MacroContext reports whether the tokenizer is in macro mode.
func (t *Tokenizer) MacroContext() bool { return t.mode == macroMode }

// SetMacroQuote sets the macro-mode quote delimiters.
// An empty open delimiter disables quoting.
func (t *Tokenizer) SetMacroQuote(open, close string) {
	t.quoteOpen, t.quoteClose = open, close
	if close == "" {
		t.quoteClose = open
	}
}

// MacroQuote returns the macro-mode quote delimiters.
func (t *Tokenizer) MacroQuote() (open, close string) {
	return t.quoteOpen, t.quoteClose
}

// SetMacroComment sets the macro-mode comment delimiters.
// An end delimiter of "\n" (or "") makes comments run to the end of the line.
// An empty start delimiter disables comments.
func (t *Tokenizer) SetMacroComment(start, end string) {
	t.commentStart, t.commentEnd = start, end
}

// Read returns the next token. At the end of input it returns a zero-length
// TokenEOF, however many times it is called.
func (t *Tokenizer) Read() Token {
	if t.hasPushed {
		t.hasPushed = false
		return t.pushed
	}
	switch t.mode {
	case macroMode:
		return t.macroToken()
	case heredocMode:
		return t.heredocToken()
	}
	return t.shellToken()
}

// Unread pushes tok back so that the next Read returns it unchanged.
// Only one token may be pushed back at a time.
func (t *Tokenizer) Unread(tok Token) {
	if t.hasPushed {
		panic("autoconf: Unread called twice without Read")
	}
	t.pushed, t.hasPushed = tok, true
}

// skipTo moves the read position to off, dropping nothing pushed back.
func (t *Tokenizer) skipTo(off int) {
	if t.hasPushed {
		panic("autoconf: skipTo with a pushed-back token")
	}
	t.pos = max(t.pos, min(off, len(t.doc.text)))
}

// skipLine discards the rest of the current line, leaving the newline.
func (t *Tokenizer) skipLine() {
	t.skipTo(t.doc.lineEnd(t.pos))
}

func (t *Tokenizer) setMode(m lexMode) lexMode {
	prev := t.mode
	t.mode = m
	return prev
}

func (t *Tokenizer) token(kind TokenKind, start, end int, text string) Token {
	t.pos = end
	return Token{Kind: kind, Offset: start, Len: end - start, Text: text, doc: t.doc}
}

func (t *Tokenizer) span(kind TokenKind, start, end int) Token {
	return t.token(kind, start, end, t.doc.text[start:end])
}

func (t *Tokenizer) eof() Token {
	n := len(t.doc.text)
	return Token{Kind: TokenEOF, Offset: n, doc: t.doc}
}

func (t *Tokenizer) error(key string, start, end int, args ...any) {
	if t.sink != nil {
		t.sink.OnError(newError(t.doc, key, start, end, SeverityError, args...))
	}
}

// recoverEnd returns the end of the line holding start, before any "\r".
func (t *Tokenizer) recoverEnd(start int) int {
	end := t.doc.lineEnd(start)
	if end > start && t.doc.text[end-1] == '\r' {
		end--
	}
	return end
}

func (t *Tokenizer) eol(start int) (Token, bool) {
	text := t.doc.text
	switch {
	case text[start] == '\n':
		return t.span(TokenEOL, start, start+1), true
	case text[start] == '\r' && start+1 < len(text) && text[start+1] == '\n':
		return t.span(TokenEOL, start, start+2), true
	}
	return Token{}, false
}

// skipBlanks skips spaces and tabs, and in shell mode backslash-newline pairs.
func (t *Tokenizer) skipBlanks(continuation bool) {
	text := t.doc.text
	for t.pos < len(text) {
		switch c := text[t.pos]; {
		case c == ' ' || c == '\t' || c == '\f' || c == '\v':
			t.pos++
		case c == '\r' && !strings.HasPrefix(text[t.pos:], "\r\n"):
			t.pos++
		case continuation && strings.HasPrefix(text[t.pos:], "\\\n"):
			t.pos += 2
		case continuation && strings.HasPrefix(text[t.pos:], "\\\r\n"):
			t.pos += 3
		default:
			return
		}
	}
}

// Shell mode.

func (t *Tokenizer) shellToken() Token {
	text := t.doc.text
	for {
		t.skipBlanks(true)
		if t.pos >= len(text) {
			return t.eof()
		}
		if text[t.pos] == '#' && t.wordStart(t.pos) {
			t.pos = t.recoverEnd(t.pos)
			continue
		}
		break
	}

	start := t.pos
	if tok, ok := t.eol(start); ok {
		return tok
	}
	rest := text[start:]
	switch c := text[start]; {
	case c == '(':
		return t.span(TokenLParen, start, start+1)
	case c == ')':
		return t.span(TokenRParen, start, start+1)
	case c == ',':
		return t.span(TokenComma, start, start+1)
	case c == ';':
		if strings.HasPrefix(rest, ";;") {
			return t.span(TokenCaseEnd, start, start+2)
		}
		return t.span(TokenSemi, start, start+1)
	case c == '$':
		return t.span(TokenDollar, start, start+1)
	case c == '\'' || c == '"':
		return t.shellString(start, c)
	case c == '`':
		return t.backquote(start)
	case strings.HasPrefix(rest, "<<<"):
		return t.span(TokenText, start, start+3)
	case strings.HasPrefix(rest, "<<-"):
		return t.span(TokenHereDash, start, start+3)
	case strings.HasPrefix(rest, "<<"):
		return t.span(TokenHere, start, start+2)
	case strings.HasPrefix(rest, "||"), strings.HasPrefix(rest, "&&"), strings.HasPrefix(rest, "|&"):
		return t.span(TokenText, start, start+2)
	case c == '|' || c == '&':
		return t.span(TokenText, start, start+1)
	case isIdentStart(c):
		end := t.identEnd(start)
		tok := t.span(TokenWord, start, end)
		if kw, ok := keywords[tok.Text]; ok && t.delimitedBefore(start) && t.delimitedAfter(end) {
			tok.Kind = kw
		}
		return tok
	}
	return t.span(TokenText, start, t.shellRunEnd(start))
}

// wordStart reports whether a "#" at i begins a comment.
func (t *Tokenizer) wordStart(i int) bool {
	return i == 0 || strings.IndexByte(" \t\n\r;()|&", t.doc.text[i-1]) >= 0
}

func (t *Tokenizer) delimitedBefore(i int) bool {
	return i == 0 || strings.IndexByte(" \t\n\r;()|&<>`$", t.doc.text[i-1]) >= 0
}

func (t *Tokenizer) delimitedAfter(i int) bool {
	return i == len(t.doc.text) || strings.IndexByte(" \t\n\r;()|&<>`", t.doc.text[i]) >= 0
}

func (t *Tokenizer) identEnd(i int) int {
	text := t.doc.text
	for i < len(text) && isIdentContinue(text[i]) {
		i++
	}
	return i
}

func (t *Tokenizer) shellRunEnd(start int) int {
	text := t.doc.text
	i := start
	for i < len(text) {
		c := text[i]
		if i > start && (strings.IndexByte(" \t\n\r();,$'\"`<|&", c) >= 0 || isIdentStart(c)) {
			break
		}
		if c == '\\' && i+1 < len(text) {
			if text[i+1] == '\n' || text[i+1] == '\r' {
				if i == start {
					i++
				}
				break
			}
			i += 2
			continue
		}
		i++
	}
	return i
}

func (t *Tokenizer) shellString(start int, quote byte) Token {
	text := t.doc.text
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			if quote == '"' {
				i++
			}
		case quote:
			return t.token(TokenString, start, i+1, text[start+1:i])
		}
	}
	end := t.recoverEnd(start)
	t.error(UnterminatedString, start, end)
	return t.token(TokenString, start, end, text[start+1:end])
}

func (t *Tokenizer) backquote(start int) Token {
	text := t.doc.text
	end, stop := -1, -1
	for i := start + 1; i < len(text); i++ {
		if text[i] == '\\' {
			i++
			continue
		}
		if text[i] == '`' {
			stop, end = i, i+1
			break
		}
	}
	if end < 0 {
		end = t.recoverEnd(start)
		stop = end
		t.error(UnterminatedString, start, end)
	}
	body := text[start+1 : stop]
	if t.quoteOpen != "" && t.quoteOpen != "`" {
		for _, q := range []string{t.quoteOpen, t.quoteClose} {
			if strings.Contains(body, q) {
				t.error(MacroQuoteInBacktick, start, end, q)
				break
			}
		}
	}
	return t.token(TokenBackquote, start, end, body)
}

// Macro mode.

func (t *Tokenizer) macroToken() Token {
	text := t.doc.text
	t.skipBlanks(false)
	if t.pos >= len(text) {
		return t.eof()
	}
	start := t.pos
	rest := text[start:]
	if t.quoteOpen != "" && strings.HasPrefix(rest, t.quoteOpen) {
		return t.quoted(start)
	}
	if t.commentStart != "" && strings.HasPrefix(rest, t.commentStart) {
		return t.comment(start)
	}
	if tok, ok := t.eol(start); ok {
		return tok
	}
	switch c := text[start]; {
	case c == '(':
		return t.span(TokenLParen, start, start+1)
	case c == ')':
		return t.span(TokenRParen, start, start+1)
	case c == ',':
		return t.span(TokenComma, start, start+1)
	case c == '$':
		return t.span(TokenText, start, start+1)
	case isDigit(c):
		end := start
		for end < len(text) && isDigit(text[end]) {
			end++
		}
		return t.span(TokenText, start, end)
	case isIdentStart(c):
		return t.span(TokenWord, start, t.identEnd(start))
	}
	end := start + 1
	for end < len(text) {
		c := text[end]
		if strings.IndexByte(" \t\n\r(),$", c) >= 0 || isIdentContinue(c) {
			break
		}
		if t.quoteOpen != "" && strings.HasPrefix(text[end:], t.quoteOpen) {
			break
		}
		if t.commentStart != "" && strings.HasPrefix(text[end:], t.commentStart) {
			break
		}
		end++
	}
	return t.span(TokenText, start, end)
}

// quoted scans a nested macro quote starting at start.
// Only the outermost pair is removed from the token text.
func (t *Tokenizer) quoted(start int) Token {
	text := t.doc.text
	open, close := t.quoteOpen, t.quoteClose
	depth := 1
	i := start + len(open)
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], close):
			depth--
			if depth == 0 {
				return t.token(TokenString, start, i+len(close), text[start+len(open):i])
			}
			i += len(close)
		case strings.HasPrefix(text[i:], open):
			depth++
			i += len(open)
		default:
			i++
		}
	}
	end := max(t.recoverEnd(start), start+len(open))
	t.error(UnterminatedQuote, start, end)
	return t.token(TokenString, start, end, text[start+len(open):end])
}

func (t *Tokenizer) comment(start int) Token {
	text := t.doc.text
	if t.commentEnd == "" || t.commentEnd == "\n" {
		return t.span(TokenComment, start, t.recoverEnd(start))
	}
	from := start + len(t.commentStart)
	if i := strings.Index(text[from:], t.commentEnd); i >= 0 {
		return t.span(TokenComment, start, from+i+len(t.commentEnd))
	}
	end := max(t.recoverEnd(start), from)
	t.error(UnterminatedComment, start, end)
	return t.span(TokenComment, start, end)
}

// Heredoc mode.

func (t *Tokenizer) heredocToken() Token {
	text := t.doc.text
	t.skipBlanks(false)
	if t.pos >= len(text) {
		return t.eof()
	}
	start := t.pos
	if tok, ok := t.eol(start); ok {
		return tok
	}
	switch c := text[start]; {
	case c == '(':
		return t.span(TokenLParen, start, start+1)
	case c == ')':
		return t.span(TokenRParen, start, start+1)
	case c == ',':
		return t.span(TokenComma, start, start+1)
	case isIdentStart(c):
		return t.span(TokenWord, start, t.identEnd(start))
	}
	end := start + 1
	for end < len(text) && strings.IndexByte(" \t\n\r(),", text[end]) < 0 && !isIdentStart(text[end]) {
		end++
	}
	return t.span(TokenText, start, end)
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentContinue(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
