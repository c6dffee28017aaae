// Package autoconf parses autoconf-style scripts into an element tree.
//
// An autoconf script is POSIX shell text with m4 macro calls mixed in:
//
//	AC_INIT([hello], [1.0])
//	if test "x$enable_foo" = xyes; then
//		AC_DEFINE([HAVE_FOO], [1], [Define if foo is enabled.])
//	fi
//	AC_OUTPUT
//
// The parser does not expand macros or interpret shell. It finds macro calls
// and shell control constructs and records where they are, so that tools can
// build outlines, navigate between calls and report structural mistakes.
//
// # Syntax
//
// The recognized structure in EBNF:
//
//	script    = { statement } .
//	statement = macro | construct | heredoc | text .
//	macro     = word "(" [ argument { "," argument } ] ")" .
//	argument  = { quoted | macro | text | "(" argument ")" } .
//	construct = if | while | until | for | select | case .
//	if        = "if" list "then" list { "elif" list "then" list } [ "else" list ] "fi" .
//	while     = "while" list "do" list "done" .
//	until     = "until" list "do" list "done" .
//	for       = "for" ( name [ "in" text ] | "((" text "))" ) sep "do" list "done" .
//	select    = "select" name [ "in" text ] sep "do" list "done" .
//	case      = "case" text "in" { pattern ")" list ";;" } "esac" .
//	heredoc   = ( "<<" | "<<-" ) marker newline { line } marker newline .
//
// A macro name must be followed immediately by "(" for the call to have
// arguments. Words that are not followed by "(" are plain text.
//
// # Lexical modes
//
// Shell text and macro arguments follow different rules. In shell text,
// quotes are shell quotes, "#" starts a comment and reserved words
// (if, then, fi, ...) are keywords. Inside macro arguments, the m4 quote pair
// (by default "[" and "]") nests and is removed one level at a time, "#"
// comments are kept, and there are no keywords:
//
//	AC_MSG_CHECKING([whether [nested] quotes work])
//
// yields a single argument "whether [nested] quotes work".
//
// The quote and comment delimiters can be changed from within the script
// with changequote and changecom, exactly as m4 does. The dnl builtin
// discards the rest of its line.
//
// # Guards and heredocs
//
// A reserved word immediately after "$" is a variable name, not a keyword:
//
//	if [ $if == 3 ] ; then $for; fi
//
// contains a single if construct. Here-documents are opaque apart from macro
// calls, so keywords inside them do not open constructs:
//
//	cat <<EOF
//	while true; do
//	AM_INIT_AUTOMAKE([confusion], [$2], EOF)
//	done
//	EOF
//
// # Errors
//
// Parsing never fails. Malformed input is reported to an [ErrorSink] as
// [ParseError] values and the parser recovers, producing the most complete
// tree it can. Every element satisfies the tree invariants: children lie
// inside their parent and siblings are ordered without overlap.
package autoconf

import (
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Document is the text being parsed. It is never modified by this package.
type Document struct {
	text  string
	lines []int // offsets of line starts
}

// NewDocument returns a Document holding text.
func NewDocument(text string) *Document {
	d := &Document{text: text, lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			d.lines = append(d.lines, i+1)
		}
	}
	return d
}

// Text returns the whole text of the document.
func (d *Document) Text() string { return d.text }

// Len returns the length of the document in bytes.
func (d *Document) Len() int { return len(d.text) }

// Slice returns the text between start and end, clamped to the document.
func (d *Document) Slice(start, end int) string {
	start = max(0, min(start, len(d.text)))
	end = max(start, min(end, len(d.text)))
	return d.text[start:end]
}

// Position returns the 1-indexed line and the 0-indexed byte column of offset.
func (d *Document) Position(offset int) (line, col int) {
	offset = max(0, min(offset, len(d.text)))
	i := sort.Search(len(d.lines), func(i int) bool { return d.lines[i] > offset }) - 1
	return i + 1, offset - d.lines[i]
}

// LineStart returns the offset of the first byte of the 1-indexed line.
func (d *Document) LineStart(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(d.lines) {
		return len(d.text)
	}
	return d.lines[line-1]
}

// Lines returns the number of lines in the document.
func (d *Document) Lines() int { return len(d.lines) }

// UTF16Position returns the 0-indexed line and UTF-16 column of offset,
// as used by editors speaking the language server protocol.
func (d *Document) UTF16Position(offset int) (line, char int) {
	l, col := d.Position(offset)
	start := d.lines[l-1]
	return l - 1, UTF16Len(d.text[start : start+col])
}

// Offset converts a 0-indexed line and UTF-16 column back to a byte offset.
func (d *Document) Offset(line, char int) int {
	if line < 0 {
		return 0
	}
	if line >= len(d.lines) {
		return len(d.text)
	}
	off := d.lines[line]
	for n := 0; n < char && off < len(d.text) && d.text[off] != '\n'; {
		r, size := utf8.DecodeRuneInString(d.text[off:])
		n += utf16.RuneLen(r)
		off += size
	}
	return off
}

// lineEnd returns the offset of the newline ending the line containing
// offset, or the document length.
func (d *Document) lineEnd(offset int) int {
	if i := strings.IndexByte(d.text[offset:], '\n'); i >= 0 {
		return offset + i
	}
	return len(d.text)
}

// UTF16Len returns the number of UTF-16 code units needed to encode s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
