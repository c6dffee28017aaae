// Package script decodes the line-based test scripts used by the golden
// tests of this module.
//
// A script is a sequence of expressions. Each expression has a command
// name (the first word) and a body (everything that follows):
//
//	parse
//		if true; then stmt fi
//	errors
//		1: invalid termination before "fi"
//	json /children/0/kind == "if"
//
// Multi-line bodies use tab-indented continuation lines; exactly one tab is
// stripped from each. Lines starting with # are comments and attach to the
// following expression. Blank lines produce expressions with empty names.
//
// The grammar in EBNF:
//
//	script       = { expression } .
//	expression   = { comment } ( command | blankline ) .
//	comment      = "#" text newline .
//	command      = name [ whitespace text ] newline { continuation } .
//	continuation = tab text newline .
//	blankline    = newline .
package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode"
)

// SyntaxError represents a syntax error in a script.
type SyntaxError struct {
	File    string // script name
	Line    int    // line number (1-indexed)
	Message string // error message without location prefix
	Err     error  // underlying error, if any
}

func (e *SyntaxError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Expression is a command with its continuation lines, preceded by zero or
// more comment lines.
type Expression struct {
	// File is the name of the script the expression was read from.
	File string

	// Line is the line number of the command or blank line (1-indexed),
	// not of the preceding comments.
	Line int

	// Comment holds the comment lines before the expression, each with
	// its leading '#' and trailing newline.
	Comment string

	// Name is the first word of the command line.
	Name string

	// Body is everything after the name, including continuation lines
	// without their leading tab.
	Body string
}

// Where returns the location of the expression as "file:line".
func (e Expression) Where() string {
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}

// Text returns the body with a leading newline removed. Multi-line bodies
// that start on the line after the name read naturally this way.
func (e Expression) Text() string {
	return strings.TrimPrefix(e.Body, "\n")
}

// ParseArgs splits the body into at most n whitespace-separated arguments.
func (e Expression) ParseArgs(n int) Args {
	return ParseArgs(e.Body, n)
}

func (e Expression) String() string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Body != "" && e.Body[0] != '\n' {
		b.WriteByte(' ')
	}
	body := strings.TrimSuffix(e.Body, "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\n\t"))
	b.WriteByte('\n')
	return b.String()
}

// Decoder reads expressions from an input stream.
type Decoder struct {
	name string
	r    *bufio.Reader
	line int // current line number (1-indexed)
}

// NewDecoder returns a Decoder reading the script called name from r.
func NewDecoder(name string, r io.Reader) *Decoder {
	return &Decoder{name: name, r: bufio.NewReader(r)}
}

// Decode reads the next expression. It returns io.EOF when the input is
// exhausted and a *SyntaxError when the input is malformed.
func (d *Decoder) Decode() (Expression, error) {
	var comments strings.Builder
	var body strings.Builder

	for {
		line, err := d.readLine()
		if err != nil && line == "" {
			if comments.Len()+body.Len() > 0 {
				// The next call returns the sticky err.
				c := comments.String()
				n := d.line
				if !strings.HasSuffix(c, "\n") {
					n--
				}
				return d.makeExpr(n, c, body.String()), nil
			}
			return Expression{}, err
		}

		switch line[0] {
		case '\n':
			return d.makeExpr(d.line, comments.String(), line), nil
		case '#':
			comments.WriteString(line)
			if err != nil && !errors.Is(err, io.EOF) {
				return Expression{}, err
			}
		case ' ', '\t':
			return Expression{}, &SyntaxError{
				File:    d.name,
				Line:    d.line,
				Message: "unexpected whitespace at start of line",
			}
		default:
			body.WriteString(line)
			start := d.line
			for {
				b, err := d.peek()
				if err != nil && !errors.Is(err, io.EOF) {
					return Expression{}, err
				}
				if b != '\t' {
					break
				}
				line, err := d.readLine()
				if err != nil && !errors.Is(err, io.EOF) {
					return Expression{}, err
				}
				body.WriteString(line[1:])
				if errors.Is(err, io.EOF) {
					break
				}
			}
			return d.makeExpr(start, comments.String(), body.String()), nil
		}
	}
}

// All returns an iterator over the remaining expressions. Iteration stops
// after the first error, which is yielded with a zero Expression.
func (d *Decoder) All() iter.Seq2[Expression, error] {
	return func(yield func(Expression, error) bool) {
		for {
			expr, err := d.Decode()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(expr, err) || err != nil {
				return
			}
		}
	}
}

func (d *Decoder) makeExpr(line int, comment, body string) Expression {
	name, tail := parseBody(body)
	return Expression{
		File:    d.name,
		Line:    line,
		Comment: comment,
		Name:    name,
		Body:    tail,
	}
}

// parseBody extracts the command name and tail from a body string.
func parseBody(body string) (name, tail string) {
	i := strings.IndexAny(body, " \t\n")
	if i < 0 {
		return strings.TrimSpace(body), ""
	}
	return strings.TrimSpace(body[:i]), strings.TrimLeft(body[i:], " \t")
}

func (d *Decoder) peek() (byte, error) {
	b, err := d.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) readLine() (string, error) {
	d.line++
	return d.r.ReadString('\n')
}

// cutField slices s around the first run of whitespace,
// returning the text before and after the run.
func cutField(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// ParseArgs splits s into at most n whitespace-separated arguments.
// The final argument holds any text left after the first n-1 splits.
// A negative n means no limit.
func ParseArgs(s string, n int) Args {
	if n == 0 {
		return nil
	}
	var args Args
	unlimited := n < 0
	for s != "" {
		if n == 1 && !unlimited {
			args = append(args, s)
			break
		}
		var arg string
		arg, s = cutField(s)
		args = append(args, arg)
		n--
	}
	return args
}

// ParseArgs3 splits s into three whitespace-separated arguments.
func ParseArgs3(s string) (a, b, c string) {
	args := ParseArgs(s, 3)
	return args.At(0), args.At(1), args.At(2)
}

// Args is a list of arguments split from an expression body.
type Args []string

// At returns the i-th argument without a trailing newline,
// or the empty string if i is out of bounds.
func (a Args) At(i int) string {
	if i < 0 || i >= len(a) {
		return ""
	}
	return strings.TrimSuffix(a[i], "\n")
}
