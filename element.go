package autoconf

import (
	"fmt"
	"iter"
	"strings"
)

// Kind identifies the variant of an Element.
type Kind int

const (
	KindRoot Kind = iota
	KindMacro
	KindMacroArgument
	KindIf
	KindElif
	KindElse
	KindWhile
	KindUntil
	KindFor
	KindSelect
	KindCase
	KindCaseCondition
)

var kindNames = [...]string{
	KindRoot:          "root",
	KindMacro:         "macro",
	KindMacroArgument: "argument",
	KindIf:            "if",
	KindElif:          "elif",
	KindElse:          "else",
	KindWhile:         "while",
	KindUntil:         "until",
	KindFor:           "for",
	KindSelect:        "select",
	KindCase:          "case",
	KindCaseCondition: "condition",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsConstruct reports whether k is a shell control construct or a branch of one.
func (k Kind) IsConstruct() bool {
	return k >= KindIf && k <= KindCaseCondition
}

// Element is a node of the parsed tree.
//
// Children lie within [Start, End] of their parent and are ordered by
// position without overlapping. Elements are not modified once Parse returns.
type Element struct {
	Kind Kind

	// Name is the macro name for macro calls, the argument text (one level
	// of quotes removed) for arguments, the pattern for case conditions and
	// the opening keyword for constructs.
	Name string

	// Var is the condition, subject or word list of a construct, and the
	// first argument of a macro call.
	Var string

	// Known reports whether the MacroDetector recognized a macro call.
	Known bool

	Start, End int
	Children   []*Element

	doc *Document
}

func newElement(kind Kind, doc *Document, start int) *Element {
	return &Element{Kind: kind, Name: kind.String(), Start: start, End: start, doc: doc}
}

func (e *Element) add(child *Element) {
	e.Children = append(e.Children, child)
}

// Document returns the document the element was parsed from.
func (e *Element) Document() *Document { return e.doc }

// Len returns the length of the element's source text.
func (e *Element) Len() int { return e.End - e.Start }

// Source returns the element's source text.
func (e *Element) Source() string {
	if e.doc == nil {
		return ""
	}
	return e.doc.Slice(e.Start, e.End)
}

// Args returns the argument texts of a macro call.
func (e *Element) Args() []string {
	var args []string
	for _, c := range e.Children {
		if c.Kind == KindMacroArgument {
			args = append(args, c.Name)
		}
	}
	return args
}

// All returns an iterator over e and its descendants in pre-order.
func (e *Element) All() iter.Seq[*Element] {
	return func(yield func(*Element) bool) {
		e.walk(0, func(e *Element, _ int) bool { return yield(e) })
	}
}

// Walk calls fn for e and its descendants in pre-order, with the depth
// below e. It stops early when fn returns false.
func (e *Element) Walk(fn func(e *Element, depth int) bool) {
	e.walk(0, fn)
}

func (e *Element) walk(depth int, fn func(*Element, int) bool) bool {
	if !fn(e, depth) {
		return false
	}
	for _, c := range e.Children {
		if !c.walk(depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the innermost element whose range contains offset.
func (e *Element) Find(offset int) *Element {
	if offset < e.Start || offset > e.End {
		return nil
	}
	for _, c := range e.Children {
		if found := c.Find(offset); found != nil {
			return found
		}
	}
	return e
}

// Macros returns the macro calls in e, in pre-order.
func (e *Element) Macros() []*Element {
	var calls []*Element
	for el := range e.All() {
		if el.Kind == KindMacro {
			calls = append(calls, el)
		}
	}
	return calls
}

// Label returns the one-line description used in outlines.
func (e *Element) Label() string {
	switch e.Kind {
	case KindRoot:
		return "root"
	case KindMacro:
		if e.Var != "" {
			return e.Name + "(" + abbrev(e.Var) + ")"
		}
		return e.Name
	case KindMacroArgument, KindCaseCondition:
		return abbrev(e.Name)
	}
	if e.Var != "" {
		return e.Name + " " + abbrev(e.Var)
	}
	return e.Name
}

// abbrev shortens s to a single line of at most 40 runes.
func abbrev(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return s
}

// String formats the tree below e as an indented listing, one element per
// line, in the form "kind name [start,end)".
func (e *Element) String() string {
	var b strings.Builder
	e.Walk(func(e *Element, depth int) bool {
		fmt.Fprintf(&b, "%s%s %q [%d,%d)\n", strings.Repeat("\t", depth), e.Kind, e.Name, e.Start, e.End)
		return true
	})
	return b.String()
}

func newError(doc *Document, key string, start, end int, sev Severity, args ...any) *ParseError {
	line, col := doc.Position(start)
	return &ParseError{
		Key:      key,
		Args:     args,
		Offset:   start,
		End:      end,
		Line:     line,
		Column:   col,
		Severity: sev,
	}
}
