package autoconf

import (
	"fmt"
	"slices"
	"strings"
)

// Message keys of lexical errors.
const (
	UnterminatedString   = "UnterminatedString"
	UnterminatedQuote    = "UnterminatedQuote"
	UnterminatedComment  = "UnterminatedComment"
	MacroQuoteInBacktick = "MacroQuoteInBacktick"
)

// Message keys of structural errors.
const (
	MissingSpecifier           = "MissingSpecifier"
	InvalidSpecifier           = "InvalidSpecifier"
	InvalidTermination         = "InvalidTermination"
	UnterminatedConstruct      = "UnterminatedConstruct"
	MissingCondition           = "MissingCondition"
	InvalidIn                  = "InvalidIn"
	InvalidDo                  = "InvalidDo"
	InvalidThen                = "InvalidThen"
	InvalidElif                = "InvalidElif"
	InvalidElse                = "InvalidElse"
	InvalidFi                  = "InvalidFi"
	InvalidDone                = "InvalidDone"
	InvalidEsac                = "InvalidEsac"
	ImproperCaseCondition      = "ImproperCaseCondition"
	UnterminatedInlineDocument = "UnterminatedInlineDocument"
	IncompleteInlineMarker     = "IncompleteInlineMarker"
	UnmatchedLeftParenthesis   = "UnmatchedLeftParenthesis"
	UnmatchedRightParenthesis  = "UnmatchedRightParenthesis"
	M4MacroArgsTooFew          = "M4MacroArgsTooFew"
	M4MacroArgsTooMany         = "M4MacroArgsTooMany"
	InvalidMacro               = "InvalidMacro"
)

var messages = map[string]string{
	UnterminatedString:   "unterminated string",
	UnterminatedQuote:    "unterminated macro quote",
	UnterminatedComment:  "unterminated comment",
	MacroQuoteInBacktick: "macro quote %q inside backquoted command",

	MissingSpecifier:           "missing %q",
	InvalidSpecifier:           "%q is not valid here",
	InvalidTermination:         "invalid termination before %q",
	UnterminatedConstruct:      "unterminated %q construct",
	MissingCondition:           "missing condition after %q",
	InvalidIn:                  "missing \"in\" after case subject",
	InvalidDo:                  "misplaced %q",
	InvalidThen:                "\"then\" without matching \"if\" or \"elif\"",
	InvalidElif:                "\"elif\" without matching \"if\"",
	InvalidElse:                "\"else\" without matching \"if\"",
	InvalidFi:                  "\"fi\" without matching \"if\"",
	InvalidDone:                "\"done\" without matching loop",
	InvalidEsac:                "\"esac\" without matching \"case\"",
	ImproperCaseCondition:      "improper case condition",
	UnterminatedInlineDocument: "here-document %q is not terminated",
	IncompleteInlineMarker:     "missing here-document marker",
	UnmatchedLeftParenthesis:   "unmatched \"(\"",
	UnmatchedRightParenthesis:  "unmatched \")\"",
	M4MacroArgsTooFew:          "%s expects at least %d arguments, got %d",
	M4MacroArgsTooMany:         "%s expects at most %d arguments, got %d",
	InvalidMacro:               "%v",
}

// Severity of a ParseError.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// ParseError reports a lexical or structural problem in a script.
type ParseError struct {
	Key      string   // message key, one of the constants above
	Args     []any    // format arguments for the message
	Offset   int      // start of the offending text
	End      int      // end of the offending text
	Line     int      // line number (1-indexed)
	Column   int      // byte column (0-indexed)
	Severity Severity // error or warning
	Err      error    // underlying error, if any
}

// Message returns the formatted message without the line prefix.
func (e *ParseError) Message() string {
	format, ok := messages[e.Key]
	if !ok {
		if len(e.Args) == 0 {
			return e.Key
		}
		return fmt.Sprint(append([]any{e.Key + ": "}, e.Args...)...)
	}
	if !strings.Contains(format, "%") {
		return format
	}
	return fmt.Sprintf(format, e.Args...)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d: %s", e.Line, e.Message())
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrorSink receives errors as they are found.
type ErrorSink interface {
	OnError(*ParseError)
}

// ErrorList is an ErrorSink that collects errors in the order reported.
// Callers reusing a list across parses clear it themselves.
type ErrorList []*ParseError

// OnError appends err to the list.
func (l *ErrorList) OnError(err *ParseError) {
	*l = append(*l, err)
}

// Keys returns the message keys of the errors in order.
func (l ErrorList) Keys() []string {
	keys := make([]string, len(l))
	for i, e := range l {
		keys[i] = e.Key
	}
	return keys
}

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0], len(l)-1)
}

// MacroDetector reports whether a name denotes a known macro.
// It only classifies calls; it never changes the shape of the tree.
type MacroDetector interface {
	IsMacro(name string) bool
}

// MacroValidator is called once for every completed macro call,
// in the order the calls appear in the text. A non-nil error is reported
// to the ErrorSink; a *ParseError is reported as is.
type MacroValidator interface {
	ValidateMacro(m *Element) error
}

// MacroSet is a MacroDetector matching exact names and name prefixes.
type MacroSet struct {
	Names    []string
	Prefixes []string
}

// IsMacro reports whether name is in s.Names or starts with one of s.Prefixes.
func (s *MacroSet) IsMacro(name string) bool {
	if s == nil {
		return false
	}
	if slices.Contains(s.Names, name) {
		return true
	}
	for _, p := range s.Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// m4 builtins, after GNU m4.
var builtins = []string{
	"define", "undefine", "defn", "pushdef", "popdef", "indir", "builtin",
	"ifdef", "ifelse", "shift", "reverse", "cond", "dumpdef", "traceon",
	"traceoff", "debugmode", "debugfile", "dnl", "changequote", "changecom",
	"changeword", "m4wrap", "include", "sinclude", "divert", "undivert",
	"divnum", "len", "index", "regexp", "substr", "translit", "patsubst",
	"format", "incr", "decr", "eval", "syscmd", "esyscmd", "sysval",
	"mkstemp", "maketemp", "errprint", "m4exit", "__file__", "__line__",
	"__program__",
}

// IsBuiltin reports whether name is an m4 builtin macro.
func IsBuiltin(name string) bool {
	return slices.Contains(builtins, name)
}
