package autoconf

// Arity bounds the number of arguments a macro accepts.
// A negative Max means there is no upper bound.
type Arity struct {
	Min, Max int
}

// ArityValidator is a MacroValidator that checks argument counts of the
// macros it names. Calls of other macros pass.
type ArityValidator map[string]Arity

// ValidateMacro reports M4MacroArgsTooFew or M4MacroArgsTooMany warnings.
func (v ArityValidator) ValidateMacro(m *Element) error {
	a, ok := v[m.Name]
	if !ok {
		return nil
	}
	n := len(m.Args())
	switch {
	case n < a.Min:
		return newError(m.doc, M4MacroArgsTooFew, m.Start, m.End, SeverityWarning, m.Name, a.Min, n)
	case a.Max >= 0 && n > a.Max:
		return newError(m.doc, M4MacroArgsTooMany, m.Start, m.End, SeverityWarning, m.Name, a.Max, n)
	}
	return nil
}

// BuiltinArities holds the argument counts of the m4 builtins, after GNU m4.
var BuiltinArities = ArityValidator{
	"changecom":   {0, 2},
	"changequote": {0, 2},
	"decr":        {1, 1},
	"define":      {1, 2},
	"defn":        {1, -1},
	"divert":      {0, 1},
	"errprint":    {1, -1},
	"eval":        {1, 3},
	"ifdef":       {2, 3},
	"include":     {1, 1},
	"incr":        {1, 1},
	"index":       {2, 2},
	"indir":       {1, -1},
	"len":         {1, 1},
	"m4exit":      {0, 1},
	"popdef":      {1, -1},
	"pushdef":     {1, 2},
	"regexp":      {2, 3},
	"shift":       {1, -1},
	"sinclude":    {1, 1},
	"substr":      {2, 3},
	"syscmd":      {1, 1},
	"esyscmd":     {1, 1},
	"translit":    {2, 3},
	"undefine":    {1, -1},
	"patsubst":    {2, 3},
	"format":      {1, -1},
	"builtin":     {1, -1},
}

// Validators runs each validator in order and returns the first error.
type Validators []MacroValidator

// ValidateMacro implements MacroValidator.
func (vs Validators) ValidateMacro(m *Element) error {
	for _, v := range vs {
		if err := v.ValidateMacro(m); err != nil {
			return err
		}
	}
	return nil
}
