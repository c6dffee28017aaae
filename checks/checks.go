// Package checks provides assertions over rendered outlines, used by the
// golden test scripts and by "autoconf check --expect".
//
// Example usage with a JSON check against a parsed tree:
//
//	root, _ := autoconf.Parse("AC_INIT([hello], [1.0])\n")
//	body, _ := json.Marshal(root)
//	if msg := checks.JSON(`/children/0/name == "AC_INIT"`, string(body)); msg != "" {
//		log.Fatal(msg)
//	}
package checks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"blake.io/autoconf/internal/script"
	"github.com/ericchiang/css"
	"golang.org/x/net/html"
)

// JSON checks a JSON value at an RFC 6901 pointer path.
//
// It uses [Text] for comparison, supporting operators
// like ==, !=, ~, !~, contains, and !contains.
//
// The check should contain: path op want.
// For example:
//
//	/children/0/kind == "if"
//
// Values are compared in their compact JSON encoding. Strings include their
// quotes, making it easy to check types using string comparison operators:
//
//	/name ~ ^"                           # value is a string
//	/children ~ ^\[                      # value is an array
//	/children/0 ~ ^\{                    # value is an object
//	/known == true                       # boolean true
//	/start == 0                          # number
//
// # Undefined
//
// If a path does not exist, the value is "undefined". This is distinct from
// any valid JSON value, making it safe to test for missing keys:
//
//	/children/3 == undefined
//
// Returns empty string on success, error message on failure.
func JSON(check, body string) string {
	path, op, want := script.ParseArgs3(check)
	msg, ok := Text(path, op, "_", want)
	if !ok {
		return msg
	}
	got, err := jsonFind(body, path)
	if err != nil {
		return err.Error()
	}
	msg, _ = Text(path, op, got, want)
	return msg
}

func jsonFind(body, pointer string) (string, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("error parsing JSON: %w", err)
	}
	if pointer != "" && pointer != "/" {
		if !strings.HasPrefix(pointer, "/") {
			return "", fmt.Errorf("invalid JSON pointer %q", pointer)
		}
		for _, tok := range strings.Split(pointer[1:], "/") {
			tok = strings.NewReplacer("~1", "/", "~0", "~").Replace(tok)
			switch x := v.(type) {
			case map[string]any:
				next, ok := x[tok]
				if !ok {
					return "undefined", nil
				}
				v = next
			case []any:
				i, err := strconv.Atoi(tok)
				if err != nil || i < 0 || i >= len(x) {
					return "undefined", nil
				}
				v = x[i]
			default:
				return "undefined", nil
			}
		}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// HTML checks the outline rendered by autoconf.WriteHTML.
//
// The check should contain: selector op want. The selector picks outline
// items; the first match is compared with [Text], or the number of matches
// with the "count" operator. Each item is an li whose class is the element
// kind, holding its label in a span and its children in a nested ul:
//
//	li.if>span == if test x = y
//	li.if>ul>li.macro>span contains MSG_RESULT
//	ul.outline>li count 2
//
// A selector ending in @name compares the value of that attribute instead
// of the inner HTML. The outline carries data-line, data-start and data-end
// on every item; a missing attribute is "undefined":
//
//	li.if@data-line == 2
//	li.macro@data-start == 0
//	li.if@title == undefined
//
// Selectors must not contain spaces; use the ">", "~", "+" and ","
// combinators.
//
// If nothing matches, the check fails with "no elements match selector"
// unless it is a count of 0.
//
// Returns empty string on success, error message on failure.
func HTML(check, body string) string {
	selector, op, want := script.ParseArgs3(check)
	msg, ok := Text(selector, op, "_", want)
	if !ok && op != "count" {
		return msg
	}

	query, attr, byAttr := strings.Cut(selector, "@")
	if byAttr && op == "count" {
		return fmt.Sprintf("count operator does not take an attribute: %q", selector)
	}
	sel, err := css.Parse(query)
	if err != nil {
		return fmt.Sprintf("error parsing selector %q: %v", query, err)
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return fmt.Sprintf("error parsing HTML: %v", err)
	}

	matches := sel.Select(doc)

	if op == "count" {
		if want == "" {
			return "count operator requires non-empty want value"
		}
		msg, _ := Text(selector, "==", strconv.Itoa(len(matches)), want)
		return msg
	}

	if len(matches) == 0 {
		return fmt.Sprintf("no elements match selector %q", query)
	}

	got := innerHTML(matches[0])
	if byAttr {
		got = attrValue(matches[0], attr)
	}
	msg, _ = Text(selector, op, got, want)
	return msg
}

// attrValue returns the value of the named attribute of n, or "undefined".
func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return "undefined"
}

// innerHTML returns the inner HTML of a node as a string.
func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// Text compares got against want using the specified operator op
// and returns a failure message when the comparison does not hold.
// An empty string means the check passed.
//
// Supported operators:
//   - "==": equality
//   - "!=": inequality
//   - "~": regex match
//   - "!~": regex non-match
//   - "contains": substring presence
//   - "!contains": substring absence
//
// If valid is false, the message indicates an error in the check itself.
// If valid is true, the message indicates a failed check.
func Text(what, op, got, want string) (msg string, valid bool) {
	switch op {
	case "~", "!~":
		if _, err := regexp.Compile(want); err != nil {
			return fmt.Sprintf("error compiling regex %#q: %v", want, err), false
		}
	default:
		if want == "" {
			return "non-regex comparison requires non-empty want value", false
		}
	}

	switch op {
	case "==":
		if got != want {
			return fmt.Sprintf("%s = %#q, want %#q", what, got, want), true
		}
	case "!=":
		if got == want {
			return fmt.Sprintf("%s == %#q (but should not)", what, want), true
		}
	case "~":
		if ok, _ := regexp.MatchString(want, got); !ok {
			return fmt.Sprintf("%s does not match %#q (but should)\t%s", what, want, indentText(got)), true
		}
	case "!~":
		if ok, _ := regexp.MatchString(want, got); ok {
			return fmt.Sprintf("%s matches %#q (but should not)\t%s", what, want, indentText(got)), true
		}
	case "contains":
		if !strings.Contains(got, want) {
			return fmt.Sprintf("%s does not contain %#q (but should)\t%s", what, want, indentText(got)), true
		}
	case "!contains":
		if strings.Contains(got, want) {
			return fmt.Sprintf("%s contains %#q (but should not)\t%s", what, want, indentText(got)), true
		}
	default:
		return fmt.Sprintf("unknown operator %q", op), false
	}

	return "", true
}

// indentText formats text for inclusion in error messages.
func indentText(text string) string {
	if text == "" {
		return "(empty)"
	}
	if text == "\n" {
		return "(blank line)"
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return "(blank lines)"
	}
	return strings.ReplaceAll(text, "\n", "\n\t")
}
