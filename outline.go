package autoconf

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Outline returns the elements shown in an outline of e: its children, with
// macro arguments replaced by the calls nested in them.
func (e *Element) Outline() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Kind == KindMacroArgument {
			out = append(out, c.Outline()...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// WriteOutline writes an indented outline of the tree below root, one
// element per line, preceded by its line number.
func WriteOutline(w io.Writer, root *Element) error {
	bw := bufio.NewWriter(w)
	var walk func(e *Element, depth int)
	walk = func(e *Element, depth int) {
		for _, c := range e.Outline() {
			line, _ := c.doc.Position(c.Start)
			fmt.Fprintf(bw, "%d:%s%s\n", line, strings.Repeat("  ", depth+1), c.Label())
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return bw.Flush()
}

type jsonElement struct {
	Kind     string         `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Var      string         `json:"var,omitempty"`
	Known    bool           `json:"known,omitempty"`
	Start    int            `json:"start"`
	End      int            `json:"end"`
	Line     int            `json:"line"`
	Children []*jsonElement `json:"children,omitempty"`
}

func toJSON(e *Element) *jsonElement {
	j := &jsonElement{
		Kind:  e.Kind.String(),
		Name:  e.Name,
		Var:   e.Var,
		Known: e.Known,
		Start: e.Start,
		End:   e.End,
	}
	if e.doc != nil {
		j.Line, _ = e.doc.Position(e.Start)
	}
	for _, c := range e.Children {
		j.Children = append(j.Children, toJSON(c))
	}
	return j
}

// MarshalJSON encodes the tree below e. Elements are objects with the
// fields kind, name, var, known, start, end, line and children.
func (e *Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(e))
}

// WriteHTML renders the outline of the tree below root as nested HTML
// lists. Each item carries the element kind as its class and the source
// range in data-start and data-end attributes.
func WriteHTML(w io.Writer, root *Element) error {
	list := outlineList(root)
	list.Attr = append(list.Attr, html.Attribute{Key: "class", Val: "outline"})
	return html.Render(w, list)
}

func outlineList(e *Element) *html.Node {
	ul := &html.Node{Type: html.ElementNode, Data: "ul", DataAtom: atom.Ul}
	for _, c := range e.Outline() {
		line, _ := c.doc.Position(c.Start)
		li := &html.Node{
			Type:     html.ElementNode,
			Data:     "li",
			DataAtom: atom.Li,
			Attr: []html.Attribute{
				{Key: "class", Val: c.Kind.String()},
				{Key: "data-line", Val: strconv.Itoa(line)},
				{Key: "data-start", Val: strconv.Itoa(c.Start)},
				{Key: "data-end", Val: strconv.Itoa(c.End)},
			},
		}
		label := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
		label.AppendChild(&html.Node{Type: html.TextNode, Data: c.Label()})
		li.AppendChild(label)
		if len(c.Outline()) > 0 {
			li.AppendChild(outlineList(c))
		}
		ul.AppendChild(li)
	}
	return ul
}
