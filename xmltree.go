package gp2midi

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xmlElement is a minimal DOM node: a local tag name (namespace discarded),
// its attributes, its direct character data, and its children in document
// order. GPIF's schema is a flat, ID-linked graph rather than a tree of
// unique paths, so a generic struct-tag unmarshal (as ToneLib's format
// allows) can't resolve it — callers walk this tree once to build an ID
// index (idindex.go) and then navigate by local name from there.
type xmlElement struct {
	name     string
	attrs    map[string]string
	text     string
	children []*xmlElement
}

func (e *xmlElement) attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// child returns the first direct child named name, or nil.
func (e *xmlElement) child(name string) *xmlElement {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// childrenNamed returns every direct child named name, in document order.
func (e *xmlElement) childrenNamed(name string) []*xmlElement {
	var out []*xmlElement
	for _, c := range e.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// childText returns the trimmed character data of the first direct child
// named name.
func (e *xmlElement) childText(name string) (string, bool) {
	c := e.child(name)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.text), true
}

// findDescendant does a depth-first search for the first element (including
// e itself) named name. Used for the GPIF collection roots the decoder walks
// directly (Rhythms, MasterBars), which are not always direct children of
// the document element.
func findDescendant(e *xmlElement, name string) *xmlElement {
	if e.name == name {
		return e
	}
	for _, c := range e.children {
		if found := findDescendant(c, name); found != nil {
			return found
		}
	}
	return nil
}

// refList splits a whitespace-separated link list, e.g. "100 101", into its
// tokens. GPIF uses this encoding for every ID-reference list (Tracks,
// Bars, Voices, Beats, Notes).
func refList(text string) []string {
	return strings.Fields(text)
}

// parseXMLTree decodes r into a namespace-agnostic element tree. Go's
// encoding/xml already resolves a declared namespace and hands back
// Name.Local as the bare tag; building the tree from Name.Local alone is
// exactly "stripping the namespace prefix from every tag comparison" —
// a GPIF document parses identically whether or not its root declares
// xmlns="http://www.guitar-pro.com/GPIF/1.0".
func parseXMLTree(r io.Reader) (*xmlElement, error) {
	dec := xml.NewDecoder(r)

	var stack []*xmlElement
	var root *xmlElement

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				root = el
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidXML)
	}
	return root, nil
}
