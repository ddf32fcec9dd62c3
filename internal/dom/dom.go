// Package dom provides a tolerant HTML document model and the selector
// primitives used to walk it. Documents are stored as a flat arena of
// nodes addressed by index, so traversal never chases pointers and a
// malformed page degrades to a partial tree instead of an error.
package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Kind distinguishes the node variants kept in the arena.
type Kind uint8

// Node kinds. Comments, doctypes and processing instructions are dropped
// at parse time.
const (
	KindElement Kind = iota
	KindText
)

// Root is the index of the synthetic arena root. It is not an element and
// never matches a selector.
const Root = 0

// Attr is a single element attribute.
type Attr struct {
	Key string
	Val string
}

// Node is one entry in the document arena. Children are stored as arena
// indexes in document order.
type Node struct {
	Kind     Kind
	Tag      string
	Text     string
	Attrs    []Attr
	Parent   int
	Children []int
}

// Document is an immutable parsed HTML page.
type Document struct {
	nodes []Node
}

// Parse reads HTML from r and builds a Document. Malformed markup is
// repaired by the underlying parser; the only error surfaced here is a
// failure of the reader itself.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{nodes: make([]Node, 1, 128)}
	d.nodes[Root] = Node{Kind: KindElement, Parent: -1}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		d.convert(c, Root)
	}
	return d, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func (d *Document) convert(n *html.Node, parent int) {
	switch n.Type {
	case html.ElementNode:
		attrs := make([]Attr, 0, len(n.Attr))
		for _, a := range n.Attr {
			attrs = append(attrs, Attr{Key: a.Key, Val: a.Val})
		}
		idx := len(d.nodes)
		d.nodes = append(d.nodes, Node{Kind: KindElement, Tag: n.Data, Attrs: attrs, Parent: parent})
		d.nodes[parent].Children = append(d.nodes[parent].Children, idx)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			d.convert(c, idx)
		}
	case html.TextNode:
		if n.Data == "" {
			return
		}
		idx := len(d.nodes)
		d.nodes = append(d.nodes, Node{Kind: KindText, Text: n.Data, Parent: parent})
		d.nodes[parent].Children = append(d.nodes[parent].Children, idx)
	}
}

// Len returns the number of nodes in the arena, including the root.
func (d *Document) Len() int { return len(d.nodes) }

// At returns the node stored at idx.
func (d *Document) At(idx int) Node { return d.nodes[idx] }

// Attr returns the named attribute of the element at idx.
func (d *Document) Attr(idx int, name string) (string, bool) {
	if idx < 0 || idx >= len(d.nodes) {
		return "", false
	}
	for _, a := range d.nodes[idx].Attrs {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Text returns the cleaned text content of the subtree rooted at idx.
// Element nodes yield their descendant text nodes joined with single
// spaces; empty fragments are skipped.
func (d *Document) Text(idx int) string {
	var b strings.Builder
	d.rawText(idx, &b)
	return CleanText(b.String())
}

func (d *Document) rawText(idx int, b *strings.Builder) {
	if idx < 0 || idx >= len(d.nodes) {
		return
	}
	n := d.nodes[idx]
	if n.Kind == KindText {
		if n.Text != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(n.Text)
		}
		return
	}
	for _, c := range n.Children {
		d.rawText(c, b)
	}
}

// CleanText collapses runs of whitespace to single spaces and trims the
// ends. It is idempotent.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
