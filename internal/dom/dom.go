// Package dom is a small, read-only tree of labelled nodes with attributes
// and text. It decouples the page heuristics from any particular HTML engine
// so they can run against parsed documents and hand-built fixtures alike.
package dom

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Kind distinguishes element nodes from text nodes.
type Kind int

const (
	ElementNode Kind = iota
	TextNode
)

// Node is one element or text run. Tag is lowercased; Data holds text for text nodes.
type Node struct {
	Kind     Kind
	Tag      string
	Data     string
	Attrs    map[string]string
	Parent   *Node
	Children []*Node
}

// Document is a converted tree plus a back-reference from the source HTML nodes.
type Document struct {
	Root   *Node
	byHTML map[*html.Node]*Node
}

// Parse reads an HTML document into a Document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return FromHTML(root), nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// FromHTML converts a parsed golang.org/x/net/html tree. Comments, doctypes
// and other non-content nodes are dropped.
func FromHTML(root *html.Node) *Document {
	doc := &Document{byHTML: make(map[*html.Node]*Node)}
	doc.Root = doc.convert(root, nil)
	if doc.Root == nil {
		doc.Root = &Node{Kind: ElementNode, Tag: "#document"}
	}
	return doc
}

func (d *Document) convert(h *html.Node, parent *Node) *Node {
	var n *Node
	switch h.Type {
	case html.DocumentNode:
		n = &Node{Kind: ElementNode, Tag: "#document", Parent: parent}
	case html.ElementNode:
		n = &Node{Kind: ElementNode, Tag: strings.ToLower(h.Data), Parent: parent}
		if len(h.Attr) > 0 {
			n.Attrs = make(map[string]string, len(h.Attr))
			for _, a := range h.Attr {
				n.Attrs[strings.ToLower(a.Key)] = a.Val
			}
		}
	case html.TextNode:
		return &Node{Kind: TextNode, Data: h.Data, Parent: parent}
	default:
		return nil
	}
	d.byHTML[h] = n
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if child := d.convert(c, n); child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n
}

// Lookup returns the converted node for an html.Node from the same tree.
func (d *Document) Lookup(h *html.Node) *Node {
	if d == nil || h == nil {
		return nil
	}
	return d.byHTML[h]
}

// Body returns the <body> element, or the root when there is none.
func (d *Document) Body() *Node {
	if body := d.Root.FindFirst(func(n *Node) bool { return n.Is("body") }); body != nil {
		return body
	}
	return d.Root
}

// Element builds an element node for fixtures, wiring parent pointers.
func Element(tag string, attrs map[string]string, children ...*Node) *Node {
	n := &Node{Kind: ElementNode, Tag: strings.ToLower(tag), Attrs: attrs}
	for _, c := range children {
		c.Parent = n
		n.Children = append(n.Children, c)
	}
	return n
}

// Text builds a text node for fixtures.
func Text(s string) *Node {
	return &Node{Kind: TextNode, Data: s}
}

// Is reports whether n is an element with the given tag.
func (n *Node) Is(tag string) bool {
	return n != nil && n.Kind == ElementNode && n.Tag == tag
}

// Attr returns the attribute value or "".
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// ID is the id attribute.
func (n *Node) ID() string { return n.Attr("id") }

// ClassName is the raw class attribute.
func (n *Node) ClassName() string { return n.Attr("class") }

// HasClass reports whether the class list contains exactly c.
func (n *Node) HasClass(c string) bool {
	for _, cls := range strings.Fields(n.ClassName()) {
		if cls == c {
			return true
		}
	}
	return false
}

// TextContent concatenates all descendant text, like the DOM property.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.Kind == TextNode {
		return n.Data
	}
	var b strings.Builder
	n.Walk(func(c *Node) bool {
		if c.Kind == TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns descendants of n (excluding n) that satisfy pred, in document order.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	for _, c := range n.Children {
		c.Walk(func(x *Node) bool {
			if pred(x) {
				out = append(out, x)
			}
			return true
		})
	}
	return out
}

// FindFirst returns the first descendant of n satisfying pred, or nil.
func (n *Node) FindFirst(pred func(*Node) bool) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if pred(c) {
			return c
		}
		if found := c.FindFirst(pred); found != nil {
			return found
		}
	}
	return nil
}

// Closest returns the nearest element among n and its ancestors satisfying pred.
func (n *Node) Closest(pred func(*Node) bool) *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind == ElementNode && pred(cur) {
			return cur
		}
	}
	return nil
}
