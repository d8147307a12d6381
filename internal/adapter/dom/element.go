package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// IsElement reports whether n is a non-nil element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Tag returns the lower-cased tag name.
func Tag(n *html.Node) string {
	return strings.ToLower(n.Data)
}

// Attr returns the value of attribute name.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns attribute name or "" when absent.
func AttrOr(n *html.Node, name string) string {
	v, _ := Attr(n, name)
	return v
}

// SetAttr sets or replaces attribute name.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes attribute name if present.
func RemoveAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// ID returns the element id.
func ID(n *html.Node) string {
	return strings.TrimSpace(AttrOr(n, "id"))
}

// Classes returns the class list in document order. Duplicates are kept.
func Classes(n *html.Node) []string {
	return strings.Fields(AttrOr(n, "class"))
}

// HasClass reports whether n carries class cls.
func HasClass(n *html.Node, cls string) bool {
	for _, c := range Classes(n) {
		if c == cls {
			return true
		}
	}
	return false
}

// AddClass appends cls unless already present.
func AddClass(n *html.Node, cls string) {
	if HasClass(n, cls) {
		return
	}
	SetClasses(n, append(Classes(n), cls))
}

// RemoveClasses drops every class for which drop returns true.
// It reports whether anything was removed.
func RemoveClasses(n *html.Node, drop func(string) bool) bool {
	classes := Classes(n)
	kept := classes[:0]
	for _, c := range classes {
		if !drop(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(Classes(n)) {
		return false
	}
	SetClasses(n, kept)
	return true
}

// RemoveClass drops cls.
func RemoveClass(n *html.Node, cls string) {
	RemoveClasses(n, func(c string) bool { return c == cls })
}

// SetClasses replaces the class attribute. An empty list removes it.
func SetClasses(n *html.Node, classes []string) {
	if len(classes) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(classes, " "))
}

// Text returns the concatenated text content of n, like DOM textContent.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Parent returns the parent element, or nil at the top of the element tree.
func Parent(n *html.Node) *html.Node {
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Siblings returns the element children of n's parent, n included.
func Siblings(n *html.Node) []*html.Node {
	if n.Parent == nil {
		return []*html.Node{n}
	}
	return Children(n.Parent)
}

// ChildIndex is the 1-based position of n among its element siblings.
func ChildIndex(n *html.Node) int {
	for i, s := range Siblings(n) {
		if s == n {
			return i + 1
		}
	}
	return 0
}

// TypeIndex is the 1-based position of n among siblings with the same tag,
// followed by the number of such siblings.
func TypeIndex(n *html.Node) (index, count int) {
	for _, s := range Siblings(n) {
		if s.Data != n.Data {
			continue
		}
		count++
		if s == n {
			index = count
		}
	}
	return index, count
}

// Ancestors returns the element ancestors of n, closest first.
func Ancestors(n *html.Node) []*html.Node {
	var out []*html.Node
	for p := Parent(n); p != nil; p = Parent(p) {
		out = append(out, p)
	}
	return out
}

// Top returns the topmost node of the tree containing n.
func Top(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// BodyOf returns the <body> of the tree containing n, or the top node.
func BodyOf(n *html.Node) *html.Node {
	top := Top(n)
	var body *html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil && body == nil; c = c.NextSibling {
			if c.Type == html.ElementNode && Tag(c) == "body" {
				body = c
				return
			}
			if c.Type == html.ElementNode && Tag(c) != "html" {
				continue
			}
			walk(c.FirstChild)
		}
	}
	walk(top)
	if body == nil {
		return top
	}
	return body
}

// InTemplate reports whether n sits inside a <template>, the parsed form of a
// declarative shadow root.
func InTemplate(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && Tag(p) == "template" {
			return true
		}
	}
	return false
}

// Clone deep-copies n. The copy is detached from any tree.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// Walk visits n and every element below it in document order.
func Walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, visit)
	}
}
