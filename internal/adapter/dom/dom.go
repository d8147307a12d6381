// Package dom adapts parsed HTML trees to the element operations the selector
// builders need: attribute and class access, sibling positions, CSS queries
// scoped to a root, cloning and serialization.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an HTML document held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.doc.Nodes[0]
}

// Body returns the <body> element, or the document node when there is none.
func (d *Document) Body() *html.Node {
	if body := d.doc.Find("body"); body.Length() > 0 {
		return body.Nodes[0]
	}
	return d.Root()
}

// QueryAll returns every element under the document matching selector.
func (d *Document) QueryAll(selector string) ([]*html.Node, error) {
	return QueryAll(d.Root(), selector)
}

// First returns the first element matching selector.
func (d *Document) First(selector string) (*html.Node, error) {
	nodes, err := d.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return nodes[0], nil
}

// HTML serializes the whole document.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

// Compile parses a selector group, reporting syntax errors.
func Compile(selector string) (cascadia.SelectorGroup, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("empty selector")
	}
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	return group, nil
}

// QueryAll returns the descendants of root matching selector, in document
// order. root itself is never part of the result.
func QueryAll(root *html.Node, selector string) ([]*html.Node, error) {
	group, err := Compile(selector)
	if err != nil {
		return nil, err
	}
	return cascadia.QueryAll(root, group), nil
}

// Count returns how many descendants of root match selector, or -1 when the
// selector does not compile.
func Count(root *html.Node, selector string) int {
	nodes, err := QueryAll(root, selector)
	if err != nil {
		return -1
	}
	return len(nodes)
}

// MatchesOnly reports whether selector matches exactly el within root.
func MatchesOnly(root *html.Node, selector string, el *html.Node) bool {
	nodes, err := QueryAll(root, selector)
	return err == nil && len(nodes) == 1 && nodes[0] == el
}

// Contains reports whether nodes includes el.
func Contains(nodes []*html.Node, el *html.Node) bool {
	for _, n := range nodes {
		if n == el {
			return true
		}
	}
	return false
}

// OuterHTML renders n and its subtree.
func OuterHTML(n *html.Node) (string, error) {
	return goquery.OuterHtml(goquery.NewDocumentFromNode(n).Selection)
}

// FindByText returns the deepest element under root whose trimmed text
// contains text. Script, style and head content is ignored.
func FindByText(root *html.Node, text string) (*html.Node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty search text")
	}
	var found *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !IsElement(c) || skipText[Tag(c)] {
				continue
			}
			if !strings.Contains(Text(c), text) {
				continue
			}
			if !walk(c) {
				found = c
			}
			return true
		}
		return false
	}
	walk(root)
	if found == nil {
		return nil, fmt.Errorf("no element contains %q", text)
	}
	return found, nil
}

var skipText = map[string]bool{"script": true, "style": true, "head": true, "noscript": true}

// Matches reports whether n itself matches selector.
func Matches(n *html.Node, selector string) bool {
	group, err := Compile(selector)
	if err != nil {
		return false
	}
	return group.Match(n)
}

// DistinguishesAmongSiblings reports whether selector matches el and none of
// its element siblings.
func DistinguishesAmongSiblings(el *html.Node, selector string) bool {
	group, err := Compile(selector)
	if err != nil {
		return false
	}
	hits := 0
	for _, s := range Siblings(el) {
		if group.Match(s) {
			if s != el {
				return false
			}
			hits++
		}
	}
	return hits == 1
}
