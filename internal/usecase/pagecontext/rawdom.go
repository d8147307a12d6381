package pagecontext

import (
	"unicode/utf8"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/usecase/classify"
)

// Raw HTML size rules, in characters.
const (
	rawKeepLimit     = 100_000
	rawTruncateLimit = 200_000
	rawParentLimit   = 50_000
	rawLevelsUp      = 5
)

// containerTags end the upward walk for the raw snippet.
var containerTags = map[string]bool{"body": true, "main": true, "article": true, "section": true}

// RawDOM captures the outer HTML around el: up to five ancestor levels,
// stopping at the first body, main, article or section. The snapshot is
// taken from a clone stripped of marker classes and inline styles. Snippets
// under 100,000 characters are kept whole, up to 200,000 are cut to 100,000
// and anything larger is replaced by the immediate parent capped at 50,000.
func RawDOM(el *html.Node) (string, error) {
	container := el
	for i := 0; i < rawLevelsUp; i++ {
		parent := dom.Parent(container)
		if parent == nil {
			break
		}
		container = parent
		if containerTags[dom.Tag(container)] {
			break
		}
	}

	snippet, err := cleanOuterHTML(container)
	if err != nil {
		return "", err
	}
	switch n := utf8.RuneCountInString(snippet); {
	case n < rawKeepLimit:
		return snippet, nil
	case n < rawTruncateLimit:
		return truncate(snippet, rawKeepLimit), nil
	}

	parent := dom.Parent(el)
	if parent == nil {
		parent = el
	}
	snippet, err = cleanOuterHTML(parent)
	if err != nil {
		return "", err
	}
	return truncate(snippet, rawParentLimit), nil
}

// cleanOuterHTML renders a scrubbed clone of n; the live tree is untouched.
func cleanOuterHTML(n *html.Node) (string, error) {
	clone := dom.Clone(n)
	dom.Walk(clone, func(c *html.Node) {
		dom.RemoveClasses(c, classify.IsMarkerClass)
		dom.RemoveAttr(c, "style")
	})
	return dom.OuterHTML(clone)
}
