// Package selector derives CSS selectors for a DOM element. Three builders
// share one ascent model: walk from the element toward a root, choose the best
// fragment per level, prepend it to the path and stop as soon as the joined
// path matches only the element.
//
// Every builder returns raw-mode selectors usable directly against the live
// document; Export converts them for storage elsewhere.
package selector

import (
	"strings"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
)

// Defaults.
const (
	DefaultMaxDepth    = 5
	DefaultFamilyBound = 3
)

// Options tunes the builders.
type Options struct {
	// MaxDepth bounds how many levels are walked upward.
	MaxDepth int
	// Root scopes every uniqueness query. Defaults to the document body.
	Root *html.Node
	// FamilyBound is the largest match count the smart scorer accepts.
	FamilyBound int
}

func (o Options) normalize(el *html.Node) Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Root == nil {
		o.Root = dom.BodyOf(el)
	}
	if o.FamilyBound <= 0 {
		o.FamilyBound = DefaultFamilyBound
	}
	return o
}

// fragment is the selector chosen for one level of the ascent.
type fragment struct {
	value string
	// unique means the fragment alone matches one element within root.
	unique bool
	// stop ends the ascent (a unique id anchors the whole path).
	stop bool
	// positional marks tag-only and pseudo-class fragments.
	positional bool
}

type chooser func(el, root *html.Node) fragment

// ascend runs the shared ascent loop and returns the fragments, closest last.
// A path that climbs all the way to a body or html root without becoming
// unique is anchored on that root.
func ascend(el *html.Node, opts Options, choose chooser) []fragment {
	var path []fragment
	cur := el
	for depth := 0; cur != nil && cur != opts.Root && depth < opts.MaxDepth; depth++ {
		frag := choose(cur, opts.Root)
		path = append([]fragment{frag}, path...)
		if frag.stop || dom.MatchesOnly(opts.Root, joinPath(path), el) {
			return path
		}
		cur = dom.Parent(cur)
	}
	if cur != nil && cur == opts.Root && dom.IsElement(cur) {
		if tag, ok := documentLevel(cur); ok {
			anchored := append([]fragment{{value: tag, positional: true}}, path...)
			if dom.MatchesOnly(opts.Root, joinPath(anchored), el) {
				return anchored
			}
		}
	}
	return path
}

func joinPath(path []fragment) string {
	parts := make([]string, len(path))
	for i, f := range path {
		parts[i] = f.value
	}
	return strings.Join(parts, " > ")
}

func validate(op string, el *html.Node) error {
	if !dom.IsElement(el) {
		return domain.NewDomainError(op, domain.ErrInvalidElement, "")
	}
	return nil
}

// documentLevel answers html and body directly.
func documentLevel(el *html.Node) (string, bool) {
	switch tag := dom.Tag(el); tag {
	case "html", "body":
		return tag, true
	}
	return "", false
}

// identSelector renders #id or .class for a word-like identifier. The
// matcher rejects any run of leading hyphens followed by a digit, so when
// the plain escape does not compile every leading hyphen is escaped too.
func identSelector(prefix, ident string) string {
	sel := prefix + EscapeIdentifier(ident)
	if _, err := dom.Compile(sel); err == nil {
		return sel
	}
	rest := strings.TrimLeft(ident, "-")
	hyphens := strings.Repeat(`\-`, len(ident)-len(rest))
	return prefix + hyphens + EscapeIdentifier(rest)
}

// ClassSelector renders .class so that live queries accept it.
func ClassSelector(class string) string {
	return identSelector(".", class)
}

// compiledOr returns sel when it parses, else the tag name of el.
func compiledOr(sel string, el *html.Node) string {
	if _, err := dom.Compile(sel); err != nil {
		return dom.Tag(el)
	}
	return sel
}

// Generate dispatches to the builder for strategy.
func Generate(el *html.Node, strategy domain.Strategy, opts Options) (string, error) {
	switch strategy {
	case domain.StrategyStructural:
		return Structural(el, opts)
	case domain.StrategySemantic:
		return Semantic(el, opts)
	default:
		return NewSmart(opts).Generate(el)
	}
}

// Alternatives returns the distinct selectors the three builders produce for
// el, smart first.
func Alternatives(el *html.Node, opts Options) ([]string, error) {
	if err := validate("selector.Alternatives", el); err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range []domain.Strategy{domain.StrategySmart, domain.StrategySemantic, domain.StrategyStructural} {
		sel, err := Generate(el, s, opts)
		if err != nil || sel == "" || seen[sel] {
			continue
		}
		seen[sel] = true
		out = append(out, sel)
	}
	return out, nil
}
