package selector

import (
	"fmt"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/usecase/classify"
)

// maxAttrValueLen skips attribute values too long to be meaningful anchors.
const maxAttrValueLen = 100

var (
	semanticDataAttrs = []string{
		"data-id", "data-name", "data-role", "data-pii", "data-field",
		"data-type", "data-component", "data-element",
	}
	ariaAttrs = []string{
		"role", "aria-label", "aria-labelledby", "name", "type",
		"placeholder", "for", "autocomplete",
	}
)

// Semantic builds a selector that prefers meaningful anchors (ids, data and
// ARIA attributes, business-term classes) over position. When the best path
// it finds is purely positional it falls back to "<.semantic-ancestor> <tag>".
func Semantic(el *html.Node, opts Options) (string, error) {
	if err := validate("selector.Semantic", el); err != nil {
		return "", err
	}
	if sel, ok := documentLevel(el); ok {
		return sel, nil
	}
	opts = opts.normalize(el)
	path := ascend(el, opts, semanticFragment)
	if len(path) == 0 {
		return dom.Tag(el), nil
	}
	if allPositional(path) {
		if sel, ok := semanticAncestorSelector(el); ok {
			return compiledOr(sel, el), nil
		}
	}
	return compiledOr(joinPath(path), el), nil
}

func allPositional(path []fragment) bool {
	for _, f := range path {
		if !f.positional {
			return false
		}
	}
	return true
}

// semanticAncestorSelector anchors el's tag under the nearest ancestor that
// has a semantic class.
func semanticAncestorSelector(el *html.Node) (string, bool) {
	for _, anc := range dom.Ancestors(el) {
		if sem := classify.SemanticClasses(dom.Classes(anc)); len(sem) > 0 {
			return identSelector(".", sem[0]) + " " + dom.Tag(el), true
		}
	}
	return "", false
}

// semanticLevels lists the candidate fragments of el grouped by priority.
func semanticLevels(el *html.Node) [][]string {
	tag := dom.Tag(el)
	var levels [][]string

	var ids []string
	if id := dom.ID(el); id != "" && IsWordLike(id) && !classify.IsUUID(id) {
		ids = append(ids, identSelector("#", id))
	}
	levels = append(levels, ids)

	levels = append(levels, attrCandidates(el, tag, semanticDataAttrs, true))
	levels = append(levels, attrCandidates(el, tag, ariaAttrs, false))

	var classes []string
	for _, c := range classify.SemanticClasses(dom.Classes(el)) {
		classes = append(classes, tag+identSelector(".", c))
	}
	levels = append(levels, classes)
	return levels
}

func attrCandidates(el *html.Node, tag string, names []string, rejectUUID bool) []string {
	var out []string
	for _, name := range names {
		v, ok := dom.Attr(el, name)
		if !ok || v == "" || len(v) >= maxAttrValueLen {
			continue
		}
		if rejectUUID && classify.IsUUID(v) {
			continue
		}
		out = append(out, attrSelector(tag, name, v))
	}
	return out
}

func semanticFragment(el, root *html.Node) fragment {
	levels := semanticLevels(el)

	// A root-unique candidate beats one that only stands out among siblings.
	for i, level := range levels {
		for _, sel := range level {
			if dom.Count(root, sel) == 1 {
				return fragment{value: sel, unique: true, stop: i == 0}
			}
		}
	}
	for _, level := range levels[1:] {
		for _, sel := range level {
			if dom.DistinguishesAmongSiblings(el, sel) {
				return fragment{value: sel}
			}
		}
	}
	return fragment{value: positionalFragment(el), positional: true}
}

// positionalFragment picks the least brittle pseudo-class that tells el apart
// from its siblings.
func positionalFragment(el *html.Node) string {
	tag := dom.Tag(el)
	if dom.Parent(el) == nil {
		return tag
	}
	siblings := dom.Siblings(el)
	idx := dom.ChildIndex(el)
	typeIdx, typeCount := dom.TypeIndex(el)
	switch {
	case len(siblings) == 1 || typeCount == 1:
		return tag
	case idx == 1:
		return tag + ":first-child"
	case idx == len(siblings):
		return tag + ":last-child"
	case typeIdx == 1:
		return tag + ":first-of-type"
	case typeIdx == typeCount:
		return tag + ":last-of-type"
	default:
		return fmt.Sprintf("%s:nth-child(%d)", tag, idx)
	}
}
