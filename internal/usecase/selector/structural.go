package selector

import (
	"fmt"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/usecase/classify"
)

// structuralAttrs are tried in order when id and classes are not enough.
var structuralAttrs = []string{"role", "name", "type", "aria-label", "data-testid"}

// Structural builds a selector from ids, classes, a few attributes and
// sibling positions. It always returns a path; when no path within
// Options.MaxDepth is unique the deepest one built is returned.
func Structural(el *html.Node, opts Options) (string, error) {
	if err := validate("selector.Structural", el); err != nil {
		return "", err
	}
	if sel, ok := documentLevel(el); ok {
		return sel, nil
	}
	opts = opts.normalize(el)
	path := ascend(el, opts, structuralFragment)
	if len(path) == 0 {
		return dom.Tag(el), nil
	}
	return compiledOr(joinPath(path), el), nil
}

func structuralFragment(el, root *html.Node) fragment {
	tag := dom.Tag(el)

	if id := dom.ID(el); id != "" && IsWordLike(id) {
		sel := identSelector("#", id)
		if dom.Count(root, sel) == 1 {
			return fragment{value: sel, unique: true, stop: true}
		}
	}

	base := tag
	if classes := structuralClasses(el); len(classes) > 0 {
		all := tag
		for _, c := range classes {
			all += identSelector(".", c)
		}
		if dom.Count(root, all) == 1 {
			return fragment{value: all, unique: true}
		}
		for _, c := range classes {
			sel := tag + identSelector(".", c)
			if dom.Count(root, sel) == 1 {
				return fragment{value: sel, unique: true}
			}
		}
		base = all
	}

	for _, name := range structuralAttrs {
		v, ok := dom.Attr(el, name)
		if !ok || v == "" || !IsWordLike(v) {
			continue
		}
		sel := attrSelector(tag, name, v)
		if dom.Count(root, sel) == 1 {
			return fragment{value: sel, unique: true}
		}
	}

	if dom.Parent(el) == nil {
		return fragment{value: base}
	}
	if idx, same := dom.TypeIndex(el); same > 1 {
		return fragment{value: fmt.Sprintf("%s:nth-of-type(%d)", base, idx), positional: true}
	}
	if len(dom.Siblings(el)) > 1 {
		return fragment{value: fmt.Sprintf("%s:nth-child(%d)", base, dom.ChildIndex(el)), positional: true}
	}
	return fragment{value: base, positional: base == tag}
}

// structuralClasses keeps word-like, non-marker classes without duplicates.
// Framework classes stay: this builder trades stability for precision.
func structuralClasses(el *html.Node) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range dom.Classes(el) {
		if seen[c] || !IsWordLike(c) || classify.IsMarkerClass(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
