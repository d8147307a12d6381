package pagecontext

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
	"piifinder/internal/usecase/classify"
)

// Text limits, in characters.
const (
	targetTextLimit     = 1000
	childTextLimit      = 300
	siblingTextLimit    = 300
	closeAncestorText   = 1000
	farAncestorText     = 300
	cousinTextLimit     = 200
	similarTextLimit    = 250
	closeAncestorLevels = 3
	snapshotAttrLimit   = 100
	snapshotClassLimit  = 10
	snapshotClassMinLen = 2
	snapshotClassMaxLen = 50
)

// snapshotAttrs are the only attributes copied into a snapshot. Test hooks
// are left out on purpose.
var snapshotAttrs = []string{
	"id", "name", "type", "role", "aria-label", "placeholder",
	"data-field", "data-type", "data-name", "data-pii",
	"autocomplete", "for", "value",
}

// Snapshot captures el as plain data, keeping at most maxText characters of
// its trimmed text.
func Snapshot(el *html.Node, maxText int) domain.ElementSnapshot {
	children := len(dom.Children(el))
	s := domain.ElementSnapshot{
		Tag:          dom.Tag(el),
		Text:         truncate(strings.TrimSpace(dom.Text(el)), maxText),
		Attributes:   make(map[string]string),
		Classes:      snapshotClasses(dom.Classes(el)),
		HasChildren:  children > 0,
		ChildCount:   children,
		SiblingCount: len(dom.Siblings(el)) - 1,
	}
	for _, name := range snapshotAttrs {
		if v, ok := dom.Attr(el, name); ok && v != "" && len(v) < snapshotAttrLimit {
			s.Attributes[name] = v
		}
	}
	return s
}

func snapshotClasses(classes []string) []string {
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		if len(c) < snapshotClassMinLen || len(c) > snapshotClassMaxLen {
			continue
		}
		if classify.IsMarkerClass(c) || classify.IsFrameworkClass(c) {
			continue
		}
		out = append(out, c)
		if len(out) == snapshotClassLimit {
			break
		}
	}
	return out
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
