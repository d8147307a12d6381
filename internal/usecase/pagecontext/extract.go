// Package pagecontext builds the bounded description of a selection that the
// reasoning model receives, and trims it to a model's token budget.
package pagecontext

import (
	"log/slog"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
	"piifinder/internal/usecase/classify"
	"piifinder/internal/usecase/selector"
)

// Extraction bounds.
const (
	DefaultMaxDepth   = 10
	maxChildren       = 50
	maxCousinsPerNode = 5
	maxSimilar        = 100
	maxForms          = 3
	maxInputs         = 10
	minParentClassLen = 3
)

// ExtractorConfig holds extractor settings.
type ExtractorConfig struct {
	MaxDepth int // ancestor levels to describe (default 10)
}

// Extractor builds PageContextDocuments.
type Extractor struct {
	maxDepth int
	logger   *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{maxDepth: cfg.MaxDepth, logger: logger}
}

// Extract describes el and its surroundings. The document holds no node
// pointers and may outlive the tree.
func (e *Extractor) Extract(el *html.Node) (*domain.PageContextDocument, error) {
	if !dom.IsElement(el) {
		return nil, domain.NewDomainError("Extractor.Extract", domain.ErrInvalidElement, "")
	}

	doc := &domain.PageContextDocument{
		Target:          Snapshot(el, targetTextLimit),
		Siblings:        []domain.ElementSnapshot{},
		Ancestors:       []domain.ElementSnapshot{},
		SimilarElements: []domain.ElementSnapshot{},
		Children:        []domain.ElementSnapshot{},
		NearbyContext:   []domain.ElementSnapshot{},
		FullHierarchy:   []string{},
		PageStructure:   extractPageStructure(dom.Top(el)),
	}

	for i, child := range dom.Children(el) {
		if i == maxChildren {
			break
		}
		doc.Children = append(doc.Children, Snapshot(child, childTextLimit))
	}

	if dom.Parent(el) != nil {
		for i, sib := range dom.Siblings(el) {
			if sib == el {
				continue
			}
			s := Snapshot(sib, siblingTextLimit)
			pos := i + 1
			s.Position = &pos
			doc.Siblings = append(doc.Siblings, s)
		}
	}

	e.extractAncestors(el, doc)
	doc.NearbyContext = cousins(el)
	doc.SimilarElements = similarElements(el)

	raw, err := RawDOM(el)
	if err != nil {
		e.logger.Warn("raw DOM capture failed", "error", err)
	}
	doc.RawDOMContext = raw

	e.logger.Debug("context extracted",
		"tag", doc.Target.Tag,
		"ancestors", len(doc.Ancestors),
		"siblings", len(doc.Siblings),
		"children", len(doc.Children),
		"similar", len(doc.SimilarElements),
		"nearby", len(doc.NearbyContext),
		"raw_dom_chars", len([]rune(doc.RawDOMContext)),
	)
	return doc, nil
}

func (e *Extractor) extractAncestors(el *html.Node, doc *domain.PageContextDocument) {
	var path []string
	for depth, cur := 0, dom.Parent(el); cur != nil && depth < e.maxDepth; depth, cur = depth+1, dom.Parent(cur) {
		limit := farAncestorText
		if depth < closeAncestorLevels {
			limit = closeAncestorText
		}
		s := Snapshot(cur, limit)
		for _, c := range dom.Classes(cur) {
			if classify.UsableClass(c) {
				s.SemanticClasses = append(s.SemanticClasses, c)
			}
		}
		s.ID = dom.ID(cur)
		doc.Ancestors = append(doc.Ancestors, s)
		path = append(path, dom.Tag(cur))
	}
	for i := len(path) - 1; i >= 0; i-- {
		doc.FullHierarchy = append(doc.FullHierarchy, path[i])
	}
}

// cousins are the first children of the parent's siblings whose text looks
// like PII.
func cousins(el *html.Node) []domain.ElementSnapshot {
	out := []domain.ElementSnapshot{}
	parent := dom.Parent(el)
	if parent == nil || dom.Parent(parent) == nil {
		return out
	}
	for _, uncle := range dom.Children(dom.Parent(parent)) {
		if uncle == parent {
			continue
		}
		for i, c := range dom.Children(uncle) {
			if i == maxCousinsPerNode {
				break
			}
			if classify.LooksLikePII(dom.Text(c)) {
				out = append(out, Snapshot(c, cousinTextLimit))
			}
		}
	}
	return out
}

// similarElements collects same-tag elements that look like PII or share a
// class with el, in the order the queries find them.
func similarElements(el *html.Node) []domain.ElementSnapshot {
	tag := dom.Tag(el)
	var queries []string
	for _, c := range dom.Classes(el) {
		if classify.IsMarkerClass(c) || classify.IsHashLike(c) || !classify.IsWordLike(c) {
			continue
		}
		queries = append(queries, tag+selector.ClassSelector(c))
	}
	if parent := dom.Parent(el); parent != nil {
		for _, c := range dom.Classes(parent) {
			if classify.IsMarkerClass(c) || len(c) < minParentClassLen || !classify.IsWordLike(c) {
				continue
			}
			queries = append(queries, selector.ClassSelector(c)+" > "+tag)
		}
	}
	queries = append(queries, tag)

	root := dom.Top(el)
	seen := map[*html.Node]bool{el: true}
	out := []domain.ElementSnapshot{}
	for _, q := range queries {
		nodes, err := dom.QueryAll(root, q)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if seen[n] {
				continue
			}
			seen[n] = true
			if len(out) == maxSimilar {
				return out
			}
			if classify.LooksLikePII(dom.Text(n)) || sharesClass(el, n) {
				out = append(out, Snapshot(n, similarTextLimit))
			}
		}
	}
	return out
}

func sharesClass(a, b *html.Node) bool {
	if dom.Tag(a) != dom.Tag(b) {
		return false
	}
	for _, c := range dom.Classes(a) {
		if dom.HasClass(b, c) {
			return true
		}
	}
	return false
}

func extractPageStructure(root *html.Node) domain.PageStructure {
	ps := domain.PageStructure{Forms: []domain.FormSummary{}, Inputs: []domain.InputSummary{}}

	forms, _ := dom.QueryAll(root, "form")
	for i, f := range forms {
		if i == maxForms {
			break
		}
		var class string
		if classes := dom.Classes(f); len(classes) > 0 {
			class = classes[0]
		}
		ps.Forms = append(ps.Forms, domain.FormSummary{
			ID:         dom.ID(f),
			Class:      class,
			Action:     dom.AttrOr(f, "action"),
			FieldCount: dom.Count(f, "input, select, textarea"),
		})
	}

	inputs, _ := dom.QueryAll(root, `input[type="text"], input[type="email"], input[type="tel"]`)
	for i, in := range inputs {
		if i == maxInputs {
			break
		}
		ps.Inputs = append(ps.Inputs, domain.InputSummary{
			Type:        dom.AttrOr(in, "type"),
			Name:        dom.AttrOr(in, "name"),
			Placeholder: dom.AttrOr(in, "placeholder"),
			ID:          dom.ID(in),
		})
	}
	return ps
}
