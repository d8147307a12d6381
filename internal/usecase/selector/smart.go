package selector

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
	"piifinder/internal/usecase/classify"
)

// Attribute is a name/value pair.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Analysis is what the smart scorer learns about an element before building
// candidates.
type Analysis struct {
	Tag             string           `json:"tag"`
	PIIType         classify.PIIType `json:"pii_type,omitempty"`
	SemanticClasses []string         `json:"semantic_classes,omitempty"`
	StableAttrs     []Attribute      `json:"stable_attributes,omitempty"`
	DynamicAttrs    []Attribute      `json:"dynamic_attributes,omitempty"`
}

// HasPII reports whether the element text looks like personal data.
func (a Analysis) HasPII() bool { return a.PIIType != "" }

// Analyze classifies el's text, classes and attributes.
func Analyze(el *html.Node) Analysis {
	a := Analysis{
		Tag:             dom.Tag(el),
		SemanticClasses: classify.SemanticClasses(dom.Classes(el)),
	}
	if t, ok := classify.DetectPII(dom.Text(el)); ok {
		a.PIIType = t
	}
	for _, attr := range el.Attr {
		if attr.Namespace != "" || attr.Key == "class" || attr.Key == "style" {
			continue
		}
		at := Attribute{Name: attr.Key, Value: attr.Val}
		if classify.IsDynamicAttribute(attr.Key, attr.Val) {
			a.DynamicAttrs = append(a.DynamicAttrs, at)
			continue
		}
		if isStableAttribute(attr.Key, attr.Val) {
			a.StableAttrs = append(a.StableAttrs, at)
		}
	}
	return a
}

func isStableAttribute(name, value string) bool {
	if name == "id" || value == "" || len(value) >= maxAttrValueLen || classify.IsTestAttribute(name) {
		return false
	}
	if strings.ContainsAny(value, "\n\r") {
		return false
	}
	return strings.HasPrefix(name, "data-") || strings.HasPrefix(name, "aria-") ||
		name == "role" || name == "name" || name == "type" ||
		name == "placeholder" || name == "for" || name == "autocomplete" || name == "itemprop"
}

// Smart scores several candidate selectors and returns the best one. A
// candidate is admissible when it matches the element and no more than
// FamilyBound elements in total, so repeated PII blocks can share a selector.
type Smart struct {
	opts Options
}

// NewSmart creates a smart scorer.
func NewSmart(opts Options) *Smart {
	return &Smart{opts: opts}
}

// Generate returns the best selector for el.
func (s *Smart) Generate(el *html.Node) (string, error) {
	c, err := s.Best(el)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// Best returns the winning candidate, falling back through weaker selectors
// when none is admissible. The returned value is never empty.
func (s *Smart) Best(el *html.Node) (domain.SelectorCandidate, error) {
	cands, err := s.Candidates(el)
	if err != nil {
		return domain.SelectorCandidate{}, err
	}
	if len(cands) > 0 {
		return cands[0], nil
	}
	return s.fallback(el), nil
}

// Candidates returns every admissible candidate, best first.
func (s *Smart) Candidates(el *html.Node) ([]domain.SelectorCandidate, error) {
	if err := validate("selector.Smart", el); err != nil {
		return nil, err
	}
	if sel, ok := documentLevel(el); ok {
		return []domain.SelectorCandidate{{Value: sel, Unique: true, Tier: domain.TierStructural, Kind: domain.KindStructural, Matches: 1}}, nil
	}
	opts := s.opts.normalize(el)
	a := Analyze(el)
	tag := a.Tag

	var out []domain.SelectorCandidate
	seen := make(map[string]bool)
	add := func(value string, tier domain.Tier, kind domain.CandidateKind) {
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		nodes, err := dom.QueryAll(opts.Root, value)
		if err != nil || !dom.Contains(nodes, el) || len(nodes) > opts.FamilyBound {
			return
		}
		out = append(out, domain.SelectorCandidate{
			Value:   value,
			Unique:  len(nodes) == 1,
			Tier:    tier,
			Kind:    kind,
			Matches: len(nodes),
		})
	}

	if id := dom.ID(el); id != "" && IsWordLike(id) && !classify.IsDynamicAttribute("id", id) {
		add(identSelector("#", id), domain.TierSemanticID, domain.KindSemanticID)
	}
	for _, at := range a.StableAttrs {
		add(attrSelector(tag, at.Name, at.Value), domain.TierStableAttribute, domain.KindStableAttribute)
	}
	if len(a.SemanticClasses) > 0 {
		combo := tag
		for _, c := range a.SemanticClasses {
			combo += identSelector(".", c)
		}
		add(combo, domain.TierSemanticClasses, domain.KindSemanticClasses)
		for _, c := range a.SemanticClasses {
			add(tag+identSelector(".", c), domain.TierSemanticClasses, domain.KindSemanticClasses)
		}
	}
	if a.HasPII() {
		if fam, ok := familySelector(el, opts.Root, a.PIIType); ok {
			add(fam, domain.TierPIIFamily, domain.KindPIIPattern)
		}
	}
	for _, sel := range contextualSelectors(el, a) {
		add(sel, domain.TierContextual, domain.KindContextual)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Better(out[j]) })
	return out, nil
}

var positionalTail = regexp.MustCompile(`:(nth-child\(\d+\)|first-child)$`)

func (s *Smart) fallback(el *html.Node) domain.SelectorCandidate {
	opts := s.opts.normalize(el)
	count := func(sel string) int {
		nodes, err := dom.QueryAll(opts.Root, sel)
		if err != nil || !dom.Contains(nodes, el) {
			return 0
		}
		return len(nodes)
	}

	if sel, ok := semanticAncestorSelector(el); ok {
		if n := count(sel); n > 0 {
			return domain.SelectorCandidate{Value: sel, Unique: n == 1, Tier: domain.TierContextual, Kind: domain.KindContextual, Matches: n}
		}
	}
	if sel, err := Semantic(el, s.opts); err == nil && !positionalTail.MatchString(sel) {
		if n := count(sel); n > 0 {
			return domain.SelectorCandidate{Value: sel, Unique: n == 1, Tier: domain.TierStructural, Kind: domain.KindStructural, Matches: n}
		}
	}
	tag := dom.Tag(el)
	n := count(tag)
	return domain.SelectorCandidate{Value: tag, Unique: n == 1, Tier: domain.TierStructural, Kind: domain.KindStructural, Matches: n}
}

// familySelector finds a selector shared by el and at least one other element
// of the same tag holding the same kind of PII. Members must share a usable
// class, or their parents must share one.
func familySelector(el, root *html.Node, pii classify.PIIType) (string, bool) {
	tag := dom.Tag(el)
	var members []*html.Node
	dom.Walk(root, func(n *html.Node) {
		if n == el || dom.Tag(n) != tag {
			return
		}
		if t, ok := classify.DetectPII(dom.Text(n)); ok && t == pii {
			members = append(members, n)
		}
	})
	if len(members) == 0 {
		return "", false
	}

	for _, c := range stableClasses(el) {
		for _, m := range members {
			if dom.HasClass(m, c) {
				return tag + identSelector(".", c), true
			}
		}
	}
	parent := dom.Parent(el)
	if parent == nil {
		return "", false
	}
	for _, c := range stableClasses(parent) {
		for _, m := range members {
			if p := dom.Parent(m); p != nil && dom.HasClass(p, c) {
				return identSelector(".", c) + " > " + tag, true
			}
		}
	}
	return "", false
}

// stableClasses are usable classes that do not look generated.
func stableClasses(n *html.Node) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range dom.Classes(n) {
		if seen[c] || !classify.UsableClass(c) || classify.IsDynamicAttribute("class", c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// contextualSelectors anchor el under its nearest meaningful ancestor.
func contextualSelectors(el *html.Node, a Analysis) []string {
	for _, anc := range dom.Ancestors(el) {
		var anchor string
		if id := dom.ID(anc); id != "" && IsWordLike(id) && !classify.IsDynamicAttribute("id", id) {
			anchor = identSelector("#", id)
		} else if sem := classify.SemanticClasses(dom.Classes(anc)); len(sem) > 0 {
			anchor = identSelector(".", sem[0])
		}
		if anchor == "" {
			continue
		}
		var out []string
		if len(a.SemanticClasses) > 0 {
			out = append(out, anchor+" "+a.Tag+identSelector(".", a.SemanticClasses[0]))
		}
		if anc == dom.Parent(el) {
			out = append(out, anchor+" > "+a.Tag)
		}
		return append(out, anchor+" "+a.Tag)
	}
	return nil
}
