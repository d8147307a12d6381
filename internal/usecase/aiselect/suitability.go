package aiselect

import (
	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
)

// Complexity thresholds.
const (
	deepNestingLevels = 5
	manyClasses       = 10
	manyChildren      = 50
)

// Complexity is the outcome of the model suitability check.
type Complexity struct {
	Complex bool   `json:"complex"`
	Reason  string `json:"reason,omitempty"`
}

// AssessComplexity reports whether el is likely too hard for the default
// model. The first matching signal names the reason.
func AssessComplexity(el *html.Node) Complexity {
	deep := len(dom.Ancestors(el)) >= deepNestingLevels
	classes := len(dom.Classes(el)) > manyClasses
	children := len(dom.Children(el)) > manyChildren
	isolated := dom.InTemplate(el)
	_, hasName := dom.Attr(el, "name")
	ambiguous := dom.ID(el) == "" && !hasName && dom.Tag(el) == "div"

	switch {
	case isolated:
		return Complexity{Complex: true, Reason: "element is inside an isolated sub-tree"}
	case children:
		return Complexity{Complex: true, Reason: "complex nested structure"}
	case ambiguous:
		return Complexity{Complex: true, Reason: "ambiguous PII element"}
	case deep && classes:
		return Complexity{Complex: true, Reason: "deep nesting with many classes"}
	}
	return Complexity{}
}

// upgradeAdvisory returns the recommendation for a complex element, or nil
// when model is not the default or the element is simple.
func upgradeAdvisory(el *html.Node, model string) *domain.UpgradeAdvisory {
	if model != domain.DefaultModel {
		return nil
	}
	c := AssessComplexity(el)
	if !c.Complex {
		return nil
	}
	return &domain.UpgradeAdvisory{
		CurrentModel:   model,
		SuggestedModel: domain.UpgradeModel,
		Reason:         c.Reason,
		CanContinue:    true,
	}
}
