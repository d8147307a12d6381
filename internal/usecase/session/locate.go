package session

import (
	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
)

// Locate stands in for the click: it returns the first element matching the
// CSS selector target or, when target is empty, the deepest element whose
// text contains text.
func Locate(doc *dom.Document, target, text string) (*html.Node, error) {
	switch {
	case target != "":
		nodes, err := doc.QueryAll(target)
		if err != nil {
			return nil, domain.NewDomainError("session.Locate", domain.ErrInvalidSelector, err.Error())
		}
		if len(nodes) == 0 {
			return nil, domain.NewDomainError("session.Locate", domain.ErrTargetNotFound, target)
		}
		return nodes[0], nil
	case text != "":
		el, err := dom.FindByText(doc.Body(), text)
		if err != nil {
			return nil, domain.NewDomainError("session.Locate", domain.ErrTargetNotFound, err.Error())
		}
		return el, nil
	default:
		return nil, domain.NewDomainError("session.Locate", domain.ErrInvalidInput, "a target selector or text is required")
	}
}
