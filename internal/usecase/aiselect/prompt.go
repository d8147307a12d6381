package aiselect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"piifinder/internal/domain"
)

// promptSectionLimit caps the ancestors, siblings and similar elements
// quoted in the prompt. The full lists still count toward the budget.
const promptSectionLimit = 5

const promptRules = `You write CSS selectors that find PII (personally identifiable information) on web pages so session replay tools can block it.

Rules:

1. Never use classes generated by build tools. They change on every deploy:
   - underscore followed by random characters (_17o99wp0, _15b7gxl0)
   - css- or sc- followed by random characters (css-1x2y3z, sc-bdfBwQ)
   - long hexadecimal hashes

2. Prefer identifiers that carry meaning and survive rebuilds:
   - business class names (.customer-address, .billing-info, .user-email)
   - purposeful data attributes ([data-field="email"], [data-pii="name"])
   - form field names and ids ([name="email"], #billing_address)
   - ARIA labels ([aria-label="Customer name"])

3. Balance specificity:
   - too broad: a single generic class that appears all over the page
   - too narrow: div > div > div > span:nth-child(3)
   - good: a semantic ancestor plus the element (.checkout-summary .customer-email)
   - good: a semantic parent plus a structural child (.billing-address > p:last-child)

4. Use the ancestor chain. Anchor on the closest ancestor that names the component.

5. When several similar PII elements exist, find the shared semantic parent so
   one selector covers them, without catching unrelated elements.

6. Avoid data-testid and other test hooks, inline styles, long positional
   chains without an anchor, and generated ids such as :r1u:, ember123 or
   react-id-5.`

const promptAnswer = `Reply with one JSON object and nothing else:
{
  "selector": "best CSS selector, raw form, no escaping",
  "confidence": 0.0 to 1.0,
  "reasoning": "why the selector is stable and what pattern it relies on",
  "alternates": ["backup selector", "another backup"],
  "pattern_detected": "for example 'billing address block'"
}`

// BuildPrompt renders the request text for doc. The clicked element's
// literal text is quoted so the model can confirm its selector reaches it.
func BuildPrompt(doc *domain.PageContextDocument) (string, error) {
	var b strings.Builder
	b.WriteString(promptRules)
	b.WriteString("\n\nCONTEXT\n")

	if err := writeSection(&b, "Target element", doc.Target); err != nil {
		return "", err
	}
	if len(doc.FullHierarchy) > 0 {
		fmt.Fprintf(&b, "\nDOM path: %s\n", strings.Join(doc.FullHierarchy, " > "))
	}
	if err := writeSection(&b, "Ancestors, closest first", head(doc.Ancestors)); err != nil {
		return "", err
	}
	if len(doc.Siblings) > 0 {
		if err := writeSection(&b, "Siblings", head(doc.Siblings)); err != nil {
			return "", err
		}
	}
	if len(doc.NearbyContext) > 0 {
		if err := writeSection(&b, "Nearby PII elements", doc.NearbyContext); err != nil {
			return "", err
		}
	}
	if len(doc.SimilarElements) > 0 {
		title := fmt.Sprintf("Similar elements (%d found)", len(doc.SimilarElements))
		if err := writeSection(&b, title, head(doc.SimilarElements)); err != nil {
			return "", err
		}
	}
	if len(doc.PageStructure.Forms) > 0 || len(doc.PageStructure.Inputs) > 0 {
		if err := writeSection(&b, "Page structure", doc.PageStructure); err != nil {
			return "", err
		}
	}
	if doc.RawDOMContext != "" {
		b.WriteString("\nHTML around the element:\n```html\n")
		b.WriteString(doc.RawDOMContext)
		b.WriteString("\n```\n")
	}

	text := doc.Target.Text
	if text == "" {
		text = "[no text]"
	}
	fmt.Fprintf(&b, "\nThe user clicked the element whose text is %q. The selector must match this element or the container holding this value.\n\n", text)
	b.WriteString(promptAnswer)
	return b.String(), nil
}

func head(list []domain.ElementSnapshot) []domain.ElementSnapshot {
	if len(list) > promptSectionLimit {
		return list[:promptSectionLimit]
	}
	return list
}

func writeSection(b *strings.Builder, title string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", strings.ToLower(title), err)
	}
	fmt.Fprintf(b, "\n%s:\n%s", title, buf.String())
	return nil
}
