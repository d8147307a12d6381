// Package classify holds every string-pattern rule used to judge DOM values:
// PII text shapes, unstable (generated) attribute values, framework-generated
// class names and semantic class names. All builders and the context
// extractor classify through this package so an element is never judged two
// different ways.
package classify

import (
	"regexp"
	"strings"
)

// PIIType names a detected kind of personal data.
type PIIType string

const (
	PIIEmail      PIIType = "email"
	PIIPhone      PIIType = "phone"
	PIISSN        PIIType = "ssn"
	PIICreditCard PIIType = "credit_card"
	PIIName       PIIType = "name"
	PIIAddress    PIIType = "address"
)

type piiPattern struct {
	kind PIIType
	re   *regexp.Regexp
}

// piiPatterns are tried in order; the first match wins.
var piiPatterns = []piiPattern{
	{PIIEmail, regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)},
	{PIIPhone, regexp.MustCompile(`^\+?(\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`)},
	{PIISSN, regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)},
	{PIICreditCard, regexp.MustCompile(`^\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}$`)},
	{PIIName, regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+$`)},
	{PIIAddress, regexp.MustCompile(`(?i)^\d+\s+[a-z0-9.' ]+?\s(street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|circle|cir|plaza|pl|way)\b`)},
}

// DetectPII classifies the trimmed text. It reports false when no pattern matches.
func DetectPII(text string) (PIIType, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, p := range piiPatterns {
		if p.re.MatchString(text) {
			return p.kind, true
		}
	}
	return "", false
}

// LooksLikePII reports whether the text matches any PII pattern.
func LooksLikePII(text string) bool {
	_, ok := DetectPII(text)
	return ok
}

var (
	wordLike = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	uuidRe   = regexp.MustCompile(`(?i)^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
	hashRe   = regexp.MustCompile(`(?i)^[a-f0-9]{8,}$`)
)

// IsWordLike reports whether s only holds letters, digits, '_' and '-'.
func IsWordLike(s string) bool {
	return wordLike.MatchString(s)
}

// IsUUID reports whether s is a canonical UUID.
func IsUUID(s string) bool {
	return uuidRe.MatchString(strings.TrimSpace(s))
}

// IsHashLike reports whether s is 8 or more hex digits.
func IsHashLike(s string) bool {
	return hashRe.MatchString(s)
}

// dynamicValuePatterns flag attribute and class values that change between
// renders or deploys.
var dynamicValuePatterns = []*regexp.Regexp{
	hashRe,
	uuidRe,
	regexp.MustCompile(`(?i)^(test|qa|e2e)[-_]?[a-z]*[-_]?\d+$`),
	regexp.MustCompile(`(?i)^(test|temp|tmp)[-_]|[-_](test|temp|tmp)$`),
	// React useId / legacy ids.
	regexp.MustCompile(`^:r[0-9a-z]+:$`),
	regexp.MustCompile(`(?i)^react[-_]`),
	// Ember view ids.
	regexp.MustCompile(`^ember\d+$`),
	// Angular generated ids and encapsulation attributes.
	regexp.MustCompile(`^(ng[-_]|_ng(content|host)-)`),
	regexp.MustCompile(`(?i)^(vue|svelte)[-_]`),
	// Timestamp suffixes.
	regexp.MustCompile(`[-_]\d{10,13}$`),
	regexp.MustCompile(`(?i)temp|random`),
}

var testAttributes = map[string]bool{
	"data-testid":  true,
	"data-test-id": true,
	"data-test":    true,
	"data-cy":      true,
	"data-qa":      true,
}

// IsTestAttribute reports whether name is a test-only hook.
func IsTestAttribute(name string) bool {
	return testAttributes[strings.ToLower(name)]
}

// IsDynamicAttribute reports whether value of attribute name looks generated
// and therefore unstable across renders.
func IsDynamicAttribute(name, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if IsTestAttribute(name) && strings.ContainsAny(value, "0123456789") {
		return true
	}
	for _, re := range dynamicValuePatterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// frameworkClassPatterns match class names emitted by CSS tooling.
var frameworkClassPatterns = []*regexp.Regexp{
	// CSS modules and Shopify: _17o99wp0
	regexp.MustCompile(`(?i)^_[a-z0-9]{5,}$`),
	regexp.MustCompile(`(?i)^css-[a-z0-9]+$`),
	// styled-components: sc-bdfBwQ
	regexp.MustCompile(`^sc-[a-zA-Z]+$`),
	hashRe,
	// emotion
	regexp.MustCompile(`^css-in-js-`),
	// short prefix plus hash: s-a1b2c3
	regexp.MustCompile(`(?i)^[a-z]{1,3}-[a-f0-9]{6,}$`),
}

// IsFrameworkClass reports whether cls was generated by a build tool.
func IsFrameworkClass(cls string) bool {
	for _, re := range frameworkClassPatterns {
		if re.MatchString(cls) {
			return true
		}
	}
	return false
}

// MarkerPrefix prefixes every class this system adds to a page.
const MarkerPrefix = "dp-pii-"

// Marker classes.
const (
	MarkerPreviewBlock  = "dp-pii-preview-block"
	MarkerPreviewMask   = "dp-pii-preview-mask"
	MarkerPreviewIgnore = "dp-pii-preview-ignore"
	MarkerSelected      = "dp-pii-selected"
	MarkerHover         = "dp-pii-hover"
	MarkerSelecting     = "dp-pii-selecting"
	MarkerLoading       = "dp-pii-loading"
)

// IsMarkerClass reports whether cls is one of this system's own classes.
func IsMarkerClass(cls string) bool {
	return strings.HasPrefix(cls, MarkerPrefix)
}

// semanticWords are business terms that make a class name worth anchoring on.
var semanticWords = []string{
	"customer", "billing", "shipping", "payment", "address", "email", "e-mail",
	"phone", "mobile", "name", "field", "user", "account", "profile", "contact",
	"personal", "private", "sensitive", "ssn", "social", "credit", "card",
	"birth", "dob", "gender", "zip", "postal", "city", "country", "recipient",
	"member", "subscriber", "owner", "order", "checkout", "info", "detail",
}

// IsSemanticClass reports whether cls carries business meaning and is safe to
// use as a selector fragment.
func IsSemanticClass(cls string) bool {
	if !IsWordLike(cls) || IsMarkerClass(cls) || IsFrameworkClass(cls) {
		return false
	}
	lower := strings.ToLower(cls)
	for _, w := range semanticWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// UsableClass reports whether cls may appear in a selector at all: word-like,
// not a marker and not framework-generated.
func UsableClass(cls string) bool {
	return IsWordLike(cls) && !IsMarkerClass(cls) && !IsFrameworkClass(cls)
}

// SemanticClasses filters classes down to semantic ones, keeping order and
// dropping duplicates.
func SemanticClasses(classes []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range classes {
		if seen[c] || !IsSemanticClass(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
