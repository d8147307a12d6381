package domain

import "strings"

// Strategy selects which builder answers a selection.
type Strategy string

const (
	StrategyStructural Strategy = "structural"
	StrategySemantic   Strategy = "semantic"
	StrategySmart      Strategy = "smart"
)

// ParseStrategy parses a strategy name. Empty input yields StrategySmart.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategySmart:
		return StrategySmart, nil
	case StrategyStructural:
		return StrategyStructural, nil
	case StrategySemantic:
		return StrategySemantic, nil
	default:
		return "", NewDomainError("ParseStrategy", ErrInvalidInput, "unknown strategy "+s)
	}
}

// CandidateKind describes where a selector candidate came from.
type CandidateKind string

const (
	KindSemanticID      CandidateKind = "semantic-id"
	KindStableAttribute CandidateKind = "stable-attribute"
	KindSemanticClasses CandidateKind = "semantic-classes"
	KindContextual      CandidateKind = "contextual"
	KindPIIPattern      CandidateKind = "pii-pattern"
	KindStructural      CandidateKind = "structural"
)

// Tier ranks selector candidates. Lower values rank higher.
type Tier int

const (
	TierSemanticID Tier = iota
	TierPIIFamily
	TierStableAttribute
	TierSemanticClasses
	TierContextual
	TierStructural
)

var tierScores = map[Tier]float64{
	TierSemanticID:      0.95,
	TierPIIFamily:       0.9,
	TierStableAttribute: 0.8,
	TierSemanticClasses: 0.7,
	TierContextual:      0.6,
	TierStructural:      0.3,
}

// Score is the display confidence for a tier. Ranking never uses it.
func (t Tier) Score() float64 { return tierScores[t] }

func (t Tier) String() string {
	switch t {
	case TierSemanticID:
		return "semantic-id"
	case TierPIIFamily:
		return "pii-family"
	case TierStableAttribute:
		return "stable-attribute"
	case TierSemanticClasses:
		return "semantic-classes"
	case TierContextual:
		return "contextual"
	default:
		return "structural"
	}
}

// SelectorCandidate is a transient, ranked selector proposal.
type SelectorCandidate struct {
	Value   string        `json:"value"`
	Unique  bool          `json:"unique"`
	Tier    Tier          `json:"tier"`
	Kind    CandidateKind `json:"kind"`
	Matches int           `json:"matches"`
}

// Score reports the candidate's display confidence.
func (c SelectorCandidate) Score() float64 { return c.Tier.Score() }

// Better reports whether c outranks o: higher tier first, then fewer matches,
// then the shorter selector, then lexical order.
func (c SelectorCandidate) Better(o SelectorCandidate) bool {
	if c.Tier != o.Tier {
		return c.Tier < o.Tier
	}
	if c.Matches != o.Matches {
		return c.Matches < o.Matches
	}
	if len(c.Value) != len(o.Value) {
		return len(c.Value) < len(o.Value)
	}
	return c.Value < o.Value
}

// SelectorTypeBlock is the only stored selector type.
const SelectorTypeBlock = "block"

// StoredSelector is the persisted shape of a chosen selector, keyed by hostname.
type StoredSelector struct {
	Selector string `json:"selector"`
	Type     string `json:"type"`
}

// Selection is what a completed selection gesture produces.
type Selection struct {
	SessionID    string   `json:"session_id,omitempty"`
	Selector     string   `json:"selector"`
	Alternatives []string `json:"alternatives,omitempty"`
	Type         string   `json:"type"`
	Strategy     Strategy `json:"strategy"`
	Confidence   float64  `json:"confidence,omitempty"`
	Reasoning    string   `json:"reasoning,omitempty"`
	Source       string   `json:"source,omitempty"`
}
