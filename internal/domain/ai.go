package domain

import "context"

// Selection sources.
const (
	SourceAI        = "ai"
	SourceHeuristic = "heuristic"
)

// AISelection is the result of the AI-assisted path, whichever branch produced it.
type AISelection struct {
	Selector   string   `json:"selector"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Alternates []string `json:"alternates,omitempty"`
	Pattern    string   `json:"pattern_detected,omitempty"`
	Source     string   `json:"source"`
}

// AIAnswer is the JSON object the reasoning model must return.
type AIAnswer struct {
	Selector        string   `json:"selector"`
	Confidence      *float64 `json:"confidence,omitempty"`
	Reasoning       string   `json:"reasoning"`
	Alternates      []string `json:"alternates"`
	PatternDetected string   `json:"pattern_detected"`
}

// UpgradeAdvisory recommends a stronger model for a complex selection.
type UpgradeAdvisory struct {
	CurrentModel   string `json:"current_model"`
	SuggestedModel string `json:"suggested_model"`
	Reason         string `json:"reason"`
	CanContinue    bool   `json:"can_continue"`
}

// FailureAdvisory tells the UI the AI path failed and the heuristic answered.
type FailureAdvisory struct {
	Kind    AIFailureKind `json:"kind"`
	Message string        `json:"message"`
}

// Advisor receives non-blocking advisories for the UI layer.
// Implementations must return quickly.
type Advisor interface {
	RecommendUpgrade(ctx context.Context, adv UpgradeAdvisory)
	ReportFailure(ctx context.Context, adv FailureAdvisory)
}
