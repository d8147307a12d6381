package domain

// ElementSnapshot is plain data extracted from one DOM node.
type ElementSnapshot struct {
	Tag             string            `json:"tag"`
	Text            string            `json:"text"`
	Attributes      map[string]string `json:"attributes"`
	Classes         []string          `json:"classes"`
	HasChildren     bool              `json:"hasChildren"`
	ChildCount      int               `json:"childCount"`
	SiblingCount    int               `json:"siblingCount"`
	// Position is the 1-based index among the parent's element children,
	// counting the target. Set on sibling snapshots only.
	Position        *int              `json:"position,omitempty"`
	SemanticClasses []string          `json:"semanticClasses,omitempty"`
	ID              string            `json:"id,omitempty"`
}

// FormSummary condenses one <form>.
type FormSummary struct {
	ID         string `json:"id"`
	Class      string `json:"class"`
	Action     string `json:"action"`
	FieldCount int    `json:"fieldCount"`
}

// InputSummary condenses one text-like <input>.
type InputSummary struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	ID          string `json:"id"`
}

// PageStructure is the page-level summary sent alongside the element context.
type PageStructure struct {
	Forms  []FormSummary  `json:"forms"`
	Inputs []InputSummary `json:"inputs"`
}

// PageContextDocument aggregates everything the reasoning model sees about a
// selection. Trimming only ever removes or shortens fields.
type PageContextDocument struct {
	Target          ElementSnapshot   `json:"target"`
	Siblings        []ElementSnapshot `json:"siblings"`
	Ancestors       []ElementSnapshot `json:"ancestors"`
	SimilarElements []ElementSnapshot `json:"similarElements"`
	Children        []ElementSnapshot `json:"children"`
	PageStructure   PageStructure     `json:"pageStructure"`
	NearbyContext   []ElementSnapshot `json:"nearbyContext"`
	FullHierarchy   []string          `json:"fullHierarchy"`
	RawDOMContext   string            `json:"rawDOMContext,omitempty"`
}

// ModelConfig is the static token budget of a model.
type ModelConfig struct {
	ContextLimit   int `json:"context_limit"`
	RecommendedMax int `json:"recommended_max"`
}

// DefaultModel is used when a request names no model or an unknown one.
const DefaultModel = "gemini-1.5-flash"

// UpgradeModel is suggested when a selection looks too complex for DefaultModel.
const UpgradeModel = "gemini-1.5-pro"

var modelConfigs = map[string]ModelConfig{
	"gemini-1.5-flash":     {ContextLimit: 1_000_000, RecommendedMax: 100_000},
	"gemini-1.5-pro":       {ContextLimit: 2_000_000, RecommendedMax: 200_000},
	"gemini-2.0-flash-exp": {ContextLimit: 1_000_000, RecommendedMax: 100_000},
	"gemini-2.5-flash":     {ContextLimit: 1_048_576, RecommendedMax: 100_000},
	"gemini-2.5-pro":       {ContextLimit: 1_048_576, RecommendedMax: 200_000},
}

// LookupModel returns the config for model, falling back to DefaultModel.
// The second result reports whether model itself was known.
func LookupModel(model string) (ModelConfig, bool) {
	if cfg, ok := modelConfigs[model]; ok {
		return cfg, true
	}
	return modelConfigs[DefaultModel], false
}

// ModelNames lists the known model identifiers.
func ModelNames() []string {
	names := make([]string, 0, len(modelConfigs))
	for name := range modelConfigs {
		names = append(names, name)
	}
	return names
}

// TokenCounter estimates the token cost of a text.
type TokenCounter interface {
	CountText(text string) int
}
