package pagecontext

import (
	"log/slog"
	"strconv"

	"piifinder/internal/domain"
)

// Level names how far a context document was trimmed.
type Level string

const (
	LevelNone       Level = "none"
	LevelLight      Level = "light"
	LevelModerate   Level = "moderate"
	LevelAggressive Level = "aggressive"
	LevelEmergency  Level = "emergency"
)

// Budget ratios of a model's context limit.
const (
	SafetyRatio    = 0.7
	EmergencyRatio = 0.9
)

// Stage records the estimate after one trimming step and every cut applied
// so far.
type Stage struct {
	Level    Level    `json:"level"`
	Estimate int      `json:"estimate"`
	Cuts     []string `json:"cuts"`
}

// TrimReport describes a Trim call. Estimates never increase from one stage
// to the next and each stage's cuts contain the previous stage's.
// OverHardLimit is set when every cut has been applied and the estimate is
// still above EmergencyRatio of the limit, which happens for limits smaller
// than the document's fixed skeleton.
type TrimReport struct {
	Level         Level   `json:"level"`
	ContextLimit  int     `json:"context_limit"`
	Initial       int     `json:"initial"`
	Final         int     `json:"final"`
	Stages        []Stage `json:"stages"`
	OverHardLimit bool    `json:"over_hard_limit,omitempty"`
}

// Trimmer shrinks context documents to fit a model's budget.
type Trimmer struct {
	counter domain.TokenCounter
	logger  *slog.Logger
}

// NewTrimmer creates a Trimmer. A nil counter uses CharEstimator.
func NewTrimmer(counter domain.TokenCounter, logger *slog.Logger) *Trimmer {
	if counter == nil {
		counter = CharEstimator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trimmer{counter: counter, logger: logger}
}

// Estimate measures doc with the trimmer's counter.
func (t *Trimmer) Estimate(doc *domain.PageContextDocument) int {
	return EstimateTokens(doc, t.counter)
}

// Trim shrinks doc in place until its estimate is within 70% of
// contextLimit, in fixed stages that only ever remove or shorten fields.
// After the aggressive stage, a document still above 90% of the limit loses
// its raw HTML, then its element lists, then its hierarchy and target text.
// A document that is still over 90% after that is returned with
// OverHardLimit set.
func (t *Trimmer) Trim(doc *domain.PageContextDocument, contextLimit int) TrimReport {
	est := t.Estimate(doc)
	report := TrimReport{Level: LevelNone, ContextLimit: contextLimit, Initial: est, Final: est}
	safe := float64(contextLimit) * SafetyRatio
	hard := float64(contextLimit) * EmergencyRatio

	if float64(est) <= safe {
		return report
	}
	t.logger.Info("context over budget, trimming",
		"estimate", est, "limit", contextLimit, "safe_limit", int(safe))

	var cuts []string
	apply := func(level Level, steps ...cut) {
		for _, s := range steps {
			s.apply(doc)
			cuts = append(cuts, s.name)
		}
		est = t.Estimate(doc)
		report.Level = level
		report.Final = est
		report.Stages = append(report.Stages, Stage{
			Level:    level,
			Estimate: est,
			Cuts:     append([]string(nil), cuts...),
		})
		t.logger.Debug("trim stage applied", "level", level, "estimate", est)
	}

	apply(LevelLight, capSimilar(50), capNearby(10))
	if float64(est) <= safe {
		return report
	}
	apply(LevelModerate, capRaw(20_000), capSimilar(25), capChildren(25))
	if float64(est) <= safe {
		return report
	}
	apply(LevelAggressive,
		capRaw(10_000), capSimilar(10), capChildren(10), capSiblings(10), capNearby(0), clearPageStructure)

	if float64(est) > hard {
		t.logger.Warn("emergency trim: removing raw DOM", "estimate", est, "limit", contextLimit)
		apply(LevelEmergency, capRaw(0))
	}
	if float64(est) > hard {
		apply(LevelEmergency,
			capSimilar(0), capChildren(0), capSiblings(0), capAncestors(0), capTargetText(200))
	}
	if float64(est) > hard {
		apply(LevelEmergency, capHierarchy(0), capTargetText(0))
	}
	if float64(est) > hard {
		report.OverHardLimit = true
		t.logger.Warn("context still over hard limit after all cuts",
			"estimate", est, "limit", contextLimit, "hard_limit", int(hard))
	}
	return report
}

// cut is one named, idempotent trimming step.
type cut struct {
	name  string
	apply func(*domain.PageContextDocument)
}

func capSnapshots(list []domain.ElementSnapshot, n int) []domain.ElementSnapshot {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func capSimilar(n int) cut {
	return cut{name: "similarElements<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.SimilarElements = capSnapshots(d.SimilarElements, n)
	}}
}

func capNearby(n int) cut {
	return cut{name: "nearbyContext<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.NearbyContext = capSnapshots(d.NearbyContext, n)
	}}
}

func capChildren(n int) cut {
	return cut{name: "children<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.Children = capSnapshots(d.Children, n)
	}}
}

func capSiblings(n int) cut {
	return cut{name: "siblings<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.Siblings = capSnapshots(d.Siblings, n)
	}}
}

func capAncestors(n int) cut {
	return cut{name: "ancestors<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.Ancestors = capSnapshots(d.Ancestors, n)
	}}
}

func capHierarchy(n int) cut {
	return cut{name: "fullHierarchy<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		if len(d.FullHierarchy) > n {
			d.FullHierarchy = d.FullHierarchy[:n]
		}
	}}
}

func capRaw(n int) cut {
	return cut{name: "rawDOMContext<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.RawDOMContext = truncate(d.RawDOMContext, n)
	}}
}

func capTargetText(n int) cut {
	return cut{name: "target.text<=" + strconv.Itoa(n), apply: func(d *domain.PageContextDocument) {
		d.Target.Text = truncate(d.Target.Text, n)
	}}
}

var clearPageStructure = cut{name: "pageStructure=empty", apply: func(d *domain.PageContextDocument) {
	d.PageStructure = domain.PageStructure{Forms: []domain.FormSummary{}, Inputs: []domain.InputSummary{}}
}}
