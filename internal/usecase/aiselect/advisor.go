package aiselect

import (
	"context"
	"log/slog"

	"piifinder/internal/domain"
)

// NopAdvisor discards advisories.
type NopAdvisor struct{}

func (NopAdvisor) RecommendUpgrade(context.Context, domain.UpgradeAdvisory) {}
func (NopAdvisor) ReportFailure(context.Context, domain.FailureAdvisory)    {}

// LogAdvisor writes advisories to a logger. The CLI uses it in place of a UI.
type LogAdvisor struct {
	Logger *slog.Logger
}

func (a LogAdvisor) RecommendUpgrade(ctx context.Context, adv domain.UpgradeAdvisory) {
	a.Logger.InfoContext(ctx, "model upgrade recommended",
		"current", adv.CurrentModel,
		"suggested", adv.SuggestedModel,
		"reason", adv.Reason,
	)
}

func (a LogAdvisor) ReportFailure(ctx context.Context, adv domain.FailureAdvisory) {
	a.Logger.WarnContext(ctx, "ai selection unavailable, heuristic used",
		"kind", adv.Kind,
		"message", adv.Message,
	)
}

var (
	_ domain.Advisor = NopAdvisor{}
	_ domain.Advisor = LogAdvisor{}
)
