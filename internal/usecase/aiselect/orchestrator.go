// Package aiselect asks a text-generation model for a PII selector and falls
// back to the heuristic builder whenever the model cannot deliver one.
package aiselect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
	"piifinder/internal/infra/tracer"
	"piifinder/internal/usecase/pagecontext"
	"piifinder/internal/usecase/selector"
)

// Generation defaults.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultTemperature     = 0.2
	DefaultTopK            = 1
	DefaultTopP            = 0.8
	DefaultMaxOutputTokens = 2000

	defaultConfidence   = 0.8
	alternateConfidence = 0.6
)

// Config holds orchestrator settings.
type Config struct {
	Model           string
	APIKey          string
	Timeout         time.Duration
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
	Selector        selector.Options
	Context         pagecontext.ExtractorConfig
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = domain.DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return c
}

// Request carries per-call overrides of the configured key and model.
type Request struct {
	APIKey string
	Model  string
}

// Outcome is the result of one Generate call. Selection is always set.
type Outcome struct {
	Selection domain.AISelection      `json:"selection"`
	Trim      *pagecontext.TrimReport `json:"trim,omitempty"`
	Upgrade   *domain.UpgradeAdvisory `json:"upgrade,omitempty"`
	Failure   *domain.FailureAdvisory `json:"failure,omitempty"`
}

// Orchestrator runs the AI-assisted selection flow.
type Orchestrator struct {
	gen       domain.TextGenerator
	advisor   domain.Advisor
	extractor *pagecontext.Extractor
	trimmer   *pagecontext.Trimmer
	cfg       Config
	logger    *slog.Logger
}

// New creates an Orchestrator. A nil advisor discards advisories and a nil
// counter uses the character estimator.
func New(gen domain.TextGenerator, advisor domain.Advisor, counter domain.TokenCounter, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if advisor == nil {
		advisor = NopAdvisor{}
	}
	return &Orchestrator{
		gen:       gen,
		advisor:   advisor,
		extractor: pagecontext.NewExtractor(cfg.Context, logger),
		trimmer:   pagecontext.NewTrimmer(counter, logger),
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Generate returns a selector for el. Only an invalid element is an error:
// every failure of the model path is reported to the advisor and answered
// with the smart heuristic selector.
func (o *Orchestrator) Generate(ctx context.Context, el *html.Node, req Request) (*Outcome, error) {
	if !dom.IsElement(el) {
		return nil, domain.NewDomainError("Orchestrator.Generate", domain.ErrInvalidElement, "")
	}

	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = o.cfg.APIKey
	}

	ctx, span := tracer.StartSpan(ctx, "aiselect.generate",
		trace.WithAttributes(
			tracer.StringAttr("ai.model", model),
			tracer.StringAttr("element.tag", dom.Tag(el)),
		),
	)
	defer span.End()

	out := &Outcome{}
	if apiKey == "" || o.gen == nil {
		return o.fallback(ctx, span, el, out, domain.ErrMissingAPIKey)
	}

	if adv := upgradeAdvisory(el, model); adv != nil {
		o.logger.Warn("complex element, stronger model recommended",
			"model", model, "suggested", adv.SuggestedModel, "reason", adv.Reason)
		o.advisor.RecommendUpgrade(ctx, *adv)
		out.Upgrade = adv
	}

	sel, report, err := o.safeAsk(ctx, el, model, apiKey)
	out.Trim = report
	if err != nil {
		return o.fallback(ctx, span, el, out, err)
	}

	out.Selection = *sel
	span.SetAttributes(tracer.Selection(sel.Selector, sel.Source, sel.Confidence)...)
	tracer.SetOK(span)
	o.logger.Info("ai selector generated",
		"selector", sel.Selector, "confidence", sel.Confidence, "pattern", sel.Pattern)
	return out, nil
}

// safeAsk runs ask and turns a panic anywhere on the model path into an
// error, so a misbehaving generator still ends in the heuristic answer.
func (o *Orchestrator) safeAsk(ctx context.Context, el *html.Node, model, apiKey string) (sel *domain.AISelection, report *pagecontext.TrimReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ai selector path panicked", "model", model, "panic", r)
			sel = nil
			err = fmt.Errorf("text generator panicked: %v", r)
		}
	}()
	return o.ask(ctx, el, model, apiKey)
}

// ask runs extract, trim, prompt, call and validation.
func (o *Orchestrator) ask(ctx context.Context, el *html.Node, model, apiKey string) (*domain.AISelection, *pagecontext.TrimReport, error) {
	doc, err := o.extractor.Extract(el)
	if err != nil {
		return nil, nil, err
	}

	mc, known := domain.LookupModel(model)
	if !known {
		o.logger.Warn("unknown model, using default budget", "model", model, "default", domain.DefaultModel)
	}
	report := o.trimmer.Trim(doc, mc.ContextLimit)
	if report.Final > mc.RecommendedMax {
		o.logger.Info("context above recommended size", "estimate", report.Final, "recommended", mc.RecommendedMax)
	}

	prompt, err := BuildPrompt(doc)
	if err != nil {
		return nil, &report, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.gen.Generate(callCtx, domain.GenerateRequest{
		Model:           model,
		APIKey:          apiKey,
		Prompt:          prompt,
		Temperature:     o.cfg.Temperature,
		TopK:            o.cfg.TopK,
		TopP:            o.cfg.TopP,
		MaxOutputTokens: o.cfg.MaxOutputTokens,
		JSONResponse:    true,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w after %s: %v", domain.ErrTimeout, o.cfg.Timeout, err)
		}
		return nil, &report, err
	}

	answer, err := ParseAnswer(resp.Text)
	if err != nil {
		return nil, &report, err
	}
	sel, err := o.accept(el, answer)
	return sel, &report, err
}

// accept validates the answer's selector against the live document, with any
// escaping removed. An invalid primary falls back to the first alternate at
// reduced confidence.
func (o *Orchestrator) accept(el *html.Node, answer *domain.AIAnswer) (*domain.AISelection, error) {
	root := dom.Top(el)

	confidence := defaultConfidence
	if answer.Confidence != nil {
		confidence = clamp(*answer.Confidence)
	}
	reasoning := answer.Reasoning
	if reasoning == "" {
		reasoning = "AI-generated selector"
	}

	if answer.Selector != "" && o.queryable(root, el, answer.Selector) {
		return &domain.AISelection{
			Selector:   answer.Selector,
			Confidence: confidence,
			Reasoning:  reasoning,
			Alternates: answer.Alternates,
			Pattern:    answer.PatternDetected,
			Source:     domain.SourceAI,
		}, nil
	}

	o.logger.Warn("ai selector failed validation", "selector", answer.Selector)
	if len(answer.Alternates) > 0 {
		alt := strings.TrimSpace(answer.Alternates[0])
		if alt != "" && o.queryable(root, el, alt) {
			return &domain.AISelection{
				Selector:   alt,
				Confidence: alternateConfidence,
				Reasoning:  "primary selector failed validation, using first alternate",
				Pattern:    answer.PatternDetected,
				Source:     domain.SourceAI,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrNoValidSelector, answer.Selector)
}

// queryable reports whether sel compiles once backslashes are removed. A
// selector that compiles but misses el is accepted and logged.
func (o *Orchestrator) queryable(root, el *html.Node, sel string) bool {
	nodes, err := dom.QueryAll(root, strings.ReplaceAll(sel, `\`, ""))
	if err != nil {
		return false
	}
	if !dom.Contains(nodes, el) {
		o.logger.Warn("ai selector does not match the clicked element",
			"selector", sel, "matches", len(nodes))
	}
	return true
}

// fallback answers with the smart heuristic after a failed model path.
func (o *Orchestrator) fallback(ctx context.Context, span trace.Span, el *html.Node, out *Outcome, cause error) (*Outcome, error) {
	kind := domain.ClassifyAIFailure(cause)
	o.logger.Warn("ai selector failed, using heuristic", "kind", kind, "error", cause)
	tracer.RecordError(span, cause)

	adv := domain.FailureAdvisory{Kind: kind, Message: cause.Error()}
	o.advisor.ReportFailure(ctx, adv)
	out.Failure = &adv

	smart := selector.NewSmart(o.cfg.Selector)
	best, err := smart.Best(el)
	if err != nil {
		return nil, err
	}
	var alternates []string
	if alts, err := selector.Alternatives(el, o.cfg.Selector); err == nil {
		for _, a := range alts {
			if a != best.Value {
				alternates = append(alternates, a)
			}
		}
	}

	out.Selection = domain.AISelection{
		Selector:   best.Value,
		Confidence: best.Tier.Score(),
		Reasoning:  fmt.Sprintf("heuristic %s selector (%s)", best.Kind, kind),
		Alternates: alternates,
		Source:     domain.SourceHeuristic,
	}
	span.SetAttributes(tracer.Selection(best.Value, domain.SourceHeuristic, out.Selection.Confidence)...)
	return out, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(1, v))
}
