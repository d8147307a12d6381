// Package session owns the interactive selection state for one document:
// hover feedback, the click that resolves a selector, previews of a selector
// and application of saved selectors.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
	"piifinder/internal/usecase/aiselect"
	"piifinder/internal/usecase/classify"
	"piifinder/internal/usecase/selector"
)

// State is the controller's selection state.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateResolving
)

func (s State) String() string {
	switch s {
	case StateSelecting:
		return "selecting"
	case StateResolving:
		return "resolving"
	default:
		return "idle"
	}
}

// Resolver produces a selector through the AI-assisted path.
// *aiselect.Orchestrator satisfies it.
type Resolver interface {
	Generate(ctx context.Context, el *html.Node, req aiselect.Request) (*aiselect.Outcome, error)
}

// Options configures a Controller.
type Options struct {
	Strategy domain.Strategy
	Selector selector.Options
	// UseAI routes Select through the Resolver. Without a Resolver the
	// heuristic strategy answers.
	UseAI   bool
	Request aiselect.Request
}

// Skipped is a saved selector Apply could not use.
type Skipped struct {
	Selector string `json:"selector"`
	Reason   string `json:"reason"`
}

// ApplyReport summarizes an Apply call.
type ApplyReport struct {
	Applied []string  `json:"applied"`
	Matched int       `json:"matched"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

// Controller is safe for concurrent use. While a selection is resolving,
// only Cancel and State may be called; every other mutation reports
// ErrSessionActive.
type Controller struct {
	mu        sync.Mutex
	doc       *dom.Document
	resolver  Resolver
	opts      Options
	logger    *slog.Logger
	state     State
	id        string
	hovered   *html.Node
	cancel    context.CancelFunc
	cancelled bool
}

// New creates a Controller for doc. resolver may be nil.
func New(doc *dom.Document, resolver Resolver, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Strategy == "" {
		opts.Strategy = domain.StrategySmart
	}
	return &Controller{doc: doc, resolver: resolver, opts: opts, logger: logger}
}

// Document returns the document the controller works on.
func (c *Controller) Document() *dom.Document { return c.doc }

// State returns the current state and session id.
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.id
}

// Start begins a selection session and returns its id.
func (c *Controller) Start() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return "", domain.NewDomainError("Controller.Start", domain.ErrSessionActive, c.id)
	}
	c.state = StateSelecting
	c.id = generateULID(time.Now())
	c.cancelled = false
	c.logger.Info("selection started", "session", c.id)
	return c.id, nil
}

// Hover moves the hover marker to el.
func (c *Controller) Hover(el *html.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireSelecting("Controller.Hover"); err != nil {
		return err
	}
	if !c.owns(el) {
		return domain.NewDomainError("Controller.Hover", domain.ErrInvalidElement, "")
	}
	c.clearHover()
	dom.AddClass(el, classify.MarkerHover)
	c.hovered = el
	return nil
}

// Select resolves a selector for el and ends the session. With UseAI the
// resolver is called without holding the lock; Cancel aborts it.
func (c *Controller) Select(ctx context.Context, el *html.Node) (*domain.Selection, error) {
	c.mu.Lock()
	if err := c.requireSelecting("Controller.Select"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !c.owns(el) {
		c.mu.Unlock()
		return nil, domain.NewDomainError("Controller.Select", domain.ErrInvalidElement, "")
	}
	id := c.id
	c.clearHover()
	dom.AddClass(el, classify.MarkerSelecting)

	if !c.opts.UseAI || c.resolver == nil {
		defer c.mu.Unlock()
		defer c.finish(el)
		return c.heuristic(el, id)
	}

	dom.AddClass(el, classify.MarkerLoading)
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateResolving
	c.mu.Unlock()

	outcome, err := c.resolver.Generate(ctx, el, c.opts.Request)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	cancelled := c.cancelled
	c.finish(el)
	if cancelled {
		return nil, fmt.Errorf("selection %s: %w", id, context.Canceled)
	}
	if err != nil {
		return nil, domain.WrapOp("Controller.Select", err)
	}

	alts := make([]string, 0, len(outcome.Selection.Alternates))
	for _, a := range outcome.Selection.Alternates {
		if a != outcome.Selection.Selector {
			alts = append(alts, a)
		}
	}
	sel := &domain.Selection{
		SessionID:    id,
		Selector:     outcome.Selection.Selector,
		Alternatives: alts,
		Type:         domain.SelectorTypeBlock,
		Strategy:     domain.StrategySmart,
		Confidence:   outcome.Selection.Confidence,
		Reasoning:    outcome.Selection.Reasoning,
		Source:       outcome.Selection.Source,
	}
	c.logger.Info("selection resolved", "session", id, "selector", sel.Selector, "source", sel.Source)
	return sel, nil
}

func (c *Controller) heuristic(el *html.Node, id string) (*domain.Selection, error) {
	value, err := selector.Generate(el, c.opts.Strategy, c.opts.Selector)
	if err != nil {
		return nil, domain.WrapOp("Controller.Select", err)
	}
	var alts []string
	if all, err := selector.Alternatives(el, c.opts.Selector); err == nil {
		for _, a := range all {
			if a != value {
				alts = append(alts, a)
			}
		}
	}
	c.logger.Info("selection resolved", "session", id, "selector", value, "strategy", c.opts.Strategy)
	return &domain.Selection{
		SessionID:    id,
		Selector:     value,
		Alternatives: alts,
		Type:         domain.SelectorTypeBlock,
		Strategy:     c.opts.Strategy,
		Source:       domain.SourceHeuristic,
	}, nil
}

// Cancel ends the session. A resolving selection is aborted and cleans up
// after itself when the resolver returns.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		return domain.NewDomainError("Controller.Cancel", domain.ErrNoSession, "")
	case StateResolving:
		c.cancelled = true
		if c.cancel != nil {
			c.cancel()
		}
	default:
		c.clearTransient()
		c.reset()
	}
	c.logger.Info("selection cancelled")
	return nil
}

// Preview marks every element sel matches and returns the count. An invalid
// selector yields -1 and ErrInvalidSelector. Earlier preview marks are
// cleared first.
func (c *Controller) Preview(sel string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireNotResolving("Controller.Preview"); err != nil {
		return -1, err
	}
	c.clearMarker(classify.MarkerPreviewBlock)
	nodes, err := dom.QueryAll(c.doc.Root(), sel)
	if err != nil {
		return -1, domain.NewDomainError("Controller.Preview", domain.ErrInvalidSelector, err.Error())
	}
	for _, n := range nodes {
		dom.AddClass(n, classify.MarkerPreviewBlock)
	}
	return len(nodes), nil
}

// ClearPreview removes preview marks.
func (c *Controller) ClearPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireNotResolving("Controller.ClearPreview"); err != nil {
		return err
	}
	c.clearMarker(classify.MarkerPreviewBlock)
	return nil
}

// Apply marks the matches of every saved selector. Selectors that do not
// compile are skipped and reported; the rest still apply.
func (c *Controller) Apply(saved []domain.StoredSelector) (ApplyReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var report ApplyReport
	if err := c.requireNotResolving("Controller.Apply"); err != nil {
		return report, err
	}
	for _, s := range saved {
		nodes, err := dom.QueryAll(c.doc.Root(), s.Selector)
		if err != nil {
			c.logger.Warn("skipping invalid saved selector", "selector", s.Selector, "error", err)
			report.Skipped = append(report.Skipped, Skipped{Selector: s.Selector, Reason: err.Error()})
			continue
		}
		for _, n := range nodes {
			dom.AddClass(n, markerFor(s.Type))
		}
		report.Applied = append(report.Applied, s.Selector)
		report.Matched += len(nodes)
	}
	return report, nil
}

// ClearAll removes every marker class this system added and ends any
// session that is not resolving.
func (c *Controller) ClearAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireNotResolving("Controller.ClearAll"); err != nil {
		return err
	}
	dom.Walk(c.doc.Root(), func(n *html.Node) {
		dom.RemoveClasses(n, classify.IsMarkerClass)
	})
	c.reset()
	return nil
}

func markerFor(typ string) string {
	switch typ {
	case "mask":
		return classify.MarkerPreviewMask
	case "ignore":
		return classify.MarkerPreviewIgnore
	default:
		return classify.MarkerPreviewBlock
	}
}

func (c *Controller) requireSelecting(op string) error {
	switch c.state {
	case StateSelecting:
		return nil
	case StateResolving:
		return domain.NewDomainError(op, domain.ErrSessionActive, "selection is resolving")
	default:
		return domain.NewDomainError(op, domain.ErrNoSession, "")
	}
}

func (c *Controller) requireNotResolving(op string) error {
	if c.state == StateResolving {
		return domain.NewDomainError(op, domain.ErrSessionActive, "selection is resolving")
	}
	return nil
}

// owns reports whether el is an element of the controller's document.
func (c *Controller) owns(el *html.Node) bool {
	return dom.IsElement(el) && dom.Top(el) == c.doc.Root()
}

// finish removes the selection markers and returns to idle.
func (c *Controller) finish(el *html.Node) {
	dom.RemoveClass(el, classify.MarkerLoading)
	dom.RemoveClass(el, classify.MarkerSelecting)
	c.clearTransient()
	c.reset()
}

func (c *Controller) clearHover() {
	if c.hovered != nil {
		dom.RemoveClass(c.hovered, classify.MarkerHover)
		c.hovered = nil
	}
}

func (c *Controller) clearTransient() {
	c.clearHover()
	dom.Walk(c.doc.Root(), func(n *html.Node) {
		dom.RemoveClasses(n, func(cls string) bool {
			return cls == classify.MarkerHover || cls == classify.MarkerSelecting || cls == classify.MarkerLoading
		})
	})
}

func (c *Controller) clearMarker(marker string) {
	dom.Walk(c.doc.Root(), func(n *html.Node) {
		dom.RemoveClass(n, marker)
	})
}

func (c *Controller) reset() {
	c.state = StateIdle
	c.id = ""
	c.hovered = nil
	c.cancel = nil
	c.cancelled = false
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
