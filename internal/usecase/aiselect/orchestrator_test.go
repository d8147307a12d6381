package aiselect

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/adapter/llm"
	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
	"piifinder/internal/usecase/selector"
)

const customerPage = `<html><body>
<div class="customer-info" id="cust">
	<span class="label">Email</span><span class="customer-email">john@example.com</span>
</div>
<section class="orders"><p>Order 42</p></section>
</body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []domain.GenerateRequest
	fn   func(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeGenerator) Name() string { return "fake" }

func replying(text string) *fakeGenerator {
	return &fakeGenerator{fn: func(context.Context, domain.GenerateRequest) (*domain.GenerateResponse, error) {
		return &domain.GenerateResponse{Text: text}, nil
	}}
}

type recordingAdvisor struct {
	mu       sync.Mutex
	upgrades []domain.UpgradeAdvisory
	failures []domain.FailureAdvisory
}

func (r *recordingAdvisor) RecommendUpgrade(_ context.Context, adv domain.UpgradeAdvisory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upgrades = append(r.upgrades, adv)
}

func (r *recordingAdvisor) ReportFailure(_ context.Context, adv domain.FailureAdvisory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, adv)
}

func target(t *testing.T, src, sel string) *html.Node {
	t.Helper()
	doc, err := dom.ParseString(src)
	require.NoError(t, err)
	el, err := doc.First(sel)
	require.NoError(t, err)
	return el
}

func newOrchestrator(gen domain.TextGenerator, adv domain.Advisor, cfg Config) *Orchestrator {
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	return New(gen, adv, nil, cfg, testLogger())
}

func assertHeuristic(t *testing.T, out *Outcome, el *html.Node) {
	t.Helper()
	best, err := selector.NewSmart(selector.Options{}).Best(el)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHeuristic, out.Selection.Source)
	assert.Equal(t, best.Value, out.Selection.Selector)
	assert.Equal(t, best.Tier.Score(), out.Selection.Confidence)
	assert.NotContains(t, out.Selection.Alternates, best.Value)
}

func TestGenerateAcceptsAIAnswer(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := replying(`{"selector":".customer-info .customer-email","confidence":0.93,"reasoning":"semantic parent","alternates":["span.customer-email"],"pattern_detected":"customer block"}`)
	adv := &recordingAdvisor{}

	out, err := newOrchestrator(gen, adv, Config{}).Generate(context.Background(), el, Request{})
	require.NoError(t, err)

	assert.Equal(t, domain.AISelection{
		Selector:   ".customer-info .customer-email",
		Confidence: 0.93,
		Reasoning:  "semantic parent",
		Alternates: []string{"span.customer-email"},
		Pattern:    "customer block",
		Source:     domain.SourceAI,
	}, out.Selection)
	assert.Nil(t, out.Failure)
	require.NotNil(t, out.Trim)
	assert.Empty(t, out.Trim.Stages)
	assert.Empty(t, adv.failures)

	require.Len(t, gen.reqs, 1)
	req := gen.reqs[0]
	assert.Equal(t, domain.DefaultModel, req.Model)
	assert.Equal(t, "test-key", req.APIKey)
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, 1, req.TopK)
	assert.Equal(t, 0.8, req.TopP)
	assert.Equal(t, 2000, req.MaxOutputTokens)
	assert.True(t, req.JSONResponse)
	assert.Contains(t, req.Prompt, `"john@example.com"`)
}

func TestGenerateRequestOverrides(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := replying(`{"selector":"span.customer-email"}`)

	_, err := newOrchestrator(gen, nil, Config{}).Generate(context.Background(), el, Request{APIKey: "other", Model: "gemini-2.5-pro"})
	require.NoError(t, err)
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "other", gen.reqs[0].APIKey)
	assert.Equal(t, "gemini-2.5-pro", gen.reqs[0].Model)
}

func TestGenerateConfidence(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	tests := []struct {
		reply string
		want  float64
	}{
		{`{"selector":"span.customer-email"}`, 0.8},
		{`{"selector":"span.customer-email","confidence":7}`, 1},
		{`{"selector":"span.customer-email","confidence":-1}`, 0},
		{"```json\n{\"selector\":\"span.customer-email\",\"confidence\":0.5}\n```", 0.5},
	}
	for _, tt := range tests {
		out, err := newOrchestrator(replying(tt.reply), nil, Config{}).Generate(context.Background(), el, Request{})
		require.NoError(t, err)
		assert.Equal(t, domain.SourceAI, out.Selection.Source, tt.reply)
		assert.Equal(t, tt.want, out.Selection.Confidence, tt.reply)
	}
}

func TestGenerateIgnoresEscapingWhenValidating(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := replying(`{"selector":".customer\\-email"}`)

	out, err := newOrchestrator(gen, nil, Config{}).Generate(context.Background(), el, Request{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAI, out.Selection.Source)
	assert.Equal(t, `.customer\-email`, out.Selection.Selector)
}

func TestGenerateUsesAlternateWhenPrimaryInvalid(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := replying(`{"selector":"span[data-x=","confidence":0.9,"alternates":["span.customer-email","p"],"pattern_detected":"email"}`)

	out, err := newOrchestrator(gen, nil, Config{}).Generate(context.Background(), el, Request{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAI, out.Selection.Source)
	assert.Equal(t, "span.customer-email", out.Selection.Selector)
	assert.Equal(t, 0.6, out.Selection.Confidence)
	assert.Equal(t, "email", out.Selection.Pattern)
	assert.Empty(t, out.Selection.Alternates)
}

func TestGenerateFallsBackWhenNoValidSelector(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	adv := &recordingAdvisor{}

	for _, reply := range []string{
		`{"selector":"span[data-x="}`,
		`{"selector":"span[data-x=","alternates":[">>"]}`,
		`{"selector":"  ","alternates":[]}`,
	} {
		out, err := newOrchestrator(replying(reply), adv, Config{}).Generate(context.Background(), el, Request{})
		require.NoError(t, err)
		assertHeuristic(t, out, el)
		require.NotNil(t, out.Failure)
		assert.Equal(t, domain.FailureInvalidAnswer, out.Failure.Kind, reply)
	}
	assert.Len(t, adv.failures, 3)
}

func TestGenerateFallsBackOnBadResponses(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	for _, reply := range []string{``, `not json`, `{"selector":5}`, `{"reasoning":"no selector"}`, `[]`} {
		adv := &recordingAdvisor{}
		out, err := newOrchestrator(replying(reply), adv, Config{}).Generate(context.Background(), el, Request{})
		require.NoError(t, err)
		assertHeuristic(t, out, el)
		require.Len(t, adv.failures, 1)
		assert.Equal(t, domain.FailureEmptyResponse, adv.failures[0].Kind, reply)
	}
}

func TestGenerateFallsBackOnHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   domain.AIFailureKind
	}{
		{http.StatusTooManyRequests, `{"error":"quota"}`, domain.FailureRateLimited},
		{http.StatusForbidden, `{"error":"denied"}`, domain.FailureInvalidKey},
		{http.StatusBadRequest, `{"error":"too many tokens"}`, domain.FailureTokenLimit},
		{http.StatusServiceUnavailable, `{}`, domain.FailureGeneric},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		cfg := config.Defaults().AI
		cfg.BaseURL = server.URL
		gen := llm.NewGeminiGenerator(cfg, testLogger())
		adv := &recordingAdvisor{}
		el := target(t, customerPage, ".customer-email")

		out, err := newOrchestrator(gen, adv, Config{}).Generate(context.Background(), el, Request{})
		server.Close()

		require.NoError(t, err)
		assertHeuristic(t, out, el)
		require.Len(t, adv.failures, 1)
		assert.Equal(t, tt.kind, adv.failures[0].Kind, "status %d", tt.status)
		assert.Equal(t, tt.kind, out.Failure.Kind)
	}
}

func TestGenerateTimeout(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := &fakeGenerator{fn: func(ctx context.Context, _ domain.GenerateRequest) (*domain.GenerateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	adv := &recordingAdvisor{}

	start := time.Now()
	out, err := newOrchestrator(gen, adv, Config{Timeout: 20 * time.Millisecond}).Generate(context.Background(), el, Request{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assertHeuristic(t, out, el)
	require.Len(t, adv.failures, 1)
	assert.Equal(t, domain.FailureTimeout, adv.failures[0].Kind)
}

func TestGenerateRecoversFromGeneratorPanic(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := &fakeGenerator{fn: func(context.Context, domain.GenerateRequest) (*domain.GenerateResponse, error) {
		panic("decoder state corrupted")
	}}
	adv := &recordingAdvisor{}

	var out *Outcome
	var err error
	require.NotPanics(t, func() {
		out, err = newOrchestrator(gen, adv, Config{}).Generate(context.Background(), el, Request{})
	})
	require.NoError(t, err)
	assertHeuristic(t, out, el)
	assert.Len(t, gen.reqs, 1)
	require.Len(t, adv.failures, 1)
	assert.Equal(t, domain.FailureGeneric, adv.failures[0].Kind)
	assert.Contains(t, adv.failures[0].Message, "decoder state corrupted")
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.FailureGeneric, out.Failure.Kind)
}

func TestGenerateMissingKey(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := replying(`{"selector":"span"}`)
	adv := &recordingAdvisor{}

	out, err := New(gen, adv, nil, Config{}, testLogger()).Generate(context.Background(), el, Request{})
	require.NoError(t, err)
	assertHeuristic(t, out, el)
	assert.Empty(t, gen.reqs, "no request without a key")
	require.Len(t, adv.failures, 1)
	assert.Equal(t, domain.FailureInvalidKey, adv.failures[0].Kind)
}

func TestGenerateInvalidElement(t *testing.T) {
	gen := replying(`{"selector":"span"}`)
	doc, err := dom.ParseString(customerPage)
	require.NoError(t, err)

	for _, n := range []*html.Node{nil, doc.Root()} {
		out, err := newOrchestrator(gen, nil, Config{}).Generate(context.Background(), n, Request{})
		assert.Nil(t, out)
		assert.ErrorIs(t, err, domain.ErrInvalidElement)
	}
	assert.Empty(t, gen.reqs)
}

func TestGenerateRecommendsUpgrade(t *testing.T) {
	page := `<html><body><div class="wrap"><div>john@example.com</div></div></body></html>`
	el := target(t, page, ".wrap > div")
	adv := &recordingAdvisor{}

	out, err := newOrchestrator(replying(`{"selector":".wrap > div"}`), adv, Config{}).Generate(context.Background(), el, Request{})
	require.NoError(t, err)
	require.Len(t, adv.upgrades, 1)
	assert.Equal(t, domain.UpgradeAdvisory{
		CurrentModel:   domain.DefaultModel,
		SuggestedModel: domain.UpgradeModel,
		Reason:         "ambiguous PII element",
		CanContinue:    true,
	}, adv.upgrades[0])
	assert.Equal(t, adv.upgrades[0], *out.Upgrade)
	assert.Equal(t, domain.SourceAI, out.Selection.Source, "the advisory does not block the call")

	adv = &recordingAdvisor{}
	_, err = newOrchestrator(replying(`{"selector":".wrap > div"}`), adv, Config{}).Generate(context.Background(), el, Request{Model: domain.UpgradeModel})
	require.NoError(t, err)
	assert.Empty(t, adv.upgrades)
}

func TestGenerateTrimsForSmallBudget(t *testing.T) {
	el := target(t, customerPage, ".customer-email")
	gen := replying(`{"selector":"span.customer-email"}`)
	o := New(gen, nil, fixedCounter(900_000), Config{APIKey: "k"}, testLogger())

	out, err := o.Generate(context.Background(), el, Request{})
	require.NoError(t, err)
	require.NotNil(t, out.Trim)
	assert.NotEmpty(t, out.Trim.Stages)
	assert.Equal(t, 1_000_000, out.Trim.ContextLimit)
}

type fixedCounter int

func (f fixedCounter) CountText(string) int { return int(f) }
