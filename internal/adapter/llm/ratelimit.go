package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
)

// RateLimitedGenerator throttles calls with a token bucket. A call that
// finds the bucket empty fails immediately with ErrThrottled rather than
// waiting, since the selection flow has a heuristic answer ready.
type RateLimitedGenerator struct {
	inner   domain.TextGenerator
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimitedGenerator wraps inner with a limiter allowing
// cfg.RequestsPerMinute calls per minute with bursts of cfg.Burst.
func NewRateLimitedGenerator(inner domain.TextGenerator, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitedGenerator {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 15
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitedGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		logger:  logger,
	}
}

// Generate implements domain.TextGenerator.
func (g *RateLimitedGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	if !g.limiter.Allow() {
		g.logger.Warn("ai request throttled", "provider", g.inner.Name(), "tokens", g.limiter.Tokens())
		return nil, fmt.Errorf("generator %q: %w", g.inner.Name(), domain.ErrThrottled)
	}
	return g.inner.Generate(ctx, req)
}

// Name implements domain.TextGenerator.
func (g *RateLimitedGenerator) Name() string { return g.inner.Name() }

var _ domain.TextGenerator = (*RateLimitedGenerator)(nil)

// NewGenerator builds the configured generator chain:
// throttle, then circuit breaker, then the Gemini client.
func NewGenerator(cfg config.AIConfig, logger *slog.Logger) domain.TextGenerator {
	var gen domain.TextGenerator = NewGeminiGenerator(cfg, logger)
	if cfg.CircuitBreaker.Enabled {
		gen = NewCircuitBreakerGenerator(gen, cfg.CircuitBreaker, logger)
	}
	if cfg.RateLimit.Enabled {
		gen = NewRateLimitedGenerator(gen, cfg.RateLimit, logger)
	}
	return gen
}
