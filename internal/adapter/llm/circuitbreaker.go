package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerGenerator wraps a TextGenerator with circuit breaker
// protection. Once the endpoint has failed repeatedly, calls fail fast with
// ErrCircuitOpen and the selection flow goes straight to its heuristic.
type CircuitBreakerGenerator struct {
	inner   domain.TextGenerator
	breaker *gobreaker.CircuitBreaker[*domain.GenerateResponse]
	logger  *slog.Logger
}

// NewCircuitBreakerGenerator wraps inner with a circuit breaker.
// Zero-valued settings fall back to the defaults above.
func NewCircuitBreakerGenerator(inner domain.TextGenerator, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerGenerator {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*domain.GenerateResponse](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: endpointHealthy,
	})

	return &CircuitBreakerGenerator{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// endpointHealthy reports whether err says nothing about the endpoint's
// health. Bad keys, oversized prompts, unusable answers and caller
// cancellation do not count toward tripping the breaker.
func endpointHealthy(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrAuthInvalid),
		errors.Is(err, domain.ErrContextOverflow),
		errors.Is(err, domain.ErrEmptyResponse),
		errors.Is(err, domain.ErrMalformedResponse),
		errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}

// Generate implements domain.TextGenerator. Calls are routed through the breaker.
func (g *CircuitBreakerGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	resp, err := g.breaker.Execute(func() (*domain.GenerateResponse, error) {
		return g.inner.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("generator %q: %w (%v)", g.inner.Name(), domain.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return resp, nil
}

// Name implements domain.TextGenerator.
func (g *CircuitBreakerGenerator) Name() string { return g.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (g *CircuitBreakerGenerator) State() gobreaker.State {
	return g.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (g *CircuitBreakerGenerator) Counts() gobreaker.Counts {
	return g.breaker.Counts()
}

var _ domain.TextGenerator = (*CircuitBreakerGenerator)(nil)

// --- Connection Pooling ---

// Default connection pool settings. A selection session talks to a single
// host with low concurrency.
const (
	defaultMaxIdleConns        = 4
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 90 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// Default endpoint timeouts.
const (
	defaultConnTimeout = 10 * time.Second
	defaultRespTimeout = 60 * time.Second
)

// NewHTTPClient creates an *http.Client with pooled transport and timeout
// defaults for the text-generation endpoint. The per-request deadline comes
// from the caller's context.
func NewHTTPClient(cfg config.AIConfig) *http.Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	respTimeout := cfg.RespTimeout
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	return &http.Client{
		Transport: NewPooledTransport(connTimeout, respTimeout, cfg.Pool),
		Timeout:   connTimeout + respTimeout,
	}
}
