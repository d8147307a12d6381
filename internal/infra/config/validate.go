package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// A missing API key is not an error: the AI path reports it at call time and
// answers with the heuristic selector.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAI(cfg, ve)
	validateSelector(cfg, ve)
	validateContext(cfg, ve)
	validateStore(cfg, ve)
	validateBrowser(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAI(cfg *Config, ve *ValidationError) {
	ai := cfg.AI
	if ai.Provider != "gemini" {
		ve.Add("ai.provider %q is invalid (want: gemini)", ai.Provider)
	}
	if ai.BaseURL == "" {
		ve.Add("ai.base_url must not be empty")
	} else if u, err := url.Parse(ai.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("ai.base_url %q is not an absolute URL", ai.BaseURL)
	}
	if ai.Model == "" {
		ve.Add("ai.model must not be empty")
	}
	if ai.Timeout <= 0 {
		ve.Add("ai.timeout must be > 0")
	}
	if ai.Temperature < 0 || ai.Temperature > 2 {
		ve.Add("ai.temperature must be within [0, 2]")
	}
	if ai.TopK <= 0 {
		ve.Add("ai.top_k must be > 0")
	}
	if ai.TopP <= 0 || ai.TopP > 1 {
		ve.Add("ai.top_p must be within (0, 1]")
	}
	if ai.MaxOutputTokens <= 0 {
		ve.Add("ai.max_output_tokens must be > 0")
	}
	if ai.CircuitBreaker.Enabled && ai.CircuitBreaker.MaxFailures == 0 {
		ve.Add("ai.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if ai.RateLimit.Enabled {
		if ai.RateLimit.RequestsPerMinute <= 0 {
			ve.Add("ai.rate_limit.requests_per_minute must be > 0 when enabled")
		}
		if ai.RateLimit.Burst <= 0 {
			ve.Add("ai.rate_limit.burst must be > 0 when enabled")
		}
	}
}

var validStrategies = map[string]bool{
	"smart":      true,
	"semantic":   true,
	"structural": true,
}

func validateSelector(cfg *Config, ve *ValidationError) {
	if !validStrategies[cfg.Selector.Strategy] {
		ve.Add("selector.strategy %q is invalid (want: smart, semantic, structural)", cfg.Selector.Strategy)
	}
	if cfg.Selector.MaxDepth <= 0 {
		ve.Add("selector.max_depth must be > 0")
	}
	if cfg.Selector.FamilyBound < 1 {
		ve.Add("selector.family_bound must be >= 1")
	}
}

func validateContext(cfg *Config, ve *ValidationError) {
	if cfg.Context.MaxDepth <= 0 {
		ve.Add("context.max_depth must be > 0")
	}
	switch cfg.Context.TokenCounter {
	case "chars":
	case "tiktoken":
		if cfg.Context.Encoding == "" {
			ve.Add("context.encoding is required when context.token_counter is tiktoken")
		}
	default:
		ve.Add("context.token_counter %q is invalid (want: chars, tiktoken)", cfg.Context.TokenCounter)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

func validateBrowser(cfg *Config, ve *ValidationError) {
	if cfg.Browser.Timeout <= 0 {
		ve.Add("browser.timeout must be > 0")
	}
	if cfg.Browser.RemoteURL != "" {
		u, err := url.Parse(cfg.Browser.RemoteURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https") {
			ve.Add("browser.remote_url %q must be a ws(s) or http(s) URL", cfg.Browser.RemoteURL)
		}
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
