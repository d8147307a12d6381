package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDefaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Validate(Defaults()) = %v", err)
	}
}

func TestValidateMissingAPIKeyIsAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.AI.APIKey = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate = %v, want nil", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"provider", func(c *Config) { c.AI.Provider = "openai" }, "ai.provider"},
		{"base url", func(c *Config) { c.AI.BaseURL = "not a url" }, "ai.base_url"},
		{"empty base url", func(c *Config) { c.AI.BaseURL = "" }, "ai.base_url must not be empty"},
		{"model", func(c *Config) { c.AI.Model = "" }, "ai.model"},
		{"timeout", func(c *Config) { c.AI.Timeout = 0 }, "ai.timeout"},
		{"temperature", func(c *Config) { c.AI.Temperature = 3 }, "ai.temperature"},
		{"top_k", func(c *Config) { c.AI.TopK = 0 }, "ai.top_k"},
		{"top_p", func(c *Config) { c.AI.TopP = 1.5 }, "ai.top_p"},
		{"max tokens", func(c *Config) { c.AI.MaxOutputTokens = 0 }, "ai.max_output_tokens"},
		{"breaker", func(c *Config) { c.AI.CircuitBreaker.MaxFailures = 0 }, "ai.circuit_breaker.max_failures"},
		{"rate", func(c *Config) { c.AI.RateLimit.RequestsPerMinute = 0 }, "ai.rate_limit.requests_per_minute"},
		{"burst", func(c *Config) { c.AI.RateLimit.Burst = 0 }, "ai.rate_limit.burst"},
		{"strategy", func(c *Config) { c.Selector.Strategy = "xpath" }, "selector.strategy"},
		{"selector depth", func(c *Config) { c.Selector.MaxDepth = 0 }, "selector.max_depth"},
		{"family bound", func(c *Config) { c.Selector.FamilyBound = 0 }, "selector.family_bound"},
		{"context depth", func(c *Config) { c.Context.MaxDepth = -1 }, "context.max_depth"},
		{"counter", func(c *Config) { c.Context.TokenCounter = "words" }, "context.token_counter"},
		{"encoding", func(c *Config) {
			c.Context.TokenCounter = "tiktoken"
			c.Context.Encoding = ""
		}, "context.encoding"},
		{"store", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"browser timeout", func(c *Config) { c.Browser.Timeout = 0 }, "browser.timeout"},
		{"browser url", func(c *Config) { c.Browser.RemoteURL = "ftp://host" }, "browser.remote_url"},
		{"log level", func(c *Config) { c.Logger.Level = "trace" }, "logger.level"},
		{"log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"exporter", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.Exporter = "jaeger"
		}, "tracer.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate = %v, want *ValidationError", err)
			}
			if !strings.Contains(ve.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", ve.Error(), tt.want)
			}
		})
	}
}

func TestValidateDisabledSectionsSkipChecks(t *testing.T) {
	cfg := Defaults()
	cfg.AI.CircuitBreaker.Enabled = false
	cfg.AI.CircuitBreaker.MaxFailures = 0
	cfg.AI.RateLimit.Enabled = false
	cfg.AI.RateLimit.Burst = 0
	cfg.Tracer.Exporter = "jaeger"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate = %v, want nil", err)
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("new ValidationError has errors")
	}
	ve.Add("first %d", 1)
	ve.Add("second")
	if !ve.HasErrors() || len(ve.Errors) != 2 {
		t.Fatalf("Errors = %v", ve.Errors)
	}
	if !strings.Contains(ve.Error(), "first 1") || !strings.Contains(ve.Error(), "second") {
		t.Errorf("Error() = %q", ve.Error())
	}
}
