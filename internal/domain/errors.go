package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrProviderError = fmt.Errorf("provider error")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
)

// Selection errors.
var (
	ErrInvalidElement  = fmt.Errorf("%w: element is nil or not an element node", ErrInvalidInput)
	ErrInvalidSelector = fmt.Errorf("invalid selector")
	ErrSessionActive   = fmt.Errorf("selection session already active")
	ErrNoSession       = fmt.Errorf("no active selection session")
	ErrTargetNotFound  = fmt.Errorf("target element not found")
)

// Text-generation service errors. Every one of these is recovered by the
// heuristic fallback; none reaches the selection flow.
var (
	ErrContextOverflow   = fmt.Errorf("token limit exceeded")
	ErrAuthInvalid       = fmt.Errorf("invalid API key or quota exceeded")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
	ErrEmptyResponse     = fmt.Errorf("no content in model response")
	ErrMalformedResponse = fmt.Errorf("malformed model response")
	ErrNoValidSelector   = fmt.Errorf("no valid selector in model response")
	ErrMissingAPIKey     = fmt.Errorf("%w: API key is required", ErrAuthInvalid)
	ErrCircuitOpen       = fmt.Errorf("%w: circuit open", ErrProviderError)
	ErrThrottled         = fmt.Errorf("%w: client-side rate limit", ErrRateLimit)
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Orchestrator.Generate")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// AIFailureKind names the class of a text-generation failure for advisories.
type AIFailureKind string

const (
	FailureTokenLimit    AIFailureKind = "token_limit_exceeded"
	FailureInvalidKey    AIFailureKind = "invalid_key_or_quota"
	FailureRateLimited   AIFailureKind = "rate_limited"
	FailureEmptyResponse AIFailureKind = "empty_response"
	FailureTimeout       AIFailureKind = "timeout"
	FailureInvalidAnswer AIFailureKind = "invalid_selector"
	FailureGeneric       AIFailureKind = "generic"
)

// ClassifyAIFailure maps an error returned by the AI path to its failure kind.
func ClassifyAIFailure(err error) AIFailureKind {
	switch {
	case errors.Is(err, ErrContextOverflow):
		return FailureTokenLimit
	case errors.Is(err, ErrAuthInvalid):
		return FailureInvalidKey
	case errors.Is(err, ErrRateLimit):
		return FailureRateLimited
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, ErrMalformedResponse):
		return FailureEmptyResponse
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrNoValidSelector):
		return FailureInvalidAnswer
	default:
		return FailureGeneric
	}
}
