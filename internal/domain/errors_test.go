package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("session.Preview", ErrInvalidSelector, "p[")
	want := "session.Preview: p[: invalid selector"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Controller.Start", ErrSessionActive, "")
	want := "Controller.Start: selection session already active"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("store.Remove", ErrNotFound, ".email")
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is should match ErrNotFound")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("llm.Generate", ErrRateLimit, "429")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "llm.Generate" {
		t.Errorf("Op = %q, want %q", de.Op, "llm.Generate")
	}
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("op", nil))

	inner := WrapOp("inner", ErrEmptyResponse)
	outer := WrapOp("outer", inner)
	require.Error(t, outer)
	assert.Equal(t, "outer: inner: no content in model response", outer.Error())
	assert.True(t, errors.Is(outer, ErrEmptyResponse))
}

func TestSentinelHierarchy(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidElement, ErrInvalidInput))
	assert.True(t, errors.Is(ErrMissingAPIKey, ErrAuthInvalid))
	assert.True(t, errors.Is(ErrCircuitOpen, ErrProviderError))
	assert.True(t, errors.Is(ErrThrottled, ErrRateLimit))
	assert.False(t, errors.Is(ErrInvalidSelector, ErrInvalidInput))
}

func TestClassifyAIFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want AIFailureKind
	}{
		{"token limit", NewDomainError("llm", ErrContextOverflow, "400"), FailureTokenLimit},
		{"invalid key", ErrAuthInvalid, FailureInvalidKey},
		{"missing key", ErrMissingAPIKey, FailureInvalidKey},
		{"rate limit", fmt.Errorf("gemini: %w", ErrRateLimit), FailureRateLimited},
		{"throttled", ErrThrottled, FailureRateLimited},
		{"empty", ErrEmptyResponse, FailureEmptyResponse},
		{"malformed", ErrMalformedResponse, FailureEmptyResponse},
		{"timeout", WrapOp("generate", ErrTimeout), FailureTimeout},
		{"no selector", ErrNoValidSelector, FailureInvalidAnswer},
		{"circuit open", ErrCircuitOpen, FailureGeneric},
		{"other", errors.New("boom"), FailureGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAIFailure(tt.err))
		})
	}
}
