package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
)

func newTestGemini(baseURL string) *GeminiGenerator {
	return NewGeminiGenerator(config.AIConfig{
		BaseURL: baseURL,
		APIKey:  "cfg-key",
		Model:   "gemini-1.5-flash",
	}, newTestLogger())
}

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "req-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "find the email", body.Contents[0].Parts[0].Text)
		require.NotNil(t, body.GenerationConfig)
		assert.Equal(t, 0.2, body.GenerationConfig.Temperature)
		assert.Equal(t, 1, body.GenerationConfig.TopK)
		assert.Equal(t, 0.8, body.GenerationConfig.TopP)
		assert.Equal(t, 2000, body.GenerationConfig.MaxOutputTokens)
		assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates":[{"content":{"parts":[{"text":"{\"selector\":\"#email\"}"},{"text":"ignored"}]}}],
			"usageMetadata":{"promptTokenCount":120,"candidatesTokenCount":30,"totalTokenCount":150}
		}`))
	}))
	defer server.Close()

	resp, err := newTestGemini(server.URL).Generate(context.Background(), domain.GenerateRequest{
		Model:           "gemini-1.5-pro",
		APIKey:          "req-key",
		Prompt:          "find the email",
		Temperature:     0.2,
		TopK:            1,
		TopP:            0.8,
		MaxOutputTokens: 2000,
		JSONResponse:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"selector":"#email"}`, resp.Text)
	assert.Equal(t, "gemini-1.5-pro", resp.Model)
	assert.Equal(t, domain.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150}, resp.Usage)
}

func TestGeminiGenerateUsesConfiguredDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/gemini-1.5-flash:generateContent"))
		assert.Equal(t, "cfg-key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	resp, err := newTestGemini(server.URL+"/").Generate(context.Background(), domain.GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestGeminiGenerateMissingKey(t *testing.T) {
	g := NewGeminiGenerator(config.AIConfig{BaseURL: "http://127.0.0.1:1", Model: "m"}, newTestLogger())
	_, err := g.Generate(context.Background(), domain.GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
	assert.Equal(t, domain.FailureInvalidKey, domain.ClassifyAIFailure(err))
}

func TestGeminiGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		kind   domain.AIFailureKind
	}{
		{"token limit", http.StatusBadRequest, `{"error":{"message":"input token count exceeds the maximum"}}`, domain.ErrContextOverflow, domain.FailureTokenLimit},
		{"too large", http.StatusRequestEntityTooLarge, `too large`, domain.ErrContextOverflow, domain.FailureTokenLimit},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid argument"}}`, domain.ErrProviderError, domain.FailureGeneric},
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.ErrAuthInvalid, domain.FailureInvalidKey},
		{"forbidden", http.StatusForbidden, `{}`, domain.ErrAuthInvalid, domain.FailureInvalidKey},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ErrRateLimit, domain.FailureRateLimited},
		{"server error", http.StatusInternalServerError, `{}`, domain.ErrProviderError, domain.FailureGeneric},
		{"empty candidates", http.StatusOK, `{"candidates":[]}`, domain.ErrEmptyResponse, domain.FailureEmptyResponse},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, domain.ErrEmptyResponse, domain.FailureEmptyResponse},
		{"not json", http.StatusOK, `<html>`, domain.ErrMalformedResponse, domain.FailureEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestGemini(server.URL).Generate(context.Background(), domain.GenerateRequest{Prompt: "p"})
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, domain.ClassifyAIFailure(err))
		})
	}
}

func TestGeminiGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestGemini(server.URL).Generate(ctx, domain.GenerateRequest{Prompt: "p"})
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.NotContains(t, err.Error(), "cfg-key")
}

func TestMapHTTPErrorTruncatesBody(t *testing.T) {
	err := mapHTTPError(http.StatusInternalServerError, []byte(strings.Repeat("x", 5000)))
	assert.Less(t, len(err.Error()), 700)
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, `Post "http://h/m?key=REDACTED": EOF`, redactKey(`Post "http://h/m?key=secret": EOF`))
	assert.Equal(t, "no key here", redactKey("no key here"))
	assert.Equal(t, "u?key=REDACTED", redactKey("u?key=abc"))
}
