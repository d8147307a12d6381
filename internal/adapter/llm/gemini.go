// Package llm talks to the text-generation endpoint that proposes selectors.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
	"piifinder/internal/infra/tracer"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiGenerator implements domain.TextGenerator for the Google Gemini
// generateContent API.
type GeminiGenerator struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiGenerator creates a generator for the Gemini API.
func NewGeminiGenerator(cfg config.AIConfig, logger *slog.Logger) *GeminiGenerator {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiGenerator{
		name:    "gemini",
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Generate implements domain.TextGenerator. It sends one request and returns
// the first candidate's text; an empty candidate is ErrEmptyResponse.
func (g *GeminiGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	if req.Model == "" {
		req.Model = g.model
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = g.apiKey
	}

	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", g.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.prompt_chars", len(req.Prompt)),
		),
	)
	defer span.End()

	if apiKey == "" {
		tracer.RecordError(span, domain.ErrMissingAPIKey)
		return nil, domain.ErrMissingAPIKey
	}

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(req.Model), url.QueryEscape(apiKey))

	respBody, err := doJSONRequest(ctx, g.client, endpoint, body, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromGeminiResponse(gemResp, req.Model)
	if strings.TrimSpace(result.Text) == "" {
		tracer.RecordError(span, domain.ErrEmptyResponse)
		return nil, domain.ErrEmptyResponse
	}

	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logGenerateCompleted(g.logger, g.name, result)

	return result, nil
}

// Name implements domain.TextGenerator.
func (g *GeminiGenerator) Name() string { return g.name }

var _ domain.TextGenerator = (*GeminiGenerator)(nil)

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string            `json:"modelVersion,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func toGeminiRequest(req domain.GenerateRequest) geminiRequest {
	gc := &geminiGenerationConfig{
		Temperature:     req.Temperature,
		TopK:            req.TopK,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.JSONResponse {
		gc.ResponseMimeType = "application/json"
	}
	return geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: gc,
	}
}

func fromGeminiResponse(resp geminiResponse, model string) *domain.GenerateResponse {
	result := &domain.GenerateResponse{Model: model}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}

	if resp.UsageMetadata != nil {
		result.Usage = domain.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	// Only the first part of the first candidate carries the answer.
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		result.Text = resp.Candidates[0].Content.Parts[0].Text
	}
	return result
}
