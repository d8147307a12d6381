package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"piifinder/internal/domain"
	"piifinder/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size read from the endpoint.
const maxResponseBody = 4 * 1024 * 1024 // 4 MB

// maxErrorDetail bounds how much of an error body ends up in messages.
const maxErrorDetail = 512

// doJSONRequest performs a JSON POST request and returns the response body.
// Non-200 responses are mapped to domain errors; a cancelled or expired
// context is reported as ErrTimeout.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, redactKey(err.Error()))
		}
		return nil, fmt.Errorf("%w: http request: %s", domain.ErrProviderError, redactKey(err.Error()))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// redactKey removes the key query parameter that url.Error messages echo.
func redactKey(msg string) string {
	i := strings.Index(msg, "key=")
	if i < 0 {
		return msg
	}
	end := strings.IndexAny(msg[i:], "&\" ")
	if end < 0 {
		return msg[:i] + "key=REDACTED"
	}
	return msg[:i] + "key=REDACTED" + msg[i+end:]
}

// logGenerateCompleted logs the standard debug message after a successful call.
func logGenerateCompleted(logger *slog.Logger, providerName string, result *domain.GenerateResponse) {
	logger.Debug("llm generate completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"response_chars", len(result.Text),
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapHTTPError maps an HTTP status code and response body to a domain error
// so the caller can classify the failure for its advisory.
func mapHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > maxErrorDetail {
		bodyStr = bodyStr[:maxErrorDetail]
	}
	detail := fmt.Sprintf("API error %d: %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(bodyStr), "token"):
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusTooManyRequests: // 429
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	}
}
