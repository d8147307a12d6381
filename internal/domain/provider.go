package domain

import "context"

// GenerateRequest is a single prompt sent to a text-generation endpoint.
type GenerateRequest struct {
	Model           string
	APIKey          string // overrides the provider's configured key when set
	Prompt          string
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
	JSONResponse    bool // force application/json output
}

// Usage reports token accounting returned by the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse carries the first candidate's text.
type GenerateResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// TextGenerator is the interface for any text-generation backend.
type TextGenerator interface {
	// Generate sends one request and returns the complete response.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// Name returns the provider's identifier (e.g., "gemini").
	Name() string
}

// PageLoader captures the rendered HTML of a live page.
type PageLoader interface {
	LoadHTML(ctx context.Context, url string) (string, error)
	Close() error
}

// SelectorStore persists chosen selectors keyed by hostname.
type SelectorStore interface {
	// Add saves s for hostname. Saving the same selector twice is a no-op.
	Add(ctx context.Context, hostname string, s StoredSelector) error
	// List returns the selectors of hostname in the order they were added.
	List(ctx context.Context, hostname string) ([]StoredSelector, error)
	// Remove deletes one selector; ErrNotFound when it was not saved.
	Remove(ctx context.Context, hostname, selector string) error
	// Clear deletes every selector of hostname.
	Clear(ctx context.Context, hostname string) error
	// Hostnames lists the hostnames that have saved selectors.
	Hostnames(ctx context.Context) ([]string, error)
	Close() error
}
