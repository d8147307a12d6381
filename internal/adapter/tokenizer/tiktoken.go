// Package tokenizer provides BPE token counters for context budgeting.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens with a tiktoken encoding. Gemini uses its own
// vocabulary, so counts are an approximation that is usually closer than
// the four-characters-per-token estimate for markup-heavy text.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New loads the named encoding. The BPE ranks may be fetched over the
// network on first use and are cached by tiktoken-go afterwards.
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Counter{enc: enc}, nil
}

// CountText implements domain.TokenCounter.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}
