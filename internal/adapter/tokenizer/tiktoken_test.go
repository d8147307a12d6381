package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	assert.Equal(t, 0, c.CountText(""))
	short := c.CountText("hello world")
	require.Positive(t, short)
	assert.Greater(t, c.CountText(`<div class="customer-info"><span>john@example.com</span></div>`), short)
}

func TestUnknownEncoding(t *testing.T) {
	_, err := New("no-such-encoding")
	assert.Error(t, err)
}
