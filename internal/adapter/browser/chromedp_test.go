package browser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"piifinder/internal/domain"
)

func TestValidateURL(t *testing.T) {
	for _, raw := range []string{"https://shop.example.com/cart", "http://127.0.0.1:8080/"} {
		if err := validateURL(raw); err != nil {
			t.Errorf("validateURL(%q) = %v", raw, err)
		}
	}
	for _, raw := range []string{"", "file:///etc/passwd", "javascript:alert(1)", "shop.example.com", "https://", "http://%zz"} {
		if err := validateURL(raw); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("validateURL(%q) = %v, want ErrInvalidInput", raw, err)
		}
	}
}

func TestLoadHTMLRejectsBadURLWithoutBrowser(t *testing.T) {
	l := &ChromeDPLoader{}
	if _, err := l.LoadHTML(context.Background(), "ftp://example.com"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("LoadHTML error = %v, want ErrInvalidInput", err)
	}
}

func TestLoadHTMLAfterClose(t *testing.T) {
	l := &ChromeDPLoader{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.LoadHTML(context.Background(), "https://example.com"); err == nil {
		t.Error("LoadHTML after Close should fail")
	}
}
