//go:build integration

package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"piifinder/internal/infra/config"
)

func TestChromeDPLoaderLoadHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>Checkout</title></head>
<body>
  <div class="billing-address"><p>Jane Doe</p></div>
  <script>document.body.insertAdjacentHTML('beforeend', '<span class="customer-email">jane@example.com</span>')</script>
</body></html>`)
	}))
	defer srv.Close()

	loader, err := NewChromeDPLoader(config.BrowserConfig{Headless: true, Timeout: 30 * time.Second}, slog.Default())
	if err != nil {
		t.Fatalf("create loader: %v", err)
	}
	defer loader.Close()

	out, err := loader.LoadHTML(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("LoadHTML: %v", err)
	}
	if !strings.Contains(out, "billing-address") {
		t.Errorf("static markup missing: %s", out)
	}
	if !strings.Contains(out, "customer-email") {
		t.Errorf("script-inserted markup missing: %s", out)
	}
}
