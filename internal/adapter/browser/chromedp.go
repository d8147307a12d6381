// Package browser captures rendered HTML from live pages with chromedp so
// selectors can be generated against what a visitor actually sees.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
)

const defaultTimeout = 45 * time.Second

// ChromeDPLoader implements domain.PageLoader with a single browser tab.
type ChromeDPLoader struct {
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	timeout       time.Duration
	userAgent     string
	logger        *slog.Logger
}

// NewChromeDPLoader connects to cfg.RemoteURL, or launches a local Chrome
// when it is empty, and opens one tab.
func NewChromeDPLoader(cfg config.BrowserConfig, logger *slog.Logger) (*ChromeDPLoader, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &ChromeDPLoader{timeout: cfg.Timeout, userAgent: cfg.UserAgent, logger: logger}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, l.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("chromedp connecting to remote browser", "url", cfg.RemoteURL)
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 720),
		)
		allocCtx, l.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("chromedp launching local browser", "headless", cfg.Headless)
	}

	l.browserCtx, l.browserCancel = chromedp.NewContext(allocCtx)
	l.tabCtx, l.tabCancel = chromedp.NewContext(l.browserCtx)

	// The first Run binds the CDP session to tabCtx, so it must not be a
	// derived context with its own deadline.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(l.tabCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.Timeout):
		l.Close()
		return nil, fmt.Errorf("start browser: timed out after %v", cfg.Timeout)
	}

	logger.Info("chromedp browser started")
	return l, nil
}

// LoadHTML navigates to rawURL, waits for the body and returns the
// serialized document.
func (l *ChromeDPLoader) LoadHTML(ctx context.Context, rawURL string) (string, error) {
	if err := validateURL(rawURL); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tabCtx == nil {
		return "", fmt.Errorf("load %s: browser closed", rawURL)
	}

	tctx, cancel := context.WithTimeout(l.tabCtx, l.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{}
	if l.userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(l.userAgent))
	}
	var out string
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &out, chromedp.ByQuery),
	)

	start := time.Now()
	if err := chromedp.Run(tctx, actions...); err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return "", domain.WrapOp("browser.LoadHTML", fmt.Errorf("%w: %s", domain.ErrTimeout, rawURL))
		}
		return "", domain.WrapOp("browser.LoadHTML", err)
	}
	l.logger.Info("page captured", "url", rawURL, "bytes", len(out), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Close shuts the tab and the browser down.
func (l *ChromeDPLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tabCancel != nil {
		l.tabCancel()
	}
	l.tabCtx, l.tabCancel = nil, nil
	if l.browserCancel != nil {
		l.browserCancel()
	}
	if l.allocCancel != nil {
		l.allocCancel()
	}
	l.logger.Info("chromedp browser closed")
	return nil
}

// validateURL accepts absolute http and https URLs only.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return domain.NewDomainError("browser.LoadHTML", domain.ErrInvalidInput, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.NewDomainError("browser.LoadHTML", domain.ErrInvalidInput, "only http and https URLs can be loaded")
	}
	if u.Host == "" {
		return domain.NewDomainError("browser.LoadHTML", domain.ErrInvalidInput, "missing host")
	}
	return nil
}

var _ domain.PageLoader = (*ChromeDPLoader)(nil)
