package browser

import (
	"context"
	"log/slog"
	"sync"

	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
)

// LazyLoader starts the browser on the first LoadHTML call, so commands that
// never touch a live page do not pay for a Chrome launch.
type LazyLoader struct {
	mu     sync.Mutex
	cfg    config.BrowserConfig
	logger *slog.Logger
	start  func(config.BrowserConfig, *slog.Logger) (domain.PageLoader, error)
	inner  domain.PageLoader
}

// NewLazyLoader returns a loader backed by chromedp.
func NewLazyLoader(cfg config.BrowserConfig, logger *slog.Logger) *LazyLoader {
	return &LazyLoader{
		cfg:    cfg,
		logger: logger,
		start: func(cfg config.BrowserConfig, logger *slog.Logger) (domain.PageLoader, error) {
			return NewChromeDPLoader(cfg, logger)
		},
	}
}

func (l *LazyLoader) LoadHTML(ctx context.Context, url string) (string, error) {
	if err := validateURL(url); err != nil {
		return "", err
	}
	l.mu.Lock()
	if l.inner == nil {
		inner, err := l.start(l.cfg, l.logger)
		if err != nil {
			l.mu.Unlock()
			return "", err
		}
		l.inner = inner
	}
	inner := l.inner
	l.mu.Unlock()
	return inner.LoadHTML(ctx, url)
}

// Close stops the browser if it was started.
func (l *LazyLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner == nil {
		return nil
	}
	err := l.inner.Close()
	l.inner = nil
	return err
}

var _ domain.PageLoader = (*LazyLoader)(nil)
