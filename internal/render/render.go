// Package render fetches JavaScript-heavy pages through headless Chrome.
// Callers that only need static HTML should use the fetch engine instead.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrDisabled indicates rendering has been turned off via configuration.
var ErrDisabled = errors.New("renderer disabled")

// Renderer returns fully rendered HTML for a URL.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// Config controls the chromedp renderer.
type Config struct {
	// NavTimeout bounds one page navigation.
	NavTimeout time.Duration
	// MaxParallel bounds concurrent tabs.
	MaxParallel int
	// UserAgent overrides the browser's default signature when non-empty.
	UserAgent string
}

// Chromedp renders pages in a shared headless browser, one tab per call.
type Chromedp struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	timeout         time.Duration
	logger          *zap.Logger
}

// NewChromedp launches the headless browser. It returns ErrDisabled when
// cfg.MaxParallel is zero or negative.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.MaxParallel <= 0 {
		return nil, ErrDisabled
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Chromedp{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxParallel),
		timeout:         cfg.NavTimeout,
		logger:          logger,
	}, nil
}

// Render navigates to url in a fresh tab and returns the resulting DOM.
func (r *Chromedp) Render(ctx context.Context, url string) (string, error) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	// Tie the tab's lifetime to the caller's context as well.
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-tabCtx.Done():
		}
	}()

	start := time.Now()
	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	r.logger.Debug("page rendered",
		zap.String("url", url),
		zap.Duration("took", time.Since(start)),
	)
	return html, nil
}

// Close tears down the browser and its allocator.
func (r *Chromedp) Close() error {
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Noop satisfies Renderer for render-disabled runs.
type Noop struct{}

// Render always fails with ErrDisabled.
func (Noop) Render(context.Context, string) (string, error) { return "", ErrDisabled }

// Close is a no-op.
func (Noop) Close() error { return nil }
