// Package render loads JavaScript-heavy pages in a headless Chrome with
// stealth patches and returns the resulting DOM.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Config configures the browser.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an existing Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL   string
	NavTimeout  time.Duration
	SettleDelay time.Duration // extra wait after load for client-side rendering
}

// Browser renders pages in one shared Chrome, launched on first use.
// Safe for concurrent use; each Render opens its own tab.
type Browser struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

func NewBrowser(cfg Config, logger *slog.Logger) *Browser {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	return &Browser{cfg: cfg, logger: logger}
}

// Render navigates a fresh stealth tab to pageURL and returns the outer HTML.
func (b *Browser) Render(ctx context.Context, pageURL string) (string, error) {
	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("render: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("render: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("render: wait load timeout", "url", pageURL, "error", err)
	}
	if b.cfg.SettleDelay > 0 {
		select {
		case <-navCtx.Done():
			return "", fmt.Errorf("render: %s: %w", pageURL, navCtx.Err())
		case <-time.After(b.cfg.SettleDelay):
		}
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("render: get DOM of %s: %w", pageURL, err)
	}
	return res.Value.Str(), nil
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("render: browser is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch chrome: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.logger.Info("render: launched local chrome", "url", wsURL)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// Close shuts the browser down. Closing a browser that never started is a no-op.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}
