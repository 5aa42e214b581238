// Package render loads pages in a headless browser so scripts can run
// before the HTML is read.
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

	"anistream/internal/media"
)

// Renderer returns the DOM of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Func adapts a function to Renderer.
type Func func(ctx context.Context, url string) (string, error)

// Render implements Renderer.
func (f Func) Render(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Static serves fixed HTML per URL. Unknown URLs fail as network errors.
type Static map[string]string

// Render implements Renderer.
func (s Static) Render(_ context.Context, url string) (string, error) {
	html, ok := s[url]
	if !ok {
		return "", fmt.Errorf("rendering %s: %w: no fixture", url, media.ErrNetwork)
	}
	return html, nil
}

// BrowserOptions configures the headless browser.
type BrowserOptions struct {
	Bin      string        // browser executable; empty looks one up or downloads it
	Headless bool
	Settle   time.Duration // extra wait after the load event
	Logger   *slog.Logger
}

// Browser renders pages with a lazily launched Chromium. Each Render opens a
// fresh stealth tab; the browser process is shared and safe for concurrent use.
type Browser struct {
	opts BrowserOptions

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser returns a Browser; nothing is launched until the first Render.
func NewBrowser(opts BrowserOptions) *Browser {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Browser{opts: opts}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(b.opts.Headless)
	bin := b.opts.Bin
	if bin == "" {
		if path, ok := launcher.LookPath(); ok {
			bin = path
		}
	}
	if bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	b.opts.Logger.Debug("browser launched", "bin", bin, "headless", b.opts.Headless)

	b.browser = browser
	return browser, nil
}

// Render implements Renderer.
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("opening tab: %w", err)
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigating to %s: %w: %w", url, media.ErrNetwork, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("waiting for %s: %w: %w", url, media.ErrNetwork, err)
	}

	if b.opts.Settle > 0 {
		t := time.NewTimer(b.opts.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("reading DOM of %s: %w", url, err)
	}
	return html, nil
}

// Close shuts the browser down if it was launched.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
