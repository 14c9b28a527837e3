// Package browser manages the headless Chrome lifecycle behind a Rod
// handle: launch or remote attach, stealth page creation, navigation with
// timeouts. Every listing page and detail fetch goes through here.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/logger"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultAnchorTimeout     = 10 * time.Second
)

// Manager owns the Chrome process connection. Safe for concurrent use.
type Manager struct {
	cfg    config.BrowserConfig
	logger logger.Interface

	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool

	// pageCtxs maps open pages to their incognito contexts so ClosePage
	// can dispose the context along with the page.
	ctxMu    sync.Mutex
	pageCtxs map[proto.TargetTargetID]proto.BrowserBrowserContextID
}

// NewManager creates a browser manager. Call Start before opening pages.
func NewManager(cfg config.BrowserConfig, log logger.Interface) *Manager {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = defaultAnchorTimeout
	}
	return &Manager{
		cfg:      cfg,
		logger:   log.WithComponent("browser"),
		pageCtxs: make(map[proto.TargetTargetID]proto.BrowserBrowserContextID),
	}
}

// Start launches a local Chrome or connects to the configured remote
// instance.
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		m.lnch = l
		wsURL = u
		m.logger.Info("launched local chrome", "control_url", wsURL)
	} else {
		m.logger.Info("connecting to remote chrome", "control_url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}
	m.browser = b
	return nil
}

// NewPage opens a fresh stealth page inside its own incognito context
// and navigates it to the URL. The incognito context keeps cookies and
// storage isolated between fetches. The caller owns the page and must
// release it with ClosePage.
func (m *Manager) NewPage(ctx context.Context, pageURL string) (*rod.Page, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("browser not started")
	}

	inc, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	page, err := stealth.Page(inc)
	if err != nil {
		m.disposeContext(inc.BrowserContextID)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	m.ctxMu.Lock()
	m.pageCtxs[page.TargetID] = inc.BrowserContextID
	m.ctxMu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		m.ClosePage(page)
		return nil, fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.logger.Warn("page load wait timed out", "url", pageURL, "error", err)
	}

	return page, nil
}

// ClosePage closes the page and disposes its incognito context so
// contexts do not pile up over a long crawl.
func (m *Manager) ClosePage(page *rod.Page) {
	if page == nil {
		return
	}

	m.ctxMu.Lock()
	ctxID := m.pageCtxs[page.TargetID]
	delete(m.pageCtxs, page.TargetID)
	m.ctxMu.Unlock()

	if err := page.Close(); err != nil {
		m.logger.Warn("page close failed", "error", err)
	}
	m.disposeContext(ctxID)
}

func (m *Manager) disposeContext(id proto.BrowserBrowserContextID) {
	if id == "" {
		return
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return
	}
	if err := (proto.TargetDisposeBrowserContext{BrowserContextID: id}).Call(b); err != nil {
		m.logger.Warn("failed to dispose browser context", "error", err)
	}
}

// WaitAnchor blocks until the selector appears, signalling that the
// page's dynamic content has rendered.
func (m *Manager) WaitAnchor(ctx context.Context, page *rod.Page, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.AnchorTimeout)
	defer cancel()

	if _, err := page.Context(waitCtx).Element(selector); err != nil {
		return fmt.Errorf("anchor %q did not appear: %w", selector, err)
	}
	return nil
}

// HTML returns the page's current DOM serialized as HTML.
func (m *Manager) HTML(ctx context.Context, page *rod.Page) (string, error) {
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

// Close shuts down the Chrome connection and, for locally launched
// instances, the process.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("browser close failed", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}
