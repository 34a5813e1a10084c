// Package browser drives the chat page in a Chrome instance over CDP.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"grokrelay/internal/config"
	"grokrelay/internal/logging"
	"grokrelay/internal/observe"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Launch            []string // binary followed by flags
	Headless          bool
	UserDataDir       string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Manager owns the Chrome connection and the chat tab.
type Manager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// NewManager creates a manager. Nothing is launched until Start.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.Get(logging.CategoryBrowser).Warn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.page = nil
		m.controlURL = ""
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("connected to chrome at %s", controlURL)
	return nil
}

// resolveControlURL picks the debugger URL: configured, launched from the
// configured binary, or launched from the default browser. Callers hold mu.
func (m *Manager) resolveControlURL() (string, error) {
	if m.cfg.DebuggerURL != "" {
		// Accept both ws:// endpoints and plain host:port.
		if strings.HasPrefix(m.cfg.DebuggerURL, "ws") {
			return m.cfg.DebuggerURL, nil
		}
		u, err := launcher.ResolveURL(m.cfg.DebuggerURL)
		if err != nil {
			return "", fmt.Errorf("resolve debugger url %s: %w", m.cfg.DebuggerURL, err)
		}
		return u, nil
	}

	if len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		l := m.newLauncher().Bin(bin)
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err == nil {
			return u, nil
		}
		// Retry without the extra flags; a bad flag should not block startup.
		logging.BrowserDebug("launch with flags failed: %v", err)
		alt, altErr := m.newLauncher().Bin(bin).Launch()
		if altErr != nil {
			return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		return alt, nil
	}

	u, err := m.newLauncher().Launch()
	if err != nil {
		return "", fmt.Errorf("no debugger_url and failed to launch: %w", err)
	}
	return u, nil
}

func (m *Manager) newLauncher() *launcher.Launcher {
	l := launcher.New().Headless(m.cfg.Headless)
	if m.cfg.UserDataDir != "" {
		l = l.UserDataDir(m.cfg.UserDataDir)
	}
	return l
}

// ControlURL returns the WebSocket debugger URL.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// OpenChat returns a ChatPage for url. An already open tab whose URL starts
// with url is reused so a logged-in session survives restarts; otherwise a
// new tab is created and navigated.
func (m *Manager) OpenChat(ctx context.Context, url string, sel Selectors) (*ChatPage, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}

	page := m.findTab(url)
	if page == nil {
		p, err := m.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		page = p

		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             m.cfg.GetViewportWidth(),
			Height:            m.cfg.GetViewportHeight(),
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("failed to set viewport: %v", err)
		}

		nav := page.Context(ctx).Timeout(m.cfg.GetNavigationTimeout())
		if err := nav.Navigate(url); err != nil {
			return nil, fmt.Errorf("navigate to %s: %w", url, err)
		}
		if err := nav.WaitLoad(); err != nil {
			return nil, fmt.Errorf("wait for %s to load: %w", url, err)
		}
		logging.Browser("opened chat page %s", url)
	} else {
		logging.Browser("attached to existing tab %s", url)
	}

	m.page = page
	return NewChatPage(page, sel), nil
}

// findTab returns an open tab whose URL starts with url. Callers hold mu.
func (m *Manager) findTab(url string) *rod.Page {
	pages, err := m.browser.Pages()
	if err != nil {
		logging.BrowserDebug("list tabs: %v", err)
		return nil
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if info.Type == "page" && strings.HasPrefix(info.URL, url) {
			return p
		}
	}
	return nil
}

// Screenshot captures the chat tab, mostly for diagnosing selector drift.
func (m *Manager) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	m.mu.RLock()
	page := m.page
	m.mu.RUnlock()
	if page == nil {
		return nil, errors.New("no chat page open")
	}
	return page.Context(ctx).Screenshot(fullPage, nil)
}

// Shutdown releases the browser. A launched browser is closed over CDP
// using ctx, not the context Start was given, so it still closes cleanly
// after that one is cancelled. One reached through DebuggerURL is left
// running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		if m.cfg.DebuggerURL == "" {
			err = m.browser.Context(ctx).Close()
		}
		m.browser = nil
	}
	m.page = nil
	m.controlURL = ""
	logging.Browser("browser session closed")
	return err
}

// ConfigFrom maps the file configuration onto a browser Config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		DebuggerURL:       c.Browser.DebuggerURL,
		Launch:            c.Browser.Launch,
		Headless:          c.Browser.Headless,
		UserDataDir:       c.Browser.UserDataDir,
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
		NavigationTimeout: c.GetNavigationTimeout(),
	}
}

// SelectorsFrom maps the configured page selectors.
func SelectorsFrom(c *config.Config) Selectors {
	s := c.Page.Selectors
	return Selectors{
		Input:  s.Input,
		Submit: s.Submit,
		Selectors: observe.Selectors{
			MessageBubble: s.MessageBubble,
			Paragraph:     s.Paragraph,
			Container:     s.Container,
			Spinner:       s.Spinner,
			Typing:        s.Typing,
			ShareButton:   s.ShareButton,
		},
	}
}
