// Package browser runs the sessions the scraper drives: one Chrome process
// per Manager, one tab per Page.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/browser/stealth"
	"github.com/xkilldash9x/foodscout/internal/config"
)

// Manager implements schemas.BrowserManager on top of a chromedp exec allocator.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu       sync.Mutex
	rng      *rand.Rand
	sessions map[string]*Page

	// newTab and prepareTab are swapped out by tests that run without Chrome.
	newTab     func() (context.Context, context.CancelFunc)
	prepareTab func(tabCtx context.Context, userAgent string) error
}

var _ schemas.BrowserManager = (*Manager)(nil)

// NewManager prepares the allocator. Chrome itself starts with the first session.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("browser manager requires a configuration")
	}
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]*Page),
	}

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(cfg.Browser, m.pickUserAgent())...)
	m.newTab = m.openTab
	m.prepareTab = m.startTab

	m.logger.Info("Browser manager initialized",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.String("exec_path", cfg.Browser.ExecPath),
	)
	return m, nil
}

// allocatorFlags lists the command-line switches passed to Chrome.
func allocatorFlags(b config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": b.Headless,

		// Automation tells.
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		"disable-infobars":       true,

		"disable-background-networking": true,
		"disable-sync":                  true,
		"metrics-recording-only":        true,
		"disable-default-apps":          true,
		"no-first-run":                  true,
		"disable-hang-monitor":          true,
		"disable-prompt-on-repost":      true,
		"disable-extensions":            true,
		"disable-gpu":                   b.Headless,

		"ignore-certificate-errors": b.IgnoreTLSErrors,
	}
	if b.Locale != "" {
		flags["lang"] = b.Locale
	}
	for _, arg := range b.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

func allocatorOptions(b config.BrowserConfig, userAgent string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(b)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if w, h := b.Viewport["width"], b.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}
	return opts
}

func (m *Manager) pickUserAgent() string {
	pool := m.cfg.Browser.UserAgents
	if len(pool) == 0 {
		pool = config.DefaultUserAgents
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return pool[m.rng.Intn(len(pool))]
}

func (m *Manager) persona(userAgent string) stealth.Persona {
	b := m.cfg.Browser
	return stealth.Persona{
		UserAgent:      userAgent,
		Platform:       b.Platform,
		Languages:      languages(b.AcceptLanguage),
		AcceptLanguage: b.AcceptLanguage,
		Headers:        b.Headers,
	}
}

// languages turns an Accept-Language value into navigator.languages.
func languages(acceptLanguage string) []string {
	var out []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// NewSession opens a new tab with the stealth persona installed.
//
// The tab is not bound to ctx. It stays usable after ctx is cancelled so the
// caller can still take a diagnostic screenshot; Page.Close and Shutdown end it.
func (m *Manager) NewSession(ctx context.Context) (schemas.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := m.newTab()

	userAgent := m.pickUserAgent()
	if err := m.prepareTab(tabCtx, userAgent); err != nil {
		cancel()
		return nil, &AutomationError{Op: "start session", Err: err}
	}

	id := uuid.New().String()
	p := newPage(tabCtx, cancel, id, m, m.cfg.Browser, m.logger)

	m.mu.Lock()
	m.sessions[id] = p
	m.mu.Unlock()

	m.logger.Info("Browser session opened.", zap.String("session_id", id), zap.String("user_agent", userAgent))
	return p, nil
}

func (m *Manager) openTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)
}

// startTab brings the tab up on about:blank. A persona that fails to apply is
// logged and the tab is used as is.
func (m *Manager) startTab(tabCtx context.Context, userAgent string) error {
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		return err
	}
	if err := chromedp.Run(tabCtx, stealth.Apply(m.persona(userAgent), m.logger)); err != nil {
		m.logger.Warn("Failed to apply stealth persona", zap.Error(err))
	}
	return nil
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Shutdown closes every open session and then the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager...")

	m.mu.Lock()
	open := make([]*Page, 0, len(m.sessions))
	for _, p := range m.sessions {
		open = append(open, p)
	}
	m.sessions = make(map[string]*Page)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range open {
		wg.Add(1)
		go func(p *Page) {
			defer wg.Done()
			closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := p.Close(closeCtx); err != nil {
				m.logger.Warn("Error closing browser session during shutdown", zap.String("session_id", p.id), zap.Error(err))
			}
		}(p)
	}
	wg.Wait()

	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
