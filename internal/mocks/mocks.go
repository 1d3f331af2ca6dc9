package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// -- Scripted Page --

// ScriptedPage is an in-memory schemas.Page. Selectors marked visible resolve
// immediately; any other selector blocks until the caller's context ends, the
// way a real element wait does. Every call is recorded in order.
type ScriptedPage struct {
	mu sync.Mutex

	id         string
	url        string
	visible    map[string]bool
	findErrs   map[string]error
	onClick    map[string]func(p *ScriptedPage)
	onFill     map[string]error
	onNavigate func(p *ScriptedPage, url string)

	browserCookies []schemas.Cookie
	injected       [][]schemas.Cookie
	html           string
	screenshot     []byte

	NavigateErr   error
	ScreenshotErr error
	CookiesErr    error
	CloseErr      error

	calls      []string
	closeCount int
}

// NewScriptedPage returns an empty page at about:blank.
func NewScriptedPage() *ScriptedPage {
	return &ScriptedPage{
		id:         "scripted-page",
		url:        "about:blank",
		visible:    make(map[string]bool),
		findErrs:   make(map[string]error),
		onClick:    make(map[string]func(p *ScriptedPage)),
		onFill:     make(map[string]error),
		screenshot: []byte("\x89PNG\r\n\x1a\n"),
	}
}

// Show makes selectors visible.
func (p *ScriptedPage) Show(sels ...schemas.Selector) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sels {
		p.visible[s.String()] = true
	}
	return p
}

// Hide removes selectors from the visible set.
func (p *ScriptedPage) Hide(sels ...schemas.Selector) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sels {
		delete(p.visible, s.String())
	}
	return p
}

// FailFind makes Find on sel return err immediately.
func (p *ScriptedPage) FailFind(sel schemas.Selector, err error) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findErrs[sel.String()] = err
	return p
}

// FailFill makes Fill on the element found through sel return err.
func (p *ScriptedPage) FailFill(sel schemas.Selector, err error) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFill[sel.String()] = err
	return p
}

// OnClick runs fn (without the page lock held) after the element found through sel is clicked.
func (p *ScriptedPage) OnClick(sel schemas.Selector, fn func(p *ScriptedPage)) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[sel.String()] = fn
	return p
}

// OnNavigate runs fn (without the page lock held) after every successful navigation.
func (p *ScriptedPage) OnNavigate(fn func(p *ScriptedPage, url string)) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
	return p
}

// SetBrowserCookies sets what Cookies returns.
func (p *ScriptedPage) SetBrowserCookies(c []schemas.Cookie) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.browserCookies = c
	return p
}

// SetHTML sets what HTML returns.
func (p *ScriptedPage) SetHTML(html string) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
	return p
}

// SetURL moves the page without recording a navigation.
func (p *ScriptedPage) SetURL(url string) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

func (p *ScriptedPage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded call log.
func (p *ScriptedPage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallsWithPrefix returns recorded calls starting with prefix.
func (p *ScriptedPage) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Injected returns every cookie set passed to SetCookies.
func (p *ScriptedPage) Injected() [][]schemas.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]schemas.Cookie(nil), p.injected...)
}

// CloseCount reports how many times Close ran.
func (p *ScriptedPage) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

func (p *ScriptedPage) ID() string { return p.id }

func (p *ScriptedPage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.record("navigate:%s", url)
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.NavigateErr != nil {
		err := p.NavigateErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	hook := p.onNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *ScriptedPage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, ctx.Err()
}

func (p *ScriptedPage) Find(ctx context.Context, sel schemas.Selector) (schemas.Element, error) {
	key := sel.String()
	p.mu.Lock()
	p.record("find:%s", key)
	err, failing := p.findErrs[key]
	visible := p.visible[key]
	p.mu.Unlock()

	if failing {
		return nil, err
	}
	if visible {
		return &scriptedElement{page: p, sel: sel}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *ScriptedPage) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("press:%s", key)
	return ctx.Err()
}

func (p *ScriptedPage) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("cookies")
	if p.CookiesErr != nil {
		return nil, p.CookiesErr
	}
	return append([]schemas.Cookie(nil), p.browserCookies...), ctx.Err()
}

func (p *ScriptedPage) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("setcookies:%d", len(cookies))
	p.injected = append(p.injected, append([]schemas.Cookie(nil), cookies...))
	return ctx.Err()
}

func (p *ScriptedPage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("html")
	return p.html, ctx.Err()
}

func (p *ScriptedPage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("screenshot")
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), p.screenshot...), nil
}

// Sleep records the requested duration and returns without waiting.
func (p *ScriptedPage) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("sleep:%s", d)
	return ctx.Err()
}

func (p *ScriptedPage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("close")
	p.closeCount++
	return p.CloseErr
}

type scriptedElement struct {
	page *ScriptedPage
	sel  schemas.Selector
}

func (e *scriptedElement) Describe() string { return e.sel.String() }

func (e *scriptedElement) Click(ctx context.Context) error {
	key := e.sel.String()
	e.page.mu.Lock()
	e.page.record("click:%s", key)
	hook := e.page.onClick[key]
	e.page.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		hook(e.page)
	}
	return nil
}

func (e *scriptedElement) Fill(ctx context.Context, value string) error {
	key := e.sel.String()
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.page.record("fill:%s=%s", key, value)
	if err := e.page.onFill[key]; err != nil {
		return err
	}
	return ctx.Err()
}

// -- Operator Mock --

// MockOperator mocks schemas.Operator. A Run hook can script what the human does.
type MockOperator struct {
	mock.Mock
}

func (m *MockOperator) Pause(ctx context.Context, message string) error {
	return m.Called(ctx, message).Error(0)
}

// -- Browser Manager Mock --

// MockBrowserManager mocks schemas.BrowserManager.
type MockBrowserManager struct {
	mock.Mock
}

func (m *MockBrowserManager) NewSession(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Page), args.Error(1)
}

func (m *MockBrowserManager) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Result Sink Mock --

// MockSink mocks the result sink used by the scrape command.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Write(ctx context.Context, runID string, results []schemas.ScrapeResult) error {
	return m.Called(ctx, runID, results).Error(0)
}

func (m *MockSink) Close() error {
	return m.Called().Error(0)
}
