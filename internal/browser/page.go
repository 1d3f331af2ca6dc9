package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/humanoid"
)

// Page implements schemas.Page for one Chrome tab.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	id      string
	manager *Manager
	logger  *zap.Logger

	limiter  *rate.Limiter
	humanoid *humanoid.Humanoid

	closeOnce sync.Once
}

var _ schemas.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, id string, m *Manager, b config.BrowserConfig, logger *zap.Logger) *Page {
	p := &Page{
		ctx:     ctx,
		cancel:  cancel,
		id:      id,
		manager: m,
		logger:  logger.Named("page").With(zap.String("session_id", id)),
		limiter: newLimiter(b.ActionsPerSecond),
	}
	p.humanoid = humanoid.New(b.Humanoid, p.logger, pageExecutor{p})
	return p
}

// newLimiter returns nil, meaning unlimited, for a non-positive rate.
func newLimiter(actionsPerSecond float64) *rate.Limiter {
	if actionsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(actionsPerSecond), 1)
}

func (p *Page) ID() string { return p.id }

// createActionContext derives a context bound to the tab that is also
// cancelled when opCtx ends.
func (p *Page) createActionContext(opCtx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx, cancel
}

// run executes actions against the tab. When opCtx ended first its error is
// returned, so callers can tell a timeout from a browser failure.
func (p *Page) run(opCtx context.Context, op string, actions ...chromedp.Action) error {
	runCtx, cancel := p.createActionContext(opCtx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := opCtx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &AutomationError{Op: op, Err: err}
	}
	return nil
}

func (p *Page) throttle(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.throttle(ctx); err != nil {
		return err
	}
	p.logger.Debug("Navigating", zap.String("url", url))
	err := p.run(ctx, "navigate", chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
	if err != nil {
		var ae *AutomationError
		if errors.As(err, &ae) {
			err = ae.Err
		}
		return &NavigationError{URL: url, Err: err}
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, "read location", chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Find waits for the first visible node matching sel.
func (p *Page) Find(ctx context.Context, sel schemas.Selector) (schemas.Element, error) {
	by := chromedp.ByQuery
	if sel.By == schemas.SelectorXPath {
		by = chromedp.BySearch
	}
	var nodes []*cdp.Node
	if err := p.run(ctx, "find "+sel.String(), chromedp.Nodes(sel.Query, &nodes, by, chromedp.NodeVisible)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &element{page: p, node: nodes[0], sel: sel}, nil
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	if err := p.throttle(ctx); err != nil {
		return err
	}
	k := key
	if key == schemas.KeyEnter {
		k = kb.Enter
	}
	return p.run(ctx, "press "+key, chromedp.KeyEvent(k))
}

func (p *Page) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, "read cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return fromCDPCookies(raw), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := toCDPCookieParams(cookies)
	p.logger.Debug("Installing cookies", zap.Int("count", len(params)))
	return p.run(ctx, "set cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, "read html", chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Screenshot captures the whole page. Quality 100 yields PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, "screenshot", chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return chromedp.Sleep(d).Do(ctx)
}

// Close closes the tab and waits, bounded by ctx, for Chrome to confirm.
// Calling it more than once is harmless.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.logger.Debug("Closing browser session")
		if p.manager != nil {
			p.manager.unregister(p.id)
		}
		err = p.closeTab(ctx)
	})
	return err
}

func (p *Page) closeTab(ctx context.Context) error {
	if chromedp.FromContext(p.ctx) == nil {
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.ctx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return &AutomationError{Op: "close session", Err: err}
		}
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// element is a node that was visible when found.
type element struct {
	page *Page
	node *cdp.Node
	sel  schemas.Selector
}

func (e *element) Describe() string { return e.sel.String() }

func (e *element) Click(ctx context.Context) error {
	p := e.page
	if err := p.throttle(ctx); err != nil {
		return err
	}
	if err := p.humanoid.CognitivePause(ctx); err != nil {
		return err
	}
	if p.humanoid.Enabled() {
		if center, ok := e.center(ctx); ok {
			if err := p.humanoid.MoveTo(ctx, center); err != nil {
				return err
			}
		}
	}
	p.logger.Debug("Clicking", zap.String("selector", e.Describe()))
	return p.run(ctx, "click "+e.Describe(), chromedp.MouseClickNode(e.node))
}

func (e *element) Fill(ctx context.Context, value string) error {
	p := e.page
	if err := p.throttle(ctx); err != nil {
		return err
	}
	if err := p.humanoid.CognitivePause(ctx); err != nil {
		return err
	}
	ids := []cdp.NodeID{e.node.NodeID}
	actions := []chromedp.Action{chromedp.Clear(ids, chromedp.ByNodeID)}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(ids, value, chromedp.ByNodeID))
	}
	p.logger.Debug("Typing", zap.String("selector", e.Describe()), zap.Int("length", len(value)))
	return p.run(ctx, "fill "+e.Describe(), actions...)
}

// center returns the middle of the node's content box in viewport coordinates.
func (e *element) center(ctx context.Context) (humanoid.Vector2D, bool) {
	var box *dom.BoxModel
	err := e.page.run(ctx, "box model", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil || box == nil {
		return humanoid.Vector2D{}, false
	}
	return quadCenter(box.Content)
}

func quadCenter(q dom.Quad) (humanoid.Vector2D, bool) {
	if len(q) < 8 {
		return humanoid.Vector2D{}, false
	}
	var c humanoid.Vector2D
	for i := 0; i < 8; i += 2 {
		c.X += q[i]
		c.Y += q[i+1]
	}
	return c.Mul(0.25), true
}

// pageExecutor lets the humanoid drive the tab's mouse.
type pageExecutor struct{ p *Page }

func (x pageExecutor) DispatchMouseMove(ctx context.Context, cx, cy float64) error {
	return x.p.run(ctx, "mouse move", chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, cx, cy).Do(ctx)
	}))
}

func (x pageExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return x.p.Sleep(ctx, d)
}
