// Package scrape runs one end-to-end search on a delivery platform: sign in,
// set the delivery location, search, and read the listing cards.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/auth"
	"github.com/xkilldash9x/foodscout/internal/authstate"
	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/extract"
	"github.com/xkilldash9x/foodscout/internal/locator"
	"github.com/xkilldash9x/foodscout/internal/platform"
)

// teardownTimeout bounds the screenshot and close that run after ctx may be gone.
const teardownTimeout = 10 * time.Second

// Request describes one scrape.
type Request struct {
	Platform    string
	Query       string
	Location    string
	Credentials auth.Credentials
	// CookiesFile is an explicit exported cookie file to try first.
	CookiesFile string
}

// Controller owns one browsing session per Run.
type Controller struct {
	browser  schemas.BrowserManager
	store    auth.CookieStore
	operator schemas.Operator
	fs       afero.Fs
	cfg      *config.Config
	logger   *zap.Logger
}

// NewController wires a Controller. fs receives the diagnostic screenshot.
func NewController(browser schemas.BrowserManager, store auth.CookieStore, operator schemas.Operator,
	fs afero.Fs, cfg *config.Config, logger *zap.Logger) *Controller {
	return &Controller{
		browser:  browser,
		store:    store,
		operator: operator,
		fs:       fs,
		cfg:      cfg,
		logger:   logger.Named("scrape"),
	}
}

// Run performs the scrape. The session is closed exactly once on every path,
// and any failure after it was opened leaves a full-page screenshot behind.
func (c *Controller) Run(ctx context.Context, req Request) (results []schemas.ScrapeResult, err error) {
	p, err := platform.Lookup(req.Platform)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With(zap.String("platform", p.Name), zap.String("query", req.Query), zap.String("location", req.Location))

	page, err := c.browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		if cerr := page.Close(closeCtx); cerr != nil {
			logger.Warn("Failed to close browser session.", zap.Error(cerr))
		}
	}()

	results, err = c.drive(ctx, page, p, req, logger)
	if err != nil {
		logger.Error("Scrape failed.", zap.Error(err))
		c.captureDiagnostics(ctx, page, p, logger)
		return nil, err
	}
	return results, nil
}

func (c *Controller) drive(ctx context.Context, page schemas.Page, p *platform.Platform, req Request, logger *zap.Logger) ([]schemas.ScrapeResult, error) {
	t := c.cfg.Timeouts
	resolver := locator.NewResolver(c.logger)
	detector := authstate.NewDetector(resolver, t.Signal, c.logger)

	flow := auth.NewFlow(page, p, c.store, detector, resolver, c.operator, req.Credentials, auth.Options{
		ExportedFile: req.CookiesFile,
		Timeouts: auth.Timeouts{
			Navigation:   t.Navigation,
			LoginStep:    t.LoginStep,
			SecondFactor: t.SecondFactor,
			Settle:       t.Settle,
		},
	}, c.logger)
	outcome, err := flow.Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Authenticated.", zap.String("source", outcome.Source))

	if err := c.dismissConsent(ctx, page, p, resolver, logger); err != nil {
		return nil, err
	}
	if err := c.setLocation(ctx, page, p, resolver, req.Location, logger); err != nil {
		return nil, err
	}
	if err := c.search(ctx, page, p, resolver, req.Query); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	pageURL, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}
	restaurants, err := extract.Restaurants(html, pageURL, p.Results)
	if err != nil {
		return nil, err
	}
	logger.Info("Scrape complete.", zap.Int("results", len(restaurants)))

	return []schemas.ScrapeResult{{
		Platform: p.Name,
		Query:    req.Query,
		Location: req.Location,
		Results:  restaurants,
	}}, nil
}

// dismissConsent clicks the cookie banner once if it shows up. Only ctx
// cancellation is fatal here.
func (c *Controller) dismissConsent(ctx context.Context, page schemas.Page, p *platform.Platform, r *locator.Resolver, logger *zap.Logger) error {
	m, found, err := r.Probe(ctx, "consent button", locator.OnPage(page, p.Consent...), c.cfg.Timeouts.Consent)
	if err != nil {
		return err
	}
	if !found {
		logger.Debug("No consent banner.")
		return nil
	}
	if err := m.Element.Click(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Failed to dismiss consent banner, continuing.", zap.Error(err))
	}
	return nil
}

func (c *Controller) setLocation(ctx context.Context, page schemas.Page, p *platform.Platform, r *locator.Resolver, location string, logger *zap.Logger) error {
	t := c.cfg.Timeouts
	m, err := r.Resolve(ctx, "address input", locator.OnPage(page, p.Address...), t.Strategy)
	if err != nil {
		return err
	}
	if err := m.Element.Click(ctx); err != nil {
		return err
	}
	if err := m.Element.Fill(ctx, location); err != nil {
		return err
	}
	if err := page.PressKey(ctx, schemas.KeyEnter); err != nil {
		return err
	}

	s, found, err := r.Probe(ctx, "address suggestion", locator.OnPage(page, p.Suggestion...), t.Suggestions)
	if err != nil {
		return err
	}
	if found {
		if err := s.Element.Click(ctx); err != nil {
			return err
		}
	} else {
		logger.Info("No address suggestions appeared, continuing with the typed location.")
	}
	return page.Sleep(ctx, t.Settle)
}

func (c *Controller) search(ctx context.Context, page schemas.Page, p *platform.Platform, r *locator.Resolver, query string) error {
	t := c.cfg.Timeouts
	m, err := r.Resolve(ctx, "search input", locator.OnPage(page, p.Search...), t.Search)
	if err != nil {
		return err
	}
	if err := m.Element.Fill(ctx, query); err != nil {
		return err
	}
	if err := page.PressKey(ctx, schemas.KeyEnter); err != nil {
		return err
	}
	return page.Sleep(ctx, t.Settle)
}

// captureDiagnostics writes a full-page screenshot. It runs on a context that
// survives cancellation of the scrape, and its own failures are only logged.
func (c *Controller) captureDiagnostics(ctx context.Context, page schemas.Page, p *platform.Platform, logger *zap.Logger) {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	path := c.cfg.ErrorScreenshotPath(p.Name)
	png, err := page.Screenshot(shotCtx)
	if err != nil {
		logger.Warn("Failed to capture diagnostic screenshot.", zap.Error(err))
		return
	}
	if err := afero.WriteFile(c.fs, path, png, 0o644); err != nil {
		logger.Warn("Failed to write diagnostic screenshot.", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("Diagnostic screenshot written.", zap.String("path", path))
}

// IsSelectorExhausted reports whether err means a mandatory element never appeared.
func IsSelectorExhausted(err error) bool {
	return errors.Is(err, locator.ErrSelectorExhausted)
}
