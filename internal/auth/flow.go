// Package auth drives a browsing session to an authenticated state, reusing
// stored cookies when they still work and falling back to an operator-assisted
// login when they do not.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/authstate"
	"github.com/xkilldash9x/foodscout/internal/locator"
	"github.com/xkilldash9x/foodscout/internal/platform"
)

const (
	captchaPrompt = "If you see a captcha, please solve it in the browser, then press Enter here to continue..."
	otpPrompt     = "If OTP is required, please enter it in the browser, then press Enter here to continue..."
)

// ErrCredentialsRequired is returned when a manual login is needed but no email was supplied.
var ErrCredentialsRequired = errors.New("login credentials required")

// CookieStore is the subset of the cookie store the flow depends on.
type CookieStore interface {
	Save(platform, userID string, cookies []schemas.Cookie) error
	Load(platform, userID string) ([]schemas.Cookie, bool, error)
	LoadExportedFile(platform, userID, path string) ([]schemas.Cookie, bool)
	ImportFromDefaultExportLocation(platform, userID string) ([]schemas.Cookie, bool)
}

// Credentials identify the account used for the session.
type Credentials struct {
	UserID   string
	Email    string
	Password string
}

// Timeouts bound the waits the flow performs.
type Timeouts struct {
	Navigation   time.Duration
	LoginStep    time.Duration
	SecondFactor time.Duration
	Settle       time.Duration
}

// Options tune a Flow.
type Options struct {
	// ExportedFile, when set, is tried before the default export location.
	ExportedFile string
	Timeouts     Timeouts
}

// Outcome summarises a completed flow.
type Outcome struct {
	Final   State
	Path    []State
	Source  string
	Cookies []schemas.Cookie
}

// Flow is a single-use authentication state machine for one page.
type Flow struct {
	page     schemas.Page
	platform *platform.Platform
	store    CookieStore
	detector *authstate.Detector
	resolver *locator.Resolver
	operator schemas.Operator
	creds    Credentials
	opts     Options
	logger   *zap.Logger

	state State
	path  []State
}

// NewFlow wires a Flow for one page and one account.
func NewFlow(page schemas.Page, p *platform.Platform, store CookieStore, detector *authstate.Detector,
	resolver *locator.Resolver, operator schemas.Operator, creds Credentials, opts Options, logger *zap.Logger) *Flow {
	return &Flow{
		page:     page,
		platform: p,
		store:    store,
		detector: detector,
		resolver: resolver,
		operator: operator,
		creds:    creds,
		opts:     opts,
		logger:   logger.Named("auth").With(zap.String("platform", p.Name), zap.String("user_id", creds.UserID)),
		state:    StateStart,
		path:     []State{StateStart},
	}
}

// State returns the current state.
func (f *Flow) State() State { return f.state }

// Run executes the flow to SessionPersisted or returns the first failure.
// Failures during the manual login are returned as-is; nothing is retried.
func (f *Flow) Run(ctx context.Context) (*Outcome, error) {
	if f.state != StateStart {
		return nil, fmt.Errorf("auth flow already ran (state %s)", f.state)
	}
	f.transition(StateCookieSourceSelection)

	cookies, source, err := f.selectCookies()
	if err != nil {
		return nil, err
	}

	authenticated := false
	if len(cookies) > 0 {
		f.transition(StateCookieRestored)
		if authenticated, err = f.verify(ctx, cookies); err != nil {
			return nil, err
		}
	}

	if authenticated {
		f.transition(StateAuthenticated)
	} else {
		f.transition(StateManualLoginRequired)
		source = "manual login"
		if err := f.manualLogin(ctx); err != nil {
			return nil, err
		}
	}

	persisted, err := f.persist(ctx)
	if err != nil {
		return nil, err
	}
	f.transition(StateSessionPersisted)
	f.logger.Info("Session authenticated.", zap.String("source", source), zap.Stringers("path", f.path))

	return &Outcome{
		Final:   f.state,
		Path:    append([]State(nil), f.path...),
		Source:  source,
		Cookies: persisted,
	}, nil
}

// selectCookies applies the source priority: explicit export, default export, stored session.
func (f *Flow) selectCookies() ([]schemas.Cookie, string, error) {
	name, user := f.platform.Name, f.creds.UserID

	if f.opts.ExportedFile != "" {
		if c, ok := f.store.LoadExportedFile(name, user, f.opts.ExportedFile); ok && len(c) > 0 {
			return c, "exported file", nil
		}
	} else if c, ok := f.store.ImportFromDefaultExportLocation(name, user); ok && len(c) > 0 {
		return c, "default export", nil
	}

	c, ok, err := f.store.Load(name, user)
	if err != nil {
		return nil, "", err
	}
	if ok && len(c) > 0 {
		return c, "stored session", nil
	}
	f.logger.Info("No cookies available, manual login required.")
	return nil, "", nil
}

func (f *Flow) verify(ctx context.Context, cookies []schemas.Cookie) (bool, error) {
	if err := f.page.SetCookies(ctx, cookies); err != nil {
		return false, err
	}
	if err := f.navigate(ctx, f.platform.LandingURL); err != nil {
		return false, err
	}
	f.transition(StateVerifying)
	return f.detector.Detect(ctx, f.page, f.platform.Signals)
}

func (f *Flow) manualLogin(ctx context.Context) error {
	if f.creds.Email == "" {
		return ErrCredentialsRequired
	}

	current, err := f.page.URL(ctx)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(current, strings.TrimSuffix(f.platform.LandingURL, "/")) {
		if err := f.navigate(ctx, f.platform.LandingURL); err != nil {
			return err
		}
	}

	// Always hand over before touching the page; an interstitial may be up.
	if err := f.operator.Pause(ctx, captchaPrompt); err != nil {
		return err
	}

	login := f.platform.Login
	if err := f.click(ctx, "login affordance", login.Affordance); err != nil {
		return err
	}
	if err := f.fill(ctx, "email input", login.Email, f.creds.Email); err != nil {
		return err
	}
	if err := f.click(ctx, "continue button", login.Next); err != nil {
		return err
	}
	if err := f.fill(ctx, "password input", login.Password, f.creds.Password); err != nil {
		return err
	}
	if err := f.click(ctx, "submit button", login.Submit); err != nil {
		return err
	}
	f.transition(StateCredentialsSubmitted)

	_, needsCode, err := f.resolver.Probe(ctx, "second-factor input",
		locator.OnPage(f.page, login.SecondFactor...), f.opts.Timeouts.SecondFactor)
	if err != nil {
		return err
	}
	if needsCode {
		f.transition(StateAwaitingSecondFactor)
		if err := f.operator.Pause(ctx, otpPrompt); err != nil {
			return err
		}
	}

	if err := f.page.Sleep(ctx, f.opts.Timeouts.Settle); err != nil {
		return err
	}
	f.transition(StateLoginComplete)
	return nil
}

func (f *Flow) persist(ctx context.Context) ([]schemas.Cookie, error) {
	cookies, err := f.page.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.store.Save(f.platform.Name, f.creds.UserID, cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func (f *Flow) navigate(ctx context.Context, url string) error {
	if f.opts.Timeouts.Navigation <= 0 {
		return f.page.Navigate(ctx, url)
	}
	navCtx, cancel := context.WithTimeout(ctx, f.opts.Timeouts.Navigation)
	defer cancel()
	return f.page.Navigate(navCtx, url)
}

func (f *Flow) click(ctx context.Context, target string, sels []schemas.Selector) error {
	m, err := f.resolver.Resolve(ctx, target, locator.OnPage(f.page, sels...), f.opts.Timeouts.LoginStep)
	if err != nil {
		return err
	}
	return m.Element.Click(ctx)
}

func (f *Flow) fill(ctx context.Context, target string, sels []schemas.Selector, value string) error {
	m, err := f.resolver.Resolve(ctx, target, locator.OnPage(f.page, sels...), f.opts.Timeouts.LoginStep)
	if err != nil {
		return err
	}
	return m.Element.Fill(ctx, value)
}

func (f *Flow) transition(to State) {
	if !canTransition(f.state, to) {
		// Programming error: the flow only follows its own table.
		panic(fmt.Sprintf("auth: illegal transition %s -> %s", f.state, to))
	}
	f.logger.Debug("State transition.", zap.Stringer("from", f.state), zap.Stringer("to", to))
	f.state = to
	f.path = append(f.path, to)
}
