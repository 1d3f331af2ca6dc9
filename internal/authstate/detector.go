// Package authstate classifies a loaded page as logged in or logged out.
package authstate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/locator"
)

// Signals are the markers a platform exposes for its login state.
type Signals struct {
	// LoggedIn elements appear only for an authenticated user (avatar, profile menu).
	LoggedIn []schemas.Selector
	// LoggedOut elements are the "log in" affordance.
	LoggedOut []schemas.Selector
}

// Detector applies a fixed precedence: any logged-in signal wins, then a
// logged-out signal, and a page showing neither is assumed logged in.
type Detector struct {
	resolver *locator.Resolver
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDetector builds a Detector that waits at most signalTimeout per signal.
func NewDetector(resolver *locator.Resolver, signalTimeout time.Duration, logger *zap.Logger) *Detector {
	return &Detector{
		resolver: resolver,
		timeout:  signalTimeout,
		logger:   logger.Named("authstate"),
	}
}

// Detect reports whether page shows an authenticated session. The only error
// it returns is ctx's.
func (d *Detector) Detect(ctx context.Context, page schemas.Page, signals Signals) (bool, error) {
	m, found, err := d.resolver.Probe(ctx, "logged-in signal", locator.OnPage(page, signals.LoggedIn...), d.timeout)
	if err != nil {
		return false, err
	}
	if found {
		d.logger.Info("Logged-in signal present.", zap.String("signal", m.Strategy.Describe()))
		return true, nil
	}

	m, found, err = d.resolver.Probe(ctx, "login affordance", locator.OnPage(page, signals.LoggedOut...), d.timeout)
	if err != nil {
		return false, err
	}
	if found {
		d.logger.Info("Login affordance visible, session is not authenticated.", zap.String("signal", m.Strategy.Describe()))
		return false, nil
	}

	// Markup drifts; without either marker the page is assumed authenticated.
	d.logger.Warn("No login-state signal found, assuming logged in.")
	return true, nil
}
