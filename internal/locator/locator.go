// Package locator finds one logical UI element by probing an ordered list of
// alternative strategies, taking the first that produces a visible element.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// ErrSelectorExhausted matches every *SelectorExhaustedError.
var ErrSelectorExhausted = errors.New("selector exhausted")

// SelectorExhaustedError is returned when no strategy produced a match.
type SelectorExhaustedError struct {
	Target   string
	Attempts []string
}

func (e *SelectorExhaustedError) Error() string {
	return fmt.Sprintf("no strategy located %q (tried %d: %s)", e.Target, len(e.Attempts), strings.Join(e.Attempts, " | "))
}

func (e *SelectorExhaustedError) Is(target error) bool {
	return target == ErrSelectorExhausted
}

// Strategy is one opaque way of locating an element.
type Strategy interface {
	Describe() string
	Locate(ctx context.Context) (schemas.Element, error)
}

// Match is the outcome of a successful resolution.
type Match struct {
	Index    int
	Strategy Strategy
	Element  schemas.Element
}

// selectorStrategy locates an element through a page selector.
type selectorStrategy struct {
	page schemas.Page
	sel  schemas.Selector
}

func (s selectorStrategy) Describe() string { return s.sel.String() }

func (s selectorStrategy) Locate(ctx context.Context) (schemas.Element, error) {
	return s.page.Find(ctx, s.sel)
}

// OnPage turns selectors into strategies bound to page, preserving order.
func OnPage(page schemas.Page, sels ...schemas.Selector) []Strategy {
	out := make([]Strategy, len(sels))
	for i, sel := range sels {
		out[i] = selectorStrategy{page: page, sel: sel}
	}
	return out
}

// Resolver probes strategies in order.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger.Named("locator")}
}

// Resolve tries each strategy in list order, bounding each attempt by
// perStrategyTimeout, and returns the first match. No strategy after a
// successful one is attempted. If ctx itself ends, resolution stops with
// ctx's error. Any other attempt failure counts as a miss.
func (r *Resolver) Resolve(ctx context.Context, target string, strategies []Strategy, perStrategyTimeout time.Duration) (Match, error) {
	attempts := make([]string, 0, len(strategies))
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}

		el, err := r.attempt(ctx, s, perStrategyTimeout)
		if err == nil && el != nil {
			r.logger.Debug("Located element.",
				zap.String("target", target),
				zap.Int("strategy_index", i),
				zap.String("strategy", s.Describe()))
			return Match{Index: i, Strategy: s, Element: el}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Match{}, ctxErr
		}

		attempts = append(attempts, s.Describe())
		fields := []zap.Field{
			zap.String("target", target),
			zap.Int("strategy_index", i),
			zap.String("strategy", s.Describe()),
		}
		switch {
		case err == nil:
			r.logger.Debug("Strategy found nothing.", fields...)
		case errors.Is(err, context.DeadlineExceeded):
			r.logger.Debug("Strategy timed out.", fields...)
		default:
			r.logger.Debug("Strategy failed.", append(fields, zap.Error(err))...)
		}
	}

	r.logger.Warn("All strategies exhausted.", zap.String("target", target), zap.Strings("tried", attempts))
	return Match{}, &SelectorExhaustedError{Target: target, Attempts: attempts}
}

func (r *Resolver) attempt(ctx context.Context, s Strategy, timeout time.Duration) (schemas.Element, error) {
	if timeout <= 0 {
		return s.Locate(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Locate(attemptCtx)
}

// Probe reports whether any strategy locates an element, without treating a miss as an error.
func (r *Resolver) Probe(ctx context.Context, target string, strategies []Strategy, perStrategyTimeout time.Duration) (Match, bool, error) {
	m, err := r.Resolve(ctx, target, strategies, perStrategyTimeout)
	if errors.Is(err, ErrSelectorExhausted) {
		return Match{}, false, nil
	}
	if err != nil {
		return Match{}, false, err
	}
	return m, true, nil
}
