// Package platform describes the delivery sites foodscout can drive: where
// they live and how to find each UI element on them.
package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/authstate"
	"github.com/xkilldash9x/foodscout/internal/extract"
)

var ErrUnsupportedPlatform = errors.New("platform not supported")

// LoginSelectors are the strategy lists for each step of the manual login.
type LoginSelectors struct {
	Affordance   []schemas.Selector
	Email        []schemas.Selector
	Next         []schemas.Selector
	Password     []schemas.Selector
	Submit       []schemas.Selector
	SecondFactor []schemas.Selector
}

// Platform is a static description of one delivery site.
type Platform struct {
	Name       string
	LandingURL string
	Signals    authstate.Signals
	Login      LoginSelectors
	Consent    []schemas.Selector
	Address    []schemas.Selector
	Suggestion []schemas.Selector
	Search     []schemas.Selector
	Results    extract.Mapping
}

var registry = map[string]*Platform{
	Foodpanda.Name: Foodpanda,
}

// Lookup returns the platform registered under name (case-insensitive).
func Lookup(name string) (*Platform, error) {
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnsupportedPlatform, name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists the registered platforms.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
