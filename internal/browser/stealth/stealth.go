// Package stealth masks the most common automation tells of a controlled
// Chrome before any page script runs.
package stealth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Persona is the identity presented to the sites being visited.
type Persona struct {
	UserAgent      string
	Platform       string
	Languages      []string
	AcceptLanguage string
	// Headers are sent with every request in addition to Accept-Language.
	Headers map[string]string
}

var evasionsTemplate = template.Must(template.New("evasions").Parse(`(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(Navigator.prototype, 'webdriver', false);
  define(Navigator.prototype, 'languages', {{.Languages}});
  define(Navigator.prototype, 'platform', {{.Platform}});
  if (!window.chrome) { window.chrome = { runtime: {} }; }
})();`))

// Script renders the init script for p. Values are JSON encoded so they
// cannot break out of the string literals.
func Script(p Persona) (string, error) {
	langs := p.Languages
	if len(langs) == 0 {
		langs = []string{"en-US", "en"}
	}
	langJSON, err := json.Marshal(langs)
	if err != nil {
		return "", err
	}
	platformJSON, err := json.Marshal(p.Platform)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = evasionsTemplate.Execute(&buf, struct{ Languages, Platform string }{
		Languages: string(langJSON),
		Platform:  string(platformJSON),
	})
	if err != nil {
		return "", fmt.Errorf("render evasions: %w", err)
	}
	return buf.String(), nil
}

// Headers returns the extra request headers for p.
func Headers(p Persona) network.Headers {
	h := network.Headers{}
	for k, v := range p.Headers {
		h[k] = v
	}
	if p.AcceptLanguage != "" {
		h["Accept-Language"] = p.AcceptLanguage
	}
	return h
}

// Apply installs the persona on the current target. It must run before the
// first real navigation so the init script is in place.
func Apply(p Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := Script(p)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("install evasions: %w", err)
		}
		if p.UserAgent != "" {
			ua := emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform)
			if p.AcceptLanguage != "" {
				ua = ua.WithAcceptLanguage(p.AcceptLanguage)
			}
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("override user agent: %w", err)
			}
		}
		if h := Headers(p); len(h) > 0 {
			if err := network.Enable().Do(ctx); err != nil {
				return err
			}
			if err := network.SetExtraHTTPHeaders(h).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if logger != nil {
			logger.Debug("Stealth persona applied.", zap.String("user_agent", p.UserAgent), zap.String("platform", p.Platform))
		}
		return nil
	})
}
