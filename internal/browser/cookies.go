package browser

import (
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// fromCDPCookies converts the browser's cookie jar to the portable record.
// Session cookies carry no expiry.
func fromCDPCookies(in []*network.Cookie) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		sc := schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: fromCDPSameSite(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			exp := c.Expires
			sc.Expires = &exp
		}
		out = append(out, sc)
	}
	return out
}

func fromCDPSameSite(s network.CookieSameSite) schemas.SameSite {
	switch s {
	case network.CookieSameSiteStrict:
		return schemas.SameSiteStrict
	case network.CookieSameSiteLax:
		return schemas.SameSiteLax
	default:
		return schemas.SameSiteNone
	}
}

// toCDPCookieParams converts stored cookies into the parameters accepted by
// Network.setCookies.
func toCDPCookieParams(in []schemas.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(in))
	for _, c := range in {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: toCDPSameSite(c.SameSite),
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires != nil && *c.Expires > 0 {
			sec, frac := math.Modf(*c.Expires)
			ts := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &ts
		}
		out = append(out, p)
	}
	return out
}

func toCDPSameSite(s schemas.SameSite) network.CookieSameSite {
	switch strings.ToLower(string(s)) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	default:
		return network.CookieSameSiteNone
	}
}
