package cookiestore

import (
	"encoding/json"
	"strings"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// droppedFields are browser-extension bookkeeping members the browser rejects.
var droppedFields = []string{"hostOnly", "storeId"}

// Normalize maps a raw cookie set onto the canonical shape. It does not modify
// its input and Normalize(Normalize(x)) == Normalize(x).
func Normalize(cookies []schemas.Cookie) []schemas.Cookie {
	if cookies == nil {
		return nil
	}
	out := make([]schemas.Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = normalizeOne(c)
	}
	return out
}

func normalizeOne(c schemas.Cookie) schemas.Cookie {
	if c.Path == "" {
		c.Path = "/"
	}
	c.SameSite = normalizeSameSite(c.SameSite)
	if c.Expires != nil {
		v := *c.Expires
		c.Expires = &v
	}

	if len(c.Extra) > 0 {
		extra := make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		for _, k := range droppedFields {
			delete(extra, k)
		}
		if len(extra) == 0 {
			extra = nil
		}
		c.Extra = extra
	}
	return c
}

func normalizeSameSite(s schemas.SameSite) schemas.SameSite {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "strict":
		return schemas.SameSiteStrict
	case "lax":
		return schemas.SameSiteLax
	default:
		// "", "none", "no_restriction", "unspecified" and anything unrecognised.
		return schemas.SameSiteNone
	}
}
