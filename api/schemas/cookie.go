package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// SameSite is the canonical SameSite vocabulary understood by the browser.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// Cookie is a single browser cookie as persisted in a session record.
//
// Members of the JSON object that are not modelled explicitly are kept in Extra
// and written back verbatim, so foreign exports survive a load/save cycle.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"httpOnly"`
	SameSite SameSite `json:"sameSite"`
	// Expires is seconds since the Unix epoch. Nil means a session cookie.
	Expires *float64 `json:"expires,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownCookieFields = map[string]struct{}{
	"name": {}, "value": {}, "domain": {}, "path": {}, "secure": {},
	"httpOnly": {}, "sameSite": {}, "expires": {},
}

// UnmarshalJSON decodes both canonical and foreign cookie shapes. A null or
// missing member leaves the zero value in place.
func (c *Cookie) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("cookie must be a JSON object")
	}

	*c = Cookie{}
	fields := []struct {
		key string
		dst interface{}
	}{
		{"name", &c.Name},
		{"value", &c.Value},
		{"domain", &c.Domain},
		{"path", &c.Path},
		{"secure", &c.Secure},
		{"httpOnly", &c.HTTPOnly},
		{"sameSite", &c.SameSite},
		{"expires", &c.Expires},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || isJSONNull(v) {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("cookie field %q: %w", f.key, err)
		}
	}

	for k, v := range raw {
		if _, known := knownCookieFields[k]; known {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// MarshalJSON writes the modelled fields followed by any extra members in key order.
func (c Cookie) MarshalJSON() ([]byte, error) {
	type plain Cookie
	base, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		if _, known := knownCookieFields[k]; known {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		name, _ := json.Marshal(k)
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(c.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isJSONNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
