package schemas

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// -- Selectors --

// SelectorKind tells the browser how to interpret a Selector query.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// Selector is one concrete way of finding an element on a page.
type Selector struct {
	Query string       `json:"query" mapstructure:"query"`
	By    SelectorKind `json:"by" mapstructure:"by"`
}

// CSS builds a CSS selector.
func CSS(query string) Selector {
	return Selector{Query: query, By: SelectorCSS}
}

// XPath builds an XPath selector.
func XPath(query string) Selector {
	return Selector{Query: query, By: SelectorXPath}
}

// ButtonWithText matches a visible button whose text contains the given label.
func ButtonWithText(label string) Selector {
	return XPath(fmt.Sprintf("//button[contains(normalize-space(.), %s)]", xpathLiteral(label)))
}

func (s Selector) String() string {
	if s.By == "" || s.By == SelectorCSS {
		return s.Query
	}
	return string(s.By) + "=" + s.Query
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// -- Browser Interfaces --

// Element is a handle to a node that was visible when it was found.
type Element interface {
	Click(ctx context.Context) error
	// Fill clears the element and types the value into it.
	Fill(ctx context.Context, value string) error
	Describe() string
}

// Page is a single browsing session (one tab) owned by one scrape.
type Page interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Find blocks until an element matching sel is visible or ctx is done.
	Find(ctx context.Context, sel Selector) (Element, error)
	PressKey(ctx context.Context, key string) error
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	HTML(ctx context.Context) (string, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Sleep(ctx context.Context, d time.Duration) error
	Close(ctx context.Context) error
}

// BrowserManager hands out browsing sessions.
type BrowserManager interface {
	NewSession(ctx context.Context) (Page, error)
	Shutdown(ctx context.Context) error
}

// Operator is the human in the loop. Pause blocks until the operator
// acknowledges or ctx is cancelled.
type Operator interface {
	Pause(ctx context.Context, message string) error
}

// Key names accepted by Page.PressKey.
const (
	KeyEnter = "Enter"
)
