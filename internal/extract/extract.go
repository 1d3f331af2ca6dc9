// Package extract maps a rendered search results page to restaurant records.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// Mapping names the CSS selectors for one listing card and its fields. A
// field selector may be a selector group ("a, b"); the first match in
// document order wins, and a missing field yields "".
type Mapping struct {
	Card         string `mapstructure:"card"`
	Name         string `mapstructure:"name"`
	Cuisine      string `mapstructure:"cuisine"`
	DeliveryTime string `mapstructure:"delivery_time"`
	DeliveryFee  string `mapstructure:"delivery_fee"`
	Link         string `mapstructure:"link"`
}

// Restaurants extracts one record per card in document order. Relative links
// are resolved against pageURL.
func Restaurants(html, pageURL string, m Mapping) ([]schemas.Restaurant, error) {
	if m.Card == "" {
		return nil, fmt.Errorf("extract: mapping has no card selector")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	linkSel := m.Link
	if linkSel == "" {
		linkSel = "a"
	}

	results := []schemas.Restaurant{}
	doc.Find(m.Card).Each(func(_ int, card *goquery.Selection) {
		results = append(results, schemas.Restaurant{
			Name:         text(card, m.Name),
			Cuisine:      text(card, m.Cuisine),
			DeliveryTime: text(card, m.DeliveryTime),
			DeliveryFee:  text(card, m.DeliveryFee),
			Link:         href(card, linkSel, base),
		})
	})
	return results, nil
}

func text(card *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return strings.TrimSpace(card.Find(sel).First().Text())
}

func href(card *goquery.Selection, sel string, base *url.URL) string {
	raw, ok := card.Find(sel).First().Attr("href")
	if !ok {
		return ""
	}
	raw = strings.TrimSpace(raw)
	if base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
