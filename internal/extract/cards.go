// Package extract parses retailer HTML and embedded JSON into typed records.
// Every function here is pure: no network access, no store access.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProductCard is one entry scraped from a category listing page.
type ProductCard struct {
	Name      string
	URL       string
	VariantID string
}

// ProductCards extracts the product card list from a category page.
// Relative hrefs are resolved against baseURL. Cards missing a name, href,
// or derivable variant id are dropped rather than reported as errors.
func ProductCards(body []byte, baseURL string) ([]ProductCard, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	var cards []ProductCard
	doc.Find("ul.productListProducts_products li.productListProducts_product").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find("h3.productBlock_productName").First().Text())
		href, ok := s.Find("a.productBlock_link").First().Attr("href")
		if name == "" || !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		variantID := variantIDFromHref(href)
		if variantID == "" {
			return
		}
		cards = append(cards, ProductCard{
			Name:      name,
			URL:       base.ResolveReference(ref).String(),
			VariantID: variantID,
		})
	})
	return cards, nil
}

// variantIDFromHref derives the variant id from the final path segment,
// e.g. "/sports-nutrition/impact-whey/10530943.html" -> "10530943".
func variantIDFromHref(href string) string {
	trimmed := strings.TrimSuffix(href, "/")
	last := trimmed
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		last = trimmed[i+1:]
	}
	if j := strings.Index(last, "."); j >= 0 {
		last = last[:j]
	}
	return last
}
