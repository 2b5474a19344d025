package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/priceloom/priceloom/internal/tracker"
)

// VariantOffer is one per-variant price from the embedded product schema.
type VariantOffer struct {
	VariantLabel string
	VariantID    string
	PriceText    string
}

var massPattern = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:kg|g)`)

// productSchema mirrors the JSON-LD ProductGroup block the retailer embeds
// in a <script id="productSchema"> tag.
type productSchema struct {
	Name       string          `json:"name"`
	HasVariant []schemaVariant `json:"hasVariant"`
}

type schemaVariant struct {
	ID     string      `json:"@id"`
	SKU    string      `json:"sku"`
	Name   string      `json:"name"`
	Offers schemaOffer `json:"offers"`
}

type schemaOffer struct {
	Price string `json:"price"`
}

// VariantOffers parses the embedded product schema block into per-variant
// offers. The block is required for pricing, so its absence is a hard
// failure (ErrSchemaMissing), unlike the optional product-page fields.
func VariantOffers(body []byte) ([]VariantOffer, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}
	raw := doc.Find("script#productSchema").First().Text()
	if strings.TrimSpace(raw) == "" {
		return nil, tracker.ErrSchemaMissing
	}

	var schema productSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, fmt.Errorf("%w: decode product schema: %v", tracker.ErrSchemaMissing, err)
	}

	offers := make([]VariantOffer, 0, len(schema.HasVariant))
	for _, v := range schema.HasVariant {
		id := variantID(v)
		if id == "" {
			continue
		}
		offers = append(offers, VariantOffer{
			VariantLabel: variantLabel(v.Name),
			VariantID:    id,
			PriceText:    v.Offers.Price,
		})
	}
	return offers, nil
}

func variantID(v schemaVariant) string {
	if v.SKU != "" {
		return v.SKU
	}
	trimmed := strings.TrimSuffix(v.ID, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// variantLabel reduces a variant name like "Impact Whey Protein 1kg
// Chocolate" to its mass tag ("1kg"). Names without a mass keep the full
// trimmed name so distinct flavour-only variants stay distinguishable.
func variantLabel(name string) string {
	if m := massPattern.FindString(name); m != "" {
		return strings.ToLower(strings.ReplaceAll(m, " ", ""))
	}
	return strings.TrimSpace(name)
}
