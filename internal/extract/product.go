package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/priceloom/priceloom/internal/tracker"
)

// ProductDetails holds the fields scraped from a product page. Optional
// fields default to "" or "0.00" when the node is absent; only Title is
// required.
type ProductDetails struct {
	Title              string
	Subtitle           string
	PriceText          string
	BeforeDiscountText string
	DiscountPercentage int
}

// Banner is the parsed content of the site-wide promotional strip.
type Banner struct {
	Percentage int
	EventName  string
}

var (
	percentagePattern = regexp.MustCompile(`(\d+)% OFF`)
	eventNamePattern  = regexp.MustCompile(`CODE【([^】]+)】`)
	pricePattern      = regexp.MustCompile(`[^0-9.\-]+`)
)

// Details extracts product title, subtitle, and price text from a product
// page. It fails only when the title is unobtainable; every other field
// degrades to its sentinel value.
func Details(body []byte) (ProductDetails, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ProductDetails{}, fmt.Errorf("parse product page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1.productName_title").First().Text())
	if title == "" {
		return ProductDetails{}, tracker.ErrTitleMissing
	}

	before := strings.TrimSpace(doc.Find("p.productPrice_rrp.productPrice_rrp_colour").First().Text())
	if before == "" {
		before = "0.00"
	}
	banner := DiscountBanner(doc.Find(".stripBanner_text").Text())

	return ProductDetails{
		Title:              title,
		Subtitle:           strings.TrimSpace(doc.Find("p.productName_subtitle").First().Text()),
		PriceText:          strings.TrimSpace(doc.Find("p.productPrice_price").First().Text()),
		BeforeDiscountText: before,
		DiscountPercentage: banner.Percentage,
	}, nil
}

// BannerText returns the raw promotional strip text from a product page,
// for callers that resolve the discount separately from the product fields.
func BannerText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(".stripBanner_text").Text())
}

// DiscountBanner parses the percentage and event code out of banner text.
// A pattern that does not match yields 0 / "" rather than an error; the
// caller decides whether a missing event name is fatal.
func DiscountBanner(text string) Banner {
	out := Banner{}
	if m := percentagePattern.FindStringSubmatch(text); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil {
			out.Percentage = pct
		}
	}
	if m := eventNamePattern.FindStringSubmatch(text); m != nil {
		out.EventName = strings.TrimSpace(m[1])
	}
	return out
}

// ParsePrice strips currency glyphs and separators from scraped price text
// and parses the remainder. Unparseable text yields 0.
func ParsePrice(text string) float64 {
	cleaned := pricePattern.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
