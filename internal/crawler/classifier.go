// Package crawler discovers product URLs by walking paginated category
// listings.
package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Classification is the verdict on a fetched listing page.
type Classification struct {
	// NotFound means the page identity itself is broken (dead URL).
	NotFound bool
	// Exhausted means pagination ran past the last page of results.
	Exhausted bool
}

// PageClassifier decides whether a fetched page is a dead URL or an
// exhausted pagination tail. Kept behind an interface so the substring
// heuristic can be swapped for a stronger signal without touching the
// crawler.
type PageClassifier interface {
	Classify(body []byte) Classification
}

// Phrase groups observed on the retailer's error pages. A group matches
// only when every phrase in it appears, which keeps false positives on
// ordinary pages rare.
var (
	defaultNotFoundPhrases = []string{
		"this page can't be found",
		"it's either been removed from this location, or the url is wrong",
	}
	defaultExhaustedPhrases = []string{
		"use our search tips & try again",
		"the item you are looking for might have been discontinued",
	}
)

// HeuristicClassifier implements PageClassifier with case-insensitive
// substring matching over the rendered body text.
type HeuristicClassifier struct {
	notFoundPhrases  []string
	exhaustedPhrases []string
}

// NewHeuristicClassifier builds a classifier with the default phrase groups.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{
		notFoundPhrases:  defaultNotFoundPhrases,
		exhaustedPhrases: defaultExhaustedPhrases,
	}
}

// Classify inspects the page body. It is a pure predicate: a parse failure
// degrades to "neither", which the crawler treats as a zero-product page.
func (c *HeuristicClassifier) Classify(body []byte) Classification {
	text := bodyText(body)
	return Classification{
		NotFound:  containsAll(text, c.notFoundPhrases),
		Exhausted: containsAll(text, c.exhaustedPhrases),
	}
}

// bodyText extracts the rendered text so phrases survive markup and HTML
// entities; unparseable input falls back to the raw bytes.
func bodyText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return strings.ToLower(string(body))
	}
	return strings.ToLower(doc.Find("body").Text())
}

func containsAll(text string, phrases []string) bool {
	if len(phrases) == 0 {
		return false
	}
	for _, p := range phrases {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}
