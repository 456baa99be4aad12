// Package extract narrows a full HTML document down to the fragment a user
// would have copied: the main content container, without page chrome.
// Fragments pass through with only scripts and styles removed.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors are removed before the container is chosen. Images, svg
// and code stay: they are part of what gets pasted.
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header > nav",
	"iframe", "form", "button", "input", "select", "textarea",
	".sidebar", ".menu", ".navigation", ".ads", ".advertisement",
}

// ContentExtractor selects the main content of a page.
type ContentExtractor struct{}

// New creates a ContentExtractor.
func New() *ContentExtractor {
	return &ContentExtractor{}
}

// Extract returns the inner markup of <main>, <article> or <body>, in that
// order of preference.
func (e *ContentExtractor) Extract(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	var content *goquery.Selection
	for _, tag := range []string{"main", "article", "body"} {
		if sel := doc.Find(tag); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		return "", fmt.Errorf("no content container found in HTML")
	}

	result, err := content.Html()
	if err != nil {
		return "", fmt.Errorf("serializing content: %w", err)
	}
	return strings.TrimSpace(result), nil
}

// IsDocument reports whether markup looks like a whole page rather than a
// copied fragment.
func IsDocument(markup string) bool {
	head := strings.ToLower(strings.TrimSpace(markup))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html")
}
