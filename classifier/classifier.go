package classifier

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Thresholds hold the skeleton-detection knobs. All of them are plain
// configuration; there is no learning involved.
type Thresholds struct {
	// MinContentLength is the minimum raw body size in bytes.
	MinContentLength int

	// MinTextLength is the minimum visible text size in characters.
	MinTextLength int

	// MinMeaningfulElements is the minimum count of text-bearing blocks,
	// sourced images and targeted links.
	MinMeaningfulElements int

	// TextToMarkupRatio is the minimum text/(markup) ratio for small pages.
	TextToMarkupRatio float64

	// MinProducts is the minimum product-card count expected on listing
	// pages during the renderer-tier verdict.
	MinProducts int

	// WhitelistDomains bypass the renderer-tier verdict entirely; whatever
	// the rendering fleet returns for them is accepted.
	WhitelistDomains []string
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinContentLength:      1000,
		MinTextLength:         200,
		MinMeaningfulElements: 5,
		TextToMarkupRatio:     0.001,
		MinProducts:           1,
	}
}

// Classifier decides whether an HTML body should be accepted as the final
// answer for a URL or promoted to the next tier.
type Classifier struct {
	t         Thresholds
	whitelist []string
}

// New creates a Classifier. Whitelist domains from the thresholds are merged
// with the built-in list and normalized to bare hostnames.
func New(t Thresholds) *Classifier {
	if t.MinContentLength <= 0 {
		t.MinContentLength = 1000
	}
	if t.MinTextLength <= 0 {
		t.MinTextLength = 200
	}
	if t.MinMeaningfulElements <= 0 {
		t.MinMeaningfulElements = 5
	}
	if t.TextToMarkupRatio <= 0 {
		t.TextToMarkupRatio = 0.001
	}
	if t.MinProducts <= 0 {
		t.MinProducts = 1
	}

	whitelist := make([]string, 0, len(defaultWhitelistDomains)+len(t.WhitelistDomains))
	whitelist = append(whitelist, defaultWhitelistDomains...)
	for _, d := range t.WhitelistDomains {
		if normalized := normalizeDomain(d); normalized != "" {
			whitelist = append(whitelist, normalized)
		}
	}

	return &Classifier{t: t, whitelist: whitelist}
}

// IsBlocked reports whether the status code indicates blocking or an error.
func (c *Classifier) IsBlocked(statusCode int) bool {
	return statusCode >= 400 && statusCode < 600
}

// ShouldFallback is the static-tier verdict: it decides whether the URL must
// be promoted to the rendering tier. The second return value is a short
// human-readable reason.
func (c *Classifier) ShouldFallback(htmlContent string, statusCode int) (bool, string) {
	if c.IsBlocked(statusCode) {
		return true, fmt.Sprintf("request blocked (status %d)", statusCode)
	}

	if htmlContent == "" {
		return true, "no content received"
	}

	if skeleton, reason := c.isSkeletonContent(htmlContent); skeleton {
		return true, "skeleton content: " + reason
	}

	return false, "content is valid"
}

// isSkeletonContent analyzes an HTML body for skeleton/placeholder signals.
func (c *Classifier) isSkeletonContent(htmlContent string) (bool, string) {
	contentLength := len(htmlContent)
	if contentLength < c.t.MinContentLength {
		return true, fmt.Sprintf("content too short (%d bytes)", contentLength)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		// Unparseable but long enough: assume valid rather than burn a
		// render slot on it.
		return false, "unparseable but sufficient length"
	}

	text := VisibleText(doc)
	textLength := len(text)

	if textLength < c.t.MinTextLength {
		return true, fmt.Sprintf("text content too short (%d chars)", textLength)
	}

	meaningful := countMeaningfulElements(doc)
	if meaningful < c.t.MinMeaningfulElements {
		return true, fmt.Sprintf("too few meaningful elements (%d)", meaningful)
	}

	// Text-to-markup ratio. The strict check only applies below 50 KB;
	// large pages (modern e-commerce especially) legitimately carry huge
	// markup for little text, and above 100 KB the threshold is halved on
	// top of that.
	markupLength := contentLength - textLength
	if markupLength > 0 {
		ratio := float64(textLength) / float64(markupLength)
		effective := c.t.TextToMarkupRatio
		if contentLength > 100_000 {
			effective = c.t.TextToMarkupRatio * 0.5
		}
		if ratio < effective && contentLength < 50_000 {
			return true, fmt.Sprintf("low text-to-markup ratio (%.4f)", ratio)
		}
	}

	lower := strings.ToLower(htmlContent)
	skeletonHits := 0
	for _, indicator := range skeletonIndicators {
		if strings.Contains(lower, indicator) {
			skeletonHits++
		}
	}
	if skeletonHits >= 3 && textLength < c.t.MinTextLength*2 {
		return true, fmt.Sprintf("multiple skeleton indicators (%d)", skeletonHits)
	}

	divs := doc.Find("div").Length()
	if divs > 20 && textLength < c.t.MinTextLength*3 {
		return true, fmt.Sprintf("layout-heavy, content-light (%d divs, %d chars)", divs, textLength)
	}

	return false, "valid content"
}

// skeletonIndicators are substrings typical of loading placeholders.
var skeletonIndicators = []string{
	"loading",
	"skeleton",
	"placeholder",
	"spinner",
	"shimmer",
	"pulse",
}

// VisibleText returns the document's text content with whitespace collapsed,
// the way a browser would render it for length heuristics. Script, style and
// noscript contents are excluded.
func VisibleText(doc *goquery.Document) string {
	var sb strings.Builder
	for _, root := range doc.Nodes {
		collectText(root, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

// countMeaningfulElements counts text-bearing block elements, images with a
// source and links with a target.
func countMeaningfulElements(doc *goquery.Document) int {
	count := 0
	doc.Find("p, article, section, div").Each(func(_ int, s *goquery.Selection) {
		if hasDirectText(s) {
			count++
		}
	})
	count += doc.Find("img[src]").Length()
	count += doc.Find("a[href]").Length()
	return count
}

// hasDirectText reports whether the element carries non-whitespace text in
// its own text nodes (not through descendants).
func hasDirectText(s *goquery.Selection) bool {
	for _, n := range s.Nodes {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode && strings.TrimSpace(child.Data) != "" {
				return true
			}
		}
	}
	return false
}
