package classifier

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// defaultWhitelistDomains are sites whose rendered pages routinely trip the
// listing heuristics below even when perfectly valid. The rendering fleet's
// answer for them is final.
var defaultWhitelistDomains = []string{
	"myntra.com",
	"sangeethamobiles.com",
	"paiinternational.in",
	"myg.in",
	"darlingretail.com",
	"ajio.com",
	"xtepindia.com",
	"lakhanifootwear.com",
	"skechers.in",
	"somethingsbrewing.in",
	"shop.ttkprestige.com",
	"reliancedigital.in",
	"wonderchef.com",
	"domesticappliances.philips.co.in",
	"agarolifestyle.com",
	"naaptol.com",
	"rbzone.com",
}

// noResultsPatterns match natural-language empty-result messages.
var noResultsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`oops!?\s*no\s+results?\s+found`),
	regexp.MustCompile(`no\s+results?\s+found`),
	regexp.MustCompile(`nothing\s+found`),
	regexp.MustCompile(`no\s+products?\s+found`),
	regexp.MustCompile(`no\s+items?\s+found`),
	regexp.MustCompile(`try\s+searching\s+for\s+something\s+else`),
	regexp.MustCompile(`don'?t\s+worry,\s+try\s+searching`),
	regexp.MustCompile(`no\s+results?\s+available`),
	regexp.MustCompile(`we\s+couldn'?t\s+find`),
	regexp.MustCompile(`no\s+matches?\s+found`),
}

// emptyListingPatterns match empty-collection shapes inside inline JSON.
var emptyListingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"products"\s*:\s*\[\s*\]`),
	regexp.MustCompile(`"items"\s*:\s*\[\s*\]`),
	regexp.MustCompile(`"results"\s*:\s*\[\s*\]`),
	regexp.MustCompile(`"productsCount"\s*:\s*0`),
	regexp.MustCompile(`"totalProductsCount"\s*:\s*0`),
	regexp.MustCompile(`"itemCount"\s*:\s*0`),
	regexp.MustCompile(`"count"\s*:\s*0\s*,`),
}

var (
	reProductsObject = regexp.MustCompile(`\{[^{}]*"products"[^{}]*\}`)
	reProductClass   = regexp.MustCompile(`(?i)product|item|listing|card`)
	reProductID      = regexp.MustCompile(`(?i)product|item|listing`)
	reNavClass       = regexp.MustCompile(`(?i)nav|header|menu`)
	reLoadingState   = regexp.MustCompile(`(?i)loading|error|empty|no-results`)
)

// Precompiled structural selectors.
var (
	selNavHeader  = cascadia.MustCompile("nav, header")
	selStructural = cascadia.MustCompile("div, nav, header, footer, aside")
	selContent    = cascadia.MustCompile("article, section, main, p, h1, h2, h3, h4, h5, h6")
	selDataCards  = cascadia.MustCompile("[data-product-id], [data-item-id], article")
	selScripts    = cascadia.MustCompile("script")
)

// IsRendererSkeleton is the renderer-tier verdict: it decides whether a body
// returned by the rendering fleet is a skeleton or empty-results page that
// should be retried (and eventually promoted to the provider tier). It is
// deliberately stricter than the static-tier verdict and tuned for
// search/listing pages.
func (c *Classifier) IsRendererSkeleton(htmlContent, pageURL string) (bool, string) {
	if htmlContent == "" {
		return true, "empty content"
	}

	if domain := c.whitelistedDomain(pageURL); domain != "" {
		return false, domain + " - accepting rendered result"
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return false, "unparseable content, assuming valid"
	}

	lower := strings.ToLower(htmlContent)

	// 1. Natural-language "no results" messages anywhere in the body.
	for _, pattern := range noResultsPatterns {
		if pattern.MatchString(lower) {
			return true, "found 'no results' message"
		}
	}

	// 2. Empty-collection shapes in inline script JSON.
	if empty, reason := scriptsCarryEmptyListing(doc); empty {
		return true, reason
	}

	// 3. Navigation chrome present but no product cards.
	if matchAny(doc, selNavHeader) || hasAttrMatching(doc, "class", reNavClass) {
		products := countProductElements(doc)
		if products < c.t.MinProducts {
			text := VisibleText(doc)
			if len(text) < 500 {
				return true, "navigation present but no products and minimal content"
			}
			visibleLower := strings.ToLower(text)
			for _, phrase := range []string{"no results", "nothing found", "try searching", "oops"} {
				if strings.Contains(visibleLower, phrase) {
					return true, "navigation present but empty state message detected"
				}
			}
		}
	}

	// 4. Structure-heavy, content-light pages.
	structural := countMatches(doc, selStructural)
	content := countMatches(doc, selContent)
	if structural > 50 && content < 5 && len(VisibleText(doc)) < 1000 {
		return true, "structure-heavy but content-light page"
	}

	// 5. Visible loading/error/empty-state elements.
	if visible := hasVisibleLoadingState(doc); visible {
		return true, "visible loading/error state detected"
	}

	return false, "valid content"
}

// whitelistedDomain returns the matching whitelist entry for the URL's host,
// or "" when none matches.
func (c *Classifier) whitelistedDomain(pageURL string) string {
	if pageURL == "" {
		return ""
	}
	host := normalizeDomain(pageURL)
	if host == "" {
		return ""
	}
	for _, domain := range c.whitelist {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return domain
		}
	}
	return ""
}

// normalizeDomain reduces a URL or bare domain to a lowercase hostname
// without the www. prefix.
func normalizeDomain(value string) string {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		return ""
	}
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	if host == "" {
		host = strings.Trim(parsed.Path, "/")
	}
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}

// scriptsCarryEmptyListing scans <script> contents for empty-collection JSON.
func scriptsCarryEmptyListing(doc *goquery.Document) (bool, string) {
	for _, root := range doc.Nodes {
		for _, scriptNode := range cascadia.QueryAll(root, selScripts) {
			content := nodeText(scriptNode)
			if content == "" {
				continue
			}

			for _, pattern := range emptyListingPatterns {
				if pattern.MatchString(content) {
					return true, "empty product listing detected"
				}
			}

			// Best-effort parse of a small embedded object carrying a
			// products key. Invalid JSON is simply skipped.
			match := reProductsObject.FindString(content)
			if match == "" {
				continue
			}
			var data map[string]any
			if err := json.Unmarshal([]byte(match), &data); err != nil {
				continue
			}
			for _, key := range []string{"products", "items", "results", "data"} {
				value, ok := data[key]
				if !ok {
					continue
				}
				switch v := value.(type) {
				case []any:
					if len(v) == 0 {
						return true, "empty " + key + " array in JSON data"
					}
				case map[string]any:
					for _, countKey := range []string{"count", "total", "productsCount", "itemCount", "totalProductsCount"} {
						if n, ok := v[countKey].(float64); ok && n == 0 {
							return true, "zero " + countKey + " in JSON data"
						}
					}
				}
			}
		}
	}
	return false, ""
}

// countProductElements counts distinct product-card-like elements: class/id
// naming, article elements, and data-product/item attributes.
func countProductElements(doc *goquery.Document) int {
	seen := make(map[*html.Node]struct{})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Nodes[0]
		if class, ok := s.Attr("class"); ok && reProductClass.MatchString(class) {
			seen[node] = struct{}{}
			return
		}
		if id, ok := s.Attr("id"); ok && reProductID.MatchString(id) {
			seen[node] = struct{}{}
		}
	})

	for _, root := range doc.Nodes {
		for _, node := range cascadia.QueryAll(root, selDataCards) {
			seen[node] = struct{}{}
		}
	}

	return len(seen)
}

// hasVisibleLoadingState reports whether a loading/error/empty-state element
// exists that is not styled display:none and not class-named hidden.
func hasVisibleLoadingState(doc *goquery.Document) bool {
	found := false
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, hasClass := s.Attr("class")
		id, hasID := s.Attr("id")
		if (!hasClass || !reLoadingState.MatchString(class)) &&
			(!hasID || !reLoadingState.MatchString(id)) {
			return true
		}

		style, _ := s.Attr("style")
		if strings.Contains(strings.ToLower(style), "display: none") ||
			strings.Contains(strings.ToLower(style), "display:none") {
			return true
		}
		if hasClass && strings.Contains(strings.ToLower(class), "hidden") {
			return true
		}

		found = true
		return false
	})
	return found
}

// matchAny reports whether the selector matches anything in the document.
func matchAny(doc *goquery.Document, sel cascadia.Matcher) bool {
	for _, root := range doc.Nodes {
		if cascadia.Query(root, sel) != nil {
			return true
		}
	}
	return false
}

// countMatches counts selector matches across the document.
func countMatches(doc *goquery.Document, sel cascadia.Matcher) int {
	count := 0
	for _, root := range doc.Nodes {
		count += len(cascadia.QueryAll(root, sel))
	}
	return count
}

// hasAttrMatching reports whether any element's attribute matches the regex.
func hasAttrMatching(doc *goquery.Document, attr string, re *regexp.Regexp) bool {
	found := false
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if value, ok := s.Attr(attr); ok && re.MatchString(value) {
			found = true
			return false
		}
		return true
	})
	return found
}

// nodeText concatenates the direct text children of a node (script bodies).
func nodeText(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	return sb.String()
}
