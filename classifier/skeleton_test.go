package classifier

import (
	"fmt"
	"strings"
	"testing"
)

// listingHTML builds a rendered product-listing page with real cards.
func listingHTML(products int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><nav class="main-nav"><a href="/">home</a></nav><main>`)
	for i := 0; i < products; i++ {
		sb.WriteString(fmt.Sprintf(
			`<div class="product-card" data-product-id="%d"><h2>Product %d</h2><p>A fine product with a detailed description that goes on for a while.</p></div>`,
			i, i))
	}
	sb.WriteString("</main></body></html>")
	return sb.String()
}

func TestIsRendererSkeleton_ValidListing(t *testing.T) {
	c := New(DefaultThresholds())

	skeleton, reason := c.IsRendererSkeleton(listingHTML(12), "https://shop.example/search?q=shoes")
	if skeleton {
		t.Errorf("valid listing rejected: %s", reason)
	}
}

func TestIsRendererSkeleton_EmptyContent(t *testing.T) {
	c := New(DefaultThresholds())

	if skeleton, _ := c.IsRendererSkeleton("", "https://shop.example/"); !skeleton {
		t.Error("empty content should be skeleton")
	}
}

func TestIsRendererSkeleton_NoResultsMessages(t *testing.T) {
	c := New(DefaultThresholds())

	messages := []string{
		"Oops! No results found",
		"no results found",
		"Nothing found for your query",
		"No products found",
		"Try searching for something else",
		"We couldn't find what you were looking for",
		"no matches found",
	}
	for _, msg := range messages {
		html := `<html><body><nav>menu</nav><div class="message">` + msg + `</div></body></html>`
		skeleton, reason := c.IsRendererSkeleton(html, "https://shop.example/search")
		if !skeleton {
			t.Errorf("message %q not detected", msg)
		}
		if !strings.Contains(reason, "no results") {
			t.Errorf("message %q: unexpected reason %s", msg, reason)
		}
	}
}

func TestIsRendererSkeleton_EmptyListingJSON(t *testing.T) {
	c := New(DefaultThresholds())

	cases := []string{
		`"products": []`,
		`"items":[]`,
		`"results": [ ]`,
		`"productsCount": 0`,
		`"itemCount":0`,
		`"totalProductsCount": 0`,
	}
	for _, snippet := range cases {
		html := listingHTML(5) // plenty of real cards; the JSON wins anyway
		html = strings.Replace(html, "</body>", `<script>window.__STATE__ = {`+snippet+`};</script></body>`, 1)
		skeleton, reason := c.IsRendererSkeleton(html, "https://shop.example/search")
		if !skeleton {
			t.Errorf("snippet %q not detected", snippet)
		}
		if !strings.Contains(reason, "empty product listing") {
			t.Errorf("snippet %q: unexpected reason %s", snippet, reason)
		}
	}
}

func TestIsRendererSkeleton_EmbeddedJSONNullProducts(t *testing.T) {
	c := New(DefaultThresholds())

	html := listingHTML(5)
	html = strings.Replace(html, "</body>", `<script>var data = {"query": "shoes", "products": null};</script></body>`, 1)
	// null products: no empty array, must NOT reject.
	if skeleton, reason := c.IsRendererSkeleton(html, "https://shop.example/search"); skeleton {
		t.Errorf("null products wrongly rejected: %s", reason)
	}
}

func TestIsRendererSkeleton_Whitelist(t *testing.T) {
	c := New(DefaultThresholds())

	// A page that would otherwise be rejected outright.
	html := `<html><body><nav>menu</nav><div>No results found</div></body></html>`

	skeleton, reason := c.IsRendererSkeleton(html, "https://www.myntra.com/search?q=xyz")
	if skeleton {
		t.Errorf("whitelisted domain rejected: %s", reason)
	}
	if !strings.Contains(reason, "myntra.com") {
		t.Errorf("reason should name the whitelist entry: %s", reason)
	}

	// Subdomains inherit the whitelist entry.
	if skeleton, _ := c.IsRendererSkeleton(html, "https://m.myntra.com/search"); skeleton {
		t.Error("whitelisted subdomain rejected")
	}

	// Unrelated domains do not.
	if skeleton, _ := c.IsRendererSkeleton(html, "https://notmyntra.com/search"); !skeleton {
		t.Error("non-whitelisted domain accepted")
	}
}

func TestIsRendererSkeleton_ConfiguredWhitelist(t *testing.T) {
	thresholds := DefaultThresholds()
	thresholds.WhitelistDomains = []string{"shop.example"}
	c := New(thresholds)

	html := `<html><body><nav>menu</nav><div>No results found</div></body></html>`
	if skeleton, _ := c.IsRendererSkeleton(html, "https://shop.example/search"); skeleton {
		t.Error("configured whitelist domain rejected")
	}
}

func TestIsRendererSkeleton_NavigationWithoutProducts(t *testing.T) {
	c := New(DefaultThresholds())

	html := `<html><body><nav class="main-nav"><a href="/">home</a><a href="/sale">sale</a></nav><main></main></body></html>`
	skeleton, reason := c.IsRendererSkeleton(html, "https://shop.example/search?q=xyz")
	if !skeleton {
		t.Fatal("nav-only page accepted")
	}
	if !strings.Contains(reason, "navigation present") {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestIsRendererSkeleton_VisibleLoadingState(t *testing.T) {
	c := New(DefaultThresholds())

	base := listingHTML(8)

	visible := strings.Replace(base, "</main>", `<div class="loading-overlay">please wait</div></main>`, 1)
	if skeleton, _ := c.IsRendererSkeleton(visible, "https://shop.example/"); !skeleton {
		t.Error("visible loading overlay accepted")
	}

	hiddenByStyle := strings.Replace(base, "</main>", `<div class="loading-overlay" style="display: none">please wait</div></main>`, 1)
	if skeleton, reason := c.IsRendererSkeleton(hiddenByStyle, "https://shop.example/"); skeleton {
		t.Errorf("display:none overlay rejected: %s", reason)
	}

	hiddenByClass := strings.Replace(base, "</main>", `<div class="loading-overlay hidden">please wait</div></main>`, 1)
	if skeleton, reason := c.IsRendererSkeleton(hiddenByClass, "https://shop.example/"); skeleton {
		t.Errorf("class-hidden overlay rejected: %s", reason)
	}
}

func TestIsRendererSkeleton_StructureHeavyContentLight(t *testing.T) {
	c := New(DefaultThresholds())

	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 60; i++ {
		sb.WriteString(`<div class="grid-slot"></div>`)
	}
	sb.WriteString("<span>almost nothing here</span>")
	sb.WriteString("</body></html>")

	skeleton, reason := c.IsRendererSkeleton(sb.String(), "https://shop.example/")
	if !skeleton {
		t.Fatal("structure-heavy page accepted")
	}
	if !strings.Contains(reason, "structure-heavy") {
		t.Errorf("unexpected reason: %s", reason)
	}
}
