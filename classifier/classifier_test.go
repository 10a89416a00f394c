package classifier

import (
	"fmt"
	"strings"
	"testing"
)

// articleHTML builds a page with enough real content to pass every check.
func articleHTML(paragraphs int) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Article</title></head><body><article>")
	for i := 0; i < paragraphs; i++ {
		sb.WriteString(fmt.Sprintf("<p>Paragraph %d with a reasonable amount of readable text that a human would actually want to read on this page.</p>", i))
	}
	sb.WriteString(`<img src="/hero.jpg"><a href="/next">next</a></article></body></html>`)
	return sb.String()
}

func TestShouldFallback_BlockedStatus(t *testing.T) {
	c := New(DefaultThresholds())

	for _, status := range []int{400, 403, 404, 429, 500, 503, 599} {
		promote, reason := c.ShouldFallback(articleHTML(50), status)
		if !promote {
			t.Errorf("status %d should promote", status)
		}
		if !strings.Contains(reason, "blocked") {
			t.Errorf("status %d: reason %q should mention blocking", status, reason)
		}
	}
}

func TestShouldFallback_OKStatusValidContent(t *testing.T) {
	c := New(DefaultThresholds())

	promote, reason := c.ShouldFallback(articleHTML(50), 200)
	if promote {
		t.Errorf("valid article promoted: %s", reason)
	}
}

func TestShouldFallback_EmptyContent(t *testing.T) {
	c := New(DefaultThresholds())

	if promote, _ := c.ShouldFallback("", 200); !promote {
		t.Error("empty content should promote")
	}
}

func TestShouldFallback_ContentTooShort(t *testing.T) {
	c := New(DefaultThresholds())

	promote, reason := c.ShouldFallback("<html><body>hi</body></html>", 200)
	if !promote {
		t.Error("tiny body should promote")
	}
	if !strings.Contains(reason, "too short") {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestShouldFallback_TextTooShort(t *testing.T) {
	c := New(DefaultThresholds())

	// Big markup, almost no text.
	html := "<html><body>" + strings.Repeat("<div></div>", 200) + "<p>tiny</p></body></html>"
	promote, reason := c.ShouldFallback(html, 200)
	if !promote {
		t.Error("markup-only page should promote")
	}
	if !strings.Contains(reason, "text content too short") {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestShouldFallback_SkeletonIndicators(t *testing.T) {
	c := New(DefaultThresholds())

	// Three distinct indicators, modest text.
	var sb strings.Builder
	sb.WriteString(`<html><body><div class="skeleton"></div><div class="spinner"></div><div class="placeholder"></div>`)
	sb.WriteString("<p>" + strings.Repeat("word ", 60) + "</p>")
	// Pad with links so the meaningful-element and length checks pass first,
	// and with empty markup so the page clears the byte threshold.
	for i := 0; i < 10; i++ {
		sb.WriteString(fmt.Sprintf(`<a href="/l%d">link</a>`, i))
	}
	sb.WriteString(strings.Repeat(`<section class="cell"></section>`, 30))
	sb.WriteString("</body></html>")

	promote, reason := c.ShouldFallback(sb.String(), 200)
	if !promote {
		t.Fatal("skeleton page should promote")
	}
	if !strings.Contains(reason, "skeleton") {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestShouldFallback_LayoutHeavyContentLight(t *testing.T) {
	c := New(DefaultThresholds())

	var sb strings.Builder
	sb.WriteString("<html><body>")
	// >20 divs carrying just enough text to clear the plain text threshold
	// while staying under three times that threshold.
	for i := 0; i < 30; i++ {
		sb.WriteString(fmt.Sprintf(`<div><a href="/p%d">item %d</a></div>`, i, i))
	}
	sb.WriteString("<p>" + strings.Repeat("filler ", 8) + "</p>")
	sb.WriteString("</body></html>")

	promote, reason := c.ShouldFallback(sb.String(), 200)
	if !promote {
		t.Fatal("layout-heavy page should promote")
	}
	if !strings.Contains(reason, "layout-heavy") {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestShouldFallback_LargePageLowRatioAccepted(t *testing.T) {
	c := New(DefaultThresholds())

	// >100 KB of markup with real but proportionally small text: typical
	// of modern e-commerce pages, must be accepted.
	var sb strings.Builder
	sb.WriteString("<html><body><article>")
	sb.WriteString("<p>" + strings.Repeat("meaningful text here ", 50) + "</p>")
	for i := 0; i < 20; i++ {
		sb.WriteString(fmt.Sprintf(`<a href="/x%d">x</a><img src="/i%d.jpg">`, i, i))
	}
	sb.WriteString("</article>")
	sb.WriteString(strings.Repeat(`<div data-x="padding-attribute-markup-only"></div>`, 50000))
	sb.WriteString("</body></html>")

	if len(sb.String()) < 100_000 {
		t.Fatalf("test fixture too small: %d bytes", len(sb.String()))
	}

	promote, reason := c.ShouldFallback(sb.String(), 200)
	if promote {
		t.Errorf("large page rejected: %s", reason)
	}
}

func TestVisibleText_SkipsScripts(t *testing.T) {
	// Plenty of bytes, but nearly all of them inside <script>: the text
	// verdict must be based on visible text only.
	html := `<html><body><p>visible</p><script>var padding = "` +
		strings.Repeat("not visible text ", 200) +
		`";</script><style>.x{}</style></body></html>`
	c := New(DefaultThresholds())

	promote, reason := c.ShouldFallback(html, 200)
	if !promote {
		t.Fatal("script-only page should promote")
	}
	if !strings.Contains(reason, "text content too short") {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestDefaultsAppliedForZeroThresholds(t *testing.T) {
	c := New(Thresholds{})
	if c.t.MinContentLength != 1000 || c.t.MinTextLength != 200 {
		t.Errorf("zero thresholds not defaulted: %+v", c.t)
	}
}
