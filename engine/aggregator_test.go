package engine

import (
	"testing"

	"github.com/use-agent/urlhtml/models"
)

func TestAggregator_OrderAndSummary(t *testing.T) {
	urls := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
	agg := NewAggregator(urls)

	// Add out of input order.
	agg.Add("https://c.example/", "<html>c</html>", models.MethodDecodo, models.StatusSuccess, "")
	agg.Add("https://a.example/", "<html>a</html>", models.MethodStatic, models.StatusSuccess, "")
	agg.Add("https://b.example/", "", models.MethodCustomJS, models.StatusFailed, "render failed")

	results, summary := agg.Finalize(1.5)

	for i, u := range urls {
		if results[i].URL != u {
			t.Errorf("result %d: expected %s, got %s", i, u, results[i].URL)
		}
	}

	if summary.Total != 3 || summary.Success != 2 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.TotalTime != 1.5 {
		t.Errorf("total time not propagated: %v", summary.TotalTime)
	}

	byMethodSum := 0
	for _, n := range summary.ByMethod {
		byMethodSum += n
	}
	if byMethodSum != summary.Total {
		t.Errorf("by_method sums to %d, want %d", byMethodSum, summary.Total)
	}
	if summary.ByMethod[models.MethodStatic] != 1 || summary.ByMethod[models.MethodDecodo] != 1 || summary.ByMethod[models.MethodCustomJS] != 1 {
		t.Errorf("unexpected by_method: %v", summary.ByMethod)
	}
}

func TestAggregator_SuccessIffHTMLPresent(t *testing.T) {
	agg := NewAggregator([]string{"https://a.example/"})

	// Success status with empty HTML must be downgraded to failure.
	agg.Add("https://a.example/", "", models.MethodStatic, models.StatusSuccess, "")
	results, summary := agg.Finalize(0)

	if results[0].Status != models.StatusFailed {
		t.Error("success without HTML not downgraded")
	}
	if results[0].Error == nil {
		t.Error("downgraded record should carry an error")
	}
	if summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestAggregator_DuplicateURLs(t *testing.T) {
	urls := []string{"https://a.example/", "https://a.example/"}
	agg := NewAggregator(urls)

	agg.Add("https://a.example/", "<html>first</html>", models.MethodStatic, models.StatusSuccess, "")
	agg.Add("https://a.example/", "", models.MethodDecodo, models.StatusFailed, "exhausted")

	results, summary := agg.Finalize(0)

	if len(results) != 2 {
		t.Fatalf("expected 2 records, got %d", len(results))
	}
	if results[0].Status != models.StatusSuccess || results[1].Status != models.StatusFailed {
		t.Errorf("duplicate slots misassigned: %+v", results)
	}
	if summary.Total != 2 {
		t.Errorf("unexpected total: %d", summary.Total)
	}
}

func TestAggregator_MissingRecordClosedOut(t *testing.T) {
	agg := NewAggregator([]string{"https://a.example/", "https://b.example/"})
	agg.Add("https://a.example/", "<html>a</html>", models.MethodStatic, models.StatusSuccess, "")

	results, summary := agg.Finalize(0)

	if results[1].Status != models.StatusFailed || results[1].Error == nil {
		t.Errorf("missing record not closed out: %+v", results[1])
	}
	if summary.Total != 2 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestAggregator_HTMLPointerShape(t *testing.T) {
	agg := NewAggregator([]string{"https://a.example/", "https://b.example/"})
	agg.Add("https://a.example/", "<html>a</html>", models.MethodStatic, models.StatusSuccess, "")
	agg.Add("https://b.example/", "", models.MethodDecodo, models.StatusFailed, "nope")

	results, _ := agg.Finalize(0)

	if results[0].HTML == nil || *results[0].HTML == "" {
		t.Error("success record should carry html")
	}
	if results[0].Error != nil {
		t.Error("success record should not carry an error")
	}
	if results[1].HTML != nil {
		t.Error("failed record should have nil html")
	}
	if results[1].Error == nil || *results[1].Error != "nope" {
		t.Error("failed record should carry the error string")
	}
}
