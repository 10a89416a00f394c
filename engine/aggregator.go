package engine

import (
	"github.com/use-agent/urlhtml/models"
)

// Aggregator collects per-URL outcomes across phases and produces the final
// report. Records are slotted by input-URL order regardless of which phase
// (or goroutine) finished first; the orchestrator is its single writer.
type Aggregator struct {
	urls    []string
	results []*models.URLResult

	// pending maps each URL to its unfilled input indices, so duplicate
	// input URLs each receive their own record.
	pending map[string][]int
}

// NewAggregator creates an Aggregator for one batch.
func NewAggregator(urls []string) *Aggregator {
	pending := make(map[string][]int, len(urls))
	for i, u := range urls {
		pending[u] = append(pending[u], i)
	}
	return &Aggregator{
		urls:    urls,
		results: make([]*models.URLResult, len(urls)),
		pending: pending,
	}
}

// Add records the outcome for one URL. html is empty on failure; errMsg is
// empty on success. Unknown URLs are ignored.
func (a *Aggregator) Add(url, html, method, status, errMsg string) {
	indices := a.pending[url]
	if len(indices) == 0 {
		return
	}
	idx := indices[0]
	a.pending[url] = indices[1:]

	record := &models.URLResult{
		URL:    url,
		Status: status,
		Method: &method,
	}
	if status == models.StatusSuccess && html != "" {
		record.HTML = &html
	} else {
		record.Status = models.StatusFailed
		if errMsg == "" {
			errMsg = "no HTML content"
		}
		record.Error = &errMsg
	}
	a.results[idx] = record
}

// Finalize computes the summary and returns the ordered results. URLs that
// never received a record (which indicates an orchestrator bug) are closed
// out as failures so the batch invariants hold.
func (a *Aggregator) Finalize(totalTime float64) ([]models.URLResult, models.BatchSummary) {
	results := make([]models.URLResult, len(a.results))
	byMethod := make(map[string]int)
	success := 0

	for i, record := range a.results {
		if record == nil {
			errMsg := "no result produced"
			method := models.MethodStatic
			record = &models.URLResult{
				URL:    a.urls[i],
				Status: models.StatusFailed,
				Method: &method,
				Error:  &errMsg,
			}
		}
		results[i] = *record
		if record.Method != nil {
			byMethod[*record.Method]++
		}
		if record.Status == models.StatusSuccess {
			success++
		}
	}

	summary := models.BatchSummary{
		Total:     len(results),
		Success:   success,
		Failed:    len(results) - success,
		ByMethod:  byMethod,
		TotalTime: totalTime,
	}
	return results, summary
}
