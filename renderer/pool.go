package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Result is the outcome of one rendering attempt for one URL.
type Result struct {
	URL    string
	HTML   string
	Status string // "success" or "failed"
	Error  string
}

// Pool dispatches URL sub-batches to a fleet of JS-rendering endpoints.
//
// Each endpoint runs an independent worker that consumes its share of the
// batch sequentially, one sub-batch per request, with a mandatory cooldown
// between consecutive sub-batches. There is no concurrency inside a single
// endpoint; scaling is achieved by adding endpoints.
type Pool struct {
	endpoints []string
	batchSize int
	cooldown  time.Duration
	timeout   time.Duration
	client    *http.Client
}

// NewPool creates a Pool over the given endpoint hostnames.
func NewPool(endpoints []string, batchSize int, cooldown, timeout time.Duration) *Pool {
	if batchSize <= 0 {
		batchSize = 20
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Pool{
		endpoints: endpoints,
		batchSize: batchSize,
		cooldown:  cooldown,
		timeout:   timeout,
		client:    &http.Client{},
	}
}

// Size returns the number of configured endpoints.
func (p *Pool) Size() int { return len(p.endpoints) }

// ProcessURLs renders all URLs through the endpoint fleet and returns one
// Result per URL in input order. Endpoint failures are isolated: one
// endpoint's error fails only the URLs routed to it.
func (p *Pool) ProcessURLs(ctx context.Context, urls []string) []Result {
	if len(urls) == 0 {
		return nil
	}
	if len(p.endpoints) == 0 {
		results := make([]Result, len(urls))
		for i, u := range urls {
			results[i] = Result{URL: u, Status: "failed", Error: "no rendering endpoints configured"}
		}
		return results
	}

	// Round-robin partition: slot i of the batch goes to endpoint i mod K.
	// indexSlices remembers the original positions so the final slice can
	// be reassembled in input order.
	k := len(p.endpoints)
	urlSlices := make([][]string, k)
	indexSlices := make([][]int, k)
	for i, u := range urls {
		urlSlices[i%k] = append(urlSlices[i%k], u)
		indexSlices[i%k] = append(indexSlices[i%k], i)
	}

	results := make([]Result, len(urls))
	var wg sync.WaitGroup
	for w := 0; w < k; w++ {
		if len(urlSlices[w]) == 0 {
			continue
		}
		wg.Add(1)
		go func(endpoint string, slice []string, indices []int) {
			defer wg.Done()
			p.runWorker(ctx, endpoint, slice, indices, results)
		}(p.endpoints[w], urlSlices[w], indexSlices[w])
	}
	wg.Wait()

	return results
}

// runWorker consumes one endpoint's slice in sub-batches, sleeping for the
// cooldown between consecutive sub-batches.
func (p *Pool) runWorker(ctx context.Context, endpoint string, slice []string, indices []int, results []Result) {
	for offset := 0; offset < len(slice); offset += p.batchSize {
		end := offset + p.batchSize
		if end > len(slice) {
			end = len(slice)
		}
		subBatch := slice[offset:end]

		subResults := p.renderSubBatch(ctx, endpoint, subBatch)
		for i, r := range subResults {
			results[indices[offset+i]] = r
		}

		// Cooldown before the next sub-batch on this endpoint.
		if end < len(slice) && p.cooldown > 0 {
			select {
			case <-ctx.Done():
				for i := end; i < len(slice); i++ {
					results[indices[i]] = Result{
						URL:    slice[i],
						Status: "failed",
						Error:  "batch cancelled during cooldown",
					}
				}
				return
			case <-time.After(p.cooldown):
			}
		}
	}
}

// renderSubBatch POSTs one sub-batch to the endpoint and parses the response.
// Transport or timeout errors fail every URL in the sub-batch for this round.
func (p *Pool) renderSubBatch(ctx context.Context, endpoint string, subBatch []string) []Result {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string][]string{"urls": subBatch})
	if err != nil {
		return failAll(subBatch, fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpointURL(endpoint), bytes.NewReader(payload))
	if err != nil {
		return failAll(subBatch, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Warn("render sub-batch failed",
			"endpoint", endpoint,
			"urls", len(subBatch),
			"error", err,
		)
		return failAll(subBatch, fmt.Sprintf("render request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 100<<20))
	if err != nil {
		return failAll(subBatch, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 400 {
		return failAll(subBatch, fmt.Sprintf("renderer returned status %d", resp.StatusCode))
	}

	return parseResponse(body, subBatch)
}

// endpointURL builds the render URL for an endpoint hostname. Bare hostnames
// (the usual deployment shape) get https.
func endpointURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/") + "/render"
	}
	return "https://" + strings.TrimSuffix(endpoint, "/") + "/render"
}

func failAll(urls []string, reason string) []Result {
	results := make([]Result, len(urls))
	for i, u := range urls {
		results[i] = Result{URL: u, Status: "failed", Error: reason}
	}
	return results
}
