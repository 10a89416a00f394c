package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/urlhtml/classifier"
	"github.com/use-agent/urlhtml/models"
)

// maxBodySize caps response bodies to prevent unbounded memory use.
const maxBodySize = 10 << 20 // 10 MB

// Result is the phase-1 record for one URL. Every input URL produces exactly
// one Result; the fetcher never fails a batch.
type Result struct {
	URL        string
	HTML       string
	StatusCode int

	// Method is "static" or "xhr" depending on the request shape used.
	Method string

	// NeedsJS is the classifier's promote bit: the URL must be handed to
	// the rendering tier.
	NeedsJS bool

	// Reason explains the NeedsJS decision or records the failure.
	Reason string
}

// StaticFetcher performs high-fan-out plain HTTP fetches with a Chrome TLS
// fingerprint and classifies each response.
type StaticFetcher struct {
	client      *http.Client
	classifier  *classifier.Classifier
	concurrency int
	timeout     time.Duration
}

// NewStaticFetcher creates a StaticFetcher.
func NewStaticFetcher(concurrency int, timeout time.Duration, cls *classifier.Classifier) *StaticFetcher {
	if concurrency <= 0 {
		concurrency = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticFetcher{
		client:      newHTTPClient(),
		classifier:  cls,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// ProcessBatch fetches all URLs concurrently under the configured semaphore
// and returns one Result per URL in input order.
func (f *StaticFetcher) ProcessBatch(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	sem := make(chan struct{}, f.concurrency)

	var wg sync.WaitGroup
	for i, target := range urls {
		wg.Add(1)
		go func(idx int, targetURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = f.fetchOne(ctx, targetURL)
		}(i, target)
	}
	wg.Wait()

	promoted := 0
	for i := range results {
		if results[i].NeedsJS {
			promoted++
		}
	}
	slog.Info("static phase completed",
		"total", len(urls),
		"success", len(urls)-promoted,
		"needsJS", promoted,
	)

	return results
}

// fetchOne performs a single GET and runs the static-tier verdict on the
// response. All failure modes collapse into NeedsJS=true with a reason.
func (f *StaticFetcher) fetchOne(ctx context.Context, targetURL string) Result {
	method := models.MethodStatic
	if looksLikeXHR(targetURL) {
		method = models.MethodXHR
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, targetURL, nil)
	if err != nil {
		return Result{
			URL:     targetURL,
			Method:  method,
			NeedsJS: true,
			Reason:  fmt.Sprintf("invalid request: %v", err),
		}
	}
	applyHeaders(req, method)

	resp, err := f.client.Do(req)
	if err != nil {
		reason := fmt.Sprintf("request failed: %v", err)
		if isTimeout(err) {
			reason = fmt.Sprintf("timeout after %s", f.timeout)
		}
		slog.Debug("static fetch failed", "url", targetURL, "error", err)
		return Result{
			URL:     targetURL,
			Method:  method,
			NeedsJS: true,
			Reason:  reason,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Result{
			URL:        targetURL,
			StatusCode: resp.StatusCode,
			Method:     method,
			NeedsJS:    true,
			Reason:     fmt.Sprintf("read body: %v", err),
		}
	}

	html := string(body)
	needsJS, reason := f.classifier.ShouldFallback(html, resp.StatusCode)

	return Result{
		URL:        targetURL,
		HTML:       html,
		StatusCode: resp.StatusCode,
		Method:     method,
		NeedsJS:    needsJS,
		Reason:     reason,
	}
}

// applyHeaders sets browser-like headers; the XHR variant differs only in
// Accept and X-Requested-With.
func applyHeaders(req *http.Request, method string) {
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	if method == models.MethodXHR {
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		return
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
}

// looksLikeXHR is the deterministic routing heuristic for the XHR request
// shape: JSON-ish paths and query markers typical of API endpoints.
func looksLikeXHR(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	path := strings.ToLower(parsed.Path)
	if strings.HasSuffix(path, ".json") || strings.Contains(path, "/api/") {
		return true
	}

	query := strings.ToLower(parsed.RawQuery)
	for _, marker := range []string{"format=json", "ajax=", "xhr="} {
		if strings.Contains(query, marker) {
			return true
		}
	}
	return false
}

// isTimeout reports whether the error is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
