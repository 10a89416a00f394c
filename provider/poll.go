package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Backoff shape for result polling. Not-ready responses grow the interval
// gently; errors grow it faster. Both are capped.
const (
	notReadyMultiplier = 1.2
	errorMultiplier    = 1.5
	maxPollDelay       = 10 * time.Second

	// maxConsecutiveErrors is the error budget per task; not-ready
	// responses do not count against it and reset the streak.
	maxConsecutiveErrors = 5
)

// pollOutcome classifies one poll attempt.
type pollOutcome int

const (
	pollNotReady pollOutcome = iota
	pollError
	pollDone
	pollFailed
)

// pollTask polls one task id until it reaches a terminal state, the attempt
// budget runs out, or the per-task deadline passes.
func (c *Client) pollTask(ctx context.Context, t task) Result {
	taskCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	interval := c.cfg.PollInterval
	consecutiveErrors := 0

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		outcome, html, reason := c.fetchResults(taskCtx, t.id)

		switch outcome {
		case pollDone:
			return Result{URL: t.url, HTML: html, Status: "success"}

		case pollFailed:
			return Result{URL: t.url, Status: "failed", Error: reason}

		case pollError:
			consecutiveErrors++
			if consecutiveErrors > maxConsecutiveErrors {
				return Result{
					URL:    t.url,
					Status: "failed",
					Error:  fmt.Sprintf("too many consecutive errors: %s", reason),
				}
			}
			interval = scaleDelay(interval, errorMultiplier)

		case pollNotReady:
			consecutiveErrors = 0
			interval = scaleDelay(interval, notReadyMultiplier)
		}

		select {
		case <-taskCtx.Done():
			return Result{
				URL:    t.url,
				Status: "failed",
				Error:  fmt.Sprintf("task timed out after %s", c.cfg.Timeout),
			}
		case <-time.After(interval):
		}
	}

	return Result{
		URL:    t.url,
		Status: "failed",
		Error:  fmt.Sprintf("polling attempts exhausted (%d)", c.cfg.MaxPollAttempts),
	}
}

// fetchResults performs one GET against the task results endpoint and
// classifies the response.
func (c *Client) fetchResults(ctx context.Context, taskID string) (pollOutcome, string, string) {
	resultsURL := fmt.Sprintf("%s/%s/results", c.cfg.ResultsEndpoint, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultsURL, nil)
	if err != nil {
		return pollFailed, "", fmt.Sprintf("build poll request: %v", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pollFailed, "", "poll cancelled: deadline exceeded"
		}
		return pollError, "", fmt.Sprintf("poll request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		// Results not materialized yet; keep polling.
		return pollNotReady, "", ""

	case resp.StatusCode >= 500:
		return pollError, "", fmt.Sprintf("provider returned status %d", resp.StatusCode)

	case resp.StatusCode >= 400:
		return pollFailed, "", fmt.Sprintf("provider rejected task (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 100<<20))
	if err != nil {
		return pollError, "", fmt.Sprintf("read poll response: %v", err)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return pollError, "", fmt.Sprintf("malformed poll response: %v", err)
	}

	if status, ok := data["status"].(string); ok {
		if status == "failed" || status == "error" {
			return pollFailed, "", "provider reported task " + status
		}
		if status == "done" {
			return finishTask(taskID, data)
		}
	}

	// Result payload present even without an explicit done status.
	for _, key := range []string{"results", "result", "data"} {
		if _, ok := data[key]; ok {
			return finishTask(taskID, data)
		}
	}

	return pollNotReady, "", ""
}

// finishTask extracts the HTML body from a terminal response.
func finishTask(taskID string, data map[string]any) (pollOutcome, string, string) {
	html := extractHTML(data)
	if html == "" {
		slog.Debug("provider task finished without HTML", "task", taskID)
		return pollFailed, "", "no HTML content"
	}
	return pollDone, html, ""
}

// extractHTML looks for the body in the first results entry, then at the top
// level. Field naming has drifted across provider versions.
func extractHTML(data map[string]any) string {
	for _, key := range []string{"results", "result", "data"} {
		entries, ok := data[key].([]any)
		if !ok || len(entries) == 0 {
			continue
		}
		if first, ok := entries[0].(map[string]any); ok {
			for _, field := range []string{"content", "html", "text"} {
				if v, ok := first[field].(string); ok && v != "" {
					return v
				}
			}
		}
	}
	for _, field := range []string{"html", "content", "text"} {
		if v, ok := data[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// scaleDelay multiplies the delay and caps it.
func scaleDelay(d time.Duration, multiplier float64) time.Duration {
	scaled := time.Duration(float64(d) * multiplier)
	if scaled > maxPollDelay {
		return maxPollDelay
	}
	return scaled
}
