package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/urlhtml/config"
	"github.com/use-agent/urlhtml/models"
)

// Result is the outcome of one provider task.
type Result struct {
	URL    string
	HTML   string
	Status string // "success" or "failed"
	Error  string
}

// task pairs a provider task id with the URL it was issued for (the submit
// response does not always echo the URL back).
type task struct {
	id  string
	url string
}

// Client talks to the Decodo scraper API: one batch submission yields a task
// id per URL, and each task is polled until it reaches a terminal state.
type Client struct {
	cfg        config.ProviderConfig
	authHeader string
	client     *http.Client
}

// NewClient creates a Client. It fails when no usable credentials are
// configured: a pre-encoded Basic token takes precedence over the
// username/password pair. Both are treated as opaque and never logged.
func NewClient(cfg config.ProviderConfig) (*Client, error) {
	var authHeader string
	switch {
	case cfg.AuthToken != "":
		authHeader = "Basic " + cfg.AuthToken
	case cfg.Username != "" && cfg.Password != "":
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		authHeader = "Basic " + creds
	default:
		return nil, models.NewFetchError(
			models.ErrCodeProviderAuth,
			"provider credentials not configured: set DECODO_AUTH_TOKEN or DECODO_USERNAME/DECODO_PASSWORD",
			nil,
		)
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}

	return &Client{
		cfg:        cfg,
		authHeader: authHeader,
		client:     &http.Client{},
	}, nil
}

// ProcessURLs submits the batch, polls every issued task to a terminal state
// and returns one Result per URL in input order.
func (c *Client) ProcessURLs(ctx context.Context, urls []string) []Result {
	if len(urls) == 0 {
		return nil
	}

	slog.Info("provider phase starting", "urls", len(urls))

	tasks, err := c.submitBatch(ctx, urls)
	if err != nil {
		slog.Warn("provider batch submission failed", "error", err)
		return failAll(urls, fmt.Sprintf("batch submission failed: %v", err))
	}
	if len(tasks) == 0 {
		return failAll(urls, "no task IDs received")
	}

	// Poll all tasks concurrently under the global semaphore.
	outcomes := make([]Result, len(tasks))
	sem := make(chan struct{}, c.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(idx int, t task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[idx] = c.pollTask(ctx, t)
		}(i, t)
	}
	wg.Wait()

	// Shape the final list in input-URL order. URLs that never got a task
	// id become failure records.
	byURL := make(map[string][]Result)
	for _, outcome := range outcomes {
		byURL[outcome.URL] = append(byURL[outcome.URL], outcome)
	}

	results := make([]Result, len(urls))
	success := 0
	for i, u := range urls {
		queue := byURL[u]
		if len(queue) == 0 {
			results[i] = Result{URL: u, Status: "failed", Error: "no task ID assigned"}
			continue
		}
		results[i] = queue[0]
		byURL[u] = queue[1:]
		if results[i].Status == "success" {
			success++
		}
	}

	slog.Info("provider phase completed",
		"success", success,
		"failed", len(urls)-success,
	)

	return results
}

// submitBatch POSTs one batch envelope and extracts the per-URL task ids.
func (c *Client) submitBatch(ctx context.Context, urls []string) ([]task, error) {
	payload := map[string]any{
		"url":         urls,
		"target":      c.cfg.Target,
		"render_js":   true,
		"device_type": c.cfg.DeviceType,
	}
	if c.cfg.Geo != "" {
		payload["geo"] = c.cfg.Geo
	}
	if c.cfg.Locale != "" {
		payload["locale"] = c.cfg.Locale
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SubmitEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: submit: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("provider: read submit response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider: submit returned status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	tasks := extractTasks(respBody)

	// Entries missing a URL are assigned positionally: the API issues task
	// ids in submission order.
	for i := range tasks {
		if tasks[i].url == "" && i < len(urls) {
			tasks[i].url = urls[i]
		}
	}

	return tasks, nil
}

// extractTasks parses the submit response into (task id, url) pairs. Four
// shapes are accepted, in order: {queries:[…]}, {tasks:[…]}, a top-level
// single-task object, and a bare list.
func extractTasks(body []byte) []task {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		for _, key := range []string{"queries", "tasks"} {
			raw, ok := envelope[key]
			if !ok {
				continue
			}
			var entries []json.RawMessage
			if err := json.Unmarshal(raw, &entries); err == nil {
				return tasksFromEntries(entries)
			}
		}
		// Single-task response: top-level {id, url}.
		if t, ok := taskFromObject(body); ok {
			return []task{t}
		}
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err == nil {
		return tasksFromEntries(entries)
	}
	return nil
}

func tasksFromEntries(entries []json.RawMessage) []task {
	tasks := make([]task, 0, len(entries))
	for _, raw := range entries {
		if t, ok := taskFromObject(raw); ok {
			tasks = append(tasks, t)
			continue
		}
		// Bare string task id.
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			tasks = append(tasks, task{id: id})
		}
	}
	return tasks
}

// taskFromObject pulls a task id (id/task_id/query_id) and optional URL
// (url/query) out of one entry object.
func taskFromObject(raw []byte) (task, bool) {
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		return task{}, false
	}

	var id string
	for _, key := range []string{"id", "task_id", "query_id"} {
		switch v := entry[key].(type) {
		case string:
			id = v
		case float64:
			id = fmt.Sprintf("%.0f", v)
		}
		if id != "" {
			break
		}
	}
	if id == "" {
		return task{}, false
	}

	var url string
	for _, key := range []string{"url", "query"} {
		if v, ok := entry[key].(string); ok && v != "" {
			url = v
			break
		}
	}

	return task{id: id, url: url}, true
}

func failAll(urls []string, reason string) []Result {
	results := make([]Result, len(urls))
	for i, u := range urls {
		results[i] = Result{URL: u, Status: "failed", Error: reason}
	}
	return results
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
