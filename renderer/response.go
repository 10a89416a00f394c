package renderer

import (
	"encoding/json"
	"strings"
)

// resultEntry is one per-URL record in an endpoint response. Endpoints have
// shipped both "html" and "content" for the body field over time.
type resultEntry struct {
	URL     string `json:"url"`
	HTML    string `json:"html"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

func (e *resultEntry) body() string {
	if e.HTML != "" {
		return e.HTML
	}
	return e.Content
}

// parseResponse matches an endpoint response against the requested URLs.
// Three JSON shapes are accepted: a wrapper object with a results array, a
// bare array of result objects, and a single object. A raw (or JSON-encoded)
// HTML string is accepted when the sub-batch holds one URL.
func parseResponse(body []byte, requested []string) []Result {
	entries, ok := decodeEntries(body)
	if !ok {
		// Not JSON at all: a single-URL endpoint may answer with the
		// rendered HTML directly.
		if len(requested) == 1 && looksLikeHTML(body) {
			return []Result{{URL: requested[0], HTML: string(body), Status: "success"}}
		}
		return failAll(requested, "unparseable renderer response")
	}

	results := make([]Result, len(requested))
	used := make([]bool, len(entries))

	for i, target := range requested {
		entry := matchEntry(entries, used, target, i, len(requested))
		if entry == nil {
			results[i] = Result{URL: target, Status: "failed", Error: "no result returned by renderer"}
			continue
		}

		html := entry.body()
		if html == "" {
			reason := entry.Error
			if reason == "" {
				reason = "empty HTML from renderer"
			}
			results[i] = Result{URL: target, Status: "failed", Error: reason}
			continue
		}
		results[i] = Result{URL: target, HTML: html, Status: "success"}
	}

	return results
}

// decodeEntries tries the three accepted JSON shapes in order.
func decodeEntries(body []byte) ([]resultEntry, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, false
	}

	// JSON-encoded HTML string (single-URL endpoints).
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return []resultEntry{{HTML: s}}, true
		}
		return nil, false
	}

	if trimmed[0] == '{' {
		var wrapper struct {
			Results []resultEntry `json:"results"`
		}
		if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Results != nil {
			return wrapper.Results, true
		}
		var single resultEntry
		if err := json.Unmarshal(body, &single); err == nil {
			return []resultEntry{single}, true
		}
		return nil, false
	}

	var list []resultEntry
	if err := json.Unmarshal(body, &list); err == nil {
		return list, true
	}
	return nil, false
}

// matchEntry finds the response entry for a requested URL: by url field
// first, positionally when the counts line up.
func matchEntry(entries []resultEntry, used []bool, target string, pos, requested int) *resultEntry {
	for i := range entries {
		if !used[i] && entries[i].URL == target {
			used[i] = true
			return &entries[i]
		}
	}
	if len(entries) == requested && pos < len(entries) && !used[pos] && entries[pos].URL == "" {
		used[pos] = true
		return &entries[pos]
	}
	return nil
}

// looksLikeHTML is a cheap sniff for raw HTML bodies.
func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<")
}
