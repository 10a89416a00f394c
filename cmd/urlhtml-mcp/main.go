package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// batchResponse mirrors the urlhtml batch API response.
type batchResponse struct {
	Results []struct {
		URL    string  `json:"url"`
		HTML   *string `json:"html"`
		Method *string `json:"method"`
		Status string  `json:"status"`
		Error  *string `json:"error"`
	} `json:"results"`
	Summary struct {
		Total     int            `json:"total"`
		Success   int            `json:"success"`
		Failed    int            `json:"failed"`
		ByMethod  map[string]int `json:"by_method"`
		TotalTime float64        `json:"total_time"`
	} `json:"summary"`
	Success bool `json:"success"`
}

func main() {
	apiURL := os.Getenv("URLHTML_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8000"
	}
	apiKey := os.Getenv("URLHTML_API_KEY")

	s := server.NewMCPServer(
		"urlhtml",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchBatchTool := mcp.NewTool("fetch_batch",
		mcp.WithDescription("Fetch rendered HTML for a batch of URLs. Tries a plain HTTP fetch first, then a JavaScript rendering fleet, then a commercial scraping provider for anything still unresolved."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of absolute URLs to fetch"),
		),
		mcp.WithBoolean("include_html",
			mcp.Description("Include the HTML bodies in the output (default: false, summary only)"),
		),
	)
	s.AddTool(fetchBatchTool, handleFetchBatch(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleFetchBatch(apiURL, apiKey string) server.ToolHandlerFunc {
	// Batches can sit in renderer cooldowns for minutes.
	client := &http.Client{Timeout: 1800 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}
		includeHTML := request.GetBool("include_html", false)

		payload := map[string]any{"urls": urls}
		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/fetch-batch", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batch batchResponse
		if err := json.Unmarshal(respBody, &batch); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Batch: %d total, %d success, %d failed in %.1fs\n",
			batch.Summary.Total, batch.Summary.Success, batch.Summary.Failed, batch.Summary.TotalTime))
		sb.WriteString(fmt.Sprintf("Methods: %v\n\n", batch.Summary.ByMethod))

		for i, r := range batch.Results {
			method := "-"
			if r.Method != nil {
				method = *r.Method
			}
			if r.Status == "success" {
				sb.WriteString(fmt.Sprintf("--- [%d] %s (%s) ---\n", i+1, r.URL, method))
				if includeHTML && r.HTML != nil {
					sb.WriteString(*r.HTML)
					sb.WriteString("\n")
				}
				sb.WriteString("\n")
				continue
			}
			errMsg := "unknown error"
			if r.Error != nil {
				errMsg = *r.Error
			}
			sb.WriteString(fmt.Sprintf("--- [%d] %s FAILED (%s): %s ---\n\n", i+1, r.URL, method, errMsg))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

// apiPost sends a POST request to the urlhtml API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
