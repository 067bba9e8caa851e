package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// fetchRequest mirrors the Specter API request model.
type fetchRequest struct {
	URL          string `json:"url"`
	FetchMode    string `json:"fetch_mode,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	ExtractMode  string `json:"extract_mode,omitempty"`
	BlockAds     bool   `json:"block_ads,omitempty"`
}

// fetchResponse mirrors the Specter API response model.
type fetchResponse struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	FinalURL string `json:"final_url"`
	Metadata *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		SiteName    string `json:"site_name"`
		Language    string `json:"language"`
		SourceURL   string `json:"source_url"`
	} `json:"metadata"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// batchResponse mirrors the Specter batch API response.
type batchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

func main() {
	apiURL := os.Getenv("SPECTER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SPECTER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SPECTER_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"specter",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchPageTool := mcp.NewTool("fetch_page",
		mcp.WithDescription("Fetch a web page through a stealth headless browser and return its rendered content. Evades basic bot detection and renders JavaScript-heavy pages."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to fetch"),
		),
		mcp.WithString("fetch_mode",
			mcp.Description("Fetch strategy: 'browser' (default, full headless Chrome), 'http' (fast, no JS), or 'auto' (HTTP first with browser escalation)"),
			mcp.Enum("browser", "http", "auto"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'html' (default), 'markdown', or 'text'"),
			mcp.Enum("html", "markdown", "text"),
		),
		mcp.WithString("extract_mode",
			mcp.Description("Content extraction mode: 'raw' (default, full document) or 'article' (readability main-content extraction)"),
			mcp.Enum("raw", "article"),
		),
	)
	s.AddTool(fetchPageTool, handleFetchPage(apiURL, apiKey))

	batchFetchTool := mcp.NewTool("batch_fetch",
		mcp.WithDescription("Fetch multiple URLs in parallel and return the content of each once the whole batch completes."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to fetch"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'html' (default), 'markdown', or 'text'"),
			mcp.Enum("html", "markdown", "text"),
		),
	)
	s.AddTool(batchFetchTool, handleBatchFetch(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the Specter API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls the batch endpoint until the job leaves "processing"
// or the context is cancelled.
func pollBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/batch/"+id, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

func handleFetchPage(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/fetch", fetchRequest{
			URL:          url,
			FetchMode:    request.GetString("fetch_mode", ""),
			OutputFormat: request.GetString("output_format", ""),
			ExtractMode:  request.GetString("extract_mode", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp fetchResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			msg := "fetch failed"
			if resp.Error != nil {
				msg = fmt.Sprintf("fetch failed: %s (%s)", resp.Error.Message, resp.Error.Code)
			}
			return mcp.NewToolResultError(msg), nil
		}

		return mcp.NewToolResultText(resp.Content), nil
	}
}

func handleBatchFetch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required"), nil
		}

		payload := map[string]interface{}{
			"urls": urls,
			"options": map[string]interface{}{
				"output_format": request.GetString("output_format", ""),
			},
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/batch/fetch", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var batch batchResponse
		if err := json.Unmarshal(respBody, &batch); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if batch.ID == "" {
			return mcp.NewToolResultError("batch submission failed: " + string(respBody)), nil
		}

		final, err := pollBatch(ctx, client, apiURL, apiKey, batch.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch polling failed: %v", err)), nil
		}

		return mcp.NewToolResultText(string(final)), nil
	}
}
