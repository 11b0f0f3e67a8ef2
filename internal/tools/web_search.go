package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	tavilyEndpoint      = "https://api.tavily.com/search"
	defaultSearchCount  = 5
	searchTimeoutSecond = 30
)

// WebSearchTool searches the web through the Tavily API. Results are
// returned as a JSON envelope with data and source_urls so the context
// store can lift the URLs out.
type WebSearchTool struct {
	apiKey string
	client *http.Client
}

func NewWebSearchTool(apiKey string) *WebSearchTool {
	return &WebSearchTool{
		apiKey: apiKey,
		client: &http.Client{Timeout: searchTimeoutSecond * time.Second},
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web for current information on any topic"
}
func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query to look up on the web",
			},
		},
		"required": []string{"query"},
	}
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Answer  string `json:"answer,omitempty"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}

	payload, err := json.Marshal(tavilyRequest{Query: query, MaxResults: defaultSearchCount})
	if err != nil {
		return ErrorResult(fmt.Sprintf("encode request: %v", err)).WithError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(payload))
	if err != nil {
		return ErrorResult(fmt.Sprintf("build request: %v", err)).WithError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("search request failed: %v", err)).WithError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ErrorResult(fmt.Sprintf("search failed: HTTP %d: %s", resp.StatusCode, detail))
	}

	var searchResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return ErrorResult(fmt.Sprintf("decode search response: %v", err)).WithError(err)
	}

	var urls []string
	for _, r := range searchResp.Results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return NewResult(formatToolResult(searchResp, urls))
}

// formatToolResult wraps tool data in the {data, source_urls} envelope.
func formatToolResult(data any, sourceURLs []string) string {
	envelope := map[string]any{"data": data}
	if len(sourceURLs) > 0 {
		envelope["source_urls"] = sourceURLs
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(out)
}
