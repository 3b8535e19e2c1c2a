package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// WEB SEARCH TOOL
// ============================================================================

const duckDuckGoAPIURL = "https://api.duckduckgo.com/"

// SearchResult is one entry returned by the web search tool.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// WebSearchTool searches the web through the DuckDuckGo Instant Answer
// API. The endpoint requires no key, which keeps the tool usable out of
// the box; richer engines can be layered behind the same contract later.
type WebSearchTool struct {
	baseURL    string
	httpClient *http.Client
}

type WebSearchOption func(*WebSearchTool)

// WithSearchBaseURL overrides the API endpoint.
func WithSearchBaseURL(url string) WebSearchOption {
	return func(t *WebSearchTool) { t.baseURL = url }
}

// WithSearchHTTPClient replaces the HTTP client.
func WithSearchHTTPClient(c *http.Client) WebSearchOption {
	return func(t *WebSearchTool) { t.httpClient = c }
}

func NewWebSearchTool(opts ...WebSearchOption) *WebSearchTool {
	t := &WebSearchTool{
		baseURL:    duckDuckGoAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSearchTool) Name() string       { return "web_search" }
func (t *WebSearchTool) Category() Category { return CategoryNetwork }

func (t *WebSearchTool) Description() string {
	return "Search the internet for information. Returns result titles, links and snippets."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
			"num_results": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default: 5)",
				"default":     5,
			},
			"search_type": map[string]any{
				"type":        "string",
				"enum":        []string{"web", "news", "images"},
				"description": "Type of search (default: web)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (ToolResult, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return Fail("query cannot be empty"), nil
	}

	numResults := 5
	if raw, ok := args["num_results"].(float64); ok {
		numResults = int(raw)
	} else if raw, ok := args["num_results"].(int); ok {
		numResults = raw
	}
	if numResults < 1 || numResults > 20 {
		return Fail("num_results must be between 1 and 20"), nil
	}

	searchType, _ := args["search_type"].(string)
	if searchType == "" {
		searchType = "web"
	}

	results, err := t.search(ctx, query, numResults)
	if err != nil {
		return Failf("search failed: %v", err), nil
	}

	return Succeed(results, map[string]any{
		"query":       query,
		"num_results": len(results),
		"search_type": searchType,
	}), nil
}

type instantAnswerResponse struct {
	Heading        string `json:"Heading"`
	Abstract       string `json:"Abstract"`
	AbstractURL    string `json:"AbstractURL"`
	AbstractSource string `json:"AbstractSource"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1",
		t.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var answer instantAnswerResponse
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var results []SearchResult

	if answer.Abstract != "" {
		heading := answer.Heading
		if heading == "" {
			heading = "Answer"
		}
		source := answer.AbstractSource
		if source == "" {
			source = "DuckDuckGo"
		}
		results = append(results, SearchResult{
			Title:   heading,
			Snippet: answer.Abstract,
			URL:     answer.AbstractURL,
			Source:  source,
		})
	}

	for _, topic := range answer.RelatedTopics {
		if len(results) >= numResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		title := "Related"
		if idx := strings.Index(topic.Text, " - "); idx > 0 {
			title = topic.Text[:idx]
		}
		results = append(results, SearchResult{
			Title:   title,
			Snippet: topic.Text,
			URL:     topic.FirstURL,
			Source:  "DuckDuckGo",
		})
	}

	// The instant-answer API has no coverage for some queries; hand back
	// a pointer to the HTML search rather than nothing.
	if len(results) == 0 {
		results = append(results, SearchResult{
			Title:   "Search: " + query,
			Snippet: "No instant answer available for this query.",
			URL:     "https://duckduckgo.com/?q=" + url.QueryEscape(query),
			Source:  "DuckDuckGo",
		})
	}

	if len(results) > numResults {
		results = results[:numResults]
	}
	return results, nil
}
