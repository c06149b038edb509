package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"binsleuth/internal/logging"
)

// defaultSearchBase is the Tavily API host.
const defaultSearchBase = "https://api.tavily.com"

// searchEndpoint resolves the configured base URL to the search endpoint.
// The base is a host root; a full endpoint is accepted too so existing
// configs that spell out /search keep working.
func searchEndpoint(base string) string {
	if base == "" {
		base = defaultSearchBase
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/search") {
		return base
	}
	return base + "/search"
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// WebSearchTool looks up external information (CVEs, library docs, error
// messages) via the Tavily API.
func WebSearchTool() *Tool {
	return &Tool{
		Name:        "web_search",
		Description: "Search the web for external information such as CVEs or documentation.",
		Schema: Schema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "search query"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any, env *Env) (*Result, error) {
			query := stringArg(args, "query", "")
			if query == "" {
				return nil, fmt.Errorf("query is empty")
			}
			if env.SearchAPIKey == "" {
				return nil, fmt.Errorf("search API key not configured")
			}

			endpoint := searchEndpoint(env.SearchBaseURL)

			body, err := json.Marshal(searchRequest{
				APIKey:      env.SearchAPIKey,
				Query:       query,
				SearchDepth: "advanced",
				MaxResults:  5,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal search request: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("search request failed: %w", err)
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read search response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, string(respBody))
			}

			var sr searchResponse
			if err := json.Unmarshal(respBody, &sr); err != nil {
				return nil, fmt.Errorf("failed to parse search response: %w", err)
			}

			logging.Tools("web_search: %d results for %q", len(sr.Results), query)
			if len(sr.Results) == 0 {
				return &Result{RawOutput: "No results found for the query."}, nil
			}

			var b strings.Builder
			for i, r := range sr.Results {
				if i > 0 {
					b.WriteString("\n---\n")
				}
				fmt.Fprintf(&b, "Title: %s\nURL: %s\nContent: %s\n", r.Title, r.URL, r.Content)
			}
			return &Result{RawOutput: b.String()}, nil
		},
	}
}
