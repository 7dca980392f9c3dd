package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// WebSearchTool searches the web. When a WebSearcher is wired into the
// ToolContext (the LLM backend's own /api/web/search-style endpoint, if it
// exposes one) it delegates there; otherwise it falls back to a best-effort
// direct DuckDuckGo HTML fetch, since no search API key is assumed to be
// configured in this deployment.
func WebSearchTool() *ToolDef {
	return &ToolDef{
		Name:           "web_search",
		Classification: ClassReadonly,
		Description:    "Search the web. Returns results with titles, URLs, and snippets.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]interface{}{"type": "string", "description": "Search query"},
				"max_results": map[string]interface{}{"type": "number", "description": "Maximum number of results to return (default: 10)"},
			},
			"required": []string{"query"},
		},
		Execute: executeWebSearch,
	}
}

func executeWebSearch(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
	query, ok := input["query"].(string)
	if !ok || query == "" {
		return &ToolResult{Output: "query parameter is required", IsError: true}, nil
	}

	maxResults := 10
	if mr, ok := input["max_results"].(float64); ok && mr > 0 {
		maxResults = int(mr)
	}

	if tc.WebSearch != nil {
		out, err := tc.WebSearch.Search(ctx, query, maxResults)
		if err == nil {
			return &ToolResult{Output: out}, nil
		}
		// Fall through to the direct fetch on backend error.
	}

	results, err := searchDuckDuckGo(ctx, query, maxResults)
	if err != nil {
		return &ToolResult{Output: fmt.Sprintf("search error: %v", err), IsError: true}, nil
	}
	return &ToolResult{Output: formatSearchResults(results, query)}, nil
}

// searchDuckDuckGo scrapes DuckDuckGo's HTML-only search endpoint (no API key
// required). This is a best-effort fallback, not a production search
// integration — it does not parse DuckDuckGo's markup beyond a coarse link
// scan and degrades to a pointer result when parsing fails.
func searchDuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "maeum-ide/1.0")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("search failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, err
	}

	results := parseSimpleHTML(string(body), query, maxResults)
	return results, nil
}

func parseSimpleHTML(html, query string, maxResults int) []SearchResult {
	var results []SearchResult
	lines := strings.Split(html, "\n")
	for _, line := range lines {
		if len(results) >= maxResults {
			break
		}
		if strings.Contains(line, "result__a") && strings.Contains(line, "href") {
			results = append(results, SearchResult{
				Title:   "See result link",
				URL:     extractHref(line),
				Snippet: "",
			})
		}
	}
	if len(results) == 0 {
		results = append(results, SearchResult{
			Title:   "DuckDuckGo search",
			URL:     fmt.Sprintf("https://duckduckgo.com/?q=%s", url.QueryEscape(query)),
			Snippet: "HTML scraping returned no parsable results; open the query directly in a browser.",
		})
	}
	return results
}

func extractHref(line string) string {
	idx := strings.Index(line, `href="`)
	if idx == -1 {
		return ""
	}
	rest := line[idx+len(`href="`):]
	end := strings.Index(rest, `"`)
	if end == -1 {
		return ""
	}
	return rest[:end]
}

func formatSearchResults(results []SearchResult, query string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Search Results for: %s\n\n", query))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("## %d. %s\n**URL:** %s\n", i+1, r.Title, r.URL))
		if r.Snippet != "" {
			sb.WriteString(fmt.Sprintf("**Snippet:** %s\n", r.Snippet))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
