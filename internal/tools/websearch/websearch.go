// Package websearch exposes web search and page scraping as tools. The actual
// search backend is behind the Provider interface.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

const defaultResultLimit = 5

// Provider performs searches and fetches page content.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
	Fetch(ctx context.Context, url string) (string, error)
}

// SearchTool queries the web through a Provider.
type SearchTool struct {
	provider Provider
}

// NewSearch creates the web search tool.
func NewSearch(provider Provider) *SearchTool {
	return &SearchTool{provider: provider}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web and return a list of results with titles, URLs, and snippets."
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 10}
		},
		"required": ["query"],
		"additionalProperties": false
	}`)
}

func (t *SearchTool) Describe(args json.RawMessage) string {
	var in searchArgs
	if err := json.Unmarshal(args, &in); err == nil && in.Query != "" {
		return "Searching for " + in.Query
	}
	return "Searching the web"
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var in searchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Errorf(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}

	results, err := t.provider.Search(ctx, in.Query, limit)
	if err != nil {
		return tools.Errorf(fmt.Sprintf("search failed: %v", err)), nil
	}
	return tools.Success(fmt.Sprintf("%d results for %q", len(results), in.Query), &tools.SearchData{
		Results: results,
	}), nil
}

// ScrapeTool fetches the readable content of a single page.
type ScrapeTool struct {
	provider Provider
}

// NewScrape creates the page scraping tool.
func NewScrape(provider Provider) *ScrapeTool {
	return &ScrapeTool{provider: provider}
}

func (t *ScrapeTool) Name() string { return "read_page" }

func (t *ScrapeTool) Description() string {
	return "Fetch a web page and return its readable text content."
}

func (t *ScrapeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"}
		},
		"required": ["url"],
		"additionalProperties": false
	}`)
}

func (t *ScrapeTool) Describe(args json.RawMessage) string {
	var in scrapeArgs
	if err := json.Unmarshal(args, &in); err == nil && in.URL != "" {
		return "Reading " + in.URL
	}
	return "Reading a page"
}

type scrapeArgs struct {
	URL string `json:"url"`
}

func (t *ScrapeTool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var in scrapeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Errorf(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	content, err := t.provider.Fetch(ctx, in.URL)
	if err != nil {
		return tools.Errorf(fmt.Sprintf("fetch %s: %v", in.URL, err)), nil
	}
	return tools.Success("page fetched", &tools.ScrapeData{URL: in.URL, Content: content}), nil
}
