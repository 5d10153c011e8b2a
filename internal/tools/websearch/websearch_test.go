package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

type fakeBackend struct {
	results  []models.SearchResult
	page     string
	err      error
	gotQuery string
	gotLimit int
	gotURL   string
}

func (f *fakeBackend) Search(_ context.Context, query string, limit int) ([]models.SearchResult, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.results, f.err
}

func (f *fakeBackend) Fetch(_ context.Context, url string) (string, error) {
	f.gotURL = url
	return f.page, f.err
}

func TestSearchReturnsResults(t *testing.T) {
	backend := &fakeBackend{results: []models.SearchResult{
		{Title: "Go", URL: "https://go.dev", Snippet: "the language"},
	}}
	tool := NewSearch(backend)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
	data, ok := res.Data.(*tools.SearchData)
	if !ok || len(data.Results) != 1 || data.Results[0].URL != "https://go.dev" {
		t.Fatalf("data = %+v", res.Data)
	}
	if backend.gotQuery != "golang" {
		t.Errorf("query = %q", backend.gotQuery)
	}
	if backend.gotLimit != defaultResultLimit {
		t.Errorf("limit = %d, want default %d", backend.gotLimit, defaultResultLimit)
	}
}

func TestSearchBackendFailureIsErrorResult(t *testing.T) {
	tool := NewSearch(&fakeBackend{err: errors.New("upstream 503")})
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != tools.StatusError {
		t.Fatalf("status = %q, want error result", res.Status)
	}
}

func TestScrapeFetchesPage(t *testing.T) {
	backend := &fakeBackend{page: "readable text"}
	tool := NewScrape(backend)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://example.com/a"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, ok := res.Data.(*tools.ScrapeData)
	if !ok || data.Content != "readable text" || data.URL != "https://example.com/a" {
		t.Fatalf("data = %+v", res.Data)
	}
	if backend.gotURL != "https://example.com/a" {
		t.Errorf("url = %q", backend.gotURL)
	}
}

func TestDescribeUsesQuery(t *testing.T) {
	tool := NewSearch(&fakeBackend{})
	if got := tool.Describe(json.RawMessage(`{"query":"gophers"}`)); got != "Searching for gophers" {
		t.Errorf("describe = %q", got)
	}
}
