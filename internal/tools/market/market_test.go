package market

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vantagelabs/relay/internal/tools"
)

type fakeSource struct {
	quotes map[string]*Quote
}

func (f *fakeSource) Quote(_ context.Context, symbol string) (*Quote, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return q, nil
}

func TestQuotesForMultipleSymbols(t *testing.T) {
	tool := New(&fakeSource{quotes: map[string]*Quote{
		"AAPL": {Symbol: "AAPL", Price: 210.5},
		"MSFT": {Symbol: "MSFT", Price: 430.1},
	}})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"symbols":["AAPL","MSFT"]}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
	quotes, ok := res.Data.([]*Quote)
	if !ok || len(quotes) != 2 {
		t.Fatalf("data = %+v", res.Data)
	}
}

func TestPartialFailureStillSucceeds(t *testing.T) {
	tool := New(&fakeSource{quotes: map[string]*Quote{
		"AAPL": {Symbol: "AAPL", Price: 210.5},
	}})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"symbols":["AAPL","BOGUS"]}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q, one good quote should succeed", res.Status)
	}
	if !strings.Contains(res.Message, "unavailable") {
		t.Errorf("message = %q, want unavailable note", res.Message)
	}
}

func TestAllSymbolsFailingIsErrorResult(t *testing.T) {
	tool := New(&fakeSource{})
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"symbols":["BOGUS"]}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != tools.StatusError {
		t.Fatalf("status = %q, want error result", res.Status)
	}
}
