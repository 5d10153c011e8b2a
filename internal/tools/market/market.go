// Package market exposes market data lookups as a tool. The data source is
// behind the Provider interface.
package market

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vantagelabs/relay/internal/tools"
)

// Quote is a point-in-time snapshot for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Currency      string  `json:"currency,omitempty"`
}

// Provider fetches quotes from a market data source.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// Tool looks up quotes for one or more symbols.
type Tool struct {
	provider Provider
}

// New creates the market data tool.
func New(provider Provider) *Tool {
	return &Tool{provider: provider}
}

func (t *Tool) Name() string { return "get_quotes" }

func (t *Tool) Description() string {
	return "Get current market quotes for a list of ticker symbols."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbols": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"maxItems": 20
			}
		},
		"required": ["symbols"],
		"additionalProperties": false
	}`)
}

func (t *Tool) Describe(args json.RawMessage) string {
	var in quoteArgs
	if err := json.Unmarshal(args, &in); err == nil && len(in.Symbols) == 1 {
		return "Looking up " + in.Symbols[0]
	}
	return "Looking up quotes"
}

type quoteArgs struct {
	Symbols []string `json:"symbols"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var in quoteArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Errorf(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	quotes := make([]*Quote, 0, len(in.Symbols))
	var failed []string
	for _, symbol := range in.Symbols {
		q, err := t.provider.Quote(ctx, symbol)
		if err != nil {
			failed = append(failed, symbol)
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return tools.Errorf(fmt.Sprintf("no quotes available for %v", in.Symbols)), nil
	}

	msg := fmt.Sprintf("%d quotes", len(quotes))
	if len(failed) > 0 {
		msg += fmt.Sprintf(" (%v unavailable)", failed)
	}
	return tools.Success(msg, quotes), nil
}
