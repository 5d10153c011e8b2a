package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/vantagelabs/relay/internal/tools"
)

type fakeTool struct {
	name        string
	description string
	schema      string
	describe    string
	fn          func(ctx context.Context, args json.RawMessage) (*tools.Result, error)
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return t.description }

func (t *fakeTool) Schema() json.RawMessage {
	if t.schema == "" {
		return nil
	}
	return json.RawMessage(t.schema)
}

func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	return tools.Success("ok", nil), nil
}

func (t *fakeTool) Describe(args json.RawMessage) string { return t.describe }

const querySchema = `{
	"type": "object",
	"properties": {"query": {"type": "string"}},
	"required": ["query"],
	"additionalProperties": false
}`

func TestRegistryValidatesArguments(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(&fakeTool{name: "search", schema: querySchema}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Execute(context.Background(), "search", json.RawMessage(`{"query":"aapl"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusSuccess {
		t.Errorf("status = %q, want success", result.Status)
	}

	result, err = r.Execute(context.Background(), "search", json.RawMessage(`{"limit":3}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusError {
		t.Fatalf("schema violation should produce an error result, got %+v", result)
	}
	if !strings.Contains(result.Message, "schema") {
		t.Errorf("message = %q, want schema mention", result.Message)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	result, err := r.Execute(context.Background(), "nope", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusError {
		t.Errorf("status = %q, want error", result.Status)
	}
	if !strings.Contains(result.Message, "not found") {
		t.Errorf("message = %q, want not found", result.Message)
	}
}

func TestRegistryRejectsInvalidSchema(t *testing.T) {
	r := NewToolRegistry()
	err := r.Register(&fakeTool{name: "broken", schema: `{"type": 12}`})
	if err == nil {
		t.Fatal("expected compile error for invalid schema")
	}
}

func TestRegistryOversizedArguments(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	big := json.RawMessage(`{"data":"` + strings.Repeat("x", MaxToolParamsSize) + `"}`)
	result, err := r.Execute(context.Background(), "echo", big)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusError {
		t.Errorf("oversized args should produce an error result")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, tool := range list {
		if tool.Name() != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, tool.Name(), want[i])
		}
	}
}
