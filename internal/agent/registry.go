package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vantagelabs/relay/internal/tools"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 1 << 20
)

// ToolRegistry manages available tools with thread-safe registration, schema
// validation, and lookup.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]tools.Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]tools.Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema for validation.
// A tool with the same name replaces the previous registration.
func (r *ToolRegistry) Register(tool tools.Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("agent: invalid tool name %q", name)
	}

	var compiled *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		c := jsonschema.NewCompiler()
		url := "tool://" + name + "/schema.json"
		if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
			return fmt.Errorf("agent: tool %s schema: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return fmt.Errorf("agent: tool %s schema: %w", name, err)
		}
		compiled = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	if compiled != nil {
		r.schemas[name] = compiled
	} else {
		delete(r.schemas, name)
	}
	return nil
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name, for passing to providers.
func (r *ToolRegistry) List() []tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tools.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute validates args against the tool's schema and runs it.
// Unknown tools and invalid arguments come back as error Results so the model
// can see the failure and adapt; only infrastructure faults return an error.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	if len(args) > MaxToolParamsSize {
		return tools.Errorf(fmt.Sprintf("tool arguments exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return tools.Errorf("tool not found: " + name), nil
	}

	if schema != nil {
		var decoded any
		payload := args
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return tools.Errorf(fmt.Sprintf("invalid tool arguments: %v", err)), nil
		}
		if err := schema.Validate(decoded); err != nil {
			return tools.Errorf(fmt.Sprintf("tool arguments do not match schema: %v", err)), nil
		}
	}

	return tool.Execute(ctx, args)
}
