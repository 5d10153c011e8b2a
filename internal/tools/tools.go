// Package tools defines the boundary contract between the agent executor and
// concrete tool implementations: the Tool interface, the discriminated Result,
// and the invocation context (conversation identity plus an optional sub-event
// emitter) carried through context.Context.
package tools

import (
	"context"
	"encoding/json"

	"github.com/vantagelabs/relay/pkg/models"
)

// Tool is an executable capability exposed to the model.
type Tool interface {
	// Name returns the tool name used for model function calling.
	Name() string

	// Description returns the natural language description shown to the model.
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Failures the model should see are returned as an
	// error Result; a non-nil error return means the invocation itself broke
	// and is converted to an error result by the executor.
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Describer is implemented by tools that can produce a short human-readable
// description of an invocation from its arguments ("Searching for AAPL news").
type Describer interface {
	Describe(args json.RawMessage) string
}

// Status discriminates the two Result variants.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the discriminated outcome of a tool invocation.
// Success results carry optional typed Data; error results carry Message only.
type Result struct {
	Status  Status
	Message string

	// Data is one of the *Data types below, or nil.
	Data any

	// Halt requests that the agent loop stop after this tool batch instead of
	// sending results back to the model. Used by tools that wait on user input.
	Halt bool
}

// Success builds a success result.
func Success(message string, data any) *Result {
	return &Result{Status: StatusSuccess, Message: message, Data: data}
}

// Errorf builds an error result the model can react to.
func Errorf(message string) *Result {
	return &Result{Status: StatusError, Message: message}
}

// CodeData is the typed payload of a code execution tool.
type CodeData struct {
	Output string `json:"output"`
}

// FileData is the typed payload of a file-producing tool.
type FileData struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	FileType string `json:"file_type,omitempty"`
}

// SearchData is the typed payload of a search tool.
type SearchData struct {
	Results []models.SearchResult `json:"results"`
}

// ScrapeData is the typed payload of a page-scraping tool.
type ScrapeData struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// OptionsData is the typed payload of an ask-user tool.
type OptionsData struct {
	Question string                `json:"question"`
	Options  []models.OptionButton `json:"options"`
}

// Invocation identifies the tool call being executed and the conversation it
// belongs to. It is carried through context so tool signatures stay stable.
type Invocation struct {
	ConversationID string
	UserID         string
	ToolCallID     string
	ToolName       string
}

// Emitter publishes sub-events (progress, streamed output) into the run's
// event stream. Implementations must be safe for concurrent use; the executor
// runs independent invocations in parallel.
type Emitter func(ev models.StreamEvent)

type invocationKey struct{}
type emitterKey struct{}

// WithInvocation attaches invocation identity to the context.
func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFromContext returns the invocation identity, if any.
func InvocationFromContext(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}

// WithEmitter attaches a sub-event emitter to the context.
func WithEmitter(ctx context.Context, emit Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, emit)
}

// Emit publishes a sub-event if an emitter is attached; otherwise the event is
// dropped, which keeps tools usable outside a streaming run.
func Emit(ctx context.Context, ev models.StreamEvent) {
	if emit, ok := ctx.Value(emitterKey{}).(Emitter); ok && emit != nil {
		emit(ev)
	}
}
