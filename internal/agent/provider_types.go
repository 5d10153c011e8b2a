package agent

import (
	"context"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

// LLMProvider is the interface to a streaming chat-completion backend.
//
// Implementations must be safe for concurrent use; each Complete call creates
// an independent stream and goroutine.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response. The returned
	// channel is closed when the stream ends; errors are delivered in-band as
	// chunk.Error and terminate the stream.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name ("anthropic", "openai").
	Name() string

	// Models returns the models this provider can serve.
	Models() []Model
}

// CompletionRequest is a full request to an LLM provider.
type CompletionRequest struct {
	// Model selects the model; empty uses the provider default.
	Model string `json:"model"`

	// System is the system prompt, handled separately from messages.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines the callable tools for this request.
	Tools []tools.Tool `json:"-"`

	// MaxTokens caps the generated response; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage is one message in a provider conversation.
// Role is "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is one increment of a streaming provider response.
type CompletionChunk struct {
	// Text is partial response text.
	Text string `json:"text,omitempty"`

	// ToolCall is a complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true on the final chunk of a successful stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// Token usage, populated on the final chunk when the provider reports it.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}
