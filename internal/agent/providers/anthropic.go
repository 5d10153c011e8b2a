// Package providers contains LLM provider implementations of the agent's
// streaming completion interface.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vantagelabs/relay/internal/agent"
	"github.com/vantagelabs/relay/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider streams completions from the Anthropic Messages API.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropic creates a provider using the given API key.
func NewAnthropic(apiKey, defaultModel string) *AnthropicProvider {
	if defaultModel == "" {
		defaultModel = defaultAnthropicModel
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
	}
}

// Complete streams one completion. Tool use blocks have their JSON input
// accumulated across deltas and are delivered as a single chunk when the
// block closes.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan *agent.CompletionChunk, 32)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)

		var inputTokens, outputTokens int
		var toolID, toolName string
		var toolJSON strings.Builder
		inTool := false

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				inputTokens = int(ms.Message.Usage.InputTokens)

			case "content_block_start":
				cbs := event.AsContentBlockStart()
				if cbs.ContentBlock.Type == "tool_use" {
					tu := cbs.ContentBlock.AsToolUse()
					toolID = tu.ID
					toolName = tu.Name
					toolJSON.Reset()
					inTool = true
				}

			case "content_block_delta":
				cbd := event.AsContentBlockDelta()
				switch cbd.Delta.Type {
				case "text_delta":
					if cbd.Delta.Text != "" {
						out <- &agent.CompletionChunk{Text: cbd.Delta.Text}
					}
				case "input_json_delta":
					toolJSON.WriteString(cbd.Delta.PartialJSON)
				}

			case "content_block_stop":
				if inTool {
					input := toolJSON.String()
					if input == "" {
						input = "{}"
					}
					out <- &agent.CompletionChunk{
						ToolCall: &models.ToolCall{
							ID:    toolID,
							Name:  toolName,
							Input: json.RawMessage(input),
						},
					}
					inTool = false
				}

			case "message_delta":
				md := event.AsMessageDelta()
				outputTokens = int(md.Usage.OutputTokens)

			case "message_stop":
				out <- &agent.CompletionChunk{
					Done:         true,
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- &agent.CompletionChunk{Error: fmt.Errorf("anthropic stream: %w", err)}
		}
	}()
	return out, nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case string(models.RoleAssistant):
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &input); err != nil {
						return params, fmt.Errorf("anthropic: tool call %s input: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
			}

		case string(models.RoleTool):
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
			}

		default:
			if m.Content != "" {
				params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}

	for _, t := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		if raw := t.Schema(); len(raw) > 0 {
			if err := json.Unmarshal(raw, &schema); err != nil {
				return params, fmt.Errorf("anthropic: tool %s schema: %w", t.Name(), err)
			}
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name())
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description())
		}
		params.Tools = append(params.Tools, toolParam)
	}
	return params, nil
}
