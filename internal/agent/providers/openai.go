package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vantagelabs/relay/internal/agent"
	"github.com/vantagelabs/relay/pkg/models"
)

const defaultOpenAIModel = openai.GPT4o

// OpenAIProvider streams completions from the OpenAI chat completions API.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAI creates a provider using the given API key.
func NewOpenAI(apiKey, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client:       openai.NewClient(apiKey),
		defaultModel: defaultModel,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: openai.GPT4o, Name: "GPT-4o", ContextSize: 128000},
		{ID: openai.GPT4oMini, Name: "GPT-4o mini", ContextSize: 128000},
	}
}

// Complete streams one completion. Tool call fragments are keyed by index and
// accumulated until the finish reason flushes them as whole calls.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	request := p.buildRequest(req)

	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	out := make(chan *agent.CompletionChunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()

		partial := make(map[int]*models.ToolCall)
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				flushToolCalls(out, partial)
				out <- &agent.CompletionChunk{Done: true}
				return
			}
			if err != nil {
				out <- &agent.CompletionChunk{Error: fmt.Errorf("openai stream: %w", err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			if choice.Delta.Content != "" {
				out <- &agent.CompletionChunk{Text: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				cur, ok := partial[idx]
				if !ok {
					cur = &models.ToolCall{}
					partial[idx] = cur
				}
				if tc.ID != "" {
					cur.ID = tc.ID
				}
				if tc.Function.Name != "" {
					cur.Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					cur.Input = append(cur.Input, tc.Function.Arguments...)
				}
			}
			if choice.FinishReason == openai.FinishReasonToolCalls {
				flushToolCalls(out, partial)
				partial = make(map[int]*models.ToolCall)
			}
		}
	}()
	return out, nil
}

func flushToolCalls(out chan<- *agent.CompletionChunk, partial map[int]*models.ToolCall) {
	indexes := make([]int, 0, len(partial))
	for idx := range partial {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		tc := partial[idx]
		if tc.Name == "" {
			continue
		}
		if len(tc.Input) == 0 {
			tc.Input = json.RawMessage("{}")
		}
		out <- &agent.CompletionChunk{ToolCall: tc}
	}
}

func (p *OpenAIProvider) buildRequest(req *agent.CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	request := openai.ChatCompletionRequest{
		Model:     model,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case string(models.RoleAssistant):
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			request.Messages = append(request.Messages, msg)

		case string(models.RoleTool):
			for _, tr := range m.ToolResults {
				request.Messages = append(request.Messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}

		default:
			request.Messages = append(request.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		}
	}

	for _, t := range req.Tools {
		var schema any
		if raw := t.Schema(); len(raw) > 0 {
			_ = json.Unmarshal(raw, &schema)
		}
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schema,
			},
		})
	}
	return request
}
