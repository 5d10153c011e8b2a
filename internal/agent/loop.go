// Package agent implements the server-side agentic loop: streaming model
// completions, parallel tool execution, and the typed event stream consumed by
// transports and clients.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vantagelabs/relay/internal/observability"
	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

// HistoryStore persists conversation messages between runs.
type HistoryStore interface {
	Append(ctx context.Context, conversationID string, msg models.Message) error
	List(ctx context.Context, conversationID string) ([]models.Message, error)
}

// LoopConfig controls the agent loop. Zero values select defaults.
type LoopConfig struct {
	// Model selects the provider model; empty uses the provider default.
	Model string `yaml:"model"`

	// System is the system prompt sent with every completion.
	System string `yaml:"system"`

	// MaxIterations caps model round trips per run.
	MaxIterations int `yaml:"max_iterations"`

	// MaxTokens caps tokens per completion.
	MaxTokens int `yaml:"max_tokens"`

	// MaxWallTime bounds the whole run; zero means unbounded.
	MaxWallTime time.Duration `yaml:"max_wall_time"`
}

func (c *LoopConfig) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
}

// Loop drives one conversation turn end to end: it streams model output,
// executes requested tools in parallel, feeds results back, and repeats until
// the model stops requesting tools or a limit is hit.
type Loop struct {
	provider LLMProvider
	executor *Executor
	history  HistoryStore
	config   LoopConfig
	logger   *slog.Logger
}

// NewLoop assembles a loop. The history store may be nil, in which case only
// the incoming message is sent to the model.
func NewLoop(provider LLMProvider, executor *Executor, history HistoryStore, config LoopConfig, logger *slog.Logger) *Loop {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		provider: provider,
		executor: executor,
		history:  history,
		config:   config,
		logger:   logger.With("component", "agent_loop"),
	}
}

// Run starts a turn for the given user message and returns its event stream.
// The channel is closed when the run reaches a terminal event (done or error)
// or the context is canceled. Every event carries a sequence number that is
// strictly increasing within the run.
func (l *Loop) Run(ctx context.Context, conversationID, userID, userMessage string) (<-chan models.StreamEvent, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now(),
	}
	if l.history != nil {
		if err := l.history.Append(ctx, conversationID, userMsg); err != nil {
			return nil, &LoopError{Phase: PhaseInit, Cause: err, Message: "persist user message"}
		}
	}

	observability.RunsStarted.WithLabelValues(l.provider.Name()).Inc()

	events := make(chan models.StreamEvent, 256)
	go l.run(ctx, conversationID, userID, userMsg, events)
	return events, nil
}

func (l *Loop) run(ctx context.Context, conversationID, userID string, userMsg models.Message, events chan<- models.StreamEvent) {
	defer close(events)

	started := time.Now()
	defer func() {
		observability.RunDuration.Observe(time.Since(started).Seconds())
	}()

	if l.config.MaxWallTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.MaxWallTime)
		defer cancel()
	}
	ctx = tools.WithInvocation(ctx, tools.Invocation{
		ConversationID: conversationID,
		UserID:         userID,
	})

	// Tool goroutines emit concurrently; the mutex keeps the seq stamp and the
	// channel send in one order so sequence numbers stay strictly increasing.
	var emitMu sync.Mutex
	var seq uint64
	emit := func(ev models.StreamEvent) {
		emitMu.Lock()
		defer emitMu.Unlock()
		seq++
		ev.Seq = seq
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}
		observability.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	logger := l.logger.With("conversation_id", conversationID)
	messages := l.loadHistory(ctx, conversationID, userMsg)

	iteration := 0
	for ; iteration < l.config.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			l.finish(logger, "canceled", iteration)
			return
		}

		content, toolCalls, usage, err := l.streamCompletion(ctx, messages, emit)
		if err != nil {
			if ctx.Err() != nil {
				l.finish(logger, "canceled", iteration)
				return
			}
			logger.Error("model stream failed", "iteration", iteration, "error", err)
			emit(models.StreamEvent{
				Type: models.EventError,
				Error: &models.ErrorPayload{
					Message:   err.Error(),
					Code:      "provider_error",
					Retriable: true,
				},
			})
			l.finish(logger, "error", iteration)
			return
		}
		l.recordUsage(usage)

		if content != "" || len(toolCalls) > 0 {
			emit(models.StreamEvent{
				Type: models.EventMessageEnd,
				Message: &models.MessagePayload{
					Content:   content,
					ToolCalls: toolCalls,
					Timestamp: time.Now(),
				},
			})
			assistant := models.Message{
				ID:        uuid.NewString(),
				Role:      models.RoleAssistant,
				Content:   content,
				Timestamp: time.Now(),
			}
			for i, tc := range toolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, models.ToolCallStatus{
					ID:             tc.ID,
					ToolName:       tc.Name,
					Arguments:      tc.Input,
					Status:         models.ToolStatusCalling,
					InsertionOrder: i,
				})
			}
			l.persist(ctx, conversationID, assistant, logger)
			messages = append(messages, CompletionMessage{
				Role:      string(models.RoleAssistant),
				Content:   content,
				ToolCalls: toolCalls,
			})
		}

		if len(toolCalls) == 0 {
			emit(models.StreamEvent{Type: models.EventDone})
			l.finish(logger, "done", iteration+1)
			return
		}

		toolMessages, results, halt, err := l.executor.ExecuteAll(ctx, toolCalls, emit)
		if err != nil {
			l.finish(logger, "canceled", iteration+1)
			return
		}
		for _, msg := range toolMessages {
			l.persist(ctx, conversationID, msg, logger)
			messages = append(messages, CompletionMessage{
				Role:        string(models.RoleTool),
				ToolResults: msg.ToolResults,
			})
		}
		logger.Debug("tool batch complete",
			"iteration", iteration, "tools", len(results), "halt", halt)

		if halt {
			// A tool is waiting on user input; the turn ends here and the
			// user's choice arrives as the next message.
			emit(models.StreamEvent{Type: models.EventDone})
			l.finish(logger, "done", iteration+1)
			return
		}
	}

	logger.Warn("run hit iteration cap", "max_iterations", l.config.MaxIterations)
	emit(models.StreamEvent{
		Type: models.EventError,
		Error: &models.ErrorPayload{
			Message: ErrMaxIterations.Error(),
			Code:    models.ErrCodeMaxIterations,
		},
	})
	l.finish(logger, models.ErrCodeMaxIterations, iteration)
}

// streamCompletion consumes one provider stream, emitting message_delta events
// as text arrives and collecting tool calls for the batch.
func (l *Loop) streamCompletion(ctx context.Context, messages []CompletionMessage, emit tools.Emitter) (string, []models.ToolCall, *CompletionChunk, error) {
	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    l.config.System,
		Messages:  messages,
		Tools:     l.executor.registry.List(),
		MaxTokens: l.config.MaxTokens,
	}

	chunks, err := l.provider.Complete(ctx, req)
	if err != nil {
		return "", nil, nil, &LoopError{Phase: PhaseStream, Cause: err}
	}

	var content string
	var toolCalls []models.ToolCall
	var last *CompletionChunk
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", nil, nil, &LoopError{Phase: PhaseStream, Cause: chunk.Error}
		}
		if chunk.Text != "" {
			content += chunk.Text
			emit(models.StreamEvent{
				Type:    models.EventMessageDelta,
				Message: &models.MessagePayload{Delta: chunk.Text},
			})
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			last = chunk
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, nil, &LoopError{Phase: PhaseStream, Cause: err}
	}
	return content, toolCalls, last, nil
}

func (l *Loop) loadHistory(ctx context.Context, conversationID string, userMsg models.Message) []CompletionMessage {
	var stored []models.Message
	if l.history != nil {
		var err error
		stored, err = l.history.List(ctx, conversationID)
		if err != nil {
			l.logger.Warn("history load failed", "conversation_id", conversationID, "error", err)
			stored = nil
		}
	}
	if len(stored) == 0 {
		stored = []models.Message{userMsg}
	}

	out := make([]CompletionMessage, 0, len(stored))
	for _, m := range stored {
		cm := CompletionMessage{Role: string(m.Role), Content: m.Content}
		if len(m.ToolResults) > 0 {
			cm.ToolResults = m.ToolResults
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, models.ToolCall{
				ID:    tc.ID,
				Name:  tc.ToolName,
				Input: tc.Arguments,
			})
		}
		out = append(out, cm)
	}
	return out
}

func (l *Loop) persist(ctx context.Context, conversationID string, msg models.Message, logger *slog.Logger) {
	if l.history == nil {
		return
	}
	// Persistence happens with a detached context so a canceled run still
	// saves what the model produced.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.history.Append(saveCtx, conversationID, msg); err != nil {
		logger.Warn("persist message failed", "role", msg.Role, "error", err)
	}
}

func (l *Loop) recordUsage(last *CompletionChunk) {
	if last == nil {
		return
	}
	name := l.provider.Name()
	if last.InputTokens > 0 {
		observability.ProviderTokens.WithLabelValues(name, "input").Add(float64(last.InputTokens))
	}
	if last.OutputTokens > 0 {
		observability.ProviderTokens.WithLabelValues(name, "output").Add(float64(last.OutputTokens))
	}
}

func (l *Loop) finish(logger *slog.Logger, outcome string, iterations int) {
	observability.RunsCompleted.WithLabelValues(outcome).Inc()
	observability.LoopIterations.Observe(float64(iterations))
	logger.Info("run finished", "outcome", outcome, "iterations", iterations)
}
