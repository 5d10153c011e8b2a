package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vantagelabs/relay/internal/observability"
	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

// truncationMarker is appended whenever tool output is cut before being fed
// back to the model. Execution results published to clients are never cut.
const truncationMarker = "\n[... output truncated ...]"

// ToolConfig overrides executor defaults for a single tool.
type ToolConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// ExecutorConfig controls parallelism, timeouts, and retry behavior.
// Zero values select the defaults applied by NewExecutor.
type ExecutorConfig struct {
	// MaxConcurrency caps tools running in parallel within one batch.
	MaxConcurrency int `yaml:"max_concurrency"`

	// DefaultTimeout bounds a single execution attempt.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// DefaultRetries is the number of retry attempts after the first failure.
	DefaultRetries int `yaml:"default_retries"`

	// RetryBackoff is the initial delay between attempts; it doubles per retry
	// up to MaxRetryBackoff.
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff"`

	// MaxResultLength caps per-tool content fed back to the model.
	MaxResultLength int `yaml:"max_result_length"`

	// Tools holds per-tool overrides keyed by tool name.
	Tools map[string]ToolConfig `yaml:"tools"`
}

func (c *ExecutorConfig) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 60 * time.Second
	}
	if c.DefaultRetries < 0 {
		c.DefaultRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = 10 * time.Second
	}
	if c.MaxResultLength <= 0 {
		c.MaxResultLength = 30000
	}
}

// Executor runs tool batches in parallel with bounded concurrency, per-tool
// timeouts, retries with exponential backoff, and panic isolation.
type Executor struct {
	registry *ToolRegistry
	config   ExecutorConfig
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *ToolRegistry, config ExecutorConfig, logger *slog.Logger) *Executor {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		config:   config,
		logger:   logger.With("component", "executor"),
	}
}

// ExecuteAll runs every call in the batch, emitting lifecycle events through
// emit as each invocation starts, streams, and completes. A failed tool never
// fails the batch; it produces an error-status result the model can react to.
//
// Returned tool messages are in the same order as calls and are truncated to
// MaxResultLength; the returned statuses carry full untruncated output. The
// final tools_end event carries both.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall, emit tools.Emitter) ([]models.Message, []models.ToolCallStatus, bool, error) {
	if len(calls) == 0 {
		return nil, nil, false, nil
	}

	results := make([]models.ToolCallStatus, len(calls))
	contents := make([]string, len(calls))
	halts := make([]bool, len(calls))

	sem := make(chan struct{}, e.config.MaxConcurrency)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx], contents[idx], halts[idx] = e.executeOne(ctx, call, emit)
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}

	messages := make([]models.Message, len(calls))
	for i, call := range calls {
		messages[i] = models.Message{
			Role:      models.RoleTool,
			Timestamp: time.Now(),
			ToolResults: []models.ToolResult{{
				ToolCallID: call.ID,
				Content:    truncate(contents[i], e.config.MaxResultLength),
				IsError:    results[i].Status == models.ToolStatusError,
			}},
		}
	}

	emit(models.StreamEvent{
		Type: models.EventToolsEnd,
		ToolsEnd: &models.ToolsEndPayload{
			ToolMessages:     messages,
			ExecutionResults: results,
		},
	})

	halt := false
	for _, h := range halts {
		halt = halt || h
	}
	return messages, results, halt, nil
}

// executeOne runs a single call through its full lifecycle and returns the
// display record, the content string destined for the model, and whether the
// tool requested the loop halt.
func (e *Executor) executeOne(ctx context.Context, call models.ToolCall, emit tools.Emitter) (models.ToolCallStatus, string, bool) {
	start := models.StreamEvent{
		Type: models.EventToolCallStart,
		Tool: &models.ToolPayload{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Arguments:  call.Input,
			Status:     models.ToolStatusCalling,
		},
	}
	if tool, ok := e.registry.Get(call.Name); ok {
		if d, ok := tool.(tools.Describer); ok {
			start.Tool.UserDescription = d.Describe(call.Input)
		}
	}
	emit(start)

	status := models.ToolCallStatus{
		ID:              call.ID,
		ToolName:        call.Name,
		Status:          models.ToolStatusCalling,
		Arguments:       call.Input,
		UserDescription: start.Tool.UserDescription,
	}

	began := time.Now()
	result, err := e.executeWithRetry(ctx, call, emit)
	observability.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(began).Seconds())

	var content string
	var halt bool
	if err != nil {
		status.Status = models.ToolStatusError
		status.Error = err.Error()
		content = "Error: " + err.Error()
		observability.ToolExecutions.WithLabelValues(call.Name, "error").Inc()
		e.logger.Warn("tool execution failed",
			"tool", call.Name, "tool_call_id", call.ID, "error", err)
	} else if result.Status == tools.StatusError {
		status.Status = models.ToolStatusError
		status.Error = result.Message
		content = "Error: " + result.Message
		observability.ToolExecutions.WithLabelValues(call.Name, "error").Inc()
	} else {
		status.Status = models.ToolStatusCompleted
		status.ResultSummary = result.Message
		content = e.recordResult(&status, result)
		halt = result.Halt
		observability.ToolExecutions.WithLabelValues(call.Name, "success").Inc()
	}

	emit(models.StreamEvent{
		Type: models.EventToolCallComplete,
		Tool: &models.ToolPayload{
			ToolCallID:     call.ID,
			ToolName:       call.Name,
			Status:         status.Status,
			Error:          status.Error,
			ResultSummary:  status.ResultSummary,
			CodeOutput:     status.CodeOutput,
			SearchResults:  status.SearchResults,
			ScrapedContent: status.ScrapedContent,
		},
	})
	return status, content, halt
}

// recordResult folds typed result data into the status record and builds the
// model-facing content.
func (e *Executor) recordResult(status *models.ToolCallStatus, result *tools.Result) string {
	content := result.Message
	switch data := result.Data.(type) {
	case *tools.CodeData:
		status.CodeOutput = data.Output
		if data.Output != "" {
			content += "\n\nOutput:\n" + data.Output
		}
	case *tools.FileData:
		status.Filename = data.Filename
		status.FileContent = data.Content
		status.FileType = data.FileType
		status.FileComplete = true
		content += "\n\nWrote file " + data.Filename
	case *tools.SearchData:
		status.SearchResults = data.Results
		if encoded, err := json.Marshal(data.Results); err == nil {
			content += "\n\n" + string(encoded)
		}
	case *tools.ScrapeData:
		status.ScrapedContent = data.Content
		content += "\n\n" + data.Content
	case *tools.OptionsData:
		// The options tool pauses the run; the question is the content.
	case nil:
	default:
		if encoded, err := json.Marshal(data); err == nil {
			content += "\n\n" + string(encoded)
		}
	}
	return content
}

// executeWithRetry runs one call with per-attempt timeout, retrying transient
// failures with exponential backoff. Timeouts, panics, unknown tools, and
// schema violations are never retried.
func (e *Executor) executeWithRetry(ctx context.Context, call models.ToolCall, emit tools.Emitter) (*tools.Result, error) {
	timeout := e.config.DefaultTimeout
	retries := e.config.DefaultRetries
	if tc, ok := e.config.Tools[call.Name]; ok {
		if tc.Timeout > 0 {
			timeout = tc.Timeout
		}
		if tc.Retries > 0 {
			retries = tc.Retries
		}
	}

	inv := tools.Invocation{ToolCallID: call.ID, ToolName: call.Name}
	if parent, ok := tools.InvocationFromContext(ctx); ok {
		inv.ConversationID = parent.ConversationID
		inv.UserID = parent.UserID
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := e.config.RetryBackoff * (1 << (attempt - 1))
			if delay > e.config.MaxRetryBackoff {
				delay = e.config.MaxRetryBackoff
			}
			observability.ToolRetries.WithLabelValues(call.Name).Inc()
			e.logger.Debug("retrying tool", "tool", call.Name, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := e.executeAttempt(ctx, inv, call, emit, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsToolRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// executeAttempt runs a single attempt with timeout and panic recovery.
func (e *Executor) executeAttempt(ctx context.Context, inv tools.Invocation, call models.ToolCall, emit tools.Emitter, timeout time.Duration) (result *tools.Result, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attemptCtx = tools.WithInvocation(attemptCtx, inv)
	attemptCtx = tools.WithEmitter(attemptCtx, stampEmitter(emit, call))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked",
				"tool", call.Name, "panic", r, "stack", string(debug.Stack()))
			err = NewToolError(call.Name, fmt.Errorf("panic: %v", r)).
				WithType(ToolErrorPanic).
				WithToolCallID(call.ID)
		}
	}()

	result, err = e.registry.Execute(attemptCtx, call.Name, call.Input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewToolError(call.Name, ErrToolTimeout).
				WithType(ToolErrorTimeout).
				WithToolCallID(call.ID)
		}
		var te *ToolError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, NewToolError(call.Name, err).WithToolCallID(call.ID)
	}
	return result, nil
}

// stampEmitter fills the originating call id on tool sub-events that omit it.
func stampEmitter(emit tools.Emitter, call models.ToolCall) tools.Emitter {
	return func(ev models.StreamEvent) {
		switch {
		case ev.Output != nil && ev.Output.ToolCallID == "":
			ev.Output.ToolCallID = call.ID
			if ev.Output.ToolName == "" {
				ev.Output.ToolName = call.Name
			}
		case ev.File != nil && ev.File.ToolCallID == "":
			ev.File.ToolCallID = call.ID
		case ev.Tool != nil && ev.Tool.ToolCallID == "":
			ev.Tool.ToolCallID = call.ID
			if ev.Tool.ToolName == "" {
				ev.Tool.ToolName = call.Name
			}
		}
		emit(ev)
	}
}

// truncate cuts s to max bytes, appending an explicit marker when it does.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
