package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider is returned when a loop is started without an LLM provider.
	ErrNoProvider = errors.New("agent: no LLM provider configured")

	// ErrMaxIterations is the cause of the terminal signal emitted when the
	// loop reaches its iteration cap.
	ErrMaxIterations = errors.New("agent: max iterations reached")

	// ErrToolTimeout marks a tool execution that exceeded its timeout.
	ErrToolTimeout = errors.New("agent: tool execution timed out")
)

// ToolErrorType classifies tool failures for retry decisions and metrics.
type ToolErrorType string

const (
	ToolErrorExecution ToolErrorType = "execution"
	ToolErrorTimeout   ToolErrorType = "timeout"
	ToolErrorPanic     ToolErrorType = "panic"
	ToolErrorNotFound  ToolErrorType = "not_found"
	ToolErrorBadArgs   ToolErrorType = "bad_args"
)

// ToolError wraps a tool failure with the tool name, call id, and a type.
type ToolError struct {
	Tool       string
	ToolCallID string
	Type       ToolErrorType
	Msg        string
	Err        error
}

// NewToolError creates an execution-typed tool error.
func NewToolError(tool string, err error) *ToolError {
	return &ToolError{Tool: tool, Type: ToolErrorExecution, Err: err}
}

// WithType sets the error type.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	return e
}

// WithToolCallID sets the originating tool call id.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// WithMessage sets a human-readable message overriding the wrapped error text.
func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Msg = msg
	return e
}

func (e *ToolError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %s: %s error", e.Tool, e.Type)
}

func (e *ToolError) Unwrap() error { return e.Err }

// GetToolError extracts a ToolError from an error chain.
func GetToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsToolRetryable reports whether a failed tool execution may be retried.
// Timeouts, panics, unknown tools, and invalid arguments are not retryable.
func IsToolRetryable(err error) bool {
	te, ok := GetToolError(err)
	if !ok {
		return false
	}
	switch te.Type {
	case ToolErrorTimeout, ToolErrorPanic, ToolErrorNotFound, ToolErrorBadArgs:
		return false
	default:
		return true
	}
}

// LoopPhase names the agent loop state for error reporting.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseComplete     LoopPhase = "complete"
)

// LoopError tags a loop failure with the phase and iteration it occurred in.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
	Message   string
}

func (e *LoopError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("agent loop (%s, iteration %d): %s", e.Phase, e.Iteration, msg)
}

func (e *LoopError) Unwrap() error { return e.Cause }
