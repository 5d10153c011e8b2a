package models

import (
	"encoding/json"
	"time"
)

// StreamEvent is the tagged-union wire format for everything the agent loop
// emits. A single Type discriminator selects which payload pointer is set;
// exactly one payload is non-nil for a given Type (done carries none).
//
// Sequence is monotonic within a run so consumers can assert ordering across
// transports.
type StreamEvent struct {
	Type EventType `json:"type"`
	Seq  uint64    `json:"seq,omitempty"`
	Time time.Time `json:"time,omitzero"`

	Message  *MessagePayload  `json:"message,omitempty"`
	Tool     *ToolPayload     `json:"tool,omitempty"`
	Output   *OutputPayload   `json:"output,omitempty"`
	File     *FilePayload     `json:"file,omitempty"`
	ToolsEnd *ToolsEndPayload `json:"tools_end,omitempty"`
	Options  *OptionsPayload  `json:"options,omitempty"`
	Error    *ErrorPayload    `json:"error,omitempty"`
}

// EventType identifies the kind of stream event.
type EventType string

const (
	EventMessageDelta      EventType = "message_delta"
	EventMessageEnd        EventType = "message_end"
	EventToolCallStart     EventType = "tool_call_start"
	EventToolCallStreaming EventType = "tool_call_streaming"
	EventToolCallComplete  EventType = "tool_call_complete"
	EventCodeOutput        EventType = "code_output"
	EventFileContent       EventType = "file_content"
	EventToolsEnd          EventType = "tools_end"
	EventOptions           EventType = "options"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// MessagePayload carries assistant text for message_delta and message_end.
type MessagePayload struct {
	// Delta is the incremental text (message_delta only).
	Delta string `json:"delta,omitempty"`

	// Content is the full accumulated text of the turn (message_end only).
	Content string `json:"content,omitempty"`

	// ToolCalls announces the tool requests of the turn (message_end only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ToolPayload carries per-invocation updates for tool_call_start,
// tool_call_streaming, and tool_call_complete.
type ToolPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`

	// Arguments and UserDescription are set on tool_call_start.
	Arguments       json.RawMessage `json:"arguments,omitempty"`
	UserDescription string          `json:"user_description,omitempty"`

	// Filename/FileContentDelta stream partial file output
	// (tool_call_streaming).
	Filename         string `json:"filename,omitempty"`
	FileContentDelta string `json:"file_content_delta,omitempty"`

	// Completion fields (tool_call_complete).
	Status         ToolStatus     `json:"status,omitempty"`
	Error          string         `json:"error,omitempty"`
	ResultSummary  string         `json:"result_summary,omitempty"`
	CodeOutput     string         `json:"code_output,omitempty"`
	SearchResults  []SearchResult `json:"search_results,omitempty"`
	ScrapedContent string         `json:"scraped_content,omitempty"`
}

// OutputStream names the origin of a code_output chunk.
type OutputStream string

const (
	OutputStdout OutputStream = "stdout"
	OutputStderr OutputStream = "stderr"
)

// OutputPayload carries a chunk of process output for code_output.
type OutputPayload struct {
	ToolCallID string       `json:"tool_call_id"`
	ToolName   string       `json:"tool_name,omitempty"`
	Stream     OutputStream `json:"stream"`
	Content    string       `json:"content"`
}

// FilePayload carries file content for file_content.
type FilePayload struct {
	ToolCallID string `json:"tool_call_id"`
	Filename   string `json:"filename"`
	Content    string `json:"content"`
	FileType   string `json:"file_type,omitempty"`
	IsComplete bool   `json:"is_complete"`
}

// ToolsEndPayload is the aggregate completion record for one turn's tool batch.
// ToolMessages are formatted for feeding back to the model (and may be
// truncated); ExecutionResults are the full per-tool records for caller-side
// tracking and are never truncated.
type ToolsEndPayload struct {
	ToolMessages     []Message        `json:"tool_messages"`
	ExecutionResults []ToolCallStatus `json:"execution_results"`
}

// OptionsPayload asks the user to pick from a set of option buttons.
type OptionsPayload struct {
	Question string         `json:"question"`
	Options  []OptionButton `json:"options"`
}

// ErrorPayload is a terminal error for the run.
type ErrorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retriable bool   `json:"retriable,omitempty"`
}

// ErrCodeMaxIterations marks the terminal signal emitted when the agent loop
// reaches its iteration cap.
const ErrCodeMaxIterations = "max_iterations"
