// Package models provides the domain types shared by the relay server and client.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolStatus is the lifecycle state of a tool invocation.
type ToolStatus string

const (
	ToolStatusCalling   ToolStatus = "calling"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

// Message is a finalized conversation entry. Messages are immutable once
// created by the reconciler; a message may carry text, a tool group, or both,
// but tool groups are never split by interleaved text.
type Message struct {
	ID        string           `json:"id,omitempty"`
	Role      Role             `json:"role"`
	Content   string           `json:"content,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	ToolCalls []ToolCallStatus `json:"tool_calls,omitempty"`

	// ToolResults is populated on role=tool messages fed back to the model.
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is the model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a tool execution formatted for the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// SearchResult is one entry of a web search tool result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ToolCallStatus tracks a single tool invocation for display. It is created on
// the first event that names its id, mutated in place while live, and becomes
// immutable once folded into a Message.
//
// Result payload fields are monotonically additive: updates merge into an
// existing status and never replace accumulated output with less information.
type ToolCallStatus struct {
	ID              string          `json:"id"`
	ToolName        string          `json:"tool_name"`
	Status          ToolStatus      `json:"status"`
	Arguments       json.RawMessage `json:"arguments,omitempty"`
	UserDescription string          `json:"user_description,omitempty"`

	// InsertionOrder is assigned exactly once, the first time the id is seen
	// within a session, and is never reassigned. Display order within a tool
	// group follows InsertionOrder, not update arrival order.
	InsertionOrder int `json:"insertion_order"`

	Error          string         `json:"error,omitempty"`
	ResultSummary  string         `json:"result_summary,omitempty"`
	CodeOutput     string         `json:"code_output,omitempty"`
	Filename       string         `json:"filename,omitempty"`
	FileContent    string         `json:"file_content,omitempty"`
	FileType       string         `json:"file_type,omitempty"`
	FileComplete   bool           `json:"file_complete,omitempty"`
	SearchResults  []SearchResult `json:"search_results,omitempty"`
	ScrapedContent string         `json:"scraped_content,omitempty"`
}

// Merge folds an update into the status without losing accumulated output.
// Non-empty scalar fields overwrite, output fields append, and a status-only
// update preserves everything already collected.
func (s *ToolCallStatus) Merge(update *ToolCallStatus) {
	if update == nil {
		return
	}
	if update.ToolName != "" {
		s.ToolName = update.ToolName
	}
	if update.Status != "" {
		s.Status = update.Status
	}
	if len(update.Arguments) > 0 {
		s.Arguments = update.Arguments
	}
	if update.UserDescription != "" {
		s.UserDescription = update.UserDescription
	}
	if update.Error != "" {
		s.Error = update.Error
	}
	if update.ResultSummary != "" {
		s.ResultSummary = update.ResultSummary
	}
	if update.CodeOutput != "" {
		s.CodeOutput += update.CodeOutput
	}
	if update.Filename != "" {
		s.Filename = update.Filename
	}
	if update.FileContent != "" {
		s.FileContent += update.FileContent
	}
	if update.FileType != "" {
		s.FileType = update.FileType
	}
	if update.FileComplete {
		s.FileComplete = true
	}
	if len(update.SearchResults) > 0 {
		s.SearchResults = append(s.SearchResults, update.SearchResults...)
	}
	if update.ScrapedContent != "" {
		s.ScrapedContent = update.ScrapedContent
	}
}

// OptionButton is one selectable answer in an options prompt.
type OptionButton struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Resource is a read-only projection of an externally stored artifact
// associated with a conversation (chart, report, dataset).
type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// FileInfo is a read-only projection of a file written during a conversation.
type FileInfo struct {
	Name      string    `json:"name"`
	FileType  string    `json:"file_type,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
