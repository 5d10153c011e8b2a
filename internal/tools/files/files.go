// Package files exposes file creation as a tool. Content is streamed to the
// client in chunks while being written, then persisted through the Store.
package files

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

// streamChunkSize is the slice size for file_content events.
const streamChunkSize = 1024

// Store persists files produced during a conversation.
type Store interface {
	WriteFile(ctx context.Context, conversationID, name string, content []byte, fileType string) error
}

// Tool writes a file and streams its content to the client.
type Tool struct {
	store Store
}

// New creates the file writing tool.
func New(store Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "write_file" }

func (t *Tool) Description() string {
	return "Create or overwrite a file in the conversation workspace. " +
		"Use this for reports, notes, and datasets the user should keep."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filename": {"type": "string"},
			"content": {"type": "string"},
			"file_type": {"type": "string", "description": "e.g. markdown, csv, python"}
		},
		"required": ["filename", "content"],
		"additionalProperties": false
	}`)
}

func (t *Tool) Describe(args json.RawMessage) string {
	var in writeArgs
	if err := json.Unmarshal(args, &in); err == nil && in.Filename != "" {
		return "Writing " + in.Filename
	}
	return "Writing a file"
}

type writeArgs struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	FileType string `json:"file_type"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var in writeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Errorf(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.Filename == "" {
		return tools.Errorf("filename must not be empty"), nil
	}

	// Stream the content so the client can render the file as it arrives.
	for off := 0; off < len(in.Content); off += streamChunkSize {
		end := off + streamChunkSize
		last := end >= len(in.Content)
		if last {
			end = len(in.Content)
		}
		tools.Emit(ctx, models.StreamEvent{
			Type: models.EventFileContent,
			File: &models.FilePayload{
				Filename:   in.Filename,
				Content:    in.Content[off:end],
				FileType:   in.FileType,
				IsComplete: last,
			},
		})
	}
	if in.Content == "" {
		tools.Emit(ctx, models.StreamEvent{
			Type: models.EventFileContent,
			File: &models.FilePayload{Filename: in.Filename, FileType: in.FileType, IsComplete: true},
		})
	}

	conversationID := ""
	if inv, ok := tools.InvocationFromContext(ctx); ok {
		conversationID = inv.ConversationID
	}
	if t.store != nil {
		if err := t.store.WriteFile(ctx, conversationID, in.Filename, []byte(in.Content), in.FileType); err != nil {
			return tools.Errorf(fmt.Sprintf("write %s: %v", in.Filename, err)), nil
		}
	}

	return tools.Success(fmt.Sprintf("wrote %s (%d bytes)", in.Filename, len(in.Content)), &tools.FileData{
		Filename: in.Filename,
		Content:  in.Content,
		FileType: in.FileType,
	}), nil
}
