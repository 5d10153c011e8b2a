// Package client implements the consumer side of the event stream: per
// conversation session state, the reducer that folds events into it, and the
// visibility manager that keeps sessions correct across tab hide/show and
// stream loss.
package client

import (
	"context"

	"github.com/vantagelabs/relay/pkg/models"
)

// Transport is the client's view of one run's event channel. Attach resumes
// delivery from the first unconsumed event, so it doubles as reconnect.
type Transport interface {
	Attach(ctx context.Context) <-chan models.StreamEvent
	Cancel()
	Closed() bool
}

// Session is the mutable per-conversation state. It is owned by the Registry
// and mutated only through Reconciler operations, which are serialized by the
// single-reader transport.
type Session struct {
	ConversationID string

	// Messages is the finalized list. Once appended a message's text never
	// changes; late tool updates may still merge into its tool entries.
	Messages []models.Message

	// StreamingText buffers assistant text not yet folded into a message.
	StreamingText string

	// StreamingTools is the live tool group of the current turn, ordered by
	// InsertionOrder.
	StreamingTools []*models.ToolCallStatus

	Loading        bool
	Error          string
	PendingOptions *models.OptionsPayload

	// Read-only projections hydrated from the server, never authoritative for
	// messages.
	Resources []models.Resource
	Files     []models.FileInfo

	// Transport is the active stream handle, nil when no run is in flight.
	Transport Transport

	// WasStreamingWhenHidden records whether a stream was live when the tab
	// was hidden, so Show knows to try reattaching.
	WasStreamingWhenHidden bool

	// insertionCounter assigns InsertionOrder exactly once per tool call id
	// and is never reset for the life of the session.
	insertionCounter int

	// flushedTools maps a tool call id to the index of the message its group
	// was flushed into, for in-place updates of long-running tools.
	flushedTools map[string]int

	// textFlushedByToolStart is the per-turn ticket that makes the text flush
	// idempotent: set when a tool start flushes pending text, cleared when the
	// matching message_end (or done) arrives.
	textFlushedByToolStart bool
}

func newSession(conversationID string) *Session {
	return &Session{
		ConversationID: conversationID,
		flushedTools:   make(map[string]int),
	}
}

// liveTool returns the live entry for id, or nil.
func (s *Session) liveTool(id string) *models.ToolCallStatus {
	for _, t := range s.StreamingTools {
		if t.ID == id {
			return t
		}
	}
	return nil
}
