package client

import (
	"log/slog"
	"sort"
	"time"

	"github.com/vantagelabs/relay/pkg/models"
)

// interruptedMarker is appended to buffered text flushed by a user stop.
const interruptedMarker = " [interrupted]"

// Reconciler folds stream events into session state. It is a deterministic
// reducer: replaying the same event sequence yields the same message list.
//
// The invariants it maintains:
//   - text rendered to the user ends up in exactly one message, never dropped
//   - tool groups are never split by interleaved text
//   - tool display order is insertion order, not update arrival order
//   - the text flush raced between message_end and a tool start happens once
type Reconciler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewReconciler creates a reconciler over the registry.
func NewReconciler(registry *Registry, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		registry: registry,
		logger:   logger.With("component", "reconciler"),
	}
}

// Apply folds one event into the session for conversationID.
func (r *Reconciler) Apply(conversationID string, ev models.StreamEvent) {
	r.registry.Update(conversationID, func(s *Session) {
		r.reduce(s, ev)
	})
}

func (r *Reconciler) reduce(s *Session, ev models.StreamEvent) {
	switch ev.Type {
	case models.EventMessageDelta:
		r.applyMessageDelta(s, ev)
	case models.EventMessageEnd:
		r.applyMessageEnd(s, ev)
	case models.EventToolCallStart, models.EventToolCallStreaming:
		r.applyToolUpdate(s, toolStatusFromPayload(ev.Tool))
	case models.EventToolCallComplete:
		r.applyToolComplete(s, toolStatusFromPayload(ev.Tool))
	case models.EventCodeOutput:
		if ev.Output != nil {
			r.applyToolMerge(s, &models.ToolCallStatus{
				ID:         ev.Output.ToolCallID,
				CodeOutput: ev.Output.Content,
			})
		}
	case models.EventFileContent:
		if ev.File != nil {
			r.applyToolMerge(s, &models.ToolCallStatus{
				ID:           ev.File.ToolCallID,
				Filename:     ev.File.Filename,
				FileContent:  ev.File.Content,
				FileType:     ev.File.FileType,
				FileComplete: ev.File.IsComplete,
			})
		}
	case models.EventToolsEnd:
		// Intentionally a no-op: the group flushes at done so a turn's tools
		// are collected together.
	case models.EventOptions:
		s.PendingOptions = ev.Options
	case models.EventDone:
		r.applyDone(s)
	case models.EventError:
		r.applyError(s, ev.Error)
	default:
		r.logger.Warn("unknown event type", "type", ev.Type)
	}
}

func (r *Reconciler) applyMessageDelta(s *Session, ev models.StreamEvent) {
	if ev.Message == nil {
		return
	}
	// Text starting after a tool group locks the group's position: flush it
	// below any already-flushed text, above the text now starting.
	if s.StreamingText == "" && len(s.StreamingTools) > 0 {
		r.flushToolGroup(s, false)
	}
	s.StreamingText += ev.Message.Delta
}

func (r *Reconciler) applyMessageEnd(s *Session, ev models.StreamEvent) {
	if s.textFlushedByToolStart {
		// A racing tool start already flushed this text; appending again
		// would duplicate it.
		s.textFlushedByToolStart = false
		s.StreamingText = ""
		return
	}

	content := ""
	var ts time.Time
	if ev.Message != nil {
		content = ev.Message.Content
		ts = ev.Message.Timestamp
	}
	if content == "" {
		content = s.StreamingText
	}
	if content != "" {
		s.Messages = append(s.Messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   content,
			Timestamp: messageTime(ts),
		})
	}
	s.StreamingText = ""
}

// applyToolUpdate handles tool_call_start and tool_call_streaming: assign
// insertion order on first sight, flush pending text, and upsert.
func (r *Reconciler) applyToolUpdate(s *Session, update *models.ToolCallStatus) {
	if update == nil || update.ID == "" {
		return
	}

	// Pending text must become its own message before the group grows, so
	// tool groups are never split by interleaved text. Mark the flush so the
	// trailing message_end does not append it a second time.
	if s.StreamingText != "" {
		s.Messages = append(s.Messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   s.StreamingText,
			Timestamp: time.Now(),
		})
		s.StreamingText = ""
		s.textFlushedByToolStart = true
	}

	if idx, ok := s.flushedTools[update.ID]; ok {
		mergeIntoMessage(&s.Messages[idx], update)
		return
	}
	if live := s.liveTool(update.ID); live != nil {
		live.Merge(update)
		return
	}

	update.InsertionOrder = s.insertionCounter
	s.insertionCounter++
	if update.Status == "" {
		update.Status = models.ToolStatusCalling
	}
	s.StreamingTools = append(s.StreamingTools, update)
}

// applyToolComplete merges the completion record. The completion carries the
// full code output; when code_output sub-events already streamed it into the
// status, merging again would double it, so it is dropped in that case.
func (r *Reconciler) applyToolComplete(s *Session, update *models.ToolCallStatus) {
	if update == nil || update.ID == "" {
		return
	}
	target := s.liveTool(update.ID)
	if target == nil {
		if idx, ok := s.flushedTools[update.ID]; ok {
			for i := range s.Messages[idx].ToolCalls {
				if s.Messages[idx].ToolCalls[i].ID == update.ID {
					target = &s.Messages[idx].ToolCalls[i]
				}
			}
		}
	}
	if target != nil && target.CodeOutput != "" {
		update.CodeOutput = ""
	}
	r.applyToolMerge(s, update)
}

// applyToolMerge handles updates that never create an entry: completion,
// code output, file content. Unknown ids are dropped with a log line.
func (r *Reconciler) applyToolMerge(s *Session, update *models.ToolCallStatus) {
	if update == nil || update.ID == "" {
		return
	}
	if live := s.liveTool(update.ID); live != nil {
		live.Merge(update)
		return
	}
	if idx, ok := s.flushedTools[update.ID]; ok {
		mergeIntoMessage(&s.Messages[idx], update)
		return
	}
	r.logger.Warn("update for unknown tool call", "tool_call_id", update.ID)
}

func (r *Reconciler) applyDone(s *Session) {
	r.flushToolGroup(s, true)
	if s.StreamingText != "" {
		s.Messages = append(s.Messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   s.StreamingText,
			Timestamp: time.Now(),
		})
		s.StreamingText = ""
	}
	s.textFlushedByToolStart = false
	s.Loading = false
}

func (r *Reconciler) applyError(s *Session, payload *models.ErrorPayload) {
	s.Error = userFacingError(payload)
	s.Loading = false
}

// Stop ends the session's stream from the client side. With savePartial the
// live tool group is flushed with calling entries forced to completed, and any
// buffered text becomes a message with an explicit interruption marker.
func (r *Reconciler) Stop(conversationID string, savePartial bool) {
	r.registry.Update(conversationID, func(s *Session) {
		if s.Transport != nil {
			s.Transport.Cancel()
			s.Transport = nil
		}
		if savePartial {
			r.flushToolGroup(s, true)
			if s.StreamingText != "" {
				s.Messages = append(s.Messages, models.Message{
					Role:      models.RoleAssistant,
					Content:   s.StreamingText + interruptedMarker,
					Timestamp: time.Now(),
				})
			}
		}
		s.StreamingText = ""
		s.StreamingTools = nil
		s.textFlushedByToolStart = false
		s.Loading = false
	})
}

// flushToolGroup folds the live tool group into one message, sorted by
// insertion order. With force, entries still calling are marked completed
// (the turn ended without an explicit complete for them).
func (r *Reconciler) flushToolGroup(s *Session, force bool) {
	if len(s.StreamingTools) == 0 {
		return
	}
	sort.Slice(s.StreamingTools, func(i, j int) bool {
		return s.StreamingTools[i].InsertionOrder < s.StreamingTools[j].InsertionOrder
	})

	group := make([]models.ToolCallStatus, 0, len(s.StreamingTools))
	for _, t := range s.StreamingTools {
		if force && t.Status == models.ToolStatusCalling {
			t.Status = models.ToolStatusCompleted
		}
		group = append(group, *t)
	}
	s.Messages = append(s.Messages, models.Message{
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
		ToolCalls: group,
	})
	idx := len(s.Messages) - 1
	for _, t := range group {
		s.flushedTools[t.ID] = idx
	}
	s.StreamingTools = nil
}

// mergeIntoMessage updates a tool entry already flushed into a message, for
// long-running tools that complete after text started streaming.
func mergeIntoMessage(msg *models.Message, update *models.ToolCallStatus) {
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == update.ID {
			msg.ToolCalls[i].Merge(update)
			return
		}
	}
}

// toolStatusFromPayload converts a tool event payload into a status update.
func toolStatusFromPayload(p *models.ToolPayload) *models.ToolCallStatus {
	if p == nil {
		return nil
	}
	return &models.ToolCallStatus{
		ID:              p.ToolCallID,
		ToolName:        p.ToolName,
		Status:          p.Status,
		Arguments:       p.Arguments,
		UserDescription: p.UserDescription,
		Error:           p.Error,
		ResultSummary:   p.ResultSummary,
		CodeOutput:      p.CodeOutput,
		Filename:        p.Filename,
		FileContent:     p.FileContentDelta,
		SearchResults:   p.SearchResults,
		ScrapedContent:  p.ScrapedContent,
	}
}

func messageTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
