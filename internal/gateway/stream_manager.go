package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vantagelabs/relay/internal/agent"
	"github.com/vantagelabs/relay/internal/stream"
)

// ErrRunInProgress is returned when a conversation already has an active run.
var ErrRunInProgress = errors.New("gateway: conversation already processing")

// finishedRetention bounds how long a finished run's transport stays
// attachable when no consumer shows up to drain it.
const finishedRetention = time.Minute

// StreamManager owns the runs: at most one live run per conversation, each
// with its transport and cancel handle. A finished run's transport stays
// registered so a consumer that attaches late still receives the buffered
// events; it is released once a consumer drains it or retention expires.
type StreamManager struct {
	loop   *agent.Loop
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*activeRun
}

type activeRun struct {
	transport *stream.Transport
	cancel    context.CancelFunc
	finished  bool
	retire    *time.Timer
}

// NewStreamManager creates a manager over the loop.
func NewStreamManager(loop *agent.Loop, logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		loop:   loop,
		logger: logger.With("component", "stream_manager"),
		runs:   make(map[string]*activeRun),
	}
}

// Start begins a run for the conversation and returns its transport. The run
// outlives the originating HTTP request; it is bound to its own context and
// stops on transport cancel or completion. A finished run awaiting drain does
// not block a new one.
func (m *StreamManager) Start(conversationID, userID, message string) (*stream.Transport, error) {
	m.mu.Lock()
	if prev, ok := m.runs[conversationID]; ok {
		if !prev.finished {
			m.mu.Unlock()
			return nil, ErrRunInProgress
		}
		if prev.retire != nil {
			prev.retire.Stop()
		}
		delete(m.runs, conversationID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	tr := stream.NewTransport()
	run := &activeRun{transport: tr, cancel: cancel}
	m.runs[conversationID] = run
	m.mu.Unlock()

	events, err := m.loop.Run(runCtx, conversationID, userID, message)
	if err != nil {
		m.removeRun(conversationID, run)
		cancel()
		return nil, err
	}

	// Propagate consumer-side cancel into the run context.
	go func() {
		select {
		case <-tr.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	go func() {
		defer cancel()
		for ev := range events {
			if !tr.Publish(ev) {
				m.logger.Debug("run canceled mid-stream", "conversation_id", conversationID)
				m.finishRun(conversationID, run)
				return
			}
		}
		tr.Close()
		m.finishRun(conversationID, run)
	}()

	return tr, nil
}

// Transport returns the transport for a conversation, live or finished.
func (m *StreamManager) Transport(conversationID string) (*stream.Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[conversationID]
	if !ok {
		return nil, false
	}
	return run.transport, true
}

// IsProcessing reports whether the conversation has a live run.
func (m *StreamManager) IsProcessing(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[conversationID]
	return ok && !run.finished
}

// Stop cancels the conversation's run. It is a no-op when nothing is running.
// Buffered events stay attachable until released or retention expires.
func (m *StreamManager) Stop(conversationID string) {
	m.mu.Lock()
	run, ok := m.runs[conversationID]
	m.mu.Unlock()
	if !ok {
		return
	}
	run.transport.Cancel()
	run.cancel()
}

// Release drops a finished run once a consumer has drained its stream. Live
// runs are untouched.
func (m *StreamManager) Release(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[conversationID]
	if !ok || !run.finished {
		return
	}
	if run.retire != nil {
		run.retire.Stop()
	}
	delete(m.runs, conversationID)
}

// Shutdown cancels every run.
func (m *StreamManager) Shutdown() {
	m.mu.Lock()
	runs := make([]*activeRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	for _, r := range runs {
		r.transport.Cancel()
		r.cancel()
		if r.retire != nil {
			r.retire.Stop()
		}
	}
}

// finishRun marks the run finished and schedules its removal in case no
// consumer ever attaches to drain the buffer.
func (m *StreamManager) finishRun(conversationID string, run *activeRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[conversationID] != run {
		return
	}
	run.finished = true
	run.retire = time.AfterFunc(finishedRetention, func() {
		m.removeRun(conversationID, run)
	})
}

// removeRun deletes the entry only if it still holds this run; a replacement
// started in the meantime is left alone.
func (m *StreamManager) removeRun(conversationID string, run *activeRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[conversationID] == run {
		delete(m.runs, conversationID)
	}
}
