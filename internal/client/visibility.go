package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vantagelabs/relay/pkg/models"
)

// StatusProbe reports whether the server is still processing a conversation.
type StatusProbe interface {
	IsProcessing(ctx context.Context, conversationID string) (bool, error)
}

// ProjectionReader loads the read-only projections a session caches. These
// refresh derived data only; the in-memory message list is never replaced.
type ProjectionReader interface {
	Resources(ctx context.Context, conversationID string) ([]models.Resource, error)
	Files(ctx context.Context, conversationID string) ([]models.FileInfo, error)
}

// VisibilityManager supervises sessions across tab hide/show. Hiding the tab
// suppresses repaints but leaves every stream running; showing it reattaches
// live streams, falls back to status polling when the handle was lost, and
// refreshes projections, always preferring in-memory state over any reload.
type VisibilityManager struct {
	registry    *Registry
	reconciler  *Reconciler
	probe       StatusProbe
	projections ProjectionReader
	logger      *slog.Logger

	// PollInterval spaces status checks while in the polling fallback.
	PollInterval time.Duration

	mu        sync.Mutex
	hidden    bool
	consumers map[string]*consumer
}

// consumer identifies one consume goroutine so a superseded goroutine's
// cleanup cannot cancel its replacement.
type consumer struct {
	cancel context.CancelFunc
}

// NewVisibilityManager creates a manager over the registry and reconciler.
func NewVisibilityManager(registry *Registry, reconciler *Reconciler, probe StatusProbe, projections ProjectionReader, logger *slog.Logger) *VisibilityManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisibilityManager{
		registry:     registry,
		reconciler:   reconciler,
		probe:        probe,
		projections:  projections,
		logger:       logger.With("component", "visibility"),
		PollInterval: 2 * time.Second,
		consumers:    make(map[string]*consumer),
	}
}

// Watch attaches a transport for a conversation and consumes its events into
// the session until the channel closes. It supersedes any previous consumer
// for the same conversation.
func (m *VisibilityManager) Watch(ctx context.Context, conversationID string, tr Transport) {
	ctx, cancel := context.WithCancel(ctx)
	c := &consumer{cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.consumers[conversationID]; ok {
		prev.cancel()
	}
	m.consumers[conversationID] = c
	m.mu.Unlock()

	m.registry.Update(conversationID, func(s *Session) {
		s.Transport = tr
		s.Loading = true
		s.Error = ""
	})

	go m.consume(ctx, conversationID, tr, c)
}

func (m *VisibilityManager) consume(ctx context.Context, conversationID string, tr Transport, c *consumer) {
	defer func() {
		// Only tear down our own registration; a superseding Watch may have
		// already installed a replacement consumer.
		m.mu.Lock()
		if m.consumers[conversationID] == c {
			delete(m.consumers, conversationID)
		}
		m.mu.Unlock()
		c.cancel()
	}()

	for ev := range tr.Attach(ctx) {
		m.reconciler.Apply(conversationID, ev)
		if ev.Type == models.EventDone || ev.Type == models.EventError {
			m.registry.Update(conversationID, func(s *Session) {
				if s.Transport == tr {
					s.Transport = nil
				}
			})
			m.refreshProjections(ctx, conversationID)
			return
		}
	}
}

// Hide records the tab going to background. Streams keep running and sessions
// keep reducing; only display publishing is suppressed.
func (m *VisibilityManager) Hide() {
	m.mu.Lock()
	m.hidden = true
	m.mu.Unlock()

	m.registry.SetSuppressed(true)
	for _, s := range m.registry.All() {
		active := s.Transport != nil && !s.Transport.Closed()
		id := s.ConversationID
		m.registry.Update(id, func(s *Session) {
			s.WasStreamingWhenHidden = active
		})
	}
}

// Show reacts to the tab returning to foreground. For each session that was
// streaming when hidden: if the server is still processing and the transport
// handle survived, reattach; if still processing but the handle was lost,
// poll status until it settles; otherwise just refresh projections. The
// message list is never re-fetched.
func (m *VisibilityManager) Show(ctx context.Context) {
	m.mu.Lock()
	m.hidden = false
	m.mu.Unlock()

	m.registry.SetSuppressed(false)

	for _, s := range m.registry.All() {
		if !s.WasStreamingWhenHidden {
			continue
		}
		id := s.ConversationID
		tr := s.Transport
		m.registry.Update(id, func(s *Session) {
			s.WasStreamingWhenHidden = false
		})

		processing, err := m.probe.IsProcessing(ctx, id)
		if err != nil {
			m.logger.Warn("status probe failed", "conversation_id", id, "error", err)
			continue
		}

		switch {
		case processing && tr != nil && !tr.Closed():
			// The consumer goroutine from Watch is still draining this
			// transport; events were buffered, not lost. Nothing to do but
			// let the repaint from SetSuppressed catch the UI up.
		case processing:
			go m.pollUntilIdle(ctx, id)
		default:
			m.refreshProjections(ctx, id)
		}
	}
}

// pollUntilIdle checks processing status at a fixed interval until the server
// reports the run finished, then refreshes projections.
func (m *VisibilityManager) pollUntilIdle(ctx context.Context, conversationID string) {
	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processing, err := m.probe.IsProcessing(ctx, conversationID)
			if err != nil {
				m.logger.Warn("status poll failed", "conversation_id", conversationID, "error", err)
				continue
			}
			if !processing {
				m.registry.Update(conversationID, func(s *Session) {
					s.Loading = false
				})
				m.refreshProjections(ctx, conversationID)
				return
			}
		}
	}
}

// refreshProjections reloads the derived read-only data for a conversation.
func (m *VisibilityManager) refreshProjections(ctx context.Context, conversationID string) {
	if m.projections == nil {
		return
	}
	resources, err := m.projections.Resources(ctx, conversationID)
	if err != nil {
		m.logger.Warn("resource refresh failed", "conversation_id", conversationID, "error", err)
	}
	files, err := m.projections.Files(ctx, conversationID)
	if err != nil {
		m.logger.Warn("file refresh failed", "conversation_id", conversationID, "error", err)
	}
	m.registry.Update(conversationID, func(s *Session) {
		if resources != nil {
			s.Resources = resources
		}
		if files != nil {
			s.Files = files
		}
	})
}

// CloseAll cancels every open transport and consumer. Called on page unload.
func (m *VisibilityManager) CloseAll() {
	m.mu.Lock()
	for id, c := range m.consumers {
		c.cancel()
		delete(m.consumers, id)
	}
	m.mu.Unlock()

	for _, s := range m.registry.All() {
		if s.Transport != nil {
			s.Transport.Cancel()
		}
	}
}
