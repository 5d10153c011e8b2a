package client

import (
	"sync"
)

// Registry maps conversation ids to their sessions. Sessions are created
// lazily on first reference and live for the registry's lifetime. Updates to
// the displayed conversation are additionally published to the display
// callback so the UI layer can repaint.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	displayed string
	publish   func(*Session)
	suppress  bool
}

// NewRegistry creates a registry. The publish callback may be nil.
func NewRegistry(publish func(*Session)) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		publish:  publish,
	}
}

// GetOrCreate returns the session for id, creating it on first reference.
// The same pointer is returned for the same id for the registry's lifetime.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(id)
}

func (r *Registry) getOrCreateLocked(id string) *Session {
	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id)
		r.sessions[id] = s
	}
	return s
}

// Update applies a mutation to the session for id. If id is the displayed
// conversation and display publishing is not suppressed, the change is
// published to the UI.
func (r *Registry) Update(id string, fn func(*Session)) {
	r.mu.Lock()
	s := r.getOrCreateLocked(id)
	fn(s)
	shouldPublish := r.publish != nil && r.displayed == id && !r.suppress
	publish := r.publish
	r.mu.Unlock()

	if shouldPublish {
		publish(s)
	}
}

// SetDisplayed marks id as the conversation currently shown to the user and
// publishes its current state. Switching the display never cancels any other
// session's transport.
func (r *Registry) SetDisplayed(id string) {
	r.mu.Lock()
	r.displayed = id
	s := r.getOrCreateLocked(id)
	publish := r.publish
	suppressed := r.suppress
	r.mu.Unlock()

	if publish != nil && !suppressed {
		publish(s)
	}
}

// Displayed returns the id of the displayed conversation.
func (r *Registry) Displayed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayed
}

// SetSuppressed stops or resumes display publishing. Used while the tab is
// hidden: sessions keep updating, only repaints are suppressed.
func (r *Registry) SetSuppressed(suppress bool) {
	r.mu.Lock()
	r.suppress = suppress
	s := r.sessions[r.displayed]
	publish := r.publish
	r.mu.Unlock()

	// Repaint once on resume so the UI catches up with background progress.
	if !suppress && publish != nil && s != nil {
		publish(s)
	}
}

// All returns a snapshot of the sessions, for shutdown and visibility sweeps.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Evict removes a session, closing its transport if still attached.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if s != nil && s.Transport != nil {
		s.Transport.Cancel()
	}
}
