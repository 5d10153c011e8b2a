package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vantagelabs/relay/pkg/models"
)

type fakeTransport struct {
	mu       sync.Mutex
	events   []models.StreamEvent
	canceled bool
	closed   bool
	hold     bool // keep the attach channel open until ctx ends
}

func (t *fakeTransport) Attach(ctx context.Context) <-chan models.StreamEvent {
	ch := make(chan models.StreamEvent)
	go func() {
		defer close(ch)
		t.mu.Lock()
		events := append([]models.StreamEvent(nil), t.events...)
		hold := t.hold
		t.mu.Unlock()
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return ch
}

func (t *fakeTransport) setClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = true
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeProbe struct {
	mu         sync.Mutex
	processing int // number of calls that still report processing
	calls      int
}

func (p *fakeProbe) IsProcessing(context.Context, string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.processing > 0 {
		p.processing--
		return true, nil
	}
	return false, nil
}

type fakeProjections struct {
	mu        sync.Mutex
	resources []models.Resource
	files     []models.FileInfo
	loads     int
}

func (p *fakeProjections) Resources(context.Context, string) ([]models.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	return p.resources, nil
}

func (p *fakeProjections) Files(context.Context, string) ([]models.FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files, nil
}

func newTestManager(probe StatusProbe, projections ProjectionReader) (*VisibilityManager, *Registry) {
	registry := NewRegistry(nil)
	rec := NewReconciler(registry, nil)
	m := NewVisibilityManager(registry, rec, probe, projections, nil)
	m.PollInterval = 5 * time.Millisecond
	return m, registry
}

func eventually(t *testing.T, registry *Registry, id string, cond func(*Session) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		registry.Update(id, func(s *Session) { ok = cond(s) })
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWatchConsumesStreamToCompletion(t *testing.T) {
	tr := &fakeTransport{events: []models.StreamEvent{
		delta("Hello "),
		delta("world"),
		messageEnd("Hello world"),
		done(),
	}}
	m, registry := newTestManager(&fakeProbe{}, &fakeProjections{})

	m.Watch(context.Background(), "conv1", tr)

	eventually(t, registry, "conv1", func(s *Session) bool {
		return !s.Loading && len(s.Messages) == 1
	})
	s := registry.GetOrCreate("conv1")
	if s.Messages[0].Content != "Hello world" {
		t.Errorf("message = %+v", s.Messages[0])
	}
	if s.Transport != nil {
		t.Error("transport handle should clear after done")
	}
}

func TestShowAfterBackendFinishedWhileHidden(t *testing.T) {
	projections := &fakeProjections{
		resources: []models.Resource{{ID: "r1", Name: "chart.png"}},
		files:     []models.FileInfo{{Name: "report.md"}},
	}
	m, registry := newTestManager(&fakeProbe{}, projections)

	// Messages accumulated before the tab was hidden.
	rec := NewReconciler(registry, nil)
	rec.Apply("conv1", delta("answer"))
	rec.Apply("conv1", messageEnd("answer"))
	rec.Apply("conv1", done())

	tr := &fakeTransport{}
	registry.Update("conv1", func(s *Session) { s.Transport = tr })

	m.Hide()
	s := registry.GetOrCreate("conv1")
	if !s.WasStreamingWhenHidden {
		t.Fatal("hide should record the live stream")
	}

	// The backend finishes while the tab is hidden.
	tr.setClosed()

	m.Show(context.Background())

	eventually(t, registry, "conv1", func(s *Session) bool { return len(s.Resources) == 1 })
	s = registry.GetOrCreate("conv1")
	// In-memory messages stay authoritative; only projections refresh.
	if len(s.Messages) != 1 || s.Messages[0].Content != "answer" {
		t.Errorf("messages changed on show: %+v", s.Messages)
	}
	if len(s.Files) != 1 || s.Files[0].Name != "report.md" {
		t.Errorf("files = %+v", s.Files)
	}
}

func TestWatchSupersededConsumerKeepsReplacement(t *testing.T) {
	m, registry := newTestManager(&fakeProbe{}, &fakeProjections{})
	tr1 := &fakeTransport{hold: true}
	tr2 := &fakeTransport{events: []models.StreamEvent{
		delta("fresh"),
		messageEnd("fresh"),
		done(),
	}}

	m.Watch(context.Background(), "conv1", tr1)
	m.Watch(context.Background(), "conv1", tr2)

	// The first consumer's teardown must not cancel its replacement.
	eventually(t, registry, "conv1", func(s *Session) bool {
		return len(s.Messages) == 1 && s.Messages[0].Content == "fresh"
	})
}

func TestShowFallsBackToPollingWhenHandleLost(t *testing.T) {
	probe := &fakeProbe{processing: 3}
	projections := &fakeProjections{}
	m, registry := newTestManager(probe, projections)

	registry.Update("conv1", func(s *Session) {
		s.Loading = true
		s.Transport = nil
		s.WasStreamingWhenHidden = true
	})

	m.Show(context.Background())

	eventually(t, registry, "conv1", func(s *Session) bool { return !s.Loading })
	probe.mu.Lock()
	calls := probe.calls
	probe.mu.Unlock()
	if calls < 3 {
		t.Errorf("probe calls = %d, want repeated polling", calls)
	}
	projections.mu.Lock()
	defer projections.mu.Unlock()
	if projections.loads != 1 {
		t.Errorf("projection loads = %d, want 1 after polling settles", projections.loads)
	}
}

func TestShowReattachesLiveTransport(t *testing.T) {
	probe := &fakeProbe{processing: 100}
	m, registry := newTestManager(probe, &fakeProjections{})

	tr := &fakeTransport{}
	registry.Update("conv1", func(s *Session) {
		s.Transport = tr
		s.WasStreamingWhenHidden = true
		s.Loading = true
	})

	m.Show(context.Background())

	s := registry.GetOrCreate("conv1")
	if s.Transport != tr {
		t.Error("live transport handle must be kept")
	}
	if s.WasStreamingWhenHidden {
		t.Error("flag should reset on show")
	}
	if tr.canceled {
		t.Error("show must not cancel a live transport")
	}
}

func TestCloseAllCancelsTransports(t *testing.T) {
	m, registry := newTestManager(&fakeProbe{}, &fakeProjections{})
	tr1 := &fakeTransport{}
	tr2 := &fakeTransport{}
	registry.Update("conv1", func(s *Session) { s.Transport = tr1 })
	registry.Update("conv2", func(s *Session) { s.Transport = tr2 })

	m.CloseAll()

	if !tr1.canceled || !tr2.canceled {
		t.Error("close all should cancel every open transport")
	}
}
