// Package stream provides the ordered, reconnectable event channel between an
// agent run and its consumer.
package stream

import (
	"context"
	"sync"

	"github.com/vantagelabs/relay/internal/observability"
	"github.com/vantagelabs/relay/pkg/models"
)

// Transport buffers the events of one agent run and delivers them, in publish
// order, to at most one attached consumer at a time. A consumer that detaches
// (connection drop, tab hidden) can reattach later and resume from the first
// event it has not consumed; nothing published in between is lost.
//
// The producer side publishes until the run ends, then calls Close. The
// consumer side can Cancel the run; the producer observes that through Done.
type Transport struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []models.StreamEvent
	cursor   int
	closed   bool
	canceled bool
	attachID int

	done chan struct{}
}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	t := &Transport{done: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Publish appends an event for delivery. It reports false once the transport
// is closed or canceled, at which point the producer should stop.
func (t *Transport) Publish(ev models.StreamEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.canceled {
		return false
	}
	t.buf = append(t.buf, ev)
	t.cond.Broadcast()
	return true
}

// Close marks the producer side finished. Attached consumers receive all
// remaining buffered events and then see their channel closed.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
}

// Cancel stops the run from the consumer side. The producer observes it via
// Done. Events already buffered remain readable.
func (t *Transport) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return
	}
	t.canceled = true
	close(t.done)
	t.cond.Broadcast()
}

// Done is closed when the consumer cancels the run.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Closed reports whether the producer has finished publishing.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Attach subscribes a consumer, superseding any previous attachment. Delivery
// resumes from the first unconsumed event: an event counts as consumed only
// once the consumer has received it from the channel. The returned channel is
// closed when the buffer is drained after Close or Cancel, or when ctx ends.
func (t *Transport) Attach(ctx context.Context) <-chan models.StreamEvent {
	t.mu.Lock()
	t.attachID++
	id := t.attachID
	t.cond.Broadcast()
	t.mu.Unlock()

	// Unbuffered on purpose: an event counts as consumed only when the
	// consumer has actually received it, so detach never strands events in a
	// channel buffer.
	ch := make(chan models.StreamEvent)
	observability.StreamsActive.Inc()
	go t.pump(ctx, id, ch)
	return ch
}

func (t *Transport) pump(ctx context.Context, id int, ch chan<- models.StreamEvent) {
	defer observability.StreamsActive.Dec()

	// Wake the wait loop when the consumer context ends.
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	for {
		t.mu.Lock()
		for t.attachID == id && t.cursor >= len(t.buf) && !t.closed && !t.canceled && ctx.Err() == nil {
			t.cond.Wait()
		}
		if t.attachID != id || ctx.Err() != nil {
			t.mu.Unlock()
			close(ch)
			return
		}
		if t.cursor >= len(t.buf) {
			// Closed or canceled with nothing left to drain.
			t.mu.Unlock()
			close(ch)
			return
		}
		idx := t.cursor
		ev := t.buf[idx]
		t.mu.Unlock()

		select {
		case ch <- ev:
			// A successful send on the unbuffered channel means the consumer
			// received the event, so it is consumed even if a newer attachment
			// superseded this one mid-send. Committing by index keeps a racing
			// double-delivery from skipping the next event.
			t.mu.Lock()
			if t.cursor == idx {
				t.cursor = idx + 1
			}
			t.mu.Unlock()
		case <-ctx.Done():
			close(ch)
			return
		}
	}
}
