package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vantagelabs/relay/pkg/models"
)

func publishN(t *Transport, n int) {
	for i := 0; i < n; i++ {
		t.Publish(models.StreamEvent{
			Type: models.EventMessageDelta,
			Seq:  uint64(i + 1),
			Message: &models.MessagePayload{
				Delta: fmt.Sprintf("chunk-%d", i+1),
			},
		})
	}
}

func receive(t *testing.T, ch <-chan models.StreamEvent, n int) []models.StreamEvent {
	t.Helper()
	out := make([]models.StreamEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d events, want %d", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestTransportDeliversInOrder(t *testing.T) {
	tr := NewTransport()
	publishN(tr, 5)
	tr.Close()

	ch := tr.Attach(context.Background())
	got := receive(t, ch, 5)
	for i, ev := range got {
		if ev.Seq != uint64(i+1) {
			t.Errorf("got[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after drain")
	}
}

func TestTransportResumeAfterDetach(t *testing.T) {
	tr := NewTransport()
	publishN(tr, 3)

	ctx, cancel := context.WithCancel(context.Background())
	ch := tr.Attach(ctx)
	first := receive(t, ch, 2)
	if first[1].Seq != 2 {
		t.Fatalf("first attachment got seq %d, want 2", first[1].Seq)
	}
	cancel()

	// Events published while detached must not be lost.
	tr.Publish(models.StreamEvent{Type: models.EventDone, Seq: 4})
	tr.Close()

	ch2 := tr.Attach(context.Background())
	rest := receive(t, ch2, 2)
	if rest[0].Seq != 3 {
		t.Errorf("resume started at seq %d, want 3", rest[0].Seq)
	}
	if rest[1].Type != models.EventDone {
		t.Errorf("final event = %q, want done", rest[1].Type)
	}
}

func TestTransportAttachSupersedes(t *testing.T) {
	tr := NewTransport()
	ch1 := tr.Attach(context.Background())
	ch2 := tr.Attach(context.Background())

	publishN(tr, 1)
	tr.Close()

	got := receive(t, ch2, 1)
	if got[0].Seq != 1 {
		t.Errorf("second attachment seq = %d, want 1", got[0].Seq)
	}

	select {
	case _, ok := <-ch1:
		if ok {
			t.Error("superseded attachment must not receive events")
		}
	case <-time.After(time.Second):
		t.Error("superseded attachment channel should close")
	}
}

func TestTransportCancelObservedByProducer(t *testing.T) {
	tr := NewTransport()
	if !tr.Publish(models.StreamEvent{Type: models.EventMessageDelta, Seq: 1}) {
		t.Fatal("publish before cancel should succeed")
	}

	tr.Cancel()
	select {
	case <-tr.Done():
	default:
		t.Fatal("Done should be closed after Cancel")
	}
	if tr.Publish(models.StreamEvent{Type: models.EventMessageDelta, Seq: 2}) {
		t.Error("publish after cancel should report false")
	}

	// Buffered events stay readable after cancel.
	ch := tr.Attach(context.Background())
	got := receive(t, ch, 1)
	if got[0].Seq != 1 {
		t.Errorf("seq = %d, want 1", got[0].Seq)
	}
}

func TestTransportBlocksUntilPublish(t *testing.T) {
	tr := NewTransport()
	ch := tr.Attach(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		publishN(tr, 1)
		tr.Close()
	}()

	got := receive(t, ch, 1)
	if got[0].Seq != 1 {
		t.Errorf("seq = %d, want 1", got[0].Seq)
	}
}
