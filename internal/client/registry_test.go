package client

import (
	"testing"
)

func TestGetOrCreateIsStable(t *testing.T) {
	r := NewRegistry(nil)
	a := r.GetOrCreate("conv1")
	b := r.GetOrCreate("conv1")
	if a != b {
		t.Error("same id must return the same session pointer")
	}
	if a == r.GetOrCreate("conv2") {
		t.Error("different ids must not share a session")
	}
}

func TestUpdatePublishesOnlyDisplayed(t *testing.T) {
	var published []string
	r := NewRegistry(func(s *Session) {
		published = append(published, s.ConversationID)
	})
	r.SetDisplayed("conv1")
	published = nil

	r.Update("conv1", func(s *Session) { s.StreamingText = "a" })
	r.Update("conv2", func(s *Session) { s.StreamingText = "b" })

	if len(published) != 1 || published[0] != "conv1" {
		t.Errorf("published = %v, want [conv1]", published)
	}
	// The background session still received the update.
	if r.GetOrCreate("conv2").StreamingText != "b" {
		t.Error("background session update lost")
	}
}

func TestSuppressionHoldsRepaints(t *testing.T) {
	count := 0
	r := NewRegistry(func(*Session) { count++ })
	r.SetDisplayed("conv1")
	base := count

	r.SetSuppressed(true)
	r.Update("conv1", func(s *Session) { s.StreamingText = "hidden progress" })
	if count != base {
		t.Error("suppressed update must not repaint")
	}

	r.SetSuppressed(false)
	if count != base+1 {
		t.Errorf("resume should repaint once, got %d extra", count-base)
	}
	if r.GetOrCreate("conv1").StreamingText != "hidden progress" {
		t.Error("state update lost while suppressed")
	}
}

func TestSwitchingDisplayKeepsOtherSessions(t *testing.T) {
	r := NewRegistry(nil)
	s1 := r.GetOrCreate("conv1")
	tr := &fakeTransport{}
	s1.Transport = tr

	r.SetDisplayed("conv2")

	if tr.canceled {
		t.Error("switching the displayed conversation must not cancel another transport")
	}
	if r.Displayed() != "conv2" {
		t.Errorf("displayed = %q", r.Displayed())
	}
}

func TestEvictCancelsTransport(t *testing.T) {
	r := NewRegistry(nil)
	tr := &fakeTransport{}
	r.GetOrCreate("conv1").Transport = tr

	r.Evict("conv1")
	if !tr.canceled {
		t.Error("evict should cancel the session transport")
	}
	if r.GetOrCreate("conv1").Transport != nil {
		t.Error("evicted session should be recreated fresh")
	}
}
