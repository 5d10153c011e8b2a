package models

import (
	"encoding/json"
	"testing"
)

func TestStreamEventRoundTrip(t *testing.T) {
	ev := StreamEvent{
		Type: EventToolCallComplete,
		Seq:  7,
		Tool: &ToolPayload{
			ToolCallID:    "t1",
			ToolName:      "web_search",
			Status:        ToolStatusCompleted,
			ResultSummary: "3 results",
			SearchResults: []SearchResult{{Title: "a", URL: "https://a"}},
		},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded StreamEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != EventToolCallComplete {
		t.Errorf("type = %q, want %q", decoded.Type, EventToolCallComplete)
	}
	if decoded.Seq != 7 {
		t.Errorf("seq = %d, want 7", decoded.Seq)
	}
	if decoded.Tool == nil || decoded.Tool.ToolCallID != "t1" {
		t.Fatalf("tool payload not preserved: %+v", decoded.Tool)
	}
	if decoded.Message != nil || decoded.Output != nil || decoded.File != nil {
		t.Error("unrelated payloads should stay nil")
	}
	if len(decoded.Tool.SearchResults) != 1 {
		t.Errorf("search results = %d, want 1", len(decoded.Tool.SearchResults))
	}
}

func TestStreamEventDoneHasNoPayload(t *testing.T) {
	data, err := json.Marshal(StreamEvent{Type: EventDone})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"done"}`
	if string(data) != want {
		t.Errorf("done event = %s, want %s", data, want)
	}
}

func TestToolCallStatusMergePreservesOutput(t *testing.T) {
	s := &ToolCallStatus{
		ID:         "t1",
		ToolName:   "run_code",
		Status:     ToolStatusCalling,
		CodeOutput: "hello\n",
	}

	// A status-only update must not erase accumulated output.
	s.Merge(&ToolCallStatus{Status: ToolStatusCompleted})
	if s.CodeOutput != "hello\n" {
		t.Errorf("code output lost on status update: %q", s.CodeOutput)
	}
	if s.Status != ToolStatusCompleted {
		t.Errorf("status = %q, want completed", s.Status)
	}

	// Output fields append rather than replace.
	s.Merge(&ToolCallStatus{CodeOutput: "world\n"})
	if s.CodeOutput != "hello\nworld\n" {
		t.Errorf("code output = %q, want appended", s.CodeOutput)
	}
}

func TestToolCallStatusMergeFileDeltas(t *testing.T) {
	s := &ToolCallStatus{ID: "t2", ToolName: "write_file", Status: ToolStatusCalling}
	s.Merge(&ToolCallStatus{Filename: "report.md", FileContent: "# Rep"})
	s.Merge(&ToolCallStatus{FileContent: "ort\n", FileComplete: true})

	if s.Filename != "report.md" {
		t.Errorf("filename = %q", s.Filename)
	}
	if s.FileContent != "# Report\n" {
		t.Errorf("file content = %q, want full accumulation", s.FileContent)
	}
	if !s.FileComplete {
		t.Error("file should be marked complete")
	}
}
