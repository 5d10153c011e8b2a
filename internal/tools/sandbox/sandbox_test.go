package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

type scriptedRunner struct {
	stdout string
	stderr string
	err    error
}

func (r *scriptedRunner) Run(_ context.Context, _ string, stdout, stderr io.Writer) error {
	if r.stdout != "" {
		io.WriteString(stdout, r.stdout)
	}
	if r.stderr != "" {
		io.WriteString(stderr, r.stderr)
	}
	return r.err
}

func collectEvents(ctx context.Context) (context.Context, *[]models.StreamEvent) {
	var mu sync.Mutex
	events := &[]models.StreamEvent{}
	ctx = tools.WithEmitter(ctx, func(ev models.StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, ev)
	})
	return ctx, events
}

func TestExecuteStreamsOutput(t *testing.T) {
	tool := New(&scriptedRunner{stdout: "hello\n", stderr: "warn\n"})
	ctx, events := collectEvents(context.Background())

	result, err := tool.Execute(ctx, json.RawMessage(`{"code":"print('hello')"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", result.Status, result.Message)
	}
	data := result.Data.(*tools.CodeData)
	if data.Output != "hello\nwarn\n" {
		t.Errorf("output = %q", data.Output)
	}

	if len(*events) != 2 {
		t.Fatalf("events = %d, want 2", len(*events))
	}
	if (*events)[0].Output.Stream != models.OutputStdout {
		t.Errorf("first event stream = %q", (*events)[0].Output.Stream)
	}
	if (*events)[1].Output.Stream != models.OutputStderr {
		t.Errorf("second event stream = %q", (*events)[1].Output.Stream)
	}
}

func TestExecuteFailureKeepsPartialOutput(t *testing.T) {
	tool := New(&scriptedRunner{stdout: "step 1 done\n", err: errors.New("exit status 1")})
	ctx, _ := collectEvents(context.Background())

	result, err := tool.Execute(ctx, json.RawMessage(`{"code":"boom"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusError {
		t.Fatalf("status = %q, want error", result.Status)
	}
	if !strings.Contains(result.Message, "step 1 done") {
		t.Errorf("partial output missing from error: %q", result.Message)
	}
}

func TestExecuteRejectsEmptyCode(t *testing.T) {
	tool := New(&scriptedRunner{})
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"code":""}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != tools.StatusError {
		t.Errorf("status = %q, want error", result.Status)
	}
}
