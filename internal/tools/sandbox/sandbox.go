// Package sandbox exposes code execution as a tool. The actual interpreter is
// behind the Runner interface; output is streamed to the client as it is
// produced and accumulated for the model.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

// Runner executes a code snippet, writing process output to stdout and stderr
// as it happens.
type Runner interface {
	Run(ctx context.Context, code string, stdout, stderr io.Writer) error
}

// Tool runs code through a Runner.
type Tool struct {
	runner Runner
}

// New creates the code execution tool.
func New(runner Runner) *Tool {
	return &Tool{runner: runner}
}

func (t *Tool) Name() string { return "run_code" }

func (t *Tool) Description() string {
	return "Execute a Python code snippet in an isolated sandbox and return its output. " +
		"Use this for calculations, data analysis, and generating charts."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "Python source to execute"}
		},
		"required": ["code"],
		"additionalProperties": false
	}`)
}

func (t *Tool) Describe(args json.RawMessage) string {
	return "Running code"
}

type runArgs struct {
	Code string `json:"code"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var in runArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Errorf(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.Code == "" {
		return tools.Errorf("code must not be empty"), nil
	}

	var buf outputBuffer
	stdout := &emitWriter{ctx: ctx, stream: models.OutputStdout, buf: &buf}
	stderr := &emitWriter{ctx: ctx, stream: models.OutputStderr, buf: &buf}

	if err := t.runner.Run(ctx, in.Code, stdout, stderr); err != nil {
		// Output produced before the failure still reaches the model.
		msg := fmt.Sprintf("execution failed: %v", err)
		if out := buf.String(); out != "" {
			msg += "\n" + out
		}
		return tools.Errorf(msg), nil
	}
	return tools.Success("code executed", &tools.CodeData{Output: buf.String()}), nil
}

// outputBuffer accumulates stdout and stderr interleaved in arrival order.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// emitWriter forwards each write as a code_output event and records it.
type emitWriter struct {
	ctx    context.Context
	stream models.OutputStream
	buf    *outputBuffer
}

func (w *emitWriter) Write(p []byte) (int, error) {
	w.buf.append(p)
	tools.Emit(w.ctx, models.StreamEvent{
		Type: models.EventCodeOutput,
		Output: &models.OutputPayload{
			Stream:  w.stream,
			Content: string(p),
		},
	})
	return len(p), nil
}
