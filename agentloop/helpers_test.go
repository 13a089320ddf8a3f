package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/martinemde/ssnake/llm"
	"github.com/martinemde/ssnake/sandbox"
)

type step struct {
	resp *llm.Response
	err  error
}

// scriptedModel replays a fixed sequence of responses, then repeats the
// last fallback response if one is set.
type scriptedModel struct {
	mu       sync.Mutex
	steps    []step
	fallback *llm.Response
	requests []llm.Request
}

func (m *scriptedModel) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := len(m.requests) - 1
	if i < len(m.steps) {
		return m.steps[i].resp, m.steps[i].err
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return nil, errors.New("script exhausted")
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func toolCallResponse(calls ...llm.ToolCall) *llm.Response {
	parts := make([]llm.ContentPart, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, llm.ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return &llm.Response{
		ID: "resp",
		Candidates: []llm.Candidate{{
			Message:      llm.Message{Role: llm.RoleAssistant, Content: parts},
			FinishReason: llm.FinishToolCalls,
		}},
		Usage: llm.Usage{InputTokens: 7, OutputTokens: 3, TotalTokens: 10},
	}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		ID: "resp",
		Candidates: []llm.Candidate{{
			Message:      llm.AssistantMessage(text),
			FinishReason: llm.FinishStop,
		}},
		Usage: llm.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	root       string
	out        *bytes.Buffer
	dispatcher *Dispatcher
	session    *Session
}

func newHarness(t *testing.T, model Completer, cfg SessionConfig) *harness {
	t.Helper()
	root := t.TempDir()
	sb := sandbox.New(sandbox.Config{Interpreter: "sh", ScriptExtension: ".sh"})
	out := &bytes.Buffer{}
	d := NewDispatcher(NewCoreRegistry(sb.Config()), sb, root,
		WithOutput(out),
		WithVerbose(cfg.Verbose),
		WithLogger(quietLogger()))

	cfg.Output = out
	cfg.Logger = quietLogger()
	s := NewSession(Profile{Provider: "test", Model: "test-model"}, model, d, &cfg)
	t.Cleanup(s.Close)

	return &harness{root: root, out: out, dispatcher: d, session: s}
}
