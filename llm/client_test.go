package llm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	requests []Request
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Candidates: []Candidate{{
				Message:      AssistantMessage(text),
				FinishReason: FinishStop,
			}},
			Usage: Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(WithProvider("test-provider", mock))

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if len(mock.requests) != 1 || mock.requests[0].Provider != "test-provider" {
		t.Errorf("expected provider to be filled in on the request, got %+v", mock.requests)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")

	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{UserMessage("Hi")},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Anthropic response" {
		t.Errorf("expected Anthropic response, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("expected OpenAI response, got %q", resp.Text())
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T (%v)", err, err)
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	_, err := client.Complete(context.Background(), Request{Provider: "gemini"})
	if err == nil || !strings.Contains(err.Error(), `"gemini" is not registered`) {
		t.Fatalf("expected unregistered provider error, got %v", err)
	}
}

func TestClientRegisterProviderSetsDefault(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("first", newMockAdapter("first", "one"))
	client.RegisterProvider("second", newMockAdapter("second", "two"))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "one" {
		t.Errorf("expected first registered provider to be the default, got %q", resp.Text())
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next CompleteFunc) CompleteFunc {
			return func(ctx context.Context, req Request) (*Response, error) {
				order = append(order, name+":before")
				resp, err := next(ctx, req)
				order = append(order, name+":after")
				return resp, err
			}
		}
	}

	client := NewClient(
		WithProvider("p", newMockAdapter("p", "ok")),
		WithMiddleware(mw("outer"), mw("inner")),
	)
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestClientPropagatesAdapterError(t *testing.T) {
	mock := &mockAdapter{name: "p", err: &RateLimitError{}}
	client := NewClient(WithProvider("p", mock))

	_, err := client.Complete(context.Background(), Request{})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Errorf("expected RateLimitError, got %T", err)
	}
	if len(mock.requests) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(mock.requests))
	}
}

func TestClientClose(t *testing.T) {
	mock := newMockAdapter("p", "ok")
	client := NewClient(WithProvider("p", mock))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mock.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := NewClient(
		WithProvider("p", newMockAdapter("p", "ok")),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	if _, err := client.Complete(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"llm request", "llm response", "candidates=1", "input_tokens=10"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLoggingMiddlewareError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	client := NewClient(
		WithProvider("p", &mockAdapter{name: "p", err: errors.New("boom")}),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(buf.String(), "llm request failed") {
		t.Errorf("expected failure to be logged, got:\n%s", buf.String())
	}
}

func TestLoggingMiddlewareNilResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	client := NewClient(
		WithProvider("p", &mockAdapter{name: "p"}),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
	if !strings.Contains(buf.String(), "llm request returned no response") {
		t.Errorf("expected missing response to be logged, got:\n%s", buf.String())
	}
}
