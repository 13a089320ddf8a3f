package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// gollm returns plain text, so the adapter renders the conversation into a
// single prompt and recovers tool calls from the reply.
type GollmAdapter struct {
	provider string
	model    string
	llm      gollm.LLM
	count    TokenCounter

	// gollm options are set on the shared instance before each call.
	mu sync.Mutex
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	model       string
	maxTokens   int
	temperature float64
	counter     TokenCounter
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithTokenCounter replaces the tokenizer used for usage accounting.
func WithTokenCounter(fn TokenCounter) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.counter = fn
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-sonnet-latest",
	"groq":      "llama-3.1-70b-versatile",
	"mistral":   "mistral-large-latest",
	"ollama":    "llama3.1",
}

// NewGollmAdapter creates a GollmAdapter for the given provider. If apiKey
// is empty, gollm reads the provider's usual environment variable.
func NewGollmAdapter(provider, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		model = defaultModels[provider]
	}
	if model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("no model given and no default model for provider %q", provider),
		}}
	}
	counter := cfg.counter
	if counter == nil {
		counter = TiktokenCounter(DefaultEncoding)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	l, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		model:    model,
		llm:      l,
		count:    counter,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete renders the request, generates once, and returns a response with
// a single candidate.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.mu.Lock()
	a.applyRequestOptions(req)
	text, err := a.llm.Generate(ctx, prompt)
	a.mu.Unlock()

	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// translateRequest converts a Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var opts []gollm.PromptOption

	if system := strings.TrimSpace(req.System); system != "" {
		opts = append(opts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}

	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(tools))

		mode := "auto"
		if req.ToolChoice != nil && req.ToolChoice.Mode != "" {
			mode = req.ToolChoice.Mode
		}
		opts = append(opts, gollm.WithToolChoice(mode))
	}

	return gollm.NewPrompt(renderTranscript(req.Messages), opts...)
}

// renderTranscript flattens the conversation into prompt text.
func renderTranscript(messages []Message) string {
	var parts []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// System text travels separately via Request.System.
		case RoleUser:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, text)
			}
		case RoleAssistant:
			if text := strings.TrimSpace(msg.TextContent()); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				parts = append(parts, fmt.Sprintf("[Assistant called %s]: %s", tc.Name, args))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result"
				if part.ToolResult.IsError {
					prefix = "[Tool Error"
				}
				if part.ToolResult.Name != "" {
					prefix += " " + part.ToolResult.Name
				}
				parts = append(parts, prefix+"]: "+string(part.ToolResult.Content))
			}
		}
	}

	if len(parts) == 0 {
		return "Hello"
	}
	return strings.Join(parts, "\n")
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse turns generated text into a one-candidate Response.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, remaining := parseToolCalls(text)

	var content []ContentPart
	if remaining = strings.TrimSpace(remaining); remaining != "" {
		content = append(content, TextPart(remaining))
	}
	for i := range calls {
		content = append(content, ContentPart{Kind: ContentToolCall, ToolCall: &calls[i]})
	}

	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
	}

	count := a.count
	if count == nil {
		count = ApproxTokens
	}
	input := count(req.System) + count(renderTranscript(req.Messages))
	output := count(text)

	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.provider,
		Candidates: []Candidate{{
			Message:      Message{Role: RoleAssistant, Content: content},
			FinishReason: finish,
		}},
		Usage: Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
	}
}

var functionCallTag = regexp.MustCompile(`(?s)<function_call>\s*(.*?)\s*</function_call>`)

type rawToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function,omitempty"`
}

func (r rawToolCall) toData() (ToolCallData, bool) {
	name, args := r.Name, r.Arguments
	if r.Function != nil {
		name, args = r.Function.Name, r.Function.Arguments
	}
	if name == "" {
		return ToolCallData{}, false
	}
	return ToolCallData{
		ID:        "call_" + uuid.New().String()[:8],
		Name:      name,
		Arguments: normalizeArguments(args),
	}, true
}

// normalizeArguments turns missing arguments into {} and unwraps arguments
// that were sent as a JSON-encoded string.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	return json.RawMessage(trimmed)
}

// parseToolCalls extracts tool calls from generated text and returns the
// text with the recognized call markup removed. Three shapes are accepted:
// <function_call>{...}</function_call> tags, a {"tool_calls": [...]} object
// and a bare [{"name": ...}] array.
func parseToolCalls(text string) ([]ToolCallData, string) {
	if matches := functionCallTag.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		var calls []ToolCallData
		for _, m := range matches {
			var rc rawToolCall
			if err := json.Unmarshal([]byte(m[1]), &rc); err != nil {
				continue
			}
			if call, ok := rc.toData(); ok {
				calls = append(calls, call)
			}
		}
		if len(calls) > 0 {
			return calls, functionCallTag.ReplaceAllString(text, "")
		}
	}

	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		var wrapper struct {
			ToolCalls []rawToolCall `json:"tool_calls"`
		}
		if end, ok := decodeAt(text, start, &wrapper); ok {
			if calls := collect(wrapper.ToolCalls); len(calls) > 0 {
				return calls, text[:start] + text[end:]
			}
		}
	}

	if start := strings.Index(text, `[{"name"`); start != -1 {
		var raw []rawToolCall
		if end, ok := decodeAt(text, start, &raw); ok {
			if calls := collect(raw); len(calls) > 0 {
				return calls, text[:start] + text[end:]
			}
		}
	}

	return nil, text
}

// decodeAt decodes one JSON value starting at offset start and reports the
// offset just past it.
func decodeAt(text string, start int, v interface{}) (int, bool) {
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(v); err != nil {
		return 0, false
	}
	return start + int(dec.InputOffset()), true
}

func collect(raw []rawToolCall) []ToolCallData {
	var calls []ToolCallData
	for _, rc := range raw {
		if call, ok := rc.toData(); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

var statusCodePattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// translateError classifies a gollm error into the package's error types.
// Context errors are returned unchanged.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return ErrorFromStatusCode(code, msg, a.provider, err)
	}

	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid key"):
		return ErrorFromStatusCode(401, msg, a.provider, err)
	case strings.Contains(lower, "forbidden"):
		return ErrorFromStatusCode(403, msg, a.provider, err)
	case strings.Contains(lower, "rate limit"):
		return ErrorFromStatusCode(429, msg, a.provider, err)
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return ErrorFromStatusCode(413, msg, a.provider, err)
	case strings.Contains(lower, "internal server"):
		return ErrorFromStatusCode(500, msg, a.provider, err)
	case strings.Contains(lower, "not found"):
		return ErrorFromStatusCode(404, msg, a.provider, err)
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider,
		}}
	default:
		return &ProviderError{
			SDKError: SDKError{Message: msg, Cause: err},
			Provider: a.provider,
		}
	}
}
