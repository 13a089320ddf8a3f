package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/martinemde/ssnake/llm"
	"github.com/martinemde/ssnake/sandbox"
)

// workingDirectoryArg is stripped from model-supplied arguments.
const workingDirectoryArg = "working_directory"

// verbosePreviewLen bounds the result preview printed in verbose mode.
const verbosePreviewLen = 200

// Envelope is the uniform wrapper around one tool call's outcome.
type Envelope struct {
	CallID string
	Name   string
	Result Result
	Err    error
}

// IsStop reports whether the tool asked the loop to terminate.
func (e Envelope) IsStop() bool {
	_, ok := e.Result.(Stop)
	return ok && e.Err == nil
}

// IsError reports whether the call failed.
func (e Envelope) IsError() bool {
	return e.Err != nil
}

// Payload returns the map fed back to the model:
//
//	{"result": "<text>"}
//	{"result": {"content": "<text>", "control_signal": "STOP"}}
//	{"result": "Error: <message>"}
//	{"error": "Unknown function: <name>"}
func (e Envelope) Payload() map[string]interface{} {
	if e.Err != nil {
		if errors.Is(e.Err, ErrUnknownTool) {
			return map[string]interface{}{"error": e.Err.Error()}
		}
		return map[string]interface{}{"result": "Error: " + e.Err.Error()}
	}
	switch r := e.Result.(type) {
	case Stop:
		return map[string]interface{}{
			"result": map[string]interface{}{
				"content":        r.Content,
				"control_signal": ControlSignalStop,
			},
		}
	case Value:
		return map[string]interface{}{"result": r.Content}
	default:
		return map[string]interface{}{"result": ""}
	}
}

// JSON returns Payload encoded as JSON.
func (e Envelope) JSON() json.RawMessage {
	raw, err := json.Marshal(e.Payload())
	if err != nil {
		raw, _ = json.Marshal(map[string]interface{}{"error": err.Error()})
	}
	return raw
}

// Text returns the human-readable body of the envelope.
func (e Envelope) Text() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Result == nil {
		return ""
	}
	return e.Result.Text()
}

// Dispatcher routes tool calls to registered handlers, always under the
// workspace root it was created with.
type Dispatcher struct {
	registry *ToolRegistry
	sandbox  *sandbox.Sandbox
	root     string
	verbose  bool
	out      io.Writer
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithVerbose prints call arguments and result previews.
func WithVerbose(v bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.verbose = v
	}
}

// WithOutput sets where call lines are printed. Defaults to io.Discard.
func WithOutput(w io.Writer) DispatcherOption {
	return func(d *Dispatcher) {
		d.out = w
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher that runs tools from registry inside sb
// with root as the working directory.
func NewDispatcher(registry *ToolRegistry, sb *sandbox.Sandbox, root string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		sandbox:  sb,
		root:     root,
		out:      io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the workspace root injected into every call.
func (d *Dispatcher) Root() string { return d.root }

// Registry returns the tool registry.
func (d *Dispatcher) Registry() *ToolRegistry { return d.registry }

// Dispatch runs one tool call. Failures are returned inside the envelope;
// a Stop result is returned as-is for the caller to act on.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) Envelope {
	if d.verbose {
		args := string(call.Arguments)
		if args == "" {
			args = "{}"
		}
		fmt.Fprintf(d.out, "Calling function: %s(%s)\n", call.Name, args)
	} else {
		fmt.Fprintf(d.out, " - Calling function: %s\n", call.Name)
	}

	start := time.Now()
	env := d.dispatch(ctx, call)

	d.logger.Debug("tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"is_error", env.IsError(),
		"stop", env.IsStop(),
	)

	if d.verbose {
		preview := env.Text()
		if r := []rune(preview); len(r) > verbosePreviewLen {
			preview = string(r[:verbosePreviewLen])
		}
		fmt.Fprintf(d.out, "-> Function %s result: %s...\n", call.Name, preview)
	}
	return env
}

func (d *Dispatcher) dispatch(ctx context.Context, call llm.ToolCall) Envelope {
	env := Envelope{CallID: call.ID, Name: call.Name}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		env.Err = &UnknownToolError{Name: call.Name}
		return env
	}

	args, err := ParseToolArguments(call.Arguments)
	if err != nil {
		env.Err = err
		return env
	}
	delete(args, workingDirectoryArg)

	result, err := tool.Handler(ctx, d.sandbox, ToolInput{
		WorkingDirectory: d.root,
		Args:             args,
	})
	if err != nil {
		env.Err = err
		return env
	}
	if result == nil {
		result = Value{}
	}
	env.Result = result
	return env
}
