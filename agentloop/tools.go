package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/martinemde/ssnake/llm"
	"github.com/martinemde/ssnake/sandbox"
)

// ControlSignalStop is the control_signal value carried by a Stop result.
const ControlSignalStop = "STOP"

// Result is what a tool handler produces: either a Value, which is fed back
// to the model, or a Stop, which ends the run.
type Result interface {
	Text() string
	isResult()
}

// Value is an ordinary tool result.
type Value struct {
	Content string
}

func (v Value) Text() string { return v.Content }
func (Value) isResult()      {}

// Stop asks the agent loop to terminate after this call.
type Stop struct {
	Content string
}

func (s Stop) Text() string { return s.Content }
func (Stop) isResult()      {}

// ToolInput is what a handler receives. WorkingDirectory is always the
// workspace root chosen by the dispatcher, never a model-supplied value.
type ToolInput struct {
	WorkingDirectory string
	Args             map[string]interface{}
}

// ToolHandler executes one tool call against the sandbox.
type ToolHandler func(ctx context.Context, sb *sandbox.Sandbox, in ToolInput) (Result, error)

// ToolDefinition describes a tool for the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its handler.
type RegisteredTool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// ToolRegistry is an immutable name to tool table.
type ToolRegistry struct {
	tools map[string]RegisteredTool
	order []string
}

// NewToolRegistry builds a registry from tools, keeping their order for
// Definitions. Names must be unique and non-empty.
func NewToolRegistry(tools ...RegisteredTool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools: make(map[string]RegisteredTool, len(tools)),
		order: make([]string, 0, len(tools)),
	}
	for _, tool := range tools {
		name := tool.Definition.Name
		if name == "" {
			return nil, errors.New("tool registered without a name")
		}
		if tool.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", name)
		}
		r.tools[name] = tool
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name string) (RegisteredTool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns all tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// LLMDefinitions returns the definitions in the form sent to the provider.
func (r *ToolRegistry) LLMDefinitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, d := range r.Definitions() {
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	return len(r.order)
}

// ParseToolArguments unmarshals raw tool call arguments into a map. Empty
// input yields an empty map.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeArgs converts the argument map into T and validates it.
func decodeArgs[T any](args map[string]interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Field())
			}
			return out, fmt.Errorf("missing required argument: %s", strings.Join(missing, ", "))
		}
		return out, err
	}
	return out, nil
}

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// schemaFor reflects the JSON Schema of T's fields. Fields without
// omitempty are required.
func schemaFor[T any]() map[string]interface{} {
	var zero T
	schema := reflector.Reflect(&zero)

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tool schema for %T: %v", zero, err))
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		panic(fmt.Sprintf("tool schema for %T: %v", zero, err))
	}
	delete(params, "$schema")
	delete(params, "$id")
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]interface{}{}
	}
	return params
}

// newTool builds a RegisteredTool whose arguments are decoded into T.
func newTool[T any](name, description string, run func(ctx context.Context, sb *sandbox.Sandbox, root string, args T) (Result, error)) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  schemaFor[T](),
		},
		Handler: func(ctx context.Context, sb *sandbox.Sandbox, in ToolInput) (Result, error) {
			args, err := decodeArgs[T](in.Args)
			if err != nil {
				return nil, err
			}
			return run(ctx, sb, in.WorkingDirectory, args)
		},
	}
}
