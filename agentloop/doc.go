// Package agentloop runs an autonomous tool-calling loop against a model.
//
// A Session sends the conversation, a system prompt and the tool
// definitions to the model, dispatches the tool calls it gets back, and
// feeds the results in as a new turn. It stops when a tool returns a Stop
// result (task_complete), when the model fails or answers with nothing, or
// after a fixed number of model calls.
//
//   - ToolRegistry: immutable table of RegisteredTools. CoreTools returns the
//     built-in file, script and task_complete tools.
//   - Dispatcher: runs one llm.ToolCall inside a sandbox.Sandbox, always under
//     the workspace root it was built with, and wraps the outcome in an
//     Envelope.
//   - Session: the loop itself, with pacing, an event stream and repeated
//     call detection.
//
// Usage:
//
//	sb := sandbox.New(sandbox.Config{})
//	reg := agentloop.NewCoreRegistry(sb.Config())
//	d := agentloop.NewDispatcher(reg, sb, "/path/to/workspace", agentloop.WithOutput(os.Stdout))
//	s := agentloop.NewSession(agentloop.Profile{Provider: "openai", Model: "gpt-4o-mini"}, client, d, nil)
//	defer s.Close()
//
//	res, err := s.Run(ctx, "Fix the failing test in main.py")
package agentloop
