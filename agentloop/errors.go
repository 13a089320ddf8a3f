package agentloop

import "errors"

var (
	// ErrUnknownTool matches an UnknownToolError.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrModelUnavailable means the provider failed or returned no candidate.
	ErrModelUnavailable = errors.New("model returned no response")

	// ErrEmptyTerminalResponse means the candidate had no content and did
	// not ask for a tool call.
	ErrEmptyTerminalResponse = errors.New("model returned empty content")

	// ErrSessionBusy is returned by Run while another Run is in progress.
	ErrSessionBusy = errors.New("session is already running")
)

// UnknownToolError reports a call to a tool name that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "Unknown function: " + e.Name
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}
