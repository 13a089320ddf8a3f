package agentloop

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/martinemde/ssnake/llm"
)

// TurnRole identifies who produced a turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
)

// SegmentKind discriminates the parts of a turn.
type SegmentKind string

const (
	SegmentText       SegmentKind = "text"
	SegmentToolCall   SegmentKind = "tool_call"
	SegmentToolResult SegmentKind = "tool_result"
)

// ToolResultSegment is the recorded outcome of one tool call.
type ToolResultSegment struct {
	CallID  string          `json:"call_id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	IsError bool            `json:"is_error"`
}

// Segment is one part of a turn.
type Segment struct {
	Kind       SegmentKind        `json:"kind"`
	Text       string             `json:"text,omitempty"`
	ToolCall   *llm.ToolCall      `json:"tool_call,omitempty"`
	ToolResult *ToolResultSegment `json:"tool_result,omitempty"`
}

// Turn is a single entry in the conversation history. Turns are never
// modified once appended.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Segments  []Segment `json:"segments"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(content string) Turn {
	return Turn{
		Role:      RoleUser,
		Segments:  []Segment{{Kind: SegmentText, Text: content}},
		Timestamp: time.Now(),
	}
}

// NewAssistantTurn records a model message, keeping empty text segments.
func NewAssistantTurn(msg llm.Message) Turn {
	segments := make([]Segment, 0, len(msg.Content))
	for _, part := range msg.Content {
		switch part.Kind {
		case llm.ContentText:
			segments = append(segments, Segment{Kind: SegmentText, Text: part.Text})
		case llm.ContentToolCall:
			if part.ToolCall == nil {
				continue
			}
			segments = append(segments, Segment{
				Kind: SegmentToolCall,
				ToolCall: &llm.ToolCall{
					ID:        part.ToolCall.ID,
					Name:      part.ToolCall.Name,
					Arguments: part.ToolCall.Arguments,
				},
			})
		}
	}
	return Turn{
		Role:      RoleAssistant,
		Segments:  segments,
		Timestamp: time.Now(),
	}
}

// NewToolTurn collects the envelopes of one response into a tool turn.
func NewToolTurn(envelopes []Envelope) Turn {
	segments := make([]Segment, 0, len(envelopes))
	for _, env := range envelopes {
		segments = append(segments, Segment{
			Kind: SegmentToolResult,
			ToolResult: &ToolResultSegment{
				CallID:  env.CallID,
				Name:    env.Name,
				Payload: env.JSON(),
				IsError: env.IsError(),
			},
		})
	}
	return Turn{
		Role:      RoleTool,
		Segments:  segments,
		Timestamp: time.Now(),
	}
}

// TextContent returns the concatenated text segments.
func (t Turn) TextContent() string {
	var sb strings.Builder
	for _, seg := range t.Segments {
		if seg.Kind == SegmentText {
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool call segments in order.
func (t Turn) ToolCalls() []llm.ToolCall {
	var calls []llm.ToolCall
	for _, seg := range t.Segments {
		if seg.Kind == SegmentToolCall && seg.ToolCall != nil {
			calls = append(calls, *seg.ToolCall)
		}
	}
	return calls
}

// ConvertHistoryToMessages converts the history into provider messages.
// Turns without segments are skipped.
func ConvertHistoryToMessages(history []Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		if len(turn.Segments) == 0 {
			continue
		}
		msg := llm.Message{Content: make([]llm.ContentPart, 0, len(turn.Segments))}
		switch turn.Role {
		case RoleUser:
			msg.Role = llm.RoleUser
		case RoleAssistant:
			msg.Role = llm.RoleAssistant
		case RoleTool:
			msg.Role = llm.RoleTool
		default:
			continue
		}
		for _, seg := range turn.Segments {
			switch seg.Kind {
			case SegmentText:
				msg.Content = append(msg.Content, llm.TextPart(seg.Text))
			case SegmentToolCall:
				if seg.ToolCall != nil {
					msg.Content = append(msg.Content,
						llm.ToolCallPart(seg.ToolCall.ID, seg.ToolCall.Name, seg.ToolCall.Arguments))
				}
			case SegmentToolResult:
				if r := seg.ToolResult; r != nil {
					msg.Content = append(msg.Content,
						llm.ToolResultPart(r.CallID, r.Name, r.Payload, r.IsError))
				}
			}
		}
		messages = append(messages, msg)
	}
	return messages
}
