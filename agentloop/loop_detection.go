package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// DefaultLoopWindow is the number of recent tool calls inspected by
// DetectLoop.
const DefaultLoopWindow = 10

// toolCallSignature identifies a call by name and a hash of its arguments.
func toolCallSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentToolCallSignatures returns up to count signatures of the latest
// assistant tool calls, oldest first.
func recentToolCallSignatures(history []Turn, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		if history[i].Role != RoleAssistant {
			continue
		}
		calls := history[i].ToolCalls()
		for j := len(calls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(calls[j].Name, calls[j].Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last window tool calls repeat a pattern
// of length 1, 2 or 3.
func DetectLoop(history []Turn, window int) bool {
	if window <= 0 {
		return false
	}
	sigs := recentToolCallSignatures(history, window)
	if len(sigs) < window {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		repeating := true
		for i := patternLen; i < window && repeating; i++ {
			if sigs[i] != sigs[i%patternLen] {
				repeating = false
			}
		}
		if repeating {
			return true
		}
	}
	return false
}
