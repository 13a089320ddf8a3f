package agentloop

import "strings"

// Profile names the model the session talks to and the instructions it
// is given.
type Profile struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// SystemPrompt replaces DefaultSystemPrompt when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens caps each response; zero leaves the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// BuildSystemPrompt returns the base prompt followed by the environment
// block for root and any project instructions found there.
func (p Profile) BuildSystemPrompt(root string) string {
	base := strings.TrimSpace(p.SystemPrompt)
	if base == "" {
		base = DefaultSystemPrompt
	}

	parts := []string{base, BuildEnvironmentContext(root, p.Model)}
	if docs := DiscoverProjectDocs(root); docs != "" {
		parts = append(parts, docs)
	}
	return strings.Join(parts, "\n\n")
}
