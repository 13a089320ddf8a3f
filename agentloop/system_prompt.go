package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultSystemPrompt is used when the profile does not supply one.
const DefaultSystemPrompt = `You are a helpful AI coding agent. You only have access to the working directory.

When a user asks a question or makes a request, make a step-by-step function call plan before acting.

You can perform the following operations:

- List files and directories
- Read file contents
- Execute script files
- Write or overwrite files
- Tell the user that you are done

All paths you provide should be relative to the working directory. You do not need to specify the working directory in your function calls; it is injected automatically.

If an error occurs, acknowledge it and try another approach.

When you are done, call the task_complete function.`

const maxProjectDocBytes = 32 * 1024

// projectDocFiles are instruction files read from the workspace root.
var projectDocFiles = []string{"AGENTS.md"}

// BuildEnvironmentContext renders the <environment> block for root.
func BuildEnvironmentContext(root, model string) string {
	isGitRepo := isGitRepository(root)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", root)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if isGitRepo {
		if branch := gitBranch(root); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads project instruction files from root, capped at
// 32KB in total.
func DiscoverProjectDocs(root string) string {
	var docs []string
	remaining := maxProjectDocBytes

	for _, name := range projectDocFiles {
		content, err := os.ReadFile(filepath.Join(root, name))
		if err != nil || len(content) == 0 {
			continue
		}
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# %s\n\n%s", name, text))
		remaining -= len(text)
	}
	return strings.Join(docs, "\n\n---\n\n")
}

func isGitRepository(dir string) bool {
	out, err := gitOutput(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func gitBranch(dir string) string {
	out, err := gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
