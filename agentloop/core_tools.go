package agentloop

import (
	"context"
	"fmt"

	"github.com/martinemde/ssnake/sandbox"
)

// Tool names advertised to the model.
const (
	ToolListFiles    = "get_files_info"
	ToolReadFile     = "get_file_content"
	ToolWriteFile    = "write_file"
	ToolRunScript    = "run_python_file"
	ToolTaskComplete = "task_complete"
)

// TaskCompleteMessage is the content of the Stop result returned by
// task_complete.
const TaskCompleteMessage = "Task has been marked as complete. The agent will now shut down."

type listFilesArgs struct {
	Directory string `json:"directory,omitempty" jsonschema_description:"The directory to list files from, relative to the working directory. If not provided, lists files in the working directory itself."`
}

type readFileArgs struct {
	FilePath string `json:"file_path" validate:"required" jsonschema_description:"The path of the file to read, relative to the working directory."`
}

type writeFileArgs struct {
	FilePath string `json:"file_path" validate:"required" jsonschema_description:"The path of the file to write, relative to the working directory."`
	Content  string `json:"content" jsonschema_description:"The full content to write to the file."`
}

type runScriptArgs struct {
	FilePath string `json:"file_path" validate:"required" jsonschema_description:"The path of the script to run, relative to the working directory."`
}

type taskCompleteArgs struct{}

// CoreTools returns the five built-in tools. cfg only shapes the
// descriptions; limits are enforced by the Sandbox passed at call time.
func CoreTools(cfg sandbox.Config) []RegisteredTool {
	cfg = sandbox.New(cfg).Config()
	return []RegisteredTool{
		listFilesTool(),
		readFileTool(cfg),
		writeFileTool(),
		runScriptTool(cfg),
		taskCompleteTool(),
	}
}

// NewCoreRegistry returns a registry holding CoreTools(cfg).
func NewCoreRegistry(cfg sandbox.Config) *ToolRegistry {
	reg, err := NewToolRegistry(CoreTools(cfg)...)
	if err != nil {
		// Core tool names are constants; a failure here is a programming error.
		panic(err)
	}
	return reg
}

func listFilesTool() RegisteredTool {
	return newTool(ToolListFiles,
		"Lists files in the specified directory along with their sizes, constrained to the working directory.",
		func(_ context.Context, sb *sandbox.Sandbox, root string, args listFilesArgs) (Result, error) {
			out, err := sb.ListDirectory(root, args.Directory)
			if err != nil {
				return nil, err
			}
			return Value{Content: out}, nil
		})
}

func readFileTool(cfg sandbox.Config) RegisteredTool {
	return newTool(ToolReadFile,
		fmt.Sprintf("Retrieves the content of a file (at most %d characters), constrained to the working directory.", cfg.ReadLimit),
		func(_ context.Context, sb *sandbox.Sandbox, root string, args readFileArgs) (Result, error) {
			out, err := sb.ReadFile(root, args.FilePath)
			if err != nil {
				return nil, err
			}
			return Value{Content: out}, nil
		})
}

func writeFileTool() RegisteredTool {
	return newTool(ToolWriteFile,
		"Overwrites the content of a file, creating missing parent directories, constrained to the working directory.",
		func(_ context.Context, sb *sandbox.Sandbox, root string, args writeFileArgs) (Result, error) {
			out, err := sb.WriteFile(root, args.FilePath, args.Content)
			if err != nil {
				return nil, err
			}
			return Value{Content: out}, nil
		})
}

func runScriptTool(cfg sandbox.Config) RegisteredTool {
	return newTool(ToolRunScript,
		fmt.Sprintf("Runs a %s file with %s from the working directory and returns its output. Times out after %s.",
			cfg.ScriptExtension, cfg.Interpreter, cfg.Timeout),
		func(ctx context.Context, sb *sandbox.Sandbox, root string, args runScriptArgs) (Result, error) {
			res, err := sb.RunScript(ctx, root, args.FilePath, 0)
			if err != nil {
				return nil, err
			}
			return Value{Content: res.Output()}, nil
		})
}

func taskCompleteTool() RegisteredTool {
	return newTool(ToolTaskComplete,
		"Signals that the task is complete. Call this once the user's request has been fully handled; the agent shuts down afterwards.",
		func(context.Context, *sandbox.Sandbox, string, taskCompleteArgs) (Result, error) {
			return Stop{Content: TaskCompleteMessage}, nil
		})
}
