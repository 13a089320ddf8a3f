package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ScriptResult holds the outcome of a script that ran to completion.
type ScriptResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Output renders the result for the model. A non-zero exit code is reported
// inside the text rather than as an error.
func (r *ScriptResult) Output() string {
	var sb strings.Builder
	if r.Stdout == "" && r.Stderr == "" {
		sb.WriteString("No output produced.")
	} else {
		fmt.Fprintf(&sb, "STDOUT: %s | STDERR | %s", r.Stdout, r.Stderr)
	}
	if r.ExitCode != 0 {
		fmt.Fprintf(&sb, " | Process exited with code %d", r.ExitCode)
	}
	return sb.String()
}

// RunScript executes the script at path with the configured interpreter,
// from root, and waits at most timeout (the sandbox default when <= 0).
func (s *Sandbox) RunScript(ctx context.Context, root, path string, timeout time.Duration) (*ScriptResult, error) {
	abs, err := resolve(OpRun, root, path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(OpRun, path, ErrNotFound)
		}
		return nil, newError(OpRun, path, err)
	}
	if !strings.HasSuffix(abs, s.cfg.ScriptExtension) {
		return nil, &Error{Op: OpRun, Path: path, Err: ErrWrongExtension, Detail: s.cfg.ScriptExtension}
	}

	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir, err := filepath.Abs(root)
	if err != nil {
		return nil, newError(OpRun, path, err)
	}

	cmd := exec.CommandContext(ctx, s.cfg.Interpreter, abs)
	cmd.Dir = workDir
	cmd.Env = filterEnvironment()

	// Own process group so the whole tree dies on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && !errors.Is(parent.Err(), context.DeadlineExceeded) {
			return nil, &Error{Op: OpRun, Path: path, Err: ErrTimeout, Detail: timeout.String()}
		}
		return nil, &Error{Op: OpRun, Path: path, Err: ctxErr, Detail: "interrupted"}
	}

	result := &ScriptResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &Error{Op: OpRun, Path: path, Err: err, Detail: "cannot start " + s.cfg.Interpreter}
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables withheld from scripts.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"PYTHONPATH": true, "VIRTUAL_ENV": true, "PYENV_ROOT": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns the process environment minus credentials, so
// a script the model wrote cannot read the model provider's API key.
func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}
