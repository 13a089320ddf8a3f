// Package sandbox confines the agent's filesystem tools to a single
// workspace directory.
//
// Every operation takes the workspace root and a path relative to it. The
// path is joined onto the root, made absolute, and rejected with
// ErrOutOfScope unless the result starts with the absolute root.
//
// # Security boundary
//
// Containment is a textual prefix check on absolute paths. It does not
// resolve symlinks, so a link inside the workspace that points elsewhere is
// followed. Because the check is a plain string prefix, a sibling directory
// whose name extends the root's ("/srv/ws-old" for root "/srv/ws") also
// passes. Paths with ".." segments are accepted as long as they still land
// under the root after normalization. Callers that need more than this
// should run the agent inside an OS-level jail.
package sandbox

import (
	"path/filepath"
	"strings"
	"time"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultReadLimit       = 10000
	DefaultInterpreter     = "python3"
	DefaultScriptExtension = ".py"
	DefaultTimeout         = 30 * time.Second
)

// Config holds the sandbox limits.
type Config struct {
	ReadLimit       int           `json:"read_limit"`       // characters
	Interpreter     string        `json:"interpreter"`      // executable used by RunScript
	ScriptExtension string        `json:"script_extension"` // required suffix for RunScript
	Timeout         time.Duration `json:"timeout"`          // RunScript default
}

// Sandbox performs filesystem operations under a caller-supplied root.
// It holds no per-workspace state and no locks; callers must not run
// concurrent writers against the same file.
type Sandbox struct {
	cfg Config
}

// New creates a Sandbox, filling unset limits with the package defaults.
func New(cfg Config) *Sandbox {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.ScriptExtension == "" {
		cfg.ScriptExtension = DefaultScriptExtension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Sandbox{cfg: cfg}
}

// Config returns the effective limits.
func (s *Sandbox) Config() Config {
	return s.cfg
}

// InScope reports whether candidate, made absolute, starts with the
// absolute form of root. See the package documentation for what this does
// not guarantee.
func InScope(root, candidate string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return false
	}
	return strings.HasPrefix(absCandidate, absRoot)
}

// Resolve returns the absolute path for rel under root. An absolute rel is
// taken as-is, so it only passes when it already lies under root.
func Resolve(root, rel string) (string, bool) {
	candidate := rel
	if !filepath.IsAbs(rel) {
		candidate = filepath.Join(root, rel)
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	return abs, InScope(root, abs)
}

// resolve is Resolve with the error shaping every operation shares.
func resolve(op, root, rel string) (string, error) {
	abs, ok := Resolve(root, rel)
	if !ok {
		return "", newError(op, rel, ErrOutOfScope)
	}
	return abs, nil
}
