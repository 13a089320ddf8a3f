package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped in *Error) by Sandbox operations.
var (
	ErrOutOfScope     = errors.New("path is outside the permitted working directory")
	ErrNotFound       = errors.New("file not found")
	ErrNotAFile       = errors.New("not a regular file")
	ErrNotADirectory  = errors.New("not a directory")
	ErrWrongExtension = errors.New("wrong script extension")
	ErrTimeout        = errors.New("script execution timed out")
	ErrNotText        = errors.New("file is not valid UTF-8 text")
)

// Operation names used in Error.Op.
const (
	OpList  = "list"
	OpRead  = "read"
	OpWrite = "write"
	OpRun   = "execute"
)

// Error describes a failed sandbox operation. Its message is phrased for the
// model, which receives it verbatim inside a tool result.
type Error struct {
	Op   string
	Path string
	Err  error

	// Detail carries operation-specific context (timeout, extension,
	// underlying OS error text).
	Detail string
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Err, ErrOutOfScope):
		verb := e.Op
		switch e.Op {
		case OpWrite:
			verb = "write to"
		}
		return fmt.Sprintf("Cannot %s %q as it is outside the permitted working directory", verb, e.Path)
	case errors.Is(e.Err, ErrNotADirectory):
		return fmt.Sprintf("%q is not a directory", e.Path)
	case errors.Is(e.Err, ErrNotAFile):
		return fmt.Sprintf("File not found or is not a regular file: %q", e.Path)
	case errors.Is(e.Err, ErrNotFound):
		return fmt.Sprintf("File %q not found.", e.Path)
	case errors.Is(e.Err, ErrWrongExtension):
		return fmt.Sprintf("%q is not a %s script.", e.Path, e.Detail)
	case errors.Is(e.Err, ErrNotText):
		return fmt.Sprintf("Cannot read %q: file is not valid UTF-8 text", e.Path)
	case errors.Is(e.Err, ErrTimeout):
		return fmt.Sprintf("Executing %q timed out after %s", e.Path, e.Detail)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s %q: %s: %v", e.Op, e.Path, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}
