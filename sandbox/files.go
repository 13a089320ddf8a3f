package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DirEntry describes one immediate child of a listed directory.
type DirEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// String renders the entry in the listing format shown to the model.
func (d DirEntry) String() string {
	return fmt.Sprintf("- %s: file_size=%d, is_dir=%s", d.Name, d.Size, pyBool(d.IsDir))
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Entries lists the immediate children of dir under root. An empty dir means
// the root itself.
func (s *Sandbox) Entries(root, dir string) ([]DirEntry, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := resolve(OpList, root, dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, newError(OpList, dir, ErrNotADirectory)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, newError(OpList, dir, err)
	}

	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		// Stat follows symlinks so the size is the target's.
		if fi, err := os.Stat(filepath.Join(abs, entry.Name())); err == nil {
			de.Size = fi.Size()
			de.IsDir = fi.IsDir()
		} else if fi, err := entry.Info(); err == nil {
			de.Size = fi.Size()
		}
		result = append(result, de)
	}
	return result, nil
}

// ListDirectory returns one line per immediate child of dir. Callers must
// not rely on the order of the lines.
func (s *Sandbox) ListDirectory(root, dir string) (string, error) {
	entries, err := s.Entries(root, dir)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// ReadFile returns at most ReadLimit characters of the file at path. Longer
// files are cut without any marker, so a truncated read looks the same as a
// short file. Content that is not valid UTF-8 within the limit fails with
// ErrNotText.
func (s *Sandbox) ReadFile(root, path string) (string, error) {
	abs, err := resolve(OpRead, root, path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", newError(OpRead, path, ErrNotAFile)
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", newError(OpRead, path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var sb strings.Builder
	for n := 0; n < s.cfg.ReadLimit; n++ {
		ch, size, err := r.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", newError(OpRead, path, err)
		}
		if ch == utf8.RuneError && size == 1 {
			return "", newError(OpRead, path, ErrNotText)
		}
		sb.WriteRune(ch)
	}
	return sb.String(), nil
}

// WriteFile replaces the file at path with content, creating missing parent
// directories first.
func (s *Sandbox) WriteFile(root, path, content string) (string, error) {
	abs, err := resolve(OpWrite, root, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", &Error{Op: OpWrite, Path: path, Err: err, Detail: "cannot create parent directory"}
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return "", newError(OpWrite, path, err)
	}
	return fmt.Sprintf("Successfully wrote to %q (%d characters written)", path, utf8.RuneCountInString(content)), nil
}
