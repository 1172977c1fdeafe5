package workdir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"snapconvert/internal/logging"
)

// Layout is the on-disk arrangement under the configured temp root.
type Layout struct {
	Root   string
	Input  string
	Output string
}

// NewLayout returns the layout rooted at root. Nothing is created.
func NewLayout(root string) Layout {
	return Layout{
		Root:   root,
		Input:  filepath.Join(root, "input"),
		Output: filepath.Join(root, "output"),
	}
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.Input, l.Output} {
		if err := EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDir creates dir and its parents if missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// CleanupFunc removes a file created by WriteTemp. It is safe to call
// more than once.
type CleanupFunc func()

// WriteTemp spills r into dir under a fresh UUID name with the given
// extension. The returned cleanup removes the file and must be deferred by
// the caller on every path.
func WriteTemp(dir string, ext string, r io.Reader) (string, CleanupFunc, error) {
	name := uuid.NewString()
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		if err := Remove(path); err != nil {
			logging.Warn("Failed to remove temp file %s: %v", path, err)
		}
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}

	return path, cleanup, nil
}

// Remove deletes path, treating an already missing file as success.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAll deletes a directory tree, ignoring a missing root.
func RemoveAll(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}

// FileSize returns the size of a regular file.
func FileSize(path string) (int64, error) {
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}
