// Package fsutil provides confined, atomic file output for exported media.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// ConfinePath joins root and a relative name and guarantees the result
// stays physically under root after symlink resolution. The name must be
// relative and free of backslashes.
func ConfinePath(root, name string) (string, error) {
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("fsutil: name contains backslash: %s", name)
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("fsutil: name must be relative: %s", name)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: name escapes root: %s", name)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("fsutil: invalid root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}

	full := filepath.Join(realRoot, clean)
	real, err := resolveTarget(realRoot, full)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(realRoot, real)
	if err != nil {
		return "", fmt.Errorf("fsutil: rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes root via symlinks: %s", real)
	}
	return real, nil
}

// resolveTarget resolves symlinks in full, falling back to the parent
// directory when the target does not exist yet.
func resolveTarget(realRoot, full string) (string, error) {
	if _, err := os.Lstat(full); err == nil {
		real, err := filepath.EvalSymlinks(full)
		if err != nil {
			return "", fmt.Errorf("fsutil: resolve target: %w", err)
		}
		return real, nil
	}
	dir := filepath.Dir(full)
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(real, filepath.Base(full)), nil
	}
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("fsutil: resolve parent of %s failed", full)
	}
	// Parent missing as well; the Rel check covers the unresolved path.
	return full, nil
}

// WriteAtomic writes data to path via a temp file and rename so readers
// never observe a partial artifact.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsutil: mkdir: %w", err)
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("fsutil: atomic write: %w", err)
	}
	return nil
}
