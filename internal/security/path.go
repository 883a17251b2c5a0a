// Package security confines tool-supplied file paths to a working directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned for paths that escape the configured directory.
var ErrOutsideDirectory = errors.New("path is outside configured directory")

// PathValidator resolves and checks paths against one directory.
type PathValidator struct {
	configuredDirectory string
}

// NewPathValidator creates a validator rooted at configuredDirectory.
// The directory does not need to exist yet.
func NewPathValidator(configuredDirectory string) (*PathValidator, error) {
	if configuredDirectory == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	abs, err := filepath.Abs(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}

	return &PathValidator{configuredDirectory: filepath.Clean(abs)}, nil
}

// Directory returns the absolute configured directory.
func (v *PathValidator) Directory() string {
	return v.configuredDirectory
}

// Resolve turns path into a clean absolute path inside the configured
// directory. Relative paths are taken relative to the directory. The target
// does not need to exist, which allows output paths.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.configuredDirectory, path)
	}
	clean := filepath.Clean(path)

	if !within(clean, v.configuredDirectory) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}

	// Symlinks inside the directory may still point elsewhere.
	realDir := evalExisting(v.configuredDirectory)
	realPath := evalExisting(clean)
	if !within(realPath, realDir) && !within(realPath, v.configuredDirectory) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrOutsideDirectory, path, realPath)
	}

	return clean, nil
}

// ValidatePath reports whether path resolves inside the configured directory.
func (v *PathValidator) ValidatePath(path string) error {
	_, err := v.Resolve(path)
	return err
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// re-attaches the missing tail.
func evalExisting(path string) string {
	var tail []string
	cur := path
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// EnsureDirectory creates the configured directory if it is missing.
func (v *PathValidator) EnsureDirectory() error {
	info, err := os.Stat(v.configuredDirectory)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(v.configuredDirectory, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", v.configuredDirectory, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", v.configuredDirectory)
	}
	return nil
}
