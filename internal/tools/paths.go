package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolvePath turns a model-supplied path into an absolute path confined to
// the working directory. Escapes via ".." or absolute paths outside the
// working directory are rejected.
func resolvePath(workDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workDir, path)
	}
	abs = filepath.Clean(abs)
	root := filepath.Clean(workDir)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes working directory", path)
	}
	return abs, nil
}
