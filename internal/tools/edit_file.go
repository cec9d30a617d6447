package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/agentloop/internal/logger"
)

type editFileInput struct {
	Path   string `json:"path" jsonschema_description:"File to create or modify, relative to the working directory."`
	OldStr string `json:"old_str,omitempty" jsonschema_description:"Exact text to replace. Leave empty to create a new file."`
	NewStr string `json:"new_str" jsonschema_description:"Replacement text, or the full content of a new file."`
}

// EditFileTool creates and modifies files inside the working directory.
type EditFileTool struct {
	workDir string
}

func NewEditFileTool(workDir string) *EditFileTool {
	return &EditFileTool{workDir: workDir}
}

func (t *EditFileTool) Name() string { return ToolEditFile }

func (t *EditFileTool) Description() string {
	return "Create or modify a text file in the working directory. With an empty old_str and a non-existing path, a new file is created; otherwise all occurrences of old_str are replaced with new_str."
}

func (t *EditFileTool) Parameters() map[string]interface{} {
	return GenerateSchema[editFileInput]()
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]interface{}) *Result {
	var in editFileInput
	if err := decodeParams(params, &in); err != nil {
		return Errorf("%v", err)
	}
	if in.OldStr == in.NewStr {
		return Errorf("old_str and new_str must differ")
	}

	path, err := resolvePath(t.workDir, in.Path)
	if err != nil {
		return Errorf("%v", err)
	}
	logger.Debug("edit_file: path=%s", in.Path)

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if !os.IsNotExist(readErr) {
			return Errorf("read %s: %v", in.Path, readErr)
		}
		if in.OldStr != "" {
			return Errorf("file not found: %s", in.Path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Errorf("create directories for %s: %v", in.Path, err)
		}
		if err := os.WriteFile(path, []byte(in.NewStr), 0o644); err != nil {
			return Errorf("create %s: %v", in.Path, err)
		}
		return &Result{Output: fmt.Sprintf("Created %s", in.Path)}
	}

	if in.OldStr == "" {
		return Errorf("old_str must be provided when editing an existing file")
	}
	content := string(data)
	count := strings.Count(content, in.OldStr)
	if count == 0 {
		return Errorf("old_str not found in %s", in.Path)
	}
	updated := strings.ReplaceAll(content, in.OldStr, in.NewStr)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return Errorf("write %s: %v", in.Path, err)
	}
	return &Result{Output: fmt.Sprintf("Replaced %d occurrence(s) in %s", count, in.Path)}
}
