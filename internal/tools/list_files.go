package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxListEntries bounds a single listing.
const maxListEntries = 500

type listFilesInput struct {
	Path      string `json:"path,omitempty" jsonschema_description:"Directory to list, relative to the working directory (defaults to the working directory)."`
	Recursive bool   `json:"recursive,omitempty" jsonschema_description:"Recurse into subdirectories."`
}

// ListFilesTool lists directory contents inside the working directory.
type ListFilesTool struct {
	workDir string
}

func NewListFilesTool(workDir string) *ListFilesTool {
	return &ListFilesTool{workDir: workDir}
}

func (t *ListFilesTool) Name() string { return ToolListFiles }

func (t *ListFilesTool) Description() string {
	return "List files and directories under a path in the working directory. Hidden entries are skipped."
}

func (t *ListFilesTool) Parameters() map[string]interface{} {
	return GenerateSchema[listFilesInput]()
}

func (t *ListFilesTool) Execute(ctx context.Context, params map[string]interface{}) *Result {
	var in listFilesInput
	if err := decodeParams(params, &in); err != nil {
		return Errorf("%v", err)
	}
	if in.Path == "" {
		in.Path = "."
	}

	root, err := resolvePath(t.workDir, in.Path)
	if err != nil {
		return Errorf("%v", err)
	}

	var entries []string
	truncated := false
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if len(entries) >= maxListEntries {
			truncated = true
			return filepath.SkipAll
		}
		if d.IsDir() {
			entries = append(entries, rel+string(filepath.Separator))
			if !in.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return Errorf("path not found: %s", in.Path)
		}
		return Errorf("list %s: %v", in.Path, walkErr)
	}

	if len(entries) == 0 {
		return &Result{Output: "(empty directory)"}
	}
	out := strings.Join(entries, "\n")
	if truncated {
		out += fmt.Sprintf("\n... (listing truncated at %d entries)", maxListEntries)
	}
	return &Result{Output: out}
}
