package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxSearchMatches  = 200
	maxSearchLineLen  = 500
	maxSearchFileSize = 4 << 20
)

type searchFilesInput struct {
	Pattern string `json:"pattern" jsonschema_description:"Regular expression to search for (Go regexp syntax)."`
	Path    string `json:"path,omitempty" jsonschema_description:"Directory to search under, relative to the working directory (defaults to the working directory)."`
	Glob    string `json:"glob,omitempty" jsonschema_description:"Optional filename glob filter, e.g. *.go."`
}

// SearchFilesTool searches file contents under the working directory.
type SearchFilesTool struct {
	workDir string
}

func NewSearchFilesTool(workDir string) *SearchFilesTool {
	return &SearchFilesTool{workDir: workDir}
}

func (t *SearchFilesTool) Name() string { return ToolSearchFiles }

func (t *SearchFilesTool) Description() string {
	return "Search file contents with a regular expression. Returns matching lines as path:line:text. Binary and hidden files are skipped."
}

func (t *SearchFilesTool) Parameters() map[string]interface{} {
	return GenerateSchema[searchFilesInput]()
}

func (t *SearchFilesTool) Execute(ctx context.Context, params map[string]interface{}) *Result {
	var in searchFilesInput
	if err := decodeParams(params, &in); err != nil {
		return Errorf("%v", err)
	}
	if in.Pattern == "" {
		return Errorf("pattern is required")
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return Errorf("invalid pattern: %v", err)
	}
	if in.Path == "" {
		in.Path = "."
	}
	root, err := resolvePath(t.workDir, in.Path)
	if err != nil {
		return Errorf("%v", err)
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if in.Glob != "" {
			ok, globErr := filepath.Match(in.Glob, name)
			if globErr != nil || !ok {
				return globErr
			}
		}
		if info, infoErr := d.Info(); infoErr != nil || info.Size() > maxSearchFileSize {
			return nil
		}
		if len(matches) >= maxSearchMatches {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		searchFile(path, rel, re, &matches)
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		if os.IsNotExist(walkErr) {
			return Errorf("path not found: %s", in.Path)
		}
		return Errorf("search %s: %v", in.Path, walkErr)
	}

	if len(matches) == 0 {
		return &Result{Output: "no matches"}
	}
	out := strings.Join(matches, "\n")
	if len(matches) >= maxSearchMatches {
		out += fmt.Sprintf("\n... (stopped at %d matches)", maxSearchMatches)
	}
	return &Result{Output: out}
}

func searchFile(path, rel string, re *regexp.Regexp, matches *[]string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return
		}
		if !re.MatchString(line) {
			continue
		}
		if len(line) > maxSearchLineLen {
			line = line[:maxSearchLineLen] + "..."
		}
		*matches = append(*matches, fmt.Sprintf("%s:%d:%s", rel, lineNo, line))
		if len(*matches) >= maxSearchMatches {
			return
		}
	}
}
