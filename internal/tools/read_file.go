package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/codefionn/agentloop/internal/logger"
)

// maxReadLines caps a single read so one tool call cannot flood history.
const maxReadLines = 2000

type readFileInput struct {
	Path     string `json:"path" jsonschema_description:"Path to the file to read, relative to the working directory."`
	FromLine int    `json:"from_line,omitempty" jsonschema_description:"Starting line number (1-indexed, optional)."`
	ToLine   int    `json:"to_line,omitempty" jsonschema_description:"Ending line number (1-indexed, optional)."`
}

// ReadFileTool reads files inside the working directory.
type ReadFileTool struct {
	workDir string
}

func NewReadFileTool(workDir string) *ReadFileTool {
	return &ReadFileTool{workDir: workDir}
}

func (t *ReadFileTool) Name() string { return ToolReadFile }

func (t *ReadFileTool) Description() string {
	return "Read a file from the working directory. Can read the entire file or a specific line range. Maximum 2000 lines per read."
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return GenerateSchema[readFileInput]()
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]interface{}) *Result {
	var in readFileInput
	if err := decodeParams(params, &in); err != nil {
		return Errorf("%v", err)
	}

	path, err := resolvePath(t.workDir, in.Path)
	if err != nil {
		return Errorf("%v", err)
	}
	logger.Debug("read_file: path=%s from=%d to=%d", in.Path, in.FromLine, in.ToLine)

	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("read %s: %v", in.Path, err)
	}

	lines := strings.Split(string(data), "\n")
	from := in.FromLine
	if from < 1 {
		from = 1
	}
	to := in.ToLine
	if to < 1 || to > len(lines) {
		to = len(lines)
	}
	if from > len(lines) {
		return Errorf("from_line %d is beyond end of file (%d lines)", in.FromLine, len(lines))
	}
	if to-from+1 > maxReadLines {
		to = from + maxReadLines - 1
	}

	out := strings.Join(lines[from-1:to], "\n")
	if to < len(lines) {
		out += fmt.Sprintf("\n... (%d more lines, continue with from_line=%d)", len(lines)-to, to+1)
	}
	return &Result{Output: out}
}
