package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/codefionn/agentloop/internal/logger"
)

const defaultShellTimeout = 120 * time.Second

type shellInput struct {
	Command        string `json:"command" jsonschema_description:"Shell command to run in the working directory."`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema_description:"Timeout in seconds (default 120)."`
}

// ShellTool runs commands in the working directory.
type ShellTool struct {
	workDir string
}

func NewShellTool(workDir string) *ShellTool {
	return &ShellTool{workDir: workDir}
}

func (t *ShellTool) Name() string { return ToolShell }

func (t *ShellTool) Description() string {
	return "Run a shell command in the working directory and return its combined output and exit code. Commands are killed after the timeout."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return GenerateSchema[shellInput]()
}

func (t *ShellTool) Execute(ctx context.Context, params map[string]interface{}) *Result {
	var in shellInput
	if err := decodeParams(params, &in); err != nil {
		return Errorf("%v", err)
	}
	if in.Command == "" {
		return Errorf("command is required")
	}

	timeout := defaultShellTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("shell: command=%q timeout=%s", in.Command, timeout)

	cmd := exec.CommandContext(runCtx, "sh", "-c", in.Command)
	cmd.Dir = t.workDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		runErr = nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return Errorf("command timed out after %s\n%s", timeout, buf.String())
	}
	if runErr != nil {
		return Errorf("run command: %v", runErr)
	}

	out := buf.String()
	if exitCode != 0 {
		out = fmt.Sprintf("%s\n(exit code %d)", out, exitCode)
	}
	return &Result{
		Output:         out,
		StructuredData: map[string]interface{}{"exit_code": exitCode},
	}
}
