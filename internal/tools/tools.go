package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
)

// Tool is one capability exposed to the model. Parameters returns a JSON
// Schema object describing the tool's input.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) *Result
}

// Result is the outcome of a single tool execution.
type Result struct {
	Output         string        `json:"output,omitempty"`
	Error          string        `json:"error,omitempty"`
	StructuredData interface{}   `json:"structured_data,omitempty"`
	ExtraMessages  []llm.Message `json:"extra_messages,omitempty"`
}

// IsError reports whether the execution failed.
func (r *Result) IsError() bool {
	return r != nil && r.Error != ""
}

// Errorf builds a failed Result.
func Errorf(format string, args ...interface{}) *Result {
	return &Result{Error: fmt.Sprintf(format, args...)}
}

// Registry manages the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any existing tool with the
// same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defs returns the transport-level definitions of all registered tools,
// ordered by name.
func (r *Registry) Defs() []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		})
	}
	return defs
}

// Execute runs the named tool. Unknown tool names produce an error result
// rather than a Go error so the failure flows back to the model as a
// tool_result.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) *Result {
	tool, ok := r.Get(name)
	if !ok {
		logger.Warn("tools: unknown tool requested: %s", name)
		return Errorf("unknown tool: %s", name)
	}
	return tool.Execute(ctx, params)
}

// decodeParams converts the model-supplied parameter map into a typed input
// struct by round-tripping through JSON.
func decodeParams(params map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}
