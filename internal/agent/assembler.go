package agent

import (
	"encoding/json"
	"strings"

	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
)

// assembler folds stream deltas into content blocks, preserving emission
// order. Consecutive deltas of the same kind merge into one block; a delta of
// a different kind closes the open block.
type assembler struct {
	blocks []llm.ContentBlock

	textBuf     strings.Builder
	thinkingBuf strings.Builder

	toolID   string
	toolName string
	toolJSON strings.Builder
}

func (a *assembler) text(s string) {
	a.closeThinking()
	a.closeTool()
	a.textBuf.WriteString(s)
}

func (a *assembler) thinking(s string) {
	a.closeText()
	a.closeTool()
	a.thinkingBuf.WriteString(s)
}

func (a *assembler) toolStart(id, name string) {
	a.closeText()
	a.closeThinking()
	a.closeTool()
	a.toolID = id
	a.toolName = name
}

func (a *assembler) toolArgs(partial string) {
	if a.toolID == "" {
		// A delta with no open tool call has nothing to attach to.
		logger.Warn("agent: dropping tool argument delta with no open tool call")
		return
	}
	a.toolJSON.WriteString(partial)
}

func (a *assembler) finish() []llm.ContentBlock {
	a.closeText()
	a.closeThinking()
	a.closeTool()
	return a.blocks
}

func (a *assembler) closeText() {
	if a.textBuf.Len() == 0 {
		return
	}
	a.blocks = append(a.blocks, llm.TextBlock{Text: a.textBuf.String()})
	a.textBuf.Reset()
}

func (a *assembler) closeThinking() {
	if a.thinkingBuf.Len() == 0 {
		return
	}
	a.blocks = append(a.blocks, llm.ThinkingBlock{Text: a.thinkingBuf.String()})
	a.thinkingBuf.Reset()
}

func (a *assembler) closeTool() {
	if a.toolID == "" {
		return
	}
	input := make(map[string]interface{})
	if raw := a.toolJSON.String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			logger.Warn("agent: malformed tool arguments for %s: %v", a.toolName, err)
		}
	}
	a.blocks = append(a.blocks, llm.ToolUseBlock{ID: a.toolID, Name: a.toolName, Input: input})
	a.toolID = ""
	a.toolName = ""
	a.toolJSON.Reset()
}
