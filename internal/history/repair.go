// Package history holds the pure helpers that operate on a message list:
// the tool_use/tool_result consistency repairer and compaction boundary
// markers.
package history

import (
	"github.com/codefionn/agentloop/internal/llm"
)

const interruptedResultContent = "execution interrupted"

// Repair returns a message list in which every tool_use block emitted by an
// assistant message has a matching tool_result block in a later user
// message. A streaming interruption (network fault, sibling-tool failure,
// operator cancellation) can leave an orphaned tool_use that the transport
// would reject as malformed on the next request; Repair closes that hole by
// synthesizing error results.
//
// Repair is pure and idempotent: when no orphans exist the input slice is
// returned unchanged.
func Repair(messages []llm.Message) []llm.Message {
	orphans := orphanedToolUses(messages)
	if len(orphans) == 0 {
		return messages
	}

	synthesized := make([]llm.ContentBlock, 0, len(orphans))
	for _, use := range orphans {
		content := interruptedResultContent
		if use.Name != "" {
			content = interruptedResultContent + ": " + use.Name
		}
		synthesized = append(synthesized, llm.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   content,
			IsError:   true,
		})
	}

	lastAssistant := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant {
			lastAssistant = i
			break
		}
	}

	// Prefer a user message after the last assistant message that already
	// carries tool results.
	for i := lastAssistant + 1; i < len(messages); i++ {
		if messages[i].Role == llm.RoleUser && messages[i].HasToolResults() {
			repaired := make([]llm.Message, len(messages))
			copy(repaired, messages)

			content := make([]llm.ContentBlock, 0, len(messages[i].Content)+len(synthesized))
			content = append(content, messages[i].Content...)
			content = append(content, synthesized...)
			repaired[i] = llm.Message{Role: llm.RoleUser, Content: content}
			return repaired
		}
	}

	// Otherwise insert a fresh user message right after the last assistant
	// message (or at the end when there is none).
	insertAt := len(messages)
	if lastAssistant >= 0 {
		insertAt = lastAssistant + 1
	}

	repaired := make([]llm.Message, 0, len(messages)+1)
	repaired = append(repaired, messages[:insertAt]...)
	repaired = append(repaired, llm.Message{Role: llm.RoleUser, Content: synthesized})
	repaired = append(repaired, messages[insertAt:]...)
	return repaired
}

// orphanedToolUses returns the tool_use blocks whose ids have no matching
// tool_result, in emission order.
func orphanedToolUses(messages []llm.Message) []llm.ToolUseBlock {
	resolved := map[string]bool{}
	for _, msg := range messages {
		if msg.Role != llm.RoleUser {
			continue
		}
		for _, result := range msg.ToolResults() {
			resolved[result.ToolUseID] = true
		}
	}

	var orphans []llm.ToolUseBlock
	for _, msg := range messages {
		if msg.Role != llm.RoleAssistant {
			continue
		}
		for _, use := range msg.ToolUses() {
			if !resolved[use.ID] {
				orphans = append(orphans, use)
			}
		}
	}
	return orphans
}
