package compact

import (
	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/tools"
)

const (
	// microcompactTrigger is the estimated token count above which eviction
	// may fire. Deliberately lower than the auto-compact threshold so cheap
	// eviction runs before expensive summarization becomes necessary.
	microcompactTrigger = 100_000

	// microcompactMinSavings is the minimum estimated token total across
	// evictable results needed for eviction to be worth doing. Wrapped
	// envelopes are preview-sized, so this corresponds to a couple of them.
	microcompactMinSavings = 1_000

	// keepRecentWrapped wrapped results stay untouched at the tail.
	keepRecentWrapped = 3

	// evictedPlaceholder replaces evicted tool result content.
	evictedPlaceholder = "[old tool result evicted to conserve context; re-run the tool if the output is needed]"
)

type evictionTarget struct {
	msgIdx   int
	blockIdx int
	tokens   int
}

// Microcompact evicts old oversized tool results from history. Only results
// already wrapped into preview envelopes and produced by re-runnable tools
// are eligible, and the most recent keepRecentWrapped of those are always
// kept. Returns the input slice unchanged when nothing is evicted.
func Microcompact(messages []llm.Message) ([]llm.Message, bool) {
	total := llm.EstimateHistory(messages)
	if total <= microcompactTrigger {
		return messages, false
	}

	toolNames := toolNamesByUseID(messages)
	evictable := tools.EvictableNames()

	var targets []evictionTarget
	savings := 0
	for i, msg := range messages {
		if msg.Role != llm.RoleUser {
			continue
		}
		for j, block := range msg.Content {
			result, ok := block.(llm.ToolResultBlock)
			if !ok {
				continue
			}
			if !tools.IsWrapped(result.Content) {
				continue
			}
			if !evictable[toolNames[result.ToolUseID]] {
				continue
			}
			tokens := llm.EstimateBlock(block)
			targets = append(targets, evictionTarget{msgIdx: i, blockIdx: j, tokens: tokens})
			savings += tokens
		}
	}

	if len(targets) <= keepRecentWrapped {
		return messages, false
	}
	targets = targets[:len(targets)-keepRecentWrapped]
	savings = 0
	for _, target := range targets {
		savings += target.tokens
	}
	if savings < microcompactMinSavings {
		return messages, false
	}

	out := make([]llm.Message, len(messages))
	copy(out, messages)
	touched := make(map[int]bool)
	for _, target := range targets {
		if !touched[target.msgIdx] {
			blocks := make([]llm.ContentBlock, len(out[target.msgIdx].Content))
			copy(blocks, out[target.msgIdx].Content)
			out[target.msgIdx].Content = blocks
			touched[target.msgIdx] = true
		}
		result := out[target.msgIdx].Content[target.blockIdx].(llm.ToolResultBlock)
		result.Content = evictedPlaceholder
		out[target.msgIdx].Content[target.blockIdx] = result
	}

	logger.Info("compact: evicted %d tool results, ~%d tokens", len(targets), savings)
	return out, true
}

// toolNamesByUseID maps tool_use ids to tool names across assistant messages.
func toolNamesByUseID(messages []llm.Message) map[string]string {
	names := make(map[string]string)
	for _, msg := range messages {
		if msg.Role != llm.RoleAssistant {
			continue
		}
		for _, use := range msg.ToolUses() {
			names[use.ID] = use.Name
		}
	}
	return names
}
