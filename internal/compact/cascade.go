package compact

import (
	"context"

	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
)

// Cascade runs the compaction tiers in preference order: durable-memory fold
// first, summarization second. Either tier may be nil (disabled).
type Cascade struct {
	fold       *MemoryFold
	summarizer *Summarizer
}

func NewCascade(fold *MemoryFold, summarizer *Summarizer) *Cascade {
	return &Cascade{fold: fold, summarizer: summarizer}
}

// Outcome is what the cascade produced, when it produced anything.
type Outcome struct {
	Messages   []llm.Message
	TrackingID string
}

// Run attempts compaction. Returns (nil, false) when every tier declined; the
// caller proceeds with the uncompacted history in that case.
func (c *Cascade) Run(ctx context.Context, messages []llm.Message, prevTrackingID string, threshold int) (*Outcome, bool) {
	if c.fold != nil {
		if result, ok := c.fold.Run(ctx, messages, prevTrackingID, threshold); ok {
			return &Outcome{Messages: result.Messages, TrackingID: result.TrackingID}, true
		}
	}
	if c.summarizer != nil {
		if replacement, ok := c.summarizer.Run(ctx, messages); ok {
			return &Outcome{Messages: replacement}, true
		}
	}
	logger.Warn("compact: all tiers declined, proceeding uncompacted at ~%d tokens", llm.EstimateHistory(messages))
	return nil, false
}
