package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/agentloop/internal/history"
	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/memory"
)

const foldInstruction = `Extract the durable facts from this conversation segment: user preferences, project structure, decisions and their reasons, and the state of ongoing work. Write them as terse markdown bullet points suitable for a long-lived memory file. Respond with the bullet points only.`

// foldTailKeep is how many trailing messages survive a fold verbatim, so the
// model keeps the immediate exchange it was in the middle of.
const foldTailKeep = 2

// FoldResult is a successful Tier-3 compaction.
type FoldResult struct {
	Messages   []llm.Message
	TrackingID string
}

// MemoryFold compacts history by extracting durable facts into a persistent
// memory document, replacing the folded messages with a short summary.
// Successive folds resume after the boundary of the previous one.
type MemoryFold struct {
	transport llm.Transport
	store     *memory.Store
}

func NewMemoryFold(transport llm.Transport, store *memory.Store) *MemoryFold {
	return &MemoryFold{transport: transport, store: store}
}

// Run attempts a fold. prevTrackingID is the identifier persisted by the last
// successful fold, or empty on the first run. threshold is the token count
// the candidate result must come in under; a candidate still at or above it
// is discarded wholesale. Declines are reported as (nil, false) and never
// mutate the input. Panics inside the fold are absorbed as a decline.
func (m *MemoryFold) Run(ctx context.Context, messages []llm.Message, prevTrackingID string, threshold int) (result *FoldResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("compact: memory fold panicked: %v", r)
			result, ok = nil, false
		}
	}()

	if m.store == nil || len(messages) == 0 {
		return nil, false
	}

	start := 0
	if prevTrackingID != "" {
		if idx := history.BoundaryIndexWithTrackingID(messages, prevTrackingID); idx >= 0 {
			start = idx + 1
		}
	}
	window := messages[start:]
	if len(window) <= foldTailKeep {
		return nil, false
	}
	folded := window[:len(window)-foldTailKeep]
	tail := window[len(window)-foldTailKeep:]

	request := &llm.Request{
		Model:     m.transport.ModelName(),
		Messages:  append(append([]llm.Message{}, folded...), llm.NewUserText(foldInstruction)),
		MaxTokens: summaryMaxTokens,
	}
	// Prior folds inform the extraction so known facts are not restated.
	if existing, readErr := m.store.Read(); readErr == nil && existing != "" {
		request.SystemPrompt = "The memory document so far:\n\n" + existing + "\nDo not repeat facts already recorded there."
	}
	resp, err := m.transport.Send(ctx, request)
	if err != nil {
		logger.Warn("compact: memory fold request failed: %v", err)
		return nil, false
	}

	extracted := strings.TrimSpace(textOf(resp.Content))
	if !plausibleSummary(extracted) {
		logger.Warn("compact: memory fold produced implausible output, declining")
		return nil, false
	}

	trackingID := fmt.Sprintf("%016x", xxhash.Sum64String(extracted))
	preTokens := llm.EstimateHistory(messages)
	boundary := history.BoundaryMarker{
		Trigger:    history.TriggerAuto,
		PreTokens:  preTokens,
		TrackingID: trackingID,
	}

	candidate := make([]llm.Message, 0, len(tail)+2)
	candidate = append(candidate, boundary.Message())
	candidate = append(candidate, llm.NewAssistantText("Durable memory extracted from earlier conversation:\n\n"+extracted))
	candidate = append(candidate, tail...)

	if post := llm.EstimateHistory(candidate); post >= threshold {
		logger.Warn("compact: memory fold candidate still at %d tokens (threshold %d), discarding", post, threshold)
		return nil, false
	}

	if err := m.store.Append(extracted); err != nil {
		logger.Warn("compact: could not persist memory document: %v", err)
		return nil, false
	}

	logger.Info("compact: folded %d messages into durable memory (track=%s)", len(folded), trackingID)
	return &FoldResult{Messages: candidate, TrackingID: trackingID}, true
}
