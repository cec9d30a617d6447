package compact

import (
	"context"
	"strings"

	"github.com/codefionn/agentloop/internal/history"
	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
)

const summarizeInstruction = `Summarize this conversation so it can be continued with the summary as the only context. Capture: the user's goals and constraints, what has been done so far, important file paths and their contents where relevant, decisions made and why, and the concrete next steps. Respond with the summary only.`

// summaryMaxTokens bounds the summarization response.
const summaryMaxTokens = 8192

// Summarizer replaces conversation history with a model-written summary.
type Summarizer struct {
	transport llm.Transport
}

func NewSummarizer(transport llm.Transport) *Summarizer {
	return &Summarizer{transport: transport}
}

// Run summarizes everything since the last compaction boundary and, on
// success, returns a replacement history of exactly a boundary marker and the
// summary. Declines (ok=false) on transport failure or an implausible
// response, leaving the input untouched.
func (s *Summarizer) Run(ctx context.Context, messages []llm.Message) ([]llm.Message, bool) {
	if len(messages) == 0 {
		return nil, false
	}

	start := history.LastBoundaryIndex(messages) + 1
	window := messages[start:]
	if len(window) == 0 {
		return nil, false
	}

	request := &llm.Request{
		Model:     s.transport.ModelName(),
		Messages:  append(append([]llm.Message{}, window...), llm.NewUserText(summarizeInstruction)),
		MaxTokens: summaryMaxTokens,
	}

	resp, err := s.transport.Send(ctx, request)
	if err != nil {
		logger.Warn("compact: summarization request failed: %v", err)
		return nil, false
	}

	summary := strings.TrimSpace(textOf(resp.Content))
	if !plausibleSummary(summary) {
		logger.Warn("compact: summarization produced implausible output, declining")
		return nil, false
	}

	preTokens := llm.EstimateHistory(messages)
	boundary := history.BoundaryMarker{Trigger: history.TriggerAuto, PreTokens: preTokens}
	replacement := []llm.Message{
		boundary.Message(),
		llm.NewAssistantText("Conversation summary:\n\n" + summary),
	}
	logger.Info("compact: summarized %d messages (~%d tokens) into %d tokens",
		len(window), preTokens, llm.EstimateHistory(replacement))
	return replacement, true
}

func textOf(blocks []llm.ContentBlock) string {
	var sb strings.Builder
	for _, block := range blocks {
		if text, ok := block.(llm.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

// plausibleSummary rejects empty responses and strings that look like a
// transport error echoed back as content.
func plausibleSummary(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, marker := range []string{"api error", "internal server error", "rate limit exceeded"} {
		if strings.HasPrefix(lower, marker) {
			return false
		}
	}
	return true
}
