package llm

// Token estimation is a deliberate approximation: one token per four
// characters, rounded up, applied per content block. Budget thresholds keep
// enough slack that the error margin is harmless.

// EstimateText returns a rough token estimate for a string.
func EstimateText(text string) int {
	return charsToTokens(len(text))
}

// EstimateBlock returns the token estimate for a single content block.
func EstimateBlock(block ContentBlock) int {
	switch b := block.(type) {
	case TextBlock:
		return charsToTokens(len(b.Text))
	case ThinkingBlock:
		return charsToTokens(len(b.Text))
	case MediaBlock:
		return charsToTokens(len(b.Data))
	case ToolUseBlock:
		return charsToTokens(len(b.Name) + len(MarshalInput(b.Input)))
	case ToolResultBlock:
		return charsToTokens(len(b.Content))
	default:
		return 0
	}
}

// EstimateMessage sums the block estimates of one message.
func EstimateMessage(msg Message) int {
	total := 0
	for _, block := range msg.Content {
		total += EstimateBlock(block)
	}
	return total
}

// EstimateHistory sums the message estimates of a history slice.
func EstimateHistory(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessage(msg)
	}
	return total
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}
