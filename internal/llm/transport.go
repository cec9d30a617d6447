package llm

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Stop reasons reported by a transport.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// ToolDef is the schema of one tool as presented to the model.
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is one model request.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDef
	MaxTokens    int
	Temperature  float64
}

// Usage is the token accounting a transport reports for one response.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// RateLimit is provider rate-limit metadata, surfaced separately from
// message content.
type RateLimit struct {
	RequestsRemaining int
	TokensRemaining   int
	ResetAt           time.Time
}

// Response is a complete (non-streamed) model response.
type Response struct {
	Content    []ContentBlock
	StopReason string
	Usage      Usage
	RateLimit  RateLimit
}

// StreamEvent is the closed set of events a streamed response produces.
// Consumers switch exhaustively over the concrete types.
type StreamEvent interface {
	streamEvent()
}

// TextDelta is a chunk of assistant text.
type TextDelta struct{ Text string }

// ThinkingDelta is a chunk of model reasoning.
type ThinkingDelta struct{ Text string }

// ToolCallStart opens a tool invocation; argument deltas follow.
type ToolCallStart struct {
	ID   string
	Name string
}

// ToolCallDelta is a chunk of the pending tool call's JSON arguments.
type ToolCallDelta struct {
	ID          string
	PartialJSON string
}

// StopEvent terminates the stream with the provider's stop reason.
type StopEvent struct{ Reason string }

// UsageEvent reports token accounting for the streamed response.
type UsageEvent struct{ Usage Usage }

// ErrorEvent reports a transport-level failure mid-stream.
type ErrorEvent struct{ Err error }

func (TextDelta) streamEvent()     {}
func (ThinkingDelta) streamEvent() {}
func (ToolCallStart) streamEvent() {}
func (ToolCallDelta) streamEvent() {}
func (StopEvent) streamEvent()     {}
func (UsageEvent) streamEvent()    {}
func (ErrorEvent) streamEvent()    {}

// Transport is the model API boundary. Implementations must be safe for
// concurrent use by independent sessions.
type Transport interface {
	// Send performs a blocking request.
	Send(ctx context.Context, req *Request) (*Response, error)
	// Stream performs a streamed request. The returned channel is closed
	// after a StopEvent or ErrorEvent; the caller stops consuming early on
	// cancellation.
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
	// ModelName returns the configured model identifier.
	ModelName() string
}

// rateLimitFromHeaders reads provider rate-limit headers. Providers use
// different header prefixes; both common spellings are checked.
func rateLimitFromHeaders(h http.Header) RateLimit {
	var rl RateLimit
	if h == nil {
		return rl
	}

	for _, key := range []string{"anthropic-ratelimit-requests-remaining", "x-ratelimit-remaining-requests"} {
		if v := h.Get(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				rl.RequestsRemaining = n
				break
			}
		}
	}
	for _, key := range []string{"anthropic-ratelimit-tokens-remaining", "x-ratelimit-remaining-tokens"} {
		if v := h.Get(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				rl.TokensRemaining = n
				break
			}
		}
	}
	for _, key := range []string{"anthropic-ratelimit-requests-reset", "x-ratelimit-reset-requests"} {
		if v := h.Get(key); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				rl.ResetAt = t
				break
			}
		}
	}
	return rl
}

// emit delivers one stream event unless the consumer has gone away. The
// driver stops reading as soon as its context is canceled, so an unguarded
// send would leave the producer goroutine blocked forever with the SDK
// stream still open.
func emit(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
