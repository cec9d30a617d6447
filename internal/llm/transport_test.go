package llm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDelivers(t *testing.T) {
	events := make(chan StreamEvent, 1)
	ok := emit(context.Background(), events, TextDelta{Text: "hi"})
	require.True(t, ok)
	assert.Equal(t, TextDelta{Text: "hi"}, <-events)
}

func TestEmitReturnsWhenConsumerGone(t *testing.T) {
	// Full buffer and a canceled context: the producer must give up instead
	// of blocking forever.
	events := make(chan StreamEvent, 1)
	events <- StopEvent{Reason: StopEndTurn}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() {
		done <- emit(ctx, events, TextDelta{Text: "stuck"})
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on an abandoned channel")
	}
}

func TestRateLimitFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-remaining", "42")
	h.Set("anthropic-ratelimit-tokens-remaining", "9000")
	h.Set("anthropic-ratelimit-requests-reset", "2026-08-30T12:00:00Z")

	rl := rateLimitFromHeaders(h)
	assert.Equal(t, 42, rl.RequestsRemaining)
	assert.Equal(t, 9000, rl.TokensRemaining)
	assert.Equal(t, 2026, rl.ResetAt.Year())

	// OpenAI-style spellings are read too.
	h = http.Header{}
	h.Set("x-ratelimit-remaining-requests", "7")
	assert.Equal(t, 7, rateLimitFromHeaders(h).RequestsRemaining)

	assert.Zero(t, rateLimitFromHeaders(nil).RequestsRemaining)
}
