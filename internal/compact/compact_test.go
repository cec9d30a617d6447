package compact

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentloop/internal/history"
	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/memory"
	"github.com/codefionn/agentloop/internal/tools"
)

type fakeTransport struct {
	model   string
	reply   string
	err     error
	lastReq *llm.Request
}

func (f *fakeTransport) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		Content:    []llm.ContentBlock{llm.TextBlock{Text: f.reply}},
		StopReason: llm.StopEndTurn,
	}, nil
}

func (f *fakeTransport) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTransport) ModelName() string { return f.model }

// wrappedExchange builds one assistant tool_use plus its wrapped user result.
func wrappedExchange(n int) []llm.Message {
	id := fmt.Sprintf("tool_%d", n)
	wrapped := tools.WrapOutput(strings.Repeat("x", 500_000))
	return []llm.Message{
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{
			llm.ToolUseBlock{ID: id, Name: tools.ToolReadFile, Input: map[string]interface{}{"path": "big.txt"}},
		}},
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.ToolResultBlock{ToolUseID: id, Content: wrapped},
		}},
	}
}

func bigHistory(exchanges int) []llm.Message {
	// Padding pushes the total estimate past the eviction trigger.
	messages := []llm.Message{llm.NewUserText(strings.Repeat("p", 450_000))}
	for i := 0; i < exchanges; i++ {
		messages = append(messages, wrappedExchange(i)...)
	}
	return messages
}

func TestMicrocompactBelowTriggerIsNoop(t *testing.T) {
	messages := wrappedExchange(0)
	out, evicted := Microcompact(messages)
	assert.False(t, evicted)
	assert.Equal(t, messages, out)
}

func TestMicrocompactKeepsRecentWrappedResults(t *testing.T) {
	messages := bigHistory(6)
	out, evicted := Microcompact(messages)
	require.True(t, evicted)

	var placeholders, wrapped int
	for _, msg := range out {
		for _, result := range msg.ToolResults() {
			switch {
			case result.Content == evictedPlaceholder:
				placeholders++
			case tools.IsWrapped(result.Content):
				wrapped++
			}
		}
	}
	assert.Equal(t, 3, placeholders)
	assert.Equal(t, 3, wrapped)

	// Input slice stays untouched.
	for _, msg := range messages {
		for _, result := range msg.ToolResults() {
			assert.NotEqual(t, evictedPlaceholder, result.Content)
		}
	}
}

func TestMicrocompactSkipsUnwrappedResults(t *testing.T) {
	messages := []llm.Message{llm.NewUserText(strings.Repeat("p", 450_000))}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("tool_%d", i)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{
				llm.ToolUseBlock{ID: id, Name: tools.ToolReadFile, Input: map[string]interface{}{}},
			}},
			llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{
				llm.ToolResultBlock{ToolUseID: id, Content: "plain small output"},
			}},
		)
	}
	_, evicted := Microcompact(messages)
	assert.False(t, evicted)
}

func TestSummarizerReplacesHistory(t *testing.T) {
	transport := &fakeTransport{model: "test-model", reply: "User is building a CLI. Next: write tests."}
	s := NewSummarizer(transport)

	messages := []llm.Message{
		llm.NewUserText("help me build a CLI"),
		llm.NewAssistantText("sure, starting with main.go"),
	}
	out, ok := s.Run(context.Background(), messages)
	require.True(t, ok)
	require.Len(t, out, 2)

	marker, isBoundary := history.ParseBoundary(out[0])
	require.True(t, isBoundary)
	assert.Equal(t, history.TriggerAuto, marker.Trigger)
	assert.Positive(t, marker.PreTokens)
	assert.Contains(t, out[1].Text(), "building a CLI")

	// Summarization request carries no tools.
	assert.Empty(t, transport.lastReq.Tools)
}

func TestSummarizerOnlySummarizesSinceLastBoundary(t *testing.T) {
	transport := &fakeTransport{model: "test-model", reply: "recent work only"}
	s := NewSummarizer(transport)

	boundary := history.BoundaryMarker{Trigger: history.TriggerAuto, PreTokens: 10}
	messages := []llm.Message{
		llm.NewUserText("ancient message"),
		boundary.Message(),
		llm.NewUserText("recent message"),
	}
	_, ok := s.Run(context.Background(), messages)
	require.True(t, ok)

	// One window message plus the instruction.
	require.Len(t, transport.lastReq.Messages, 2)
	assert.Equal(t, "recent message", transport.lastReq.Messages[0].Text())
}

func TestSummarizerDeclines(t *testing.T) {
	messages := []llm.Message{llm.NewUserText("hello")}

	s := NewSummarizer(&fakeTransport{err: errors.New("connection refused")})
	_, ok := s.Run(context.Background(), messages)
	assert.False(t, ok)

	s = NewSummarizer(&fakeTransport{reply: "   "})
	_, ok = s.Run(context.Background(), messages)
	assert.False(t, ok)

	s = NewSummarizer(&fakeTransport{reply: "API error: overloaded"})
	_, ok = s.Run(context.Background(), messages)
	assert.False(t, ok)

	s = NewSummarizer(&fakeTransport{reply: "fine"})
	_, ok = s.Run(context.Background(), nil)
	assert.False(t, ok)
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.NewStore(filepath.Join(t.TempDir(), "memory.md"))
}

func TestMemoryFoldFirstRun(t *testing.T) {
	store := newTestStore(t)
	transport := &fakeTransport{model: "test-model", reply: "- user prefers tabs\n- project is a CLI"}
	fold := NewMemoryFold(transport, store)

	messages := []llm.Message{
		llm.NewUserText("old message one"),
		llm.NewAssistantText("old reply one"),
		llm.NewUserText("latest question"),
		llm.NewAssistantText("latest answer"),
	}
	result, ok := fold.Run(context.Background(), messages, "", 1_000_000)
	require.True(t, ok)

	marker, isBoundary := history.ParseBoundary(result.Messages[0])
	require.True(t, isBoundary)
	assert.Equal(t, result.TrackingID, marker.TrackingID)
	assert.NotEmpty(t, result.TrackingID)

	// Tail survives verbatim.
	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "latest answer", last.Text())

	content, err := store.Read()
	require.NoError(t, err)
	assert.Contains(t, content, "user prefers tabs")
}

func TestMemoryFoldIncremental(t *testing.T) {
	store := newTestStore(t)
	transport := &fakeTransport{model: "test-model", reply: "- incremental fact"}
	fold := NewMemoryFold(transport, store)

	boundary := history.BoundaryMarker{Trigger: history.TriggerAuto, PreTokens: 5, TrackingID: "deadbeef00000000"}
	messages := []llm.Message{
		llm.NewUserText("before the boundary"),
		boundary.Message(),
		llm.NewUserText("after one"),
		llm.NewAssistantText("after two"),
		llm.NewUserText("tail one"),
		llm.NewAssistantText("tail two"),
	}
	_, ok := fold.Run(context.Background(), messages, "deadbeef00000000", 1_000_000)
	require.True(t, ok)

	// Folded window excludes everything at or before the tracked boundary.
	for _, msg := range transport.lastReq.Messages {
		assert.NotContains(t, msg.Text(), "before the boundary")
	}
}

func TestMemoryFoldCarriesExistingDocument(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append("- project uses Go 1.25"))

	transport := &fakeTransport{model: "test-model", reply: "- a new fact"}
	fold := NewMemoryFold(transport, store)

	messages := []llm.Message{
		llm.NewUserText("one"),
		llm.NewAssistantText("two"),
		llm.NewUserText("three"),
		llm.NewAssistantText("four"),
	}
	_, ok := fold.Run(context.Background(), messages, "", 1_000_000)
	require.True(t, ok)

	// The fold request carries the document so facts are not restated.
	assert.Contains(t, transport.lastReq.SystemPrompt, "project uses Go 1.25")
}

func TestMemoryFoldDiscardsOversizedCandidate(t *testing.T) {
	store := newTestStore(t)
	transport := &fakeTransport{model: "test-model", reply: "- fact"}
	fold := NewMemoryFold(transport, store)

	messages := []llm.Message{
		llm.NewUserText("one"),
		llm.NewAssistantText("two"),
		llm.NewUserText("three"),
		llm.NewAssistantText("four"),
	}
	_, ok := fold.Run(context.Background(), messages, "", 1)
	assert.False(t, ok)

	// Nothing was persisted either.
	content, err := store.Read()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestMemoryFoldDeclinesSmallWindow(t *testing.T) {
	fold := NewMemoryFold(&fakeTransport{reply: "- fact"}, newTestStore(t))
	messages := []llm.Message{llm.NewUserText("one"), llm.NewAssistantText("two")}
	_, ok := fold.Run(context.Background(), messages, "", 1_000_000)
	assert.False(t, ok)
}

func TestCascadePrefersMemoryFold(t *testing.T) {
	store := newTestStore(t)
	transport := &fakeTransport{model: "test-model", reply: "- durable fact"}
	cascade := NewCascade(NewMemoryFold(transport, store), NewSummarizer(transport))

	messages := []llm.Message{
		llm.NewUserText("one"),
		llm.NewAssistantText("two"),
		llm.NewUserText("three"),
		llm.NewAssistantText("four"),
	}
	outcome, ok := cascade.Run(context.Background(), messages, "", 1_000_000)
	require.True(t, ok)
	assert.NotEmpty(t, outcome.TrackingID)
}

func TestCascadeFallsBackToSummarizer(t *testing.T) {
	failing := &fakeTransport{err: errors.New("boom")}
	working := &fakeTransport{model: "test-model", reply: "a plausible summary"}
	cascade := NewCascade(NewMemoryFold(failing, newTestStore(t)), NewSummarizer(working))

	messages := []llm.Message{
		llm.NewUserText("one"),
		llm.NewAssistantText("two"),
		llm.NewUserText("three"),
		llm.NewAssistantText("four"),
	}
	outcome, ok := cascade.Run(context.Background(), messages, "", 1_000_000)
	require.True(t, ok)
	assert.Empty(t, outcome.TrackingID)

	marker, isBoundary := history.ParseBoundary(outcome.Messages[0])
	require.True(t, isBoundary)
	assert.Equal(t, history.TriggerAuto, marker.Trigger)
}

func TestCascadeAllTiersDecline(t *testing.T) {
	failing := &fakeTransport{err: errors.New("boom")}
	cascade := NewCascade(NewMemoryFold(failing, newTestStore(t)), NewSummarizer(failing))

	messages := []llm.Message{
		llm.NewUserText("one"),
		llm.NewAssistantText("two"),
		llm.NewUserText("three"),
		llm.NewAssistantText("four"),
	}
	_, ok := cascade.Run(context.Background(), messages, "", 1_000_000)
	assert.False(t, ok)
}

func TestCascadeWithDisabledTiers(t *testing.T) {
	cascade := NewCascade(nil, nil)
	_, ok := cascade.Run(context.Background(), []llm.Message{llm.NewUserText("hi")}, "", 100)
	assert.False(t, ok)
}
