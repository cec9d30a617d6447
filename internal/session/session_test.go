package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentloop/internal/llm"
)

func TestSessionHistory(t *testing.T) {
	s := New("/tmp/work")
	assert.Equal(t, "/tmp/work", s.WorkingDir())
	assert.NotEmpty(t, s.ID())
	assert.Zero(t, s.Len())

	s.AddMessage(llm.NewUserText("hello"))
	s.AddMessage(llm.NewAssistantText("hi"))
	assert.Equal(t, 2, s.Len())

	// History returns a copy; appending to it does not affect the session.
	h := s.History()
	_ = append(h, llm.NewUserText("extra"))
	assert.Equal(t, 2, s.Len())

	s.ReplaceHistory([]llm.Message{llm.NewUserText("only")})
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "only", s.History()[0].Text())
}

func TestSessionApprovals(t *testing.T) {
	s := New(".")
	assert.False(t, s.IsToolApproved("shell"))
	s.ApproveTool("shell")
	assert.True(t, s.IsToolApproved("shell"))

	s.Clear()
	assert.False(t, s.IsToolApproved("shell"))
	assert.Zero(t, s.Len())
}

func TestSessionTrackingID(t *testing.T) {
	s := New(".")
	assert.Empty(t, s.MemoryTrackingID())
	s.SetMemoryTrackingID("abc123")
	assert.Equal(t, "abc123", s.MemoryTrackingID())
}

func TestStorageRoundTrip(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	s := New("/tmp/work")
	s.AddMessage(llm.NewUserText("question"))
	s.AddMessage(llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{
		llm.TextBlock{Text: "using a tool"},
		llm.ToolUseBlock{ID: "t1", Name: "read_file", Input: map[string]interface{}{"path": "a.txt"}},
	}})
	s.AddMessage(llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{
		llm.ToolResultBlock{ToolUseID: "t1", Content: "file contents"},
	}})
	s.ApproveTool("shell")
	s.SetMemoryTrackingID("feedc0de00000000")

	require.True(t, s.Dirty())
	require.NoError(t, storage.Save(s))
	assert.False(t, s.Dirty())

	loaded, err := storage.Load(s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), loaded.ID())
	assert.Equal(t, "/tmp/work", loaded.WorkingDir())
	assert.Equal(t, 3, loaded.Len())
	assert.True(t, loaded.IsToolApproved("shell"))
	assert.Equal(t, "feedc0de00000000", loaded.MemoryTrackingID())

	uses := loaded.History()[1].ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "t1", uses[0].ID)
}

func TestStorageListAndDelete(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	s := New(".")
	require.NoError(t, storage.Save(s))

	ids, err := storage.List()
	require.NoError(t, err)
	assert.Contains(t, ids, s.ID())

	require.NoError(t, storage.Delete(s.ID()))
	ids, err = storage.List()
	require.NoError(t, err)
	assert.NotContains(t, ids, s.ID())

	_, err = storage.Load(s.ID())
	assert.Error(t, err)
}
