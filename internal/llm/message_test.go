package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAccessors(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentBlock{
		ThinkingBlock{Text: "let me check"},
		TextBlock{Text: "reading the file "},
		TextBlock{Text: "now"},
		ToolUseBlock{ID: "t1", Name: "read_file", Input: map[string]interface{}{"path": "a.txt"}},
	}}

	// Text concatenates text blocks only.
	assert.Equal(t, "reading the file now", msg.Text())

	uses := msg.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "read_file", uses[0].Name)

	assert.Empty(t, msg.ToolResults())
	assert.False(t, msg.HasToolResults())

	result := Message{Role: RoleUser, Content: []ContentBlock{
		ToolResultBlock{ToolUseID: "t1", Content: "data"},
	}}
	assert.True(t, result.HasToolResults())
	require.Len(t, result.ToolResults(), 1)
}

func TestMarshalInput(t *testing.T) {
	assert.Equal(t, "{}", MarshalInput(nil))
	out := MarshalInput(map[string]interface{}{"path": "a.txt"})
	assert.JSONEq(t, `{"path":"a.txt"}`, out)
}

func TestEstimateText(t *testing.T) {
	assert.Equal(t, 0, EstimateText(""))
	assert.Equal(t, 1, EstimateText("a"))
	assert.Equal(t, 1, EstimateText("abcd"))
	assert.Equal(t, 2, EstimateText("abcde"))
}

func TestEstimateBlockKinds(t *testing.T) {
	assert.Equal(t, 1, EstimateBlock(TextBlock{Text: "abcd"}))
	assert.Equal(t, 1, EstimateBlock(ThinkingBlock{Text: "abcd"}))
	assert.Equal(t, 2, EstimateBlock(MediaBlock{MIMEType: "image/png", Data: "12345678"}))
	assert.Equal(t, 1, EstimateBlock(ToolResultBlock{Content: "abcd"}))

	// tool_use counts the name and the marshalled input.
	use := ToolUseBlock{ID: "t1", Name: "shell", Input: map[string]interface{}{"command": "ls"}}
	assert.Equal(t, EstimateText("shell"+MarshalInput(use.Input)), EstimateBlock(use))
}

func TestEstimateHistorySums(t *testing.T) {
	messages := []Message{
		NewUserText("abcd"),
		NewAssistantText("efgh"),
	}
	assert.Equal(t, 2, EstimateHistory(messages))
	assert.Equal(t, 0, EstimateHistory(nil))
}
