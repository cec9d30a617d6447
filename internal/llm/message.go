package llm

import (
	"encoding/gob"
	"encoding/json"
)

// Roles for conversation messages. The wire protocol only knows user and
// assistant; tool results travel inside user messages as content blocks.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock is the closed set of block kinds a message can carry.
// Every consumer switches exhaustively over the concrete types; new kinds
// are added here and nowhere else.
type ContentBlock interface {
	blockKind() string
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string `json:"text"`
}

// ThinkingBlock carries model reasoning that is kept in history but never
// rendered to the operator.
type ThinkingBlock struct {
	Text string `json:"text"`
}

// MediaBlock is inline binary content such as an image.
type MediaBlock struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

// ToolUseBlock is a model-requested tool invocation.
type ToolUseBlock struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// ToolResultBlock is the outcome of a tool invocation, paired to its
// ToolUseBlock by ToolUseID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) blockKind() string       { return "text" }
func (ThinkingBlock) blockKind() string   { return "thinking" }
func (MediaBlock) blockKind() string      { return "media" }
func (ToolUseBlock) blockKind() string    { return "tool_use" }
func (ToolResultBlock) blockKind() string { return "tool_result" }

// Message represents a conversation message. The driver exclusively creates
// and appends messages; a message is immutable once appended except when a
// compaction tier replaces the whole history.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

func init() {
	// Block types cross the gob boundary inside session storage.
	gob.Register(TextBlock{})
	gob.Register(ThinkingBlock{})
	gob.Register(MediaBlock{})
	gob.Register(ToolUseBlock{})
	gob.Register(ToolResultBlock{})
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// NewUserText returns a user message holding a single text block.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantText returns an assistant message holding a single text block.
func NewAssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: text}}}
}

// Text concatenates the message's visible text blocks.
func (m Message) Text() string {
	var out string
	for _, block := range m.Content {
		if tb, ok := block.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of the message in emission order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range m.Content {
		if tu, ok := block.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// ToolResults returns the tool_result blocks of the message.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, block := range m.Content {
		if tr, ok := block.(ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	return results
}

// HasToolResults reports whether the message carries at least one
// tool_result block.
func (m Message) HasToolResults() bool {
	for _, block := range m.Content {
		if _, ok := block.(ToolResultBlock); ok {
			return true
		}
	}
	return false
}

// MarshalInput renders a tool_use input as compact JSON, for token
// estimation and logging.
func MarshalInput(input map[string]interface{}) string {
	if len(input) == 0 {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(data)
}
