package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/codefionn/agentloop/internal/logger"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicTransport implements Transport using the official Anthropic SDK.
type AnthropicTransport struct {
	client anthropic.Client
	model  string
}

// NewAnthropicTransport creates an Anthropic-backed transport.
func NewAnthropicTransport(apiKey, model string) (*AnthropicTransport, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic transport requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic transport requires a model identifier")
	}

	return &AnthropicTransport{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  model,
	}, nil
}

func (t *AnthropicTransport) ModelName() string {
	return t.model
}

func (t *AnthropicTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	params, err := t.buildParams(req)
	if err != nil {
		return nil, err
	}

	var raw *http.Response
	msg, err := t.client.Messages.New(ctx, params, option.WithResponseInto(&raw))
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	resp := &Response{
		Content:    blocksFromAnthropic(msg.Content),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	if raw != nil {
		resp.RateLimit = rateLimitFromHeaders(raw.Header)
	}
	return resp, nil
}

func (t *AnthropicTransport) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	params, err := t.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := t.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return nil, fmt.Errorf("anthropic stream failed: no stream returned")
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer stream.Close()

		// The current tool call id is tracked so argument deltas can be
		// attributed; blocks arrive strictly in order.
		currentToolID := ""
		stopReason := ""
		var usage Usage

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					currentToolID = ev.ContentBlock.ID
					if !emit(ctx, events, ToolCallStart{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}) {
						return
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !emit(ctx, events, TextDelta{Text: delta.Text}) {
						return
					}
				case anthropic.ThinkingDelta:
					if !emit(ctx, events, ThinkingDelta{Text: delta.Thinking}) {
						return
					}
				case anthropic.InputJSONDelta:
					if !emit(ctx, events, ToolCallDelta{ID: currentToolID, PartialJSON: delta.PartialJSON}) {
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					stopReason = string(ev.Delta.StopReason)
				}
				usage.OutputTokens = int(ev.Usage.OutputTokens)
			case anthropic.MessageStartEvent:
				usage.InputTokens = int(ev.Message.Usage.InputTokens)
			}
		}

		if err := stream.Err(); err != nil {
			emit(ctx, events, ErrorEvent{Err: fmt.Errorf("anthropic stream failed: %w", err)})
			return
		}

		if !emit(ctx, events, UsageEvent{Usage: usage}) {
			return
		}
		emit(ctx, events, StopEvent{Reason: stopReason})
	}()

	return events, nil
}

func (t *AnthropicTransport) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic request cannot be nil")
	}

	chatMessages, err := messagesToAnthropic(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(chatMessages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic request requires at least one message")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	model := req.Model
	if model == "" {
		model = t.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  chatMessages,
	}

	if sys := strings.TrimSpace(req.SystemPrompt); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toolDefsToAnthropic(req.Tools)
	}

	return params, nil
}

func messagesToAnthropic(messages []Message) ([]anthropic.MessageParam, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))

	for idx, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch b := block.(type) {
			case TextBlock:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case ThinkingBlock:
				// Reasoning is not replayed; the API rejects unsigned
				// thinking blocks in request history.
				continue
			case MediaBlock:
				blocks = append(blocks, anthropic.NewImageBlockBase64(b.MIMEType, b.Data))
			case ToolUseBlock:
				if b.ID == "" || b.Name == "" {
					return nil, fmt.Errorf("message %d has a tool_use block without id or name", idx)
				}
				input := b.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case ToolResultBlock:
				if b.ToolUseID == "" {
					return nil, fmt.Errorf("message %d has a tool_result block without tool_use_id", idx)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		chatMessages = append(chatMessages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	return chatMessages, nil
}

func toolDefsToAnthropic(tools []ToolDef) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if props, ok := def.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		if req := extractStringSlice(def.InputSchema["required"]); len(req) > 0 {
			schema.Required = req
		}

		tool := &anthropic.ToolParam{
			Name:        def.Name,
			InputSchema: schema,
			Type:        anthropic.ToolTypeCustom,
		}
		if def.Description != "" {
			tool.Description = anthropic.String(def.Description)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: tool})
	}
	return result
}

func blocksFromAnthropic(blocks []anthropic.ContentBlockUnion) []ContentBlock {
	result := make([]ContentBlock, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text":
			result = append(result, TextBlock{Text: block.Text})
		case "thinking":
			result = append(result, ThinkingBlock{Text: block.Thinking})
		case "tool_use":
			input := map[string]interface{}{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					logger.Warn("failed to decode tool_use input for %s: %v", block.ID, err)
				}
			}
			result = append(result, ToolUseBlock{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	return result
}

func extractStringSlice(raw interface{}) []string {
	switch value := raw.(type) {
	case []string:
		return value
	case []interface{}:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
