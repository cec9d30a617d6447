package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/codefionn/agentloop/internal/logger"
)

// OpenAITransport implements Transport against the OpenAI chat completions
// API (or any compatible server when a base URL is given).
type OpenAITransport struct {
	client openai.Client
	model  string
}

// NewOpenAITransport creates an OpenAI-backed transport. baseURL may be
// empty for the hosted API.
func NewOpenAITransport(apiKey, baseURL, model string) (*OpenAITransport, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openai transport requires a model identifier")
	}

	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")))
	}

	return &OpenAITransport{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (t *OpenAITransport) ModelName() string {
	return t.model
}

func (t *OpenAITransport) Send(ctx context.Context, req *Request) (*Response, error) {
	params, err := t.buildParams(req)
	if err != nil {
		return nil, err
	}

	var raw *http.Response
	completion, err := t.client.Chat.Completions.New(ctx, params, option.WithResponseInto(&raw))
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return &Response{StopReason: StopEndTurn}, nil
	}

	choice := completion.Choices[0]
	content := make([]ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		content = append(content, TextBlock{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		content = append(content, ToolUseBlock{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: decodeToolArguments(call.Function.Arguments),
		})
	}

	resp := &Response{
		Content:    content,
		StopReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	if raw != nil {
		resp.RateLimit = rateLimitFromHeaders(raw.Header)
	}
	return resp, nil
}

func (t *OpenAITransport) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	params, err := t.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := t.client.Chat.Completions.NewStreaming(ctx, params)
	if stream == nil {
		return nil, fmt.Errorf("openai stream failed: no stream returned")
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer stream.Close()

		// Tool call ids arrive only on the first chunk of each call; track
		// by index so argument deltas can be attributed.
		toolIDs := map[int64]string{}
		finishReason := ""
		var usage Usage

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage.InputTokens = int(chunk.Usage.PromptTokens)
				usage.OutputTokens = int(chunk.Usage.CompletionTokens)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !emit(ctx, events, TextDelta{Text: choice.Delta.Content}) {
						return
					}
				}
				for _, call := range choice.Delta.ToolCalls {
					if call.ID != "" {
						toolIDs[call.Index] = call.ID
						if !emit(ctx, events, ToolCallStart{ID: call.ID, Name: call.Function.Name}) {
							return
						}
					}
					if call.Function.Arguments != "" {
						if !emit(ctx, events, ToolCallDelta{ID: toolIDs[call.Index], PartialJSON: call.Function.Arguments}) {
							return
						}
					}
				}
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
			}
		}

		if err := stream.Err(); err != nil {
			emit(ctx, events, ErrorEvent{Err: fmt.Errorf("openai stream failed: %w", err)})
			return
		}

		if !emit(ctx, events, UsageEvent{Usage: usage}) {
			return
		}
		emit(ctx, events, StopEvent{Reason: mapOpenAIFinishReason(finishReason)})
	}()

	return events, nil
}

func (t *OpenAITransport) buildParams(req *Request) (openai.ChatCompletionNewParams, error) {
	if req == nil {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai request cannot be nil")
	}

	messages, err := messagesToOpenAI(req.SystemPrompt, req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai request requires at least one message")
	}

	model := req.Model
	if model == "" {
		model = t.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.InputSchema),
			},
		})
	}

	return params, nil
}

func messagesToOpenAI(systemPrompt string, messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		out = append(out, openai.SystemMessage(sys))
	}

	for idx, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text := msg.Text(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			for _, use := range msg.ToolUses() {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: use.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      use.Name,
						Arguments: MarshalInput(use.Input),
					},
				})
			}
			if assistant.Content.OfString.Valid() || len(assistant.ToolCalls) > 0 {
				out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			}
		case RoleUser:
			// Tool results become separate tool-role messages on this API;
			// remaining text collapses into one user message.
			for _, result := range msg.ToolResults() {
				if result.ToolUseID == "" {
					return nil, fmt.Errorf("message %d has a tool_result block without tool_use_id", idx)
				}
				content := result.Content
				if result.IsError && !strings.HasPrefix(content, "Error") {
					content = "Error: " + content
				}
				out = append(out, openai.ToolMessage(content, result.ToolUseID))
			}
			if text := msg.Text(); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		default:
			return nil, fmt.Errorf("message %d has unsupported role %q", idx, msg.Role)
		}
	}

	return out, nil
}

func mapOpenAIFinishReason(reason string) string {
	switch reason {
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

func decodeToolArguments(raw string) map[string]interface{} {
	input := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return input
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		logger.Warn("failed to decode tool call arguments: %v", err)
	}
	return input
}
