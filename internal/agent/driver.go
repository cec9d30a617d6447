package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/agentloop/internal/compact"
	"github.com/codefionn/agentloop/internal/history"
	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/permission"
	"github.com/codefionn/agentloop/internal/session"
	"github.com/codefionn/agentloop/internal/tools"
)

// maxTurns bounds one prompt's tool-call cycles so the loop terminates even
// when the model keeps requesting tools.
const maxTurns = 50

// ErrInterrupted is returned when the caller cancels mid-turn. Content
// already produced is preserved in the session.
var ErrInterrupted = errors.New("interrupted")

// Callbacks stream driver progress to the caller. Any field may be nil.
type Callbacks struct {
	OnText      func(text string)
	OnThinking  func(text string)
	OnToolStart func(name string)
	OnToolDone  func(name string, isError bool)
}

// Driver runs the turn loop for one session. Turns are strictly sequential;
// the transport and registry are the only collaborators shared with other
// sessions and must be concurrency-safe.
type Driver struct {
	transport    llm.Transport
	registry     *tools.Registry
	perms        *permission.Engine
	cascade      *compact.Cascade
	sess         *session.Session
	systemPrompt string
	overrides    llm.BudgetOverrides

	// compactionDisabled is read per turn so a config reload takes effect
	// mid-conversation.
	compactionDisabled func() bool

	callbacks Callbacks
}

// Options configures a Driver.
type Options struct {
	Transport          llm.Transport
	Registry           *tools.Registry
	Permissions        *permission.Engine
	Cascade            *compact.Cascade
	Session            *session.Session
	SystemPrompt       string
	Overrides          llm.BudgetOverrides
	CompactionDisabled func() bool
	Callbacks          Callbacks
}

// New builds a Driver. Transport, Registry, Permissions and Session are
// required; a nil Cascade disables Tier-2/Tier-3 compaction.
func New(opts Options) (*Driver, error) {
	if opts.Transport == nil {
		return nil, errors.New("agent: transport is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("agent: tool registry is required")
	}
	if opts.Permissions == nil {
		return nil, errors.New("agent: permission engine is required")
	}
	if opts.Session == nil {
		return nil, errors.New("agent: session is required")
	}
	disabled := opts.CompactionDisabled
	if disabled == nil {
		disabled = func() bool { return false }
	}
	return &Driver{
		transport:          opts.Transport,
		registry:           opts.Registry,
		perms:              opts.Permissions,
		cascade:            opts.Cascade,
		sess:               opts.Session,
		systemPrompt:       opts.SystemPrompt,
		overrides:          opts.Overrides,
		compactionDisabled: disabled,
		callbacks:          opts.Callbacks,
	}, nil
}

// ProcessPrompt appends the user prompt and drives turns until the model
// stops requesting tools, maxTurns is reached, or the context is canceled.
// Returns the accumulated assistant text. Transport errors propagate without
// retry.
func (d *Driver) ProcessPrompt(ctx context.Context, prompt string) (string, error) {
	d.sess.AddMessage(llm.NewUserText(prompt))

	var answer strings.Builder
	for turn := 0; turn < maxTurns; turn++ {
		if ctx.Err() != nil {
			return answer.String(), ErrInterrupted
		}
		messages, budget := d.prepareHistory(ctx)

		req := &llm.Request{
			Model:        d.transport.ModelName(),
			SystemPrompt: d.systemPrompt,
			Messages:     messages,
			Tools:        d.registry.Defs(),
			MaxTokens:    budget.MaxOutputTokens,
		}

		events, err := d.transport.Stream(ctx, req)
		if err != nil {
			return answer.String(), fmt.Errorf("model request: %w", err)
		}

		blocks, stopReason, consumeErr := d.consume(ctx, events)
		if len(blocks) > 0 {
			d.sess.AddMessage(llm.Message{Role: llm.RoleAssistant, Content: blocks})
		}
		for _, block := range blocks {
			if text, ok := block.(llm.TextBlock); ok {
				answer.WriteString(text.Text)
			}
		}
		if consumeErr != nil {
			return answer.String(), consumeErr
		}

		toolUses := collectToolUses(blocks)
		if len(toolUses) > 0 {
			results, extra, execErr := d.runTools(ctx, toolUses)
			if len(results) > 0 {
				d.sess.AddMessage(llm.Message{Role: llm.RoleUser, Content: results})
			}
			for _, msg := range extra {
				d.sess.AddMessage(msg)
			}
			if execErr != nil {
				return answer.String(), execErr
			}
		}

		if stopReason == llm.StopToolUse && len(toolUses) > 0 {
			continue
		}
		if stopReason == llm.StopMaxTokens {
			logger.Warn("agent: response truncated at max output tokens")
		}
		return answer.String(), nil
	}

	logger.Warn("agent: stopping after %d turns", maxTurns)
	return answer.String(), nil
}

// prepareHistory runs eviction, repair and the compaction cascade, storing
// the result back on the session.
func (d *Driver) prepareHistory(ctx context.Context) ([]llm.Message, llm.TokenBudget) {
	messages := d.sess.History()

	if evicted, changed := compact.Microcompact(messages); changed {
		messages = evicted
	}
	messages = history.Repair(messages)

	budget := llm.ComputeBudget(d.transport.ModelName(), d.overrides)
	estimated := llm.EstimateHistory(messages)
	if estimated >= budget.AutoCompactThreshold && !d.compactionDisabled() && d.cascade != nil {
		logger.Info("agent: history at ~%d tokens (threshold %d), compacting", estimated, budget.AutoCompactThreshold)
		if outcome, ok := d.cascade.Run(ctx, messages, d.sess.MemoryTrackingID(), budget.AutoCompactThreshold); ok {
			messages = outcome.Messages
			if outcome.TrackingID != "" {
				d.sess.SetMemoryTrackingID(outcome.TrackingID)
			}
		}
	}

	d.sess.ReplaceHistory(messages)
	return messages, budget
}

// consume assembles streamed events into content blocks, in emission order.
// Cancellation is checked before each event; partial content is returned so
// the caller can preserve it.
func (d *Driver) consume(ctx context.Context, events <-chan llm.StreamEvent) ([]llm.ContentBlock, string, error) {
	var asm assembler
	stopReason := llm.StopEndTurn

	for {
		if ctx.Err() != nil {
			return asm.finish(), stopReason, ErrInterrupted
		}
		select {
		case <-ctx.Done():
			return asm.finish(), stopReason, ErrInterrupted
		case event, ok := <-events:
			if !ok {
				return asm.finish(), stopReason, nil
			}
			switch ev := event.(type) {
			case llm.TextDelta:
				asm.text(ev.Text)
				if d.callbacks.OnText != nil {
					d.callbacks.OnText(ev.Text)
				}
			case llm.ThinkingDelta:
				asm.thinking(ev.Text)
				if d.callbacks.OnThinking != nil {
					d.callbacks.OnThinking(ev.Text)
				}
			case llm.ToolCallStart:
				asm.toolStart(ev.ID, ev.Name)
			case llm.ToolCallDelta:
				asm.toolArgs(ev.PartialJSON)
			case llm.StopEvent:
				stopReason = ev.Reason
			case llm.UsageEvent:
				logger.Debug("agent: usage input=%d output=%d", ev.Usage.InputTokens, ev.Usage.OutputTokens)
			case llm.ErrorEvent:
				return asm.finish(), stopReason, fmt.Errorf("model stream: %w", ev.Err)
			}
		}
	}
}

// runTools executes tool calls in emission order. Permission denials and
// execution failures become error results; only cancellation aborts the
// remaining calls.
func (d *Driver) runTools(ctx context.Context, uses []llm.ToolUseBlock) ([]llm.ContentBlock, []llm.Message, error) {
	var results []llm.ContentBlock
	var extra []llm.Message

	for _, use := range uses {
		if ctx.Err() != nil {
			// Skipped calls still need results so history stays well-formed.
			for _, remaining := range uses[len(results):] {
				results = append(results, llm.ToolResultBlock{
					ToolUseID: remaining.ID,
					Content:   "execution interrupted: " + remaining.Name,
					IsError:   true,
				})
			}
			return results, extra, ErrInterrupted
		}

		if d.callbacks.OnToolStart != nil {
			d.callbacks.OnToolStart(use.Name)
		}

		var result *tools.Result
		decision := d.perms.Resolve(ctx, use.Name, use.Input)
		if !decision.Allowed {
			logger.Info("agent: tool %s denied: %s", use.Name, decision.Reason)
			result = tools.Errorf("permission denied: %s", decision.Reason)
		} else {
			result = d.registry.Execute(ctx, use.Name, use.Input)
		}

		content := tools.WrapOutput(tools.FormatResult(result))
		results = append(results, llm.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   content,
			IsError:   result.IsError(),
		})
		extra = append(extra, result.ExtraMessages...)

		if d.callbacks.OnToolDone != nil {
			d.callbacks.OnToolDone(use.Name, result.IsError())
		}
	}
	return results, extra, nil
}

func collectToolUses(blocks []llm.ContentBlock) []llm.ToolUseBlock {
	var uses []llm.ToolUseBlock
	for _, block := range blocks {
		if use, ok := block.(llm.ToolUseBlock); ok {
			uses = append(uses, use)
		}
	}
	return uses
}
