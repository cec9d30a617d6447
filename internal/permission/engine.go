package permission

import (
	"context"
	"time"

	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/tools"
)

// DefaultApprovalTimeout bounds how long a decision waits on the approval
// channel before resolving as deny.
const DefaultApprovalTimeout = 60 * time.Second

// Decision is the outcome of resolving one tool call.
type Decision struct {
	Allowed bool
	Reason  string
}

// PolicyVerdict is what an external policy hook may return.
type PolicyVerdict int

const (
	// PolicyDefer leaves the decision to the mode rules.
	PolicyDefer PolicyVerdict = iota
	PolicyAllow
	PolicyDeny
)

// PolicyHook lets an external collaborator decide before mode rules apply.
type PolicyHook func(ctx context.Context, toolName string, params map[string]interface{}) PolicyVerdict

// ApprovalChoice is a user's answer to an interactive prompt.
type ApprovalChoice int

const (
	ApprovalDeny ApprovalChoice = iota
	ApprovalAllowOnce
	ApprovalAllowAlways
)

// ApprovalRequest is sent on the approval channel when a decision needs user
// input. The receiver must reply on Reply exactly once.
type ApprovalRequest struct {
	ToolName string
	Params   map[string]interface{}
	Reply    chan ApprovalChoice
}

// SessionMemory records tools the user has allowed for the rest of the
// session.
type SessionMemory interface {
	IsToolApproved(name string) bool
	ApproveTool(name string)
}

// Engine resolves tool-call permissions. The mode provider is consulted on
// every decision so an operator toggling mode mid-conversation affects the
// next tool call.
type Engine struct {
	mode      func() Mode
	memory    SessionMemory
	policy    PolicyHook
	approvals chan<- *ApprovalRequest
	timeout   time.Duration
}

// NewEngine builds an engine. memory, policy and approvals may each be nil;
// a nil approvals channel makes every would-ask decision a deny.
func NewEngine(mode func() Mode, memory SessionMemory, policy PolicyHook, approvals chan<- *ApprovalRequest) *Engine {
	if mode == nil {
		mode = func() Mode { return ModeDefault }
	}
	return &Engine{
		mode:      mode,
		memory:    memory,
		policy:    policy,
		approvals: approvals,
		timeout:   DefaultApprovalTimeout,
	}
}

// SetApprovalTimeout overrides the interactive prompt timeout.
func (e *Engine) SetApprovalTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// Resolve decides one tool call. Resolution short-circuits at the first
// conclusive step: session memory, policy hook, mode rule, interactive
// prompt.
func (e *Engine) Resolve(ctx context.Context, toolName string, params map[string]interface{}) Decision {
	if e.memory != nil && e.memory.IsToolApproved(toolName) {
		return Decision{Allowed: true, Reason: "approved for session"}
	}

	if e.policy != nil {
		switch e.policy(ctx, toolName, params) {
		case PolicyAllow:
			return Decision{Allowed: true, Reason: "policy allow"}
		case PolicyDeny:
			logger.Warn("permission: policy denied tool %s", toolName)
			return Decision{Allowed: false, Reason: "policy deny"}
		}
	}

	switch e.mode() {
	case ModeBypass:
		return Decision{Allowed: true, Reason: "bypass mode"}
	case ModePlan:
		if tools.ReadOnlyNames()[toolName] {
			return Decision{Allowed: true, Reason: "read-only tool in plan mode"}
		}
		return Decision{Allowed: false, Reason: "plan mode allows read-only tools only"}
	case ModeAcceptEdits:
		if tools.EditNames()[toolName] {
			return Decision{Allowed: true, Reason: "edit tool in acceptEdits mode"}
		}
	case ModeDontAsk:
		return Decision{Allowed: false, Reason: "dontAsk mode denies unprompted tools"}
	}

	return e.ask(ctx, toolName, params)
}

func (e *Engine) ask(ctx context.Context, toolName string, params map[string]interface{}) Decision {
	if e.approvals == nil {
		return Decision{Allowed: false, Reason: "no approval channel"}
	}

	req := &ApprovalRequest{
		ToolName: toolName,
		Params:   params,
		Reply:    make(chan ApprovalChoice, 1),
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case e.approvals <- req:
	case <-timer.C:
		return Decision{Allowed: false, Reason: "approval timed out"}
	case <-ctx.Done():
		return Decision{Allowed: false, Reason: "canceled"}
	}

	select {
	case choice := <-req.Reply:
		switch choice {
		case ApprovalAllowOnce:
			return Decision{Allowed: true, Reason: "approved once"}
		case ApprovalAllowAlways:
			if e.memory != nil {
				e.memory.ApproveTool(toolName)
			}
			return Decision{Allowed: true, Reason: "approved for session"}
		}
		return Decision{Allowed: false, Reason: "denied by user"}
	case <-timer.C:
		return Decision{Allowed: false, Reason: "approval timed out"}
	case <-ctx.Done():
		return Decision{Allowed: false, Reason: "canceled"}
	}
}
