package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentloop/internal/tools"
)

type fakeMemory struct {
	approved map[string]bool
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{approved: make(map[string]bool)}
}

func (m *fakeMemory) IsToolApproved(name string) bool { return m.approved[name] }
func (m *fakeMemory) ApproveTool(name string)         { m.approved[name] = true }

func TestParseMode(t *testing.T) {
	for _, s := range []string{"default", "bypass", "plan", "acceptEdits", "dontAsk"} {
		mode, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), mode)
	}

	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDefault, mode)

	_, err = ParseMode("yolo")
	assert.Error(t, err)
}

func TestBypassModeAllowsEverything(t *testing.T) {
	e := NewEngine(func() Mode { return ModeBypass }, nil, nil, nil)
	d := e.Resolve(context.Background(), tools.ToolShell, nil)
	assert.True(t, d.Allowed)
}

func TestPlanModeAllowsOnlyReadOnly(t *testing.T) {
	e := NewEngine(func() Mode { return ModePlan }, nil, nil, nil)

	assert.True(t, e.Resolve(context.Background(), tools.ToolReadFile, nil).Allowed)
	assert.True(t, e.Resolve(context.Background(), tools.ToolSearchFiles, nil).Allowed)
	assert.False(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)
	assert.False(t, e.Resolve(context.Background(), tools.ToolEditFile, nil).Allowed)
}

func TestAcceptEditsAutoAllowsEdits(t *testing.T) {
	e := NewEngine(func() Mode { return ModeAcceptEdits }, nil, nil, nil)

	assert.True(t, e.Resolve(context.Background(), tools.ToolEditFile, nil).Allowed)
	// Non-edit tools fall through to the prompt; with no channel that is deny.
	assert.False(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)
}

func TestDontAskDeniesWouldAsk(t *testing.T) {
	e := NewEngine(func() Mode { return ModeDontAsk }, nil, nil, nil)
	assert.False(t, e.Resolve(context.Background(), tools.ToolReadFile, nil).Allowed)
}

func TestSessionMemoryShortCircuits(t *testing.T) {
	mem := newFakeMemory()
	mem.ApproveTool(tools.ToolShell)

	// Even dontAsk mode yields to session memory.
	e := NewEngine(func() Mode { return ModeDontAsk }, mem, nil, nil)
	assert.True(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)
}

func TestPolicyHookShortCircuits(t *testing.T) {
	allowAll := func(ctx context.Context, name string, params map[string]interface{}) PolicyVerdict {
		return PolicyAllow
	}
	e := NewEngine(func() Mode { return ModeDontAsk }, nil, allowAll, nil)
	assert.True(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)

	denyAll := func(ctx context.Context, name string, params map[string]interface{}) PolicyVerdict {
		return PolicyDeny
	}
	e = NewEngine(func() Mode { return ModeBypass }, nil, denyAll, nil)
	assert.False(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)

	deferAll := func(ctx context.Context, name string, params map[string]interface{}) PolicyVerdict {
		return PolicyDefer
	}
	e = NewEngine(func() Mode { return ModeBypass }, nil, deferAll, nil)
	assert.True(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)
}

func TestModeIsReadPerDecision(t *testing.T) {
	mode := ModePlan
	e := NewEngine(func() Mode { return mode }, nil, nil, nil)

	assert.False(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)

	mode = ModeBypass
	assert.True(t, e.Resolve(context.Background(), tools.ToolShell, nil).Allowed)
}

func TestInteractiveApproval(t *testing.T) {
	approvals := make(chan *ApprovalRequest, 1)
	mem := newFakeMemory()
	e := NewEngine(func() Mode { return ModeDefault }, mem, nil, approvals)

	go func() {
		req := <-approvals
		req.Reply <- ApprovalAllowAlways
	}()
	d := e.Resolve(context.Background(), tools.ToolShell, nil)
	assert.True(t, d.Allowed)
	assert.True(t, mem.IsToolApproved(tools.ToolShell))

	go func() {
		req := <-approvals
		req.Reply <- ApprovalDeny
	}()
	d = e.Resolve(context.Background(), tools.ToolEditFile, nil)
	assert.False(t, d.Allowed)
}

func TestApprovalTimeoutDenies(t *testing.T) {
	approvals := make(chan *ApprovalRequest, 1)
	e := NewEngine(func() Mode { return ModeDefault }, nil, nil, approvals)
	e.SetApprovalTimeout(20 * time.Millisecond)

	// Nobody reads the reply channel.
	d := e.Resolve(context.Background(), tools.ToolShell, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, "approval timed out", d.Reason)
}

func TestApprovalCanceledContext(t *testing.T) {
	approvals := make(chan *ApprovalRequest, 1)
	e := NewEngine(func() Mode { return ModeDefault }, nil, nil, approvals)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-approvals
		cancel()
	}()
	d := e.Resolve(ctx, tools.ToolShell, nil)
	assert.False(t, d.Allowed)
}
