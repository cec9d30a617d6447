package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWindow(t *testing.T) {
	assert.Equal(t, 200_000, ContextWindow("x-opus-4"))
	assert.Equal(t, 200_000, ContextWindow("some-unknown-model"))
	assert.Equal(t, 1_000_000, ContextWindow("x-sonnet-4-5[1m]"))
	assert.Equal(t, 1_000_000, ContextWindow("x-sonnet-4-1m"))
}

func TestMaxOutputTokensTiers(t *testing.T) {
	assert.Equal(t, 64_000, MaxOutputTokens("x-sonnet-4-5"))
	assert.Equal(t, 64_000, MaxOutputTokens("x-haiku-4.5"))
	assert.Equal(t, 32_000, MaxOutputTokens("x-opus-4"))
	assert.Equal(t, 32_000, MaxOutputTokens("gpt-whatever"))
}

func TestMaxOutputTokensEnvOverride(t *testing.T) {
	t.Setenv(EnvMaxOutputTokens, "16000")
	assert.Equal(t, 16_000, MaxOutputTokens("x-sonnet-4-5"))

	// Raising above the tier default is refused.
	t.Setenv(EnvMaxOutputTokens, "90000")
	assert.Equal(t, 64_000, MaxOutputTokens("x-sonnet-4-5"))

	// Garbage is refused.
	t.Setenv(EnvMaxOutputTokens, "lots")
	assert.Equal(t, 32_000, MaxOutputTokens("x-opus-4"))

	t.Setenv(EnvMaxOutputTokens, "-5")
	assert.Equal(t, 32_000, MaxOutputTokens("x-opus-4"))
}

func TestComputeBudgetOpus4Scenario(t *testing.T) {
	budget := ComputeBudget("x-opus-4", BudgetOverrides{})
	assert.Equal(t, 200_000, budget.ContextWindow)
	assert.Equal(t, 32_000, budget.MaxOutputTokens)
	assert.Equal(t, 168_000, budget.AvailableInput)
	assert.Equal(t, 168_000-13_000, budget.AutoCompactThreshold)
}

func TestComputeBudgetOverrides(t *testing.T) {
	budget := ComputeBudget("x-opus-4", BudgetOverrides{MaxOutputTokens: 8_000})
	assert.Equal(t, 8_000, budget.MaxOutputTokens)
	assert.Equal(t, 192_000, budget.AvailableInput)

	// Raising is refused.
	budget = ComputeBudget("x-opus-4", BudgetOverrides{MaxOutputTokens: 48_000})
	assert.Equal(t, 32_000, budget.MaxOutputTokens)

	// Percent scales the threshold down.
	base := ComputeBudget("x-opus-4", BudgetOverrides{})
	scaled := ComputeBudget("x-opus-4", BudgetOverrides{AutoCompactPercent: 0.5})
	assert.Equal(t, base.AutoCompactThreshold/2, scaled.AutoCompactThreshold)

	// Out-of-range percentages are rejected, not clamped.
	loosened := ComputeBudget("x-opus-4", BudgetOverrides{AutoCompactPercent: 1.5})
	assert.Equal(t, base.AutoCompactThreshold, loosened.AutoCompactThreshold)
	negative := ComputeBudget("x-opus-4", BudgetOverrides{AutoCompactPercent: -0.3})
	assert.Equal(t, base.AutoCompactThreshold, negative.AutoCompactThreshold)
}

func TestBudgetMonotonicity(t *testing.T) {
	// A larger window with equal or smaller max output never shrinks the
	// available input.
	larger := ComputeBudget("x-sonnet-4-1m", BudgetOverrides{MaxOutputTokens: 32_000})
	smaller := ComputeBudget("x-opus-4", BudgetOverrides{})
	assert.GreaterOrEqual(t, larger.AvailableInput, smaller.AvailableInput)
}
