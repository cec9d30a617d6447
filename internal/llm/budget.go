package llm

import (
	"os"
	"strconv"
	"strings"

	"github.com/codefionn/agentloop/internal/logger"
)

const (
	// Context window sizes by model class.
	standardContextWindow = 200_000
	extendedContextWindow = 1_000_000

	// Max output tiers. Current-generation "4.5"-class models stream up to
	// 64k output tokens; everything else is capped at 32k.
	maxOutputCurrentTier = 64_000
	maxOutputDefaultTier = 32_000

	// reservedMemoryBuffer is held back from the auto-compact threshold so a
	// durable-memory fold always has room to write its summary.
	reservedMemoryBuffer = 13_000
)

// EnvMaxOutputTokens can lower (never raise) the tiered max output default.
const EnvMaxOutputTokens = "AGENTLOOP_MAX_OUTPUT_TOKENS"

// TokenBudget is derived fresh per turn from the model identifier and the
// configured overrides; it is never stored.
type TokenBudget struct {
	ContextWindow        int
	MaxOutputTokens      int
	AvailableInput       int
	AutoCompactThreshold int
}

// BudgetOverrides carries the tighten-only configuration knobs.
type BudgetOverrides struct {
	// MaxOutputTokens lowers the tier default when in (0, tier default).
	MaxOutputTokens int
	// AutoCompactPercent scales the auto-compact threshold when in (0, 1).
	AutoCompactPercent float64
}

// ContextWindow returns the input context window for a model identifier.
// Unknown identifiers get the standard window.
func ContextWindow(model string) int {
	if hasExtendedContextMarker(model) {
		return extendedContextWindow
	}
	return standardContextWindow
}

func hasExtendedContextMarker(model string) bool {
	id := strings.ToLower(strings.TrimSpace(model))
	return strings.Contains(id, "[1m]") || strings.HasSuffix(id, "-1m")
}

// MaxOutputTokens returns the tiered max output default for a model,
// lowered by the environment override when one is set.
func MaxOutputTokens(model string) int {
	tier := maxOutputTier(model)

	raw := strings.TrimSpace(os.Getenv(EnvMaxOutputTokens))
	if raw == "" {
		return tier
	}

	override, err := strconv.Atoi(raw)
	if err != nil || override <= 0 {
		logger.Warn("ignoring invalid %s=%q", EnvMaxOutputTokens, raw)
		return tier
	}
	if override > tier {
		// The override can only tighten the budget.
		logger.Warn("%s=%d exceeds tier default %d, keeping default", EnvMaxOutputTokens, override, tier)
		return tier
	}
	return override
}

func maxOutputTier(model string) int {
	id := strings.ToLower(strings.TrimSpace(model))
	if strings.Contains(id, "4-5") || strings.Contains(id, "4.5") {
		return maxOutputCurrentTier
	}
	return maxOutputDefaultTier
}

// ComputeBudget derives the full token budget for a model identifier.
// Override values outside their valid range are rejected, not clamped.
func ComputeBudget(model string, overrides BudgetOverrides) TokenBudget {
	window := ContextWindow(model)

	maxOutput := MaxOutputTokens(model)
	if overrides.MaxOutputTokens > 0 {
		if overrides.MaxOutputTokens <= maxOutput {
			maxOutput = overrides.MaxOutputTokens
		} else {
			logger.Warn("configured max output tokens %d exceeds default %d, keeping default", overrides.MaxOutputTokens, maxOutput)
		}
	}

	available := window - maxOutput
	threshold := available - reservedMemoryBuffer

	if pct := overrides.AutoCompactPercent; pct != 0 {
		if pct > 0 && pct < 1 {
			threshold = int(float64(threshold) * pct)
		} else if pct != 1 {
			logger.Warn("configured auto-compact percent %.2f out of range (0,1], keeping unscaled threshold", pct)
		}
	}

	return TokenBudget{
		ContextWindow:        window,
		MaxOutputTokens:      maxOutput,
		AvailableInput:       available,
		AutoCompactThreshold: threshold,
	}
}
