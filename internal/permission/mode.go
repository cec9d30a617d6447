package permission

import "fmt"

// Mode controls how tool calls are authorized.
type Mode string

const (
	// ModeDefault asks for every tool call not otherwise resolved.
	ModeDefault Mode = "default"
	// ModeBypass allows everything without asking.
	ModeBypass Mode = "bypass"
	// ModePlan allows only read-only tools and denies the rest.
	ModePlan Mode = "plan"
	// ModeAcceptEdits auto-allows file edits and asks for the rest.
	ModeAcceptEdits Mode = "acceptEdits"
	// ModeDontAsk denies anything that would otherwise prompt.
	ModeDontAsk Mode = "dontAsk"
)

// ParseMode validates a mode string from configuration or the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDefault, ModeBypass, ModePlan, ModeAcceptEdits, ModeDontAsk:
		return Mode(s), nil
	case "":
		return ModeDefault, nil
	}
	return "", fmt.Errorf("unknown permission mode: %q", s)
}
