package tools

import (
	"fmt"
	"strings"
)

const (
	// WrapThreshold is the output size above which tool results are replaced
	// by a preview envelope before entering conversation history.
	WrapThreshold = 400_000

	// previewLimit bounds the preview carried inside the envelope.
	previewLimit = 2_000

	wrapStartSentinel = "[tool output truncated]"
	wrapEndSentinel   = "[end truncated tool output"
)

// FormatResult renders a tool result as the text carried in its tool_result
// block. Failures are prefixed so the model can distinguish them from output
// that happens to mention errors.
func FormatResult(res *Result) string {
	if res == nil {
		return ""
	}
	if res.IsError() {
		return "Error: " + res.Error
	}
	return res.Output
}

// WrapOutput bounds oversized tool output. Text at or under WrapThreshold
// passes through unchanged; larger text is replaced by an envelope holding a
// short preview and the omitted byte count. The preview is cut at the last
// newline inside the preview window when that newline lies past the window's
// midpoint, otherwise hard at the limit.
func WrapOutput(text string) string {
	if len(text) <= WrapThreshold {
		return text
	}
	preview := text[:previewLimit]
	if idx := strings.LastIndexByte(preview, '\n'); idx > previewLimit/2 {
		preview = preview[:idx]
	}
	omitted := len(text) - len(preview)
	return fmt.Sprintf("%s\n%s\n%s omitted=true bytes_omitted=%d]",
		wrapStartSentinel, preview, wrapEndSentinel, omitted)
}

// IsWrapped reports whether content is a WrapOutput envelope. The compaction
// layer uses this to find results that are already preview-only.
func IsWrapped(content string) bool {
	return strings.HasPrefix(content, wrapStartSentinel)
}
