package history

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/codefionn/agentloop/internal/llm"
)

// Compaction trigger kinds recorded on a boundary marker.
const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

// boundarySentinel opens the text of every compaction boundary marker.
// Markers are located by this prefix via backward scan.
const boundarySentinel = "[conversation compacted"

// BoundaryMarker marks the point before which history was compacted away.
// It is created only by the compaction cascade and never mutated.
type BoundaryMarker struct {
	Trigger   string
	PreTokens int
	// TrackingID is set only by durable-memory compaction and enables
	// incremental resumption of the fold.
	TrackingID string
}

// Message renders the marker as a user message carrying the sentinel text.
func (b BoundaryMarker) Message() llm.Message {
	var sb strings.Builder
	sb.WriteString(boundarySentinel)
	fmt.Fprintf(&sb, " trigger=%s pre_tokens=%d", b.Trigger, b.PreTokens)
	if b.TrackingID != "" {
		fmt.Fprintf(&sb, " track=%s", b.TrackingID)
	}
	sb.WriteString("]")
	return llm.NewUserText(sb.String())
}

// ParseBoundary reports whether msg is a compaction boundary marker and
// decodes it.
func ParseBoundary(msg llm.Message) (BoundaryMarker, bool) {
	if msg.Role != llm.RoleUser || len(msg.Content) == 0 {
		return BoundaryMarker{}, false
	}
	tb, ok := msg.Content[0].(llm.TextBlock)
	if !ok || !strings.HasPrefix(tb.Text, boundarySentinel) {
		return BoundaryMarker{}, false
	}

	body := strings.TrimSuffix(strings.TrimPrefix(tb.Text, boundarySentinel), "]")
	marker := BoundaryMarker{}
	for _, field := range strings.Fields(body) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "trigger":
			marker.Trigger = value
		case "pre_tokens":
			if n, err := strconv.Atoi(value); err == nil {
				marker.PreTokens = n
			}
		case "track":
			marker.TrackingID = value
		}
	}
	return marker, true
}

// LastBoundaryIndex returns the index of the most recent boundary marker,
// or -1 when none exists.
func LastBoundaryIndex(messages []llm.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if _, ok := ParseBoundary(messages[i]); ok {
			return i
		}
	}
	return -1
}

// BoundaryIndexWithTrackingID returns the index of the most recent boundary
// marker carrying the given tracking id, or -1.
func BoundaryIndexWithTrackingID(messages []llm.Message, trackingID string) int {
	if trackingID == "" {
		return -1
	}
	for i := len(messages) - 1; i >= 0; i-- {
		marker, ok := ParseBoundary(messages[i])
		if ok && marker.TrackingID == trackingID {
			return i
		}
	}
	return -1
}
