package core

import (
	"fmt"
	"strings"
)

// SignalType names a textual pattern watched for in issue comments.
type SignalType string

const (
	SignalAgentComplete SignalType = "AGENT_COMPLETE"
	SignalHumanApproval SignalType = "HUMAN_APPROVAL"
)

const agentCompleteGlyph = "✅"

// ParseSignalType validates a signal type string.
func ParseSignalType(s string) (SignalType, error) {
	switch st := SignalType(strings.ToUpper(s)); st {
	case SignalAgentComplete, SignalHumanApproval:
		return st, nil
	default:
		return "", ErrValidation("INVALID_SIGNAL_TYPE",
			fmt.Sprintf("unknown signal type %q", s))
	}
}

// Matches reports whether a comment body carries the signal. Agent
// completion is the check-mark glyph; human approval is the
// case-insensitive substring "approved". Detection runs against the full
// body.
func (s SignalType) Matches(body string) bool {
	switch s {
	case SignalAgentComplete:
		return strings.Contains(body, agentCompleteGlyph)
	case SignalHumanApproval:
		return strings.Contains(strings.ToLower(body), "approved")
	default:
		return false
	}
}
