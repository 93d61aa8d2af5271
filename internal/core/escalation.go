package core

import (
	"fmt"
	"time"
)

// EscalationStatus is the lifecycle state of a human-review ticket.
type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "pending"
	EscalationStatusResolved EscalationStatus = "resolved"
)

// HumanAction is the closed set of ways a human can resolve an escalation.
type HumanAction string

const (
	ActionConfirm    HumanAction = "confirm"
	ActionCorrect    HumanAction = "correct"
	ActionAddContext HumanAction = "add_context"
)

// ParseHumanAction validates a human action string.
func ParseHumanAction(s string) (HumanAction, error) {
	switch a := HumanAction(s); a {
	case ActionConfirm, ActionCorrect, ActionAddContext:
		return a, nil
	default:
		return "", ErrValidation("INVALID_HUMAN_ACTION",
			fmt.Sprintf("unknown human action %q", s))
	}
}

// Escalation is a pending request for human review, opened when an
// answer's confidence falls below the topic threshold.
type Escalation struct {
	ID              string           `json:"id"`
	Question        Question         `json:"question"`
	TentativeAnswer Answer           `json:"tentative_answer"`
	ThresholdUsed   int              `json:"threshold_used"`
	Status          EscalationStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
	Responder       string           `json:"responder,omitempty"`
	HumanAction     HumanAction      `json:"human_action,omitempty"`
	HumanPayload    string           `json:"human_payload,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
}

// Resolve applies a human action. A resolved escalation rejects further
// responses.
func (e *Escalation) Resolve(action HumanAction, responder, payload string, now time.Time) error {
	if e.Status == EscalationStatusResolved {
		return ErrValidation(CodeEscalationAlreadyResolved,
			fmt.Sprintf("escalation %s already resolved by %s", e.ID, e.Responder))
	}
	e.Status = EscalationStatusResolved
	e.ResolvedAt = &now
	e.Responder = responder
	e.HumanAction = action
	e.HumanPayload = payload
	return nil
}
