package core

import (
	"fmt"
	"time"
)

// WorkflowID uniquely identifies a workflow.
type WorkflowID string

// WorkflowType identifies the pipeline a workflow runs.
type WorkflowType string

const (
	WorkflowTypeSpecify   WorkflowType = "specify"
	WorkflowTypePlan      WorkflowType = "plan"
	WorkflowTypeTasks     WorkflowType = "tasks"
	WorkflowTypeImplement WorkflowType = "implement"
)

// AllWorkflowTypes returns the recognized workflow types.
func AllWorkflowTypes() []WorkflowType {
	return []WorkflowType{WorkflowTypeSpecify, WorkflowTypePlan, WorkflowTypeTasks, WorkflowTypeImplement}
}

// ParseWorkflowType validates a workflow type string.
func ParseWorkflowType(s string) (WorkflowType, error) {
	wt := WorkflowType(s)
	for _, t := range AllWorkflowTypes() {
		if wt == t {
			return wt, nil
		}
	}
	return "", ErrValidation(CodeInvalidWorkflowType,
		fmt.Sprintf("unknown workflow type %q", s))
}

// WorkflowStatus represents the authoritative state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending         WorkflowStatus = "pending"
	WorkflowStatusInProgress      WorkflowStatus = "in_progress"
	WorkflowStatusWaitingApproval WorkflowStatus = "waiting_approval"
	WorkflowStatusCompleted       WorkflowStatus = "completed"
	WorkflowStatusFailed          WorkflowStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// Trigger names an event that may advance the workflow state machine.
type Trigger string

const (
	TriggerStart         Trigger = "start"
	TriggerAgentComplete Trigger = "agent_complete"
	TriggerHumanApproved Trigger = "human_approved"
	TriggerHumanRejected Trigger = "human_rejected"
	TriggerError         Trigger = "error"
)

// transitions is the permitted (status, trigger) -> next status table.
// human_approved from waiting_approval is resolved by the engine against the
// workflow type's phase count (next phase vs. completed) and is represented
// here by the non-terminal target; the engine overrides it on the last phase.
var transitions = map[WorkflowStatus]map[Trigger]WorkflowStatus{
	WorkflowStatusPending: {
		TriggerStart: WorkflowStatusInProgress,
	},
	WorkflowStatusInProgress: {
		TriggerAgentComplete: WorkflowStatusWaitingApproval,
		TriggerError:         WorkflowStatusFailed,
	},
	WorkflowStatusWaitingApproval: {
		TriggerHumanApproved: WorkflowStatusInProgress,
		TriggerHumanRejected: WorkflowStatusInProgress,
		TriggerError:         WorkflowStatusFailed,
	},
}

// NextStatus resolves the transition table for a (status, trigger) pair.
func NextStatus(from WorkflowStatus, trigger Trigger) (WorkflowStatus, error) {
	if row, ok := transitions[from]; ok {
		if to, ok := row[trigger]; ok {
			return to, nil
		}
	}
	return "", ErrValidation(CodeInvalidStateTransition,
		fmt.Sprintf("trigger %q not permitted in status %q", trigger, from))
}

// Workflow is one instance of the multi-phase pipeline for a single feature.
type Workflow struct {
	ID                  WorkflowID             `json:"id"`
	Type                WorkflowType           `json:"workflow_type"`
	FeatureID           string                 `json:"feature_id"`
	FeatureDescription  string                 `json:"feature_description"`
	Context             map[string]interface{} `json:"context,omitempty"`
	Status              WorkflowStatus         `json:"status"`
	CurrentPhase        Phase                  `json:"current_phase"`
	PhaseStepsCompleted []string               `json:"phase_steps_completed"`
	IssueNumber         int                    `json:"issue_number,omitempty"`
	Result              map[string]interface{} `json:"result,omitempty"`
	Error               string                 `json:"error,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	CompletedAt         *time.Time             `json:"completed_at,omitempty"`
}

// NewWorkflow creates a workflow in the pending state on phase 1.
func NewWorkflow(id WorkflowID, wt WorkflowType, featureID, description string, context map[string]interface{}, now time.Time) *Workflow {
	return &Workflow{
		ID:                 id,
		Type:               wt,
		FeatureID:          featureID,
		FeatureDescription: description,
		Context:            context,
		Status:             WorkflowStatusPending,
		CurrentPhase:       PhaseFirst,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// StepCompleted reports whether a phase step has already been persisted.
func (w *Workflow) StepCompleted(step string) bool {
	for _, s := range w.PhaseStepsCompleted {
		if s == step {
			return true
		}
	}
	return false
}

// MarkStepCompleted appends a step to the completed ledger exactly once.
func (w *Workflow) MarkStepCompleted(step string) {
	if !w.StepCompleted(step) {
		w.PhaseStepsCompleted = append(w.PhaseStepsCompleted, step)
	}
}

// LastPhase reports whether the current phase is the final one for the type.
func (w *Workflow) LastPhase() bool {
	return PhaseOrder(w.CurrentPhase) >= PhaseCount(w.Type)
}

// Validate checks the workflow's own invariants.
func (w *Workflow) Validate() error {
	if (w.CompletedAt != nil) != (w.Status == WorkflowStatusCompleted) {
		return ErrState(CodePersistenceCorrupted,
			fmt.Sprintf("workflow %s: completed_at set does not match status %q", w.ID, w.Status))
	}
	if w.Error != "" && w.Status != WorkflowStatusFailed {
		return ErrState(CodePersistenceCorrupted,
			fmt.Sprintf("workflow %s: error set but status is %q", w.ID, w.Status))
	}
	return nil
}

// HistoryEntry records one committed state transition. Append-only.
type HistoryEntry struct {
	ID         string                 `json:"id"`
	WorkflowID WorkflowID             `json:"workflow_id"`
	FromStatus WorkflowStatus         `json:"from_status"`
	ToStatus   WorkflowStatus         `json:"to_status"`
	Trigger    Trigger                `json:"trigger"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
