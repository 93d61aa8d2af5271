package core

import "fmt"

// Phase identifies a contiguous sub-unit of a workflow. Phases are named
// phase_1..phase_N and end at a human-approval gate.
type Phase string

const (
	PhaseFirst  Phase = "phase_1"
	PhaseSecond Phase = "phase_2"
)

// PhaseOrder returns the 1-based position of a phase, or -1 if unrecognized.
func PhaseOrder(p Phase) int {
	switch p {
	case PhaseFirst:
		return 1
	case PhaseSecond:
		return 2
	default:
		return -1
	}
}

// NextPhase returns the phase following the given phase.
func NextPhase(p Phase) Phase {
	n := PhaseOrder(p)
	if n < 1 {
		return ""
	}
	return Phase(fmt.Sprintf("phase_%d", n+1))
}

// PhaseCount returns the number of phases for a workflow type.
// specify and plan run a setup phase and an agent phase; tasks and
// implement run a single agent phase.
func PhaseCount(wt WorkflowType) int {
	switch wt {
	case WorkflowTypeSpecify, WorkflowTypePlan:
		return 2
	case WorkflowTypeTasks, WorkflowTypeImplement:
		return 1
	default:
		return 0
	}
}

// Canonical step names within phases. Each step is idempotent and is
// persisted on the workflow's step ledger exactly once on success.
const (
	StepIssue    = "issue"
	StepBranch   = "branch"
	StepWorktree = "worktree"
	StepPlans    = "plans"

	StepDispatch      = "dispatch"
	StepAwaitAgent    = "await_agent"
	StepAwaitApproval = "await_approval"
)

// PhaseSteps returns the ordered step list for a phase of a workflow type.
// Single-phase workflow types run the agent phase directly.
func PhaseSteps(wt WorkflowType, p Phase) []string {
	setup := []string{StepIssue, StepBranch, StepWorktree, StepPlans}
	agent := []string{StepDispatch, StepAwaitAgent, StepAwaitApproval}

	switch PhaseCount(wt) {
	case 2:
		switch p {
		case PhaseFirst:
			return setup
		case PhaseSecond:
			return agent
		}
	case 1:
		if p == PhaseFirst {
			return agent
		}
	}
	return nil
}
