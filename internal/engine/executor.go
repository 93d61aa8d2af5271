package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
	"github.com/specforge/specforge/internal/poller"
)

// Adapters bundles the external capabilities phase steps consume.
type Adapters struct {
	Runner    core.AgentRunner
	Board     core.IssueBoard
	Workspace core.WorkspaceManager
}

// SignalWatcher is the poller capability the executor blocks on.
type SignalWatcher interface {
	Poll(ctx context.Context, req poller.Request) (*poller.Result, error)
}

// ExecutorConfig carries phase execution settings.
type ExecutorConfig struct {
	DefaultAgentID string
	DefaultModel   string
	AgentTimeout   time.Duration
	PollTimeout    time.Duration
	PollInterval   time.Duration
}

// Executor runs the ordered step list of a workflow's current phase. Every
// completed step is persisted before the next starts, so re-entry after a
// crash or failure resumes from the first incomplete step.
type Executor struct {
	engine   *Engine
	adapters Adapters
	watcher  SignalWatcher
	cfg      ExecutorConfig
	logger   *logging.Logger
}

// NewExecutor creates a phase executor bound to an engine.
func NewExecutor(eng *Engine, adapters Adapters, watcher SignalWatcher, cfg ExecutorConfig, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{engine: eng, adapters: adapters, watcher: watcher, cfg: cfg, logger: logger}
}

// RunPhase executes the remaining steps of the workflow's current phase,
// advancing the state machine at phase boundaries. Failed steps leave the
// workflow in_progress with partial progress persisted; a later RunPhase
// resumes. Non-retryable failures transition the workflow to failed first.
func (x *Executor) RunPhase(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	wf, err := x.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Status.Terminal() {
		return nil, core.ErrValidation(core.CodeInvalidStateTransition,
			fmt.Sprintf("workflow %s is %s", id, wf.Status))
	}

	steps := core.PhaseSteps(wf.Type, wf.CurrentPhase)
	if len(steps) == 0 {
		return nil, core.ErrState(core.CodePersistenceCorrupted,
			fmt.Sprintf("workflow %s: no steps for phase %s", id, wf.CurrentPhase))
	}

	logger := x.logger.WithWorkflow(string(id)).WithFeature(wf.FeatureID)
	for _, step := range steps {
		if wf.StepCompleted(step) {
			logger.Debug("skipping completed step", "step", step)
			continue
		}
		logger.Info("running step", "step", step, "phase", string(wf.CurrentPhase))

		wf, err = x.runStep(ctx, wf, step)
		if err != nil {
			return nil, x.failStep(ctx, id, step, err, logger)
		}
		if wf.Status.Terminal() {
			return wf, nil
		}
	}

	// Setup phases have no await_approval step of their own: they end in
	// waiting_approval after the artifact tree lands, and the approval gate
	// is watched here.
	if wf.Status == core.WorkflowStatusWaitingApproval {
		wf, err = x.stepAwaitApproval(ctx, wf)
		if err != nil {
			return nil, x.failStep(ctx, id, core.StepAwaitApproval, err, logger)
		}
	}
	return wf, nil
}

// Run drives a workflow phase by phase until it reaches a terminal status.
func (x *Executor) Run(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	for {
		wf, err := x.RunPhase(ctx, id)
		if err != nil {
			return nil, err
		}
		if wf.Status.Terminal() {
			return wf, nil
		}
	}
}

// failStep persists a terminal transition for non-retryable step errors and
// propagates the original failure either way.
func (x *Executor) failStep(ctx context.Context, id core.WorkflowID, step string, stepErr error, logger *logging.Logger) error {
	logger.Error("step failed", "step", step, "error", stepErr)

	var domErr *core.DomainError
	if errors.As(stepErr, &domErr) && !domErr.Retryable {
		payload := map[string]interface{}{"error": stepErr.Error(), "step": step}
		if _, err := x.engine.Advance(ctx, id, core.TriggerError, payload); err != nil {
			logger.Error("recording failure transition", "error", err)
		}
	}
	return stepErr
}

func (x *Executor) runStep(ctx context.Context, wf *core.Workflow, step string) (*core.Workflow, error) {
	switch step {
	case core.StepIssue:
		return x.stepIssue(ctx, wf)
	case core.StepBranch:
		return x.stepBranch(ctx, wf)
	case core.StepWorktree:
		return x.stepWorktree(ctx, wf)
	case core.StepPlans:
		return x.stepPlans(ctx, wf)
	case core.StepDispatch:
		return x.stepDispatch(ctx, wf)
	case core.StepAwaitAgent:
		return x.stepAwaitAgent(ctx, wf)
	case core.StepAwaitApproval:
		return x.stepAwaitApproval(ctx, wf)
	default:
		return nil, core.ErrInternal(fmt.Sprintf("unknown step %q", step))
	}
}

func (x *Executor) stepIssue(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	issue, err := x.adapters.Board.CreateIssue(ctx, core.CreateIssueOptions{
		Title:  fmt.Sprintf("%s: %s", wf.FeatureID, wf.FeatureDescription),
		Body:   fmt.Sprintf("Feature `%s` (%s workflow).\n\n%s", wf.FeatureID, wf.Type, wf.FeatureDescription),
		Labels: []string{"specforge", string(wf.Type)},
	})
	if err != nil {
		return nil, err
	}
	return x.engine.persistStep(ctx, wf.ID, core.StepIssue, func(w *core.Workflow) {
		w.IssueNumber = issue.Number
	})
}

func (x *Executor) stepBranch(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	exists, err := x.adapters.Workspace.BranchExists(ctx, wf.FeatureID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.ErrValidation("BRANCH_EXISTS",
			fmt.Sprintf("branch %s already exists", wf.FeatureID))
	}
	if err := x.adapters.Workspace.CreateBranch(ctx, wf.FeatureID); err != nil {
		return nil, err
	}
	return x.engine.persistStep(ctx, wf.ID, core.StepBranch, nil)
}

func (x *Executor) stepWorktree(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	exists, err := x.adapters.Workspace.WorktreeExists(ctx, wf.FeatureID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.ErrValidation("WORKTREE_EXISTS",
			fmt.Sprintf("worktree for %s already exists", wf.FeatureID))
	}
	path, err := x.adapters.Workspace.CreateWorktree(ctx, wf.FeatureID)
	if err != nil {
		return nil, err
	}
	return x.engine.persistStep(ctx, wf.ID, core.StepWorktree, func(w *core.Workflow) {
		if w.Context == nil {
			w.Context = map[string]interface{}{}
		}
		w.Context["worktree_path"] = path
	})
}

func (x *Executor) stepPlans(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	meta := map[string]interface{}{
		"feature_id":    wf.FeatureID,
		"description":   wf.FeatureDescription,
		"workflow_type": string(wf.Type),
		"issue":         wf.IssueNumber,
	}
	if err := x.adapters.Workspace.InitArtifactTree(ctx, wf.FeatureID, meta); err != nil {
		return nil, err
	}

	// The artifact tree closes the setup phase: its completion and the
	// phase-boundary transition commit together.
	payload := map[string]interface{}{
		"issue":    wf.IssueNumber,
		"branch":   wf.FeatureID,
		"worktree": wf.Context["worktree_path"],
	}
	return x.engine.advance(ctx, wf.ID, core.TriggerAgentComplete, payload, core.StepPlans)
}

func (x *Executor) stepDispatch(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	agentID := x.cfg.DefaultAgentID
	if v, ok := wf.Context["agent"].(string); ok && v != "" {
		agentID = v
	}

	workDir := ""
	if v, ok := wf.Context["worktree_path"].(string); ok {
		workDir = v
	}

	result, err := x.adapters.Runner.Dispatch(ctx, core.DispatchOptions{
		AgentID:      agentID,
		SystemPrompt: phaseSystemPrompt(wf.Type),
		UserPrompt:   phaseUserPrompt(wf),
		Model:        x.cfg.DefaultModel,
		WorkDir:      workDir,
		Timeout:      x.cfg.AgentTimeout,
	})
	if err != nil {
		return nil, err
	}

	return x.engine.persistStep(ctx, wf.ID, core.StepDispatch, func(w *core.Workflow) {
		if w.Context == nil {
			w.Context = map[string]interface{}{}
		}
		w.Context["dispatch_model"] = result.Model
		w.Context["dispatch_duration_ms"] = result.Duration.Milliseconds()
	})
}

func (x *Executor) stepAwaitAgent(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	ticket, err := x.ticketFor(wf)
	if err != nil {
		return nil, err
	}
	res, err := x.watcher.Poll(ctx, poller.Request{
		TicketID:       ticket,
		Signal:         core.SignalAgentComplete,
		Timeout:        x.cfg.PollTimeout,
		Interval:       x.cfg.PollInterval,
		RaiseOnTimeout: true,
	})
	if err != nil {
		return nil, err
	}
	if res.Cancelled {
		return nil, core.ErrExecution(core.CodePollCancelled, "agent completion poll cancelled")
	}
	if !res.Detected {
		return nil, core.ErrTimeout(core.CodePollTimeout, "agent completion not observed")
	}

	payload := map[string]interface{}{"comment_id": res.CommentID, "author": res.Author}
	return x.engine.advance(ctx, wf.ID, core.TriggerAgentComplete, payload, core.StepAwaitAgent)
}

func (x *Executor) stepAwaitApproval(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	ticket, err := x.ticketFor(wf)
	if err != nil {
		return nil, err
	}
	res, err := x.watcher.Poll(ctx, poller.Request{
		TicketID:       ticket,
		Signal:         core.SignalHumanApproval,
		Timeout:        x.cfg.PollTimeout,
		Interval:       x.cfg.PollInterval,
		RaiseOnTimeout: true,
	})
	if err != nil {
		return nil, err
	}
	if res.Cancelled {
		return nil, core.ErrExecution(core.CodePollCancelled, "approval poll cancelled")
	}
	if !res.Detected {
		return nil, core.ErrTimeout(core.CodePollTimeout, "human approval not observed")
	}

	payload := map[string]interface{}{"comment_id": res.CommentID, "approved_by": res.Author}
	return x.engine.Advance(ctx, wf.ID, core.TriggerHumanApproved, payload)
}

func (x *Executor) ticketFor(wf *core.Workflow) (int, error) {
	if wf.IssueNumber > 0 {
		return wf.IssueNumber, nil
	}
	if v, ok := wf.Context["issue_number"].(float64); ok && v > 0 {
		return int(v), nil
	}
	if v, ok := wf.Context["issue_number"].(int); ok && v > 0 {
		return v, nil
	}
	return 0, core.ErrValidation("NO_TICKET",
		fmt.Sprintf("workflow %s has no issue bound for signal polling", wf.ID))
}

func phaseSystemPrompt(wt core.WorkflowType) string {
	switch wt {
	case core.WorkflowTypeSpecify:
		return "You are a specification writer. Produce a complete feature specification under specs/. Comment on the tracking issue with ✅ when done."
	case core.WorkflowTypePlan:
		return "You are a technical planner. Produce an implementation plan under plans/. Comment on the tracking issue with ✅ when done."
	case core.WorkflowTypeTasks:
		return "You are a task breakdown assistant. Derive ordered implementation tasks from the plan. Comment on the tracking issue with ✅ when done."
	case core.WorkflowTypeImplement:
		return "You are an implementation agent. Execute the task list on the feature branch. Comment on the tracking issue with ✅ when done."
	default:
		return ""
	}
}

func phaseUserPrompt(wf *core.Workflow) string {
	return fmt.Sprintf("Feature %s: %s", wf.FeatureID, wf.FeatureDescription)
}
