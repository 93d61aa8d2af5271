// Package engine owns the workflow state machine: it is the sole writer of
// workflows and their history, enforces the transition table and serializes
// advancement per workflow.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// Engine drives workflow lifecycles over a durable store.
type Engine struct {
	store  core.WorkflowStore
	clock  core.Clock
	logger *logging.Logger

	mu    sync.Mutex
	locks map[core.WorkflowID]*sync.Mutex

	// createMu serializes feature counter derivation across workflows; the
	// per-id locks cannot, because the id does not exist yet.
	createMu sync.Mutex
}

// New creates an engine.
func New(store core.WorkflowStore, clk core.Clock, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:  store,
		clock:  clk,
		logger: logger,
		locks:  make(map[core.WorkflowID]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for a workflow id.
func (e *Engine) lockFor(id core.WorkflowID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Create persists a new workflow in pending, immediately applies the start
// trigger and returns the in-progress workflow on phase_1.
func (e *Engine) Create(ctx context.Context, wtype core.WorkflowType, description string, wfContext map[string]interface{}) (*core.Workflow, error) {
	if _, err := core.ParseWorkflowType(string(wtype)); err != nil {
		return nil, err
	}
	if description == "" {
		return nil, core.ErrValidation("INVALID_DESCRIPTION", "feature description is required")
	}

	e.createMu.Lock()
	counter, err := e.store.MaxFeatureCounter(ctx)
	if err != nil {
		e.createMu.Unlock()
		return nil, fmt.Errorf("deriving feature counter: %w", err)
	}
	featureID := core.FormatFeatureID(counter+1, core.Slugify(description))

	now := e.clock.Now()
	wf := core.NewWorkflow(core.WorkflowID(uuid.NewString()), wtype, featureID, description, wfContext, now)
	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		e.createMu.Unlock()
		return nil, err
	}
	e.createMu.Unlock()

	wf, err = e.Advance(ctx, wf.ID, core.TriggerStart, nil)
	if err != nil {
		return nil, err
	}

	e.logger.WithWorkflow(string(wf.ID)).WithFeature(featureID).Info("workflow created",
		"type", string(wtype))
	return wf, nil
}

// Get loads a workflow.
func (e *Engine) Get(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	return e.store.GetWorkflow(ctx, id)
}

// List returns all workflows.
func (e *Engine) List(ctx context.Context) ([]*core.Workflow, error) {
	return e.store.ListWorkflows(ctx)
}

// History returns the committed transition history of a workflow.
func (e *Engine) History(ctx context.Context, id core.WorkflowID) ([]*core.HistoryEntry, error) {
	if _, err := e.store.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetHistory(ctx, id)
}

// Advance applies a trigger to a workflow. Calls on the same workflow are
// serialized; readers only ever observe committed states.
func (e *Engine) Advance(ctx context.Context, id core.WorkflowID, trigger core.Trigger, payload map[string]interface{}) (*core.Workflow, error) {
	return e.advance(ctx, id, trigger, payload, "")
}

// advance optionally marks completedStep on the ledger in the same durable
// write as the transition, so a step's completion and its resulting
// transition commit together.
func (e *Engine) advance(ctx context.Context, id core.WorkflowID, trigger core.Trigger, payload map[string]interface{}, completedStep string) (*core.Workflow, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	wf, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	from := wf.Status
	next, err := core.NextStatus(from, trigger)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if completedStep != "" {
		wf.MarkStepCompleted(completedStep)
	}

	switch {
	case trigger == core.TriggerHumanApproved && wf.LastPhase():
		next = core.WorkflowStatusCompleted
		wf.CompletedAt = &now
		wf.Result = payload
	case trigger == core.TriggerHumanApproved:
		// Approval gates a phase boundary: move to the next phase with a
		// fresh step ledger.
		wf.CurrentPhase = core.NextPhase(wf.CurrentPhase)
		wf.PhaseStepsCompleted = nil
	case trigger == core.TriggerHumanRejected:
		// Rework re-runs the current phase from scratch.
		wf.PhaseStepsCompleted = nil
	case trigger == core.TriggerError:
		wf.Error = errorPayload(payload)
	}

	wf.Status = next
	wf.UpdatedAt = now

	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	if err := e.store.AppendHistory(ctx, &core.HistoryEntry{
		ID:         uuid.NewString(),
		WorkflowID: id,
		FromStatus: from,
		ToStatus:   next,
		Trigger:    trigger,
		Timestamp:  now,
		Metadata:   payload,
	}); err != nil {
		return nil, err
	}

	e.logger.WithWorkflow(string(id)).Info("workflow advanced",
		"from", string(from), "to", string(next), "trigger", string(trigger))
	return wf, nil
}

// persistStep records a completed step on the ledger without a transition.
func (e *Engine) persistStep(ctx context.Context, id core.WorkflowID, step string, mutate func(*core.Workflow)) (*core.Workflow, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	wf, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(wf)
	}
	wf.MarkStepCompleted(step)
	wf.UpdatedAt = e.clock.Now()
	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func errorPayload(payload map[string]interface{}) string {
	if payload == nil {
		return "unknown error"
	}
	if msg, ok := payload["error"].(string); ok && msg != "" {
		return msg
	}
	return "unknown error"
}
