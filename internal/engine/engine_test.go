package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/adapters/state"
	"github.com/specforge/specforge/internal/clock"
	"github.com/specforge/specforge/internal/core"
)

var testStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *state.MemoryStore, *clock.Manual) {
	t.Helper()
	store := state.NewMemoryStore()
	clk := clock.NewManual(testStart)
	return New(store, clk, nil), store, clk
}

func TestEngine_CreateGeneratesFeatureID(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	wf, err := eng.Create(ctx, core.WorkflowTypeSpecify, "Add OAuth2 Login!", nil)
	require.NoError(t, err)

	assert.Equal(t, "001-add-oauth2-login", wf.FeatureID)
	assert.Equal(t, core.WorkflowStatusInProgress, wf.Status)
	assert.Equal(t, core.PhaseFirst, wf.CurrentPhase)

	history, err := eng.History(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.TriggerStart, history[0].Trigger)
	assert.Equal(t, core.WorkflowStatusPending, history[0].FromStatus)
}

func TestEngine_CreateIncrementsCounter(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	seed := core.NewWorkflow("seed", core.WorkflowTypePlan, "007-earlier-work", "earlier work", nil, testStart)
	require.NoError(t, store.SaveWorkflow(ctx, seed))

	wf, err := eng.Create(ctx, core.WorkflowTypePlan, "Next feature", nil)
	require.NoError(t, err)
	assert.Equal(t, "008-next-feature", wf.FeatureID)
}

func TestEngine_CreateValidatesInput(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, "deploy", "desc", nil)
	assert.Equal(t, core.CodeInvalidWorkflowType, core.CodeOf(err))

	_, err = eng.Create(ctx, core.WorkflowTypeSpecify, "", nil)
	require.Error(t, err)
}

func TestEngine_CreateConcurrentUniqueFeatureIDs(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wf, err := eng.Create(ctx, core.WorkflowTypeSpecify, fmt.Sprintf("feature %d", i), nil)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- wf.FeatureID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate feature id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestEngine_AdvanceRejectsInvalidTransition(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeSpecify, "001-x", "x", nil, testStart)
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	_, err := eng.Advance(ctx, "w1", core.TriggerHumanApproved, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidStateTransition, core.CodeOf(err))

	// Nothing may be recorded for a rejected trigger.
	history, err := eng.History(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_AdvanceRejectsTerminal(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeTasks, "001-x", "x", nil, testStart)
	wf.Status = core.WorkflowStatusFailed
	wf.Error = "boom"
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	for _, trigger := range []core.Trigger{core.TriggerStart, core.TriggerAgentComplete, core.TriggerHumanApproved, core.TriggerError} {
		_, err := eng.Advance(ctx, "w1", trigger, nil)
		assert.Equal(t, core.CodeInvalidStateTransition, core.CodeOf(err), "trigger %s", trigger)
	}
}

func TestEngine_AdvanceUnknownWorkflow(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Advance(context.Background(), "missing", core.TriggerStart, nil)
	assert.Equal(t, core.CodeWorkflowNotFound, core.CodeOf(err))
}

func TestEngine_ApprovalOnLastPhaseCompletes(t *testing.T) {
	eng, store, clk := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeTasks, "001-x", "x", nil, testStart)
	wf.Status = core.WorkflowStatusWaitingApproval
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	clk.Advance(time.Minute)
	got, err := eng.Advance(ctx, "w1", core.TriggerHumanApproved, map[string]interface{}{"approved_by": "@lead"})
	require.NoError(t, err)

	assert.Equal(t, core.WorkflowStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, testStart.Add(time.Minute), *got.CompletedAt)
	assert.Equal(t, "@lead", got.Result["approved_by"])
}

func TestEngine_ApprovalAdvancesPhase(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeSpecify, "001-x", "x", nil, testStart)
	wf.Status = core.WorkflowStatusWaitingApproval
	wf.MarkStepCompleted(core.StepIssue)
	wf.MarkStepCompleted(core.StepBranch)
	wf.MarkStepCompleted(core.StepWorktree)
	wf.MarkStepCompleted(core.StepPlans)
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	got, err := eng.Advance(ctx, "w1", core.TriggerHumanApproved, nil)
	require.NoError(t, err)

	assert.Equal(t, core.WorkflowStatusInProgress, got.Status)
	assert.Equal(t, core.PhaseSecond, got.CurrentPhase)
	assert.Empty(t, got.PhaseStepsCompleted, "ledger restarts with the new phase")
	assert.Nil(t, got.CompletedAt)
}

func TestEngine_RejectionReworksCurrentPhase(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeSpecify, "001-x", "x", nil, testStart)
	wf.Status = core.WorkflowStatusWaitingApproval
	wf.CurrentPhase = core.PhaseSecond
	wf.MarkStepCompleted(core.StepDispatch)
	wf.MarkStepCompleted(core.StepAwaitAgent)
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	got, err := eng.Advance(ctx, "w1", core.TriggerHumanRejected, map[string]interface{}{"reason": "spec too thin"})
	require.NoError(t, err)

	assert.Equal(t, core.WorkflowStatusInProgress, got.Status)
	assert.Equal(t, core.PhaseSecond, got.CurrentPhase, "rework stays on the same phase")
	assert.Empty(t, got.PhaseStepsCompleted)
}

func TestEngine_ErrorTriggerFails(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeImplement, "001-x", "x", nil, testStart)
	wf.Status = core.WorkflowStatusInProgress
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	got, err := eng.Advance(ctx, "w1", core.TriggerError, map[string]interface{}{"error": "agent crashed"})
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusFailed, got.Status)
	assert.Equal(t, "agent crashed", got.Error)
}

func TestEngine_HistoryRecordsEveryTransition(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeTasks, "001-x", "x", nil, testStart)
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	_, err := eng.Advance(ctx, "w1", core.TriggerStart, nil)
	require.NoError(t, err)
	_, err = eng.Advance(ctx, "w1", core.TriggerAgentComplete, nil)
	require.NoError(t, err)
	_, err = eng.Advance(ctx, "w1", core.TriggerHumanApproved, nil)
	require.NoError(t, err)

	history, err := eng.History(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Every entry's from-status is the previous entry's to-status.
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].ToStatus, history[i].FromStatus)
	}
	assert.Equal(t, core.WorkflowStatusCompleted, history[2].ToStatus)
}

func TestEngine_PersistStepIsDurableAndIdempotent(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	wf := core.NewWorkflow("w1", core.WorkflowTypeSpecify, "001-x", "x", nil, testStart)
	wf.Status = core.WorkflowStatusInProgress
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	_, err := eng.persistStep(ctx, "w1", core.StepIssue, func(w *core.Workflow) {
		w.IssueNumber = 42
	})
	require.NoError(t, err)
	_, err = eng.persistStep(ctx, "w1", core.StepIssue, nil)
	require.NoError(t, err)

	got, err := store.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, []string{core.StepIssue}, got.PhaseStepsCompleted)
	assert.Equal(t, 42, got.IssueNumber)
}
