package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specforge/specforge/internal/core"
)

// MemoryStore is an in-memory implementation of the persistence ports.
// Used by tests and by the poll command's dry-run mode; values are deep
// copied on the way in and out so callers never share mutable state.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[core.WorkflowID]*core.Workflow
	history     map[core.WorkflowID][]*core.HistoryEntry
	sessions    map[string]*core.Session
	escalations map[string]*core.Escalation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[core.WorkflowID]*core.Workflow),
		history:     make(map[core.WorkflowID][]*core.HistoryEntry),
		sessions:    make(map[string]*core.Session),
		escalations: make(map[string]*core.Escalation),
	}
}

func copyWorkflow(wf *core.Workflow) *core.Workflow {
	dup := *wf
	dup.PhaseStepsCompleted = append([]string(nil), wf.PhaseStepsCompleted...)
	if wf.Context != nil {
		dup.Context = make(map[string]interface{}, len(wf.Context))
		for k, v := range wf.Context {
			dup.Context[k] = v
		}
	}
	if wf.Result != nil {
		dup.Result = make(map[string]interface{}, len(wf.Result))
		for k, v := range wf.Result {
			dup.Result[k] = v
		}
	}
	if wf.CompletedAt != nil {
		t := *wf.CompletedAt
		dup.CompletedAt = &t
	}
	return &dup
}

func copySession(s *core.Session) *core.Session {
	dup := *s
	dup.Messages = append([]core.Message(nil), s.Messages...)
	return &dup
}

func copyEscalation(e *core.Escalation) *core.Escalation {
	dup := *e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		dup.ResolvedAt = &t
	}
	return &dup
}

// SaveWorkflow stores a copy of the workflow.
func (m *MemoryStore) SaveWorkflow(_ context.Context, wf *core.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

// GetWorkflow returns a copy of the workflow.
func (m *MemoryStore) GetWorkflow(_ context.Context, id core.WorkflowID) (*core.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, core.ErrNotFound(core.CodeWorkflowNotFound,
			fmt.Sprintf("workflow %s not found", id))
	}
	return copyWorkflow(wf), nil
}

// ListWorkflows returns all workflows ordered by creation time.
func (m *MemoryStore) ListWorkflows(_ context.Context) ([]*core.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, copyWorkflow(wf))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AppendHistory records a transition.
func (m *MemoryStore) AppendHistory(_ context.Context, entry *core.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *entry
	m.history[entry.WorkflowID] = append(m.history[entry.WorkflowID], &dup)
	return nil
}

// GetHistory returns the transition history in append order.
func (m *MemoryStore) GetHistory(_ context.Context, id core.WorkflowID) ([]*core.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.history[id]
	out := make([]*core.HistoryEntry, len(entries))
	for i, e := range entries {
		dup := *e
		out[i] = &dup
	}
	return out, nil
}

// MaxFeatureCounter returns the highest NNN prefix across workflows.
func (m *MemoryStore) MaxFeatureCounter(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, wf := range m.workflows {
		if n := core.FeatureCounter(wf.FeatureID); n > max {
			max = n
		}
	}
	return max, nil
}

// SaveSession stores a copy of the session.
func (m *MemoryStore) SaveSession(_ context.Context, s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession returns a copy of the session.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound(core.CodeSessionNotFound,
			fmt.Sprintf("session %s not found", id))
	}
	return copySession(s), nil
}

// SaveEscalation stores a copy of the escalation.
func (m *MemoryStore) SaveEscalation(_ context.Context, e *core.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[e.ID] = copyEscalation(e)
	return nil
}

// GetEscalation returns a copy of the escalation.
func (m *MemoryStore) GetEscalation(_ context.Context, id string) (*core.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.escalations[id]
	if !ok {
		return nil, core.ErrNotFound(core.CodeEscalationNotFound,
			fmt.Sprintf("escalation %s not found", id))
	}
	return copyEscalation(e), nil
}

// ListEscalations returns escalations, optionally filtered by status.
func (m *MemoryStore) ListEscalations(_ context.Context, status core.EscalationStatus) ([]*core.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*core.Escalation
	for _, e := range m.escalations {
		if status == "" || e.Status == status {
			out = append(out, copyEscalation(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var (
	_ core.WorkflowStore   = (*MemoryStore)(nil)
	_ core.SessionStore    = (*MemoryStore)(nil)
	_ core.EscalationStore = (*MemoryStore)(nil)
)
