// Package state persists workflows, sessions and escalations. SQLite in
// WAL mode is the durable backend; the Memory store backs tests.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/specforge/specforge/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements the workflow, session and escalation stores on a
// single SQLite database.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and applies migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{dbPath: dbPath, db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func timePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// WorkflowStore
// =============================================================================

// SaveWorkflow upserts a workflow row.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *core.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contextJSON, err := marshalJSON(wf.Context)
	if err != nil {
		return fmt.Errorf("marshaling context: %w", err)
	}
	stepsJSON, err := marshalJSON(wf.PhaseStepsCompleted)
	if err != nil {
		return fmt.Errorf("marshaling step ledger: %w", err)
	}
	if stepsJSON == "" {
		stepsJSON = "[]"
	}
	resultJSON, err := marshalJSON(wf.Result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	var completedAt interface{}
	if wf.CompletedAt != nil {
		completedAt = wf.CompletedAt.Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (
			id, workflow_type, feature_id, feature_description, context,
			status, current_phase, phase_steps_completed, issue_number,
			result, error, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_phase = excluded.current_phase,
			phase_steps_completed = excluded.phase_steps_completed,
			issue_number = excluded.issue_number,
			context = excluded.context,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		string(wf.ID), string(wf.Type), wf.FeatureID, wf.FeatureDescription, contextJSON,
		string(wf.Status), string(wf.CurrentPhase), stepsJSON, wf.IssueNumber,
		resultJSON, wf.Error,
		wf.CreatedAt.Format(time.RFC3339Nano), wf.UpdatedAt.Format(time.RFC3339Nano), completedAt,
	)
	if err != nil {
		return fmt.Errorf("saving workflow: %w", err)
	}
	return nil
}

// GetWorkflow loads a workflow by id.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_type, feature_id, feature_description, context,
		       status, current_phase, phase_steps_completed, issue_number,
		       result, error, created_at, updated_at, completed_at
		FROM workflows WHERE id = ?`, string(id))

	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound(core.CodeWorkflowNotFound,
			fmt.Sprintf("workflow %s not found", id))
	}
	return wf, err
}

// ListWorkflows returns all workflows ordered by creation time.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*core.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_type, feature_id, feature_description, context,
		       status, current_phase, phase_steps_completed, issue_number,
		       result, error, created_at, updated_at, completed_at
		FROM workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*core.Workflow, error) {
	var (
		wf                              core.Workflow
		id, wfType, status, phase       string
		contextJSON, resultJSON         sql.NullString
		stepsJSON, createdAt, updatedAt string
		completedAt                     sql.NullString
	)

	err := row.Scan(&id, &wfType, &wf.FeatureID, &wf.FeatureDescription, &contextJSON,
		&status, &phase, &stepsJSON, &wf.IssueNumber,
		&resultJSON, &wf.Error, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	wf.ID = core.WorkflowID(id)
	wf.Type = core.WorkflowType(wfType)
	wf.Status = core.WorkflowStatus(status)
	wf.CurrentPhase = core.Phase(phase)

	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &wf.Context); err != nil {
			return nil, corruptErr(id, "context", err)
		}
	}
	if err := json.Unmarshal([]byte(stepsJSON), &wf.PhaseStepsCompleted); err != nil {
		return nil, corruptErr(id, "phase_steps_completed", err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &wf.Result); err != nil {
			return nil, corruptErr(id, "result", err)
		}
	}

	if wf.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, corruptErr(id, "created_at", err)
	}
	if wf.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, corruptErr(id, "updated_at", err)
	}
	if wf.CompletedAt, err = timePtr(completedAt); err != nil {
		return nil, corruptErr(id, "completed_at", err)
	}
	return &wf, nil
}

func corruptErr(id, field string, cause error) error {
	return core.ErrState(core.CodePersistenceCorrupted,
		fmt.Sprintf("workflow %s: corrupt %s", id, field)).WithCause(cause)
}

// AppendHistory records a committed transition. Sequence numbers keep the
// per-workflow order total even when timestamps collide.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *core.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, err := marshalJSON(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling history metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_history (id, workflow_id, seq, from_status, to_status, trigger_name, timestamp, metadata)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM workflow_history WHERE workflow_id = ?), ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.WorkflowID), string(entry.WorkflowID),
		string(entry.FromStatus), string(entry.ToStatus), string(entry.Trigger),
		entry.Timestamp.Format(time.RFC3339Nano), metadataJSON)
	if err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// GetHistory returns the transition history for a workflow in order.
func (s *SQLiteStore) GetHistory(ctx context.Context, id core.WorkflowID) ([]*core.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, from_status, to_status, trigger_name, timestamp, metadata
		FROM workflow_history WHERE workflow_id = ? ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.HistoryEntry
	for rows.Next() {
		var (
			e                    core.HistoryEntry
			wfID, from, to, trig string
			ts                   string
			metadataJSON         sql.NullString
		)
		if err := rows.Scan(&e.ID, &wfID, &from, &to, &trig, &ts, &metadataJSON); err != nil {
			return nil, err
		}
		e.WorkflowID = core.WorkflowID(wfID)
		e.FromStatus = core.WorkflowStatus(from)
		e.ToStatus = core.WorkflowStatus(to)
		e.Trigger = core.Trigger(trig)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, corruptErr(wfID, "history timestamp", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, corruptErr(wfID, "history metadata", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MaxFeatureCounter returns the highest NNN prefix across all workflows.
func (s *SQLiteStore) MaxFeatureCounter(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT feature_id FROM workflows")
	if err != nil {
		return 0, fmt.Errorf("scanning feature ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	max := 0
	for rows.Next() {
		var featureID string
		if err := rows.Scan(&featureID); err != nil {
			return 0, err
		}
		if n := core.FeatureCounter(featureID); n > max {
			max = n
		}
	}
	return max, rows.Err()
}

// =============================================================================
// SessionStore
// =============================================================================

// SaveSession upserts a session with its full message list.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messagesJSON, err := marshalJSON(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}
	if messagesJSON == "" {
		messagesJSON = "[]"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, feature_id, status, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		sess.ID, sess.AgentID, sess.FeatureID, string(sess.Status), messagesJSON,
		sess.CreatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*core.Session, error) {
	var (
		sess                 core.Session
		status               string
		messagesJSON         string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, feature_id, status, messages, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.AgentID, &sess.FeatureID, &status, &messagesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound(core.CodeSessionNotFound,
			fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess.Status = core.SessionStatus(status)
	if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
		return nil, corruptErr(id, "messages", err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, corruptErr(id, "created_at", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, corruptErr(id, "updated_at", err)
	}
	return &sess, nil
}

// =============================================================================
// EscalationStore
// =============================================================================

// SaveEscalation upserts an escalation.
func (s *SQLiteStore) SaveEscalation(ctx context.Context, e *core.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	questionJSON, err := marshalJSON(e.Question)
	if err != nil {
		return fmt.Errorf("marshaling question: %w", err)
	}
	answerJSON, err := marshalJSON(e.TentativeAnswer)
	if err != nil {
		return fmt.Errorf("marshaling tentative answer: %w", err)
	}

	var resolvedAt interface{}
	if e.ResolvedAt != nil {
		resolvedAt = e.ResolvedAt.Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalations (
			id, question, tentative_answer, threshold_used, status,
			created_at, resolved_at, responder, human_action, human_payload, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			resolved_at = excluded.resolved_at,
			responder = excluded.responder,
			human_action = excluded.human_action,
			human_payload = excluded.human_payload`,
		e.ID, questionJSON, answerJSON, e.ThresholdUsed, string(e.Status),
		e.CreatedAt.Format(time.RFC3339Nano), resolvedAt,
		e.Responder, string(e.HumanAction), e.HumanPayload, e.SessionID)
	if err != nil {
		return fmt.Errorf("saving escalation: %w", err)
	}
	return nil
}

// GetEscalation loads an escalation by id.
func (s *SQLiteStore) GetEscalation(ctx context.Context, id string) (*core.Escalation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, question, tentative_answer, threshold_used, status,
		       created_at, resolved_at, responder, human_action, human_payload, session_id
		FROM escalations WHERE id = ?`, id)

	e, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound(core.CodeEscalationNotFound,
			fmt.Sprintf("escalation %s not found", id))
	}
	return e, err
}

// ListEscalations returns escalations, optionally filtered by status.
func (s *SQLiteStore) ListEscalations(ctx context.Context, status core.EscalationStatus) ([]*core.Escalation, error) {
	query := `
		SELECT id, question, tentative_answer, threshold_used, status,
		       created_at, resolved_at, responder, human_action, human_payload, session_id
		FROM escalations`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing escalations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEscalation(row rowScanner) (*core.Escalation, error) {
	var (
		e                         core.Escalation
		questionJSON, answerJSON  string
		status, action, createdAt string
		resolvedAt                sql.NullString
	)
	err := row.Scan(&e.ID, &questionJSON, &answerJSON, &e.ThresholdUsed, &status,
		&createdAt, &resolvedAt, &e.Responder, &action, &e.HumanPayload, &e.SessionID)
	if err != nil {
		return nil, err
	}

	e.Status = core.EscalationStatus(status)
	e.HumanAction = core.HumanAction(action)
	if err := json.Unmarshal([]byte(questionJSON), &e.Question); err != nil {
		return nil, corruptErr(e.ID, "question", err)
	}
	if err := json.Unmarshal([]byte(answerJSON), &e.TentativeAnswer); err != nil {
		return nil, corruptErr(e.ID, "tentative_answer", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, corruptErr(e.ID, "created_at", err)
	}
	if e.ResolvedAt, err = timePtr(resolvedAt); err != nil {
		return nil, corruptErr(e.ID, "resolved_at", err)
	}
	return &e, nil
}

var (
	_ core.WorkflowStore   = (*SQLiteStore)(nil)
	_ core.SessionStore    = (*SQLiteStore)(nil)
	_ core.EscalationStore = (*SQLiteStore)(nil)
)
