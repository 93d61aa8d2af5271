package core

import (
	"context"
	"time"
)

// =============================================================================
// AgentRunner Port
// =============================================================================

// DispatchOptions configures one agent invocation.
type DispatchOptions struct {
	AgentID      string
	SystemPrompt string
	UserPrompt   string
	Model        string
	Tools        []string
	WorkDir      string
	Timeout      time.Duration
}

// DispatchResult is the raw outcome of an agent invocation. Output is
// free-form agent text; the hub parses it into an Answer.
type DispatchResult struct {
	Output             string
	Confidence         *int
	UncertaintyReasons []string
	Model              string
	Duration           time.Duration
	Metadata           map[string]interface{}
}

// AgentRunner dispatches prompts to a language-model agent. Implementations
// must honor context cancellation and the per-call timeout.
type AgentRunner interface {
	// Dispatch runs a prompt through the agent identified by opts.AgentID.
	Dispatch(ctx context.Context, opts DispatchOptions) (*DispatchResult, error)

	// Ping checks that the agent backing agentID is reachable.
	Ping(ctx context.Context, agentID string) error
}

// =============================================================================
// IssueBoard Port
// =============================================================================

// Issue is a ticket on the external board.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	URL       string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is one entry in an issue's comment feed.
type Comment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
}

// CreateIssueOptions configures issue creation.
type CreateIssueOptions struct {
	Title  string
	Body   string
	Labels []string
}

// IssueBoard is the external ticket system. Rate-limit responses surface as
// a rate_limit DomainError carrying a wait-seconds hint.
type IssueBoard interface {
	CreateIssue(ctx context.Context, opts CreateIssueOptions) (*Issue, error)
	GetIssue(ctx context.Context, number int) (*Issue, error)

	// ListCommentsSince returns comments created strictly after since,
	// ordered by creation time. A zero since returns all comments.
	ListCommentsSince(ctx context.Context, number int, since time.Time) ([]Comment, error)

	AddComment(ctx context.Context, number int, body string) error
	AddLabels(ctx context.Context, number int, labels ...string) error
	RemoveLabels(ctx context.Context, number int, labels ...string) error
}

// =============================================================================
// WorkspaceManager Port
// =============================================================================

// WorkspaceManager owns git branch and worktree operations plus the
// per-feature artifact tree. All operations are idempotent with respect to
// their observable result so phase steps can safely re-run.
type WorkspaceManager interface {
	// CreateBranch creates a branch off the main line. Fails if it exists.
	CreateBranch(ctx context.Context, name string) error

	// BranchExists reports whether the branch already exists.
	BranchExists(ctx context.Context, name string) (bool, error)

	// CreateWorktree materializes a sibling working directory bound to the
	// branch and returns its path. Fails if the target path exists.
	CreateWorktree(ctx context.Context, branch string) (string, error)

	// WorktreeExists reports whether a worktree for the branch exists.
	WorktreeExists(ctx context.Context, branch string) (bool, error)

	// InitArtifactTree creates the per-feature artifact directories and
	// metadata document. No-op where directories already exist.
	InitArtifactTree(ctx context.Context, featureID string, meta map[string]interface{}) error

	// CommitAndPush commits pending artifact changes on the branch.
	CommitAndPush(ctx context.Context, branch, message string) error

	// RemoveWorktree tears down the worktree for a branch. No-op if absent.
	RemoveWorktree(ctx context.Context, branch string) error
}

// =============================================================================
// Clock Port
// =============================================================================

// Clock is the single source of time. Injectable for tests; all timestamps
// go through it.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// =============================================================================
// Persistence Ports
// =============================================================================

// WorkflowStore persists workflows and their transition history. The engine
// is the sole writer.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id WorkflowID) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)

	// AppendHistory records a committed transition. Append-only.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	GetHistory(ctx context.Context, id WorkflowID) ([]*HistoryEntry, error)

	// MaxFeatureCounter returns the highest NNN across all workflows, 0 when
	// none exist.
	MaxFeatureCounter(ctx context.Context) (int, error)
}

// SessionStore persists hub conversation sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
}

// EscalationStore persists human-review tickets.
type EscalationStore interface {
	SaveEscalation(ctx context.Context, e *Escalation) error
	GetEscalation(ctx context.Context, id string) (*Escalation, error)
	ListEscalations(ctx context.Context, status EscalationStatus) ([]*Escalation, error)
}

// AuditLog is the append-only exchange log, partitioned by feature id.
type AuditLog interface {
	// Append writes a record synchronously; once it returns the record is
	// visible to List and Chain.
	Append(ctx context.Context, rec *AuditRecord) error

	// List returns the partition for a feature in insertion order.
	List(ctx context.Context, featureID string) ([]*AuditRecord, error)

	// Chain walks parent_id links backwards from the given record and
	// returns the chain root-first.
	Chain(ctx context.Context, featureID, recordID string) ([]*AuditRecord, error)
}
