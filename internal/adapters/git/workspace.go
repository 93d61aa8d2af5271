// Package git adapts the git CLI to the WorkspaceManager port: feature
// branches, sibling worktrees and the per-feature artifact tree.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/specforge/specforge/internal/clock"
	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// Compile-time interface conformance check.
var _ core.WorkspaceManager = (*Workspace)(nil)

// Runner abstracts git command execution for testability.
type Runner interface {
	// Run executes git with args in dir and returns its trimmed stdout.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs git through os/exec.
type ExecRunner struct{}

// Run executes git in the given directory.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// artifactDirs are created inside every feature worktree.
var artifactDirs = []string{"specs", "plans", "reviews"}

// Workspace implements the WorkspaceManager port. Worktrees live in a
// sibling directory of the repository so agent runs never touch the main
// checkout.
type Workspace struct {
	repoPath     string
	baseBranch   string
	worktreeBase string
	runner       Runner
	clock        core.Clock
	logger       *logging.Logger
}

// Options configures a Workspace.
type Options struct {
	RepoPath   string
	BaseBranch string // defaults to main

	// WorktreeBase overrides the default sibling directory
	// <repo>-worktrees next to the repository.
	WorktreeBase string

	Runner Runner
	Clock  core.Clock
	Logger *logging.Logger
}

// NewWorkspace creates a workspace manager for a repository.
func NewWorkspace(opts Options) (*Workspace, error) {
	if opts.RepoPath == "" {
		return nil, core.ErrValidation("INVALID_REPO_PATH", "repository path is required")
	}
	repoPath, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}

	base := opts.BaseBranch
	if base == "" {
		base = "main"
	}
	worktreeBase := opts.WorktreeBase
	if worktreeBase == "" {
		worktreeBase = repoPath + "-worktrees"
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Workspace{
		repoPath:     repoPath,
		baseBranch:   base,
		worktreeBase: worktreeBase,
		runner:       runner,
		clock:        clk,
		logger:       logger,
	}, nil
}

// WorktreePath returns where a branch's worktree is (or would be) placed.
func (w *Workspace) WorktreePath(branch string) string {
	return filepath.Join(w.worktreeBase, branch)
}

// CreateBranch creates a branch off the base branch. Fails if it exists.
func (w *Workspace) CreateBranch(ctx context.Context, name string) error {
	exists, err := w.BranchExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return core.ErrValidation("BRANCH_EXISTS",
			fmt.Sprintf("branch %s already exists", name))
	}
	if _, err := w.runner.Run(ctx, w.repoPath, "branch", name, w.baseBranch); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	w.logger.Info("branch created", "branch", name, "base", w.baseBranch)
	return nil
}

// BranchExists reports whether a local branch exists.
func (w *Workspace) BranchExists(ctx context.Context, name string) (bool, error) {
	output, err := w.runner.Run(ctx, w.repoPath, "branch", "--list", name)
	if err != nil {
		return false, fmt.Errorf("listing branches: %w", err)
	}
	return output != "", nil
}

// CreateWorktree materializes the branch's worktree in the sibling
// directory and returns its path. Fails if the path exists.
func (w *Workspace) CreateWorktree(ctx context.Context, branch string) (string, error) {
	if err := os.MkdirAll(w.worktreeBase, 0o750); err != nil {
		return "", fmt.Errorf("creating worktree base: %w", err)
	}

	path := w.WorktreePath(branch)
	if _, err := os.Stat(path); err == nil {
		return "", core.ErrValidation("WORKTREE_EXISTS",
			fmt.Sprintf("worktree %s already exists", path))
	}

	if _, err := w.runner.Run(ctx, w.repoPath, "worktree", "add", path, branch); err != nil {
		return "", fmt.Errorf("creating worktree for %s: %w", branch, err)
	}
	w.logger.Info("worktree created", "branch", branch, "path", path)
	return path, nil
}

// WorktreeExists reports whether the branch's worktree directory exists.
func (w *Workspace) WorktreeExists(_ context.Context, branch string) (bool, error) {
	_, err := os.Stat(w.WorktreePath(branch))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// InitArtifactTree creates the specs/plans/reviews directories inside the
// feature's worktree and writes feature.yaml atomically. Existing
// directories are left alone; feature.yaml is replaced.
func (w *Workspace) InitArtifactTree(_ context.Context, featureID string, meta map[string]interface{}) error {
	root := w.WorktreePath(featureID)
	if _, err := os.Stat(root); err != nil {
		return core.ErrState("WORKTREE_MISSING",
			fmt.Sprintf("worktree for %s does not exist", featureID)).WithCause(err)
	}

	for _, dir := range artifactDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}

	doc := map[string]interface{}{"created_at": w.clock.Now().UTC().Format(time.RFC3339)}
	for k, v := range meta {
		doc[k] = v
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding feature metadata: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(root, "feature.yaml"), raw, 0o640); err != nil {
		return fmt.Errorf("writing feature.yaml: %w", err)
	}

	w.logger.Info("artifact tree initialized", "feature_id", featureID, "path", root)
	return nil
}

// CommitAndPush stages and commits the worktree's changes on the branch
// and pushes it. A clean tree commits nothing but still pushes.
func (w *Workspace) CommitAndPush(ctx context.Context, branch, message string) error {
	path := w.WorktreePath(branch)
	if _, err := w.runner.Run(ctx, path, "add", "-A"); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}

	status, err := w.runner.Run(ctx, path, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	if status != "" {
		if _, err := w.runner.Run(ctx, path, "commit", "-m", message); err != nil {
			return fmt.Errorf("committing: %w", err)
		}
	}

	if _, err := w.runner.Run(ctx, path, "push", "-u", "origin", branch); err != nil {
		return core.ErrExecution("GIT_PUSH_FAILED",
			fmt.Sprintf("pushing branch %s", branch)).WithCause(err)
	}
	return nil
}

// RemoveWorktree tears down a branch's worktree. Absent worktrees are a
// no-op.
func (w *Workspace) RemoveWorktree(ctx context.Context, branch string) error {
	path := w.WorktreePath(branch)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := w.runner.Run(ctx, w.repoPath, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("removing worktree %s: %w", path, err)
	}
	return nil
}
