package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/specforge/specforge/internal/clock"
	"github.com/specforge/specforge/internal/core"
)

var testStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// fakeRunner records git invocations and serves scripted outputs. It also
// mirrors `worktree add` by creating the target directory, which the real
// git would do.
type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (r *fakeRunner) Run(_ context.Context, dir string, args ...string) (string, error) {
	cmd := strings.Join(args, " ")
	r.calls = append(r.calls, cmd)
	if len(args) >= 2 && args[0] == "worktree" && args[1] == "add" {
		if err := os.MkdirAll(args[2], 0o750); err != nil {
			return "", err
		}
	}
	for key, out := range r.outputs {
		if strings.Contains(cmd, key) {
			return out, nil
		}
	}
	return "", nil
}

func newTestWorkspace(t *testing.T, runner *fakeRunner) *Workspace {
	t.Helper()
	dir := t.TempDir()
	ws, err := NewWorkspace(Options{
		RepoPath: filepath.Join(dir, "repo"),
		Runner:   runner,
		Clock:    clock.NewManual(testStart),
	})
	require.NoError(t, err)
	return ws
}

func TestCreateBranch(t *testing.T) {
	runner := &fakeRunner{}
	ws := newTestWorkspace(t, runner)
	ctx := context.Background()

	require.NoError(t, ws.CreateBranch(ctx, "001-add-auth"))
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "branch --list 001-add-auth", runner.calls[0])
	assert.Equal(t, "branch 001-add-auth main", runner.calls[1])
}

func TestCreateBranch_AlreadyExists(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"branch --list": "  001-add-auth",
	}}
	ws := newTestWorkspace(t, runner)

	err := ws.CreateBranch(context.Background(), "001-add-auth")
	require.Error(t, err)
	assert.Equal(t, "BRANCH_EXISTS", core.CodeOf(err))
	assert.Len(t, runner.calls, 1, "no branch creation attempted")
}

func TestCreateWorktree(t *testing.T) {
	runner := &fakeRunner{}
	ws := newTestWorkspace(t, runner)
	ctx := context.Background()

	path, err := ws.CreateWorktree(ctx, "001-add-auth")
	require.NoError(t, err)
	assert.Equal(t, ws.WorktreePath("001-add-auth"), path)
	assert.Contains(t, path, "-worktrees", "worktrees live in the sibling directory")

	exists, err := ws.WorktreeExists(ctx, "001-add-auth")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = ws.CreateWorktree(ctx, "001-add-auth")
	require.Error(t, err)
	assert.Equal(t, "WORKTREE_EXISTS", core.CodeOf(err))
}

func TestInitArtifactTree(t *testing.T) {
	runner := &fakeRunner{}
	ws := newTestWorkspace(t, runner)
	ctx := context.Background()

	path, err := ws.CreateWorktree(ctx, "001-add-auth")
	require.NoError(t, err)

	meta := map[string]interface{}{
		"feature_id":    "001-add-auth",
		"description":   "Add auth",
		"workflow_type": "specify",
		"issue":         42,
	}
	require.NoError(t, ws.InitArtifactTree(ctx, "001-add-auth", meta))

	for _, dir := range []string{"specs", "plans", "reviews"} {
		info, err := os.Stat(filepath.Join(path, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	raw, err := os.ReadFile(filepath.Join(path, "feature.yaml"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, "001-add-auth", doc["feature_id"])
	assert.Equal(t, 42, doc["issue"])
	assert.Equal(t, testStart.Format(time.RFC3339), doc["created_at"])

	// Re-running is a no-op for directories and rewrites the metadata.
	require.NoError(t, ws.InitArtifactTree(ctx, "001-add-auth", meta))
}

func TestInitArtifactTree_MissingWorktree(t *testing.T) {
	ws := newTestWorkspace(t, &fakeRunner{})
	err := ws.InitArtifactTree(context.Background(), "001-missing", nil)
	require.Error(t, err)
	assert.Equal(t, "WORKTREE_MISSING", core.CodeOf(err))
}

func TestCommitAndPush(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"status --porcelain": "M  specs/spec.md",
	}}
	ws := newTestWorkspace(t, runner)
	ctx := context.Background()

	_, err := ws.CreateWorktree(ctx, "001-add-auth")
	require.NoError(t, err)
	runner.calls = nil

	require.NoError(t, ws.CommitAndPush(ctx, "001-add-auth", "specs: initial draft"))
	require.Len(t, runner.calls, 4)
	assert.Equal(t, "add -A", runner.calls[0])
	assert.Contains(t, runner.calls[2], "commit -m")
	assert.Equal(t, "push -u origin 001-add-auth", runner.calls[3])
}

func TestCommitAndPush_CleanTreeSkipsCommit(t *testing.T) {
	runner := &fakeRunner{}
	ws := newTestWorkspace(t, runner)
	ctx := context.Background()

	_, err := ws.CreateWorktree(ctx, "001-add-auth")
	require.NoError(t, err)
	runner.calls = nil

	require.NoError(t, ws.CommitAndPush(ctx, "001-add-auth", "noop"))
	for _, call := range runner.calls {
		assert.NotContains(t, call, "commit")
	}
}

func TestRemoveWorktree_AbsentIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	ws := newTestWorkspace(t, runner)

	require.NoError(t, ws.RemoveWorktree(context.Background(), "001-gone"))
	assert.Empty(t, runner.calls)
}
