package github

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/core"
)

// mockRunner returns scripted outputs keyed by a substring of the command.
type mockRunner struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	cmd := name + " " + strings.Join(args, " ")
	m.calls = append(m.calls, cmd)
	for key, err := range m.errs {
		if strings.Contains(cmd, key) {
			return "", err
		}
	}
	for key, out := range m.responses {
		if strings.Contains(cmd, key) {
			return out, nil
		}
	}
	return "", nil
}

func newTestBoard(t *testing.T, runner *mockRunner) *Board {
	t.Helper()
	board, err := NewBoard("acme/api", runner, nil)
	require.NoError(t, err)
	return board
}

func TestCreateIssue(t *testing.T) {
	runner := &mockRunner{responses: map[string]string{
		"issue create": "https://github.com/acme/api/issues/42",
		"issue view":   `{"number": 42, "title": "001-add-auth: Add auth", "state": "OPEN", "url": "https://github.com/acme/api/issues/42", "labels": [{"name": "specforge"}]}`,
	}}
	board := newTestBoard(t, runner)

	issue, err := board.CreateIssue(context.Background(), core.CreateIssueOptions{
		Title:  "001-add-auth: Add auth",
		Body:   "body",
		Labels: []string{"specforge"},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "open", issue.State)
	assert.Equal(t, []string{"specforge"}, issue.Labels)

	require.GreaterOrEqual(t, len(runner.calls), 1)
	assert.Contains(t, runner.calls[0], "--repo acme/api")
	assert.Contains(t, runner.calls[0], "--label specforge")
}

func TestListCommentsSince(t *testing.T) {
	runner := &mockRunner{responses: map[string]string{
		"issue view": `{"comments": [
			{"id": "c2", "author": {"login": "agent[bot]"}, "body": "done ✅", "createdAt": "2025-06-01T12:05:00Z"},
			{"id": "c1", "author": {"login": "dev"}, "body": "starting", "createdAt": "2025-06-01T12:00:00Z"}
		]}`,
	}}
	board := newTestBoard(t, runner)

	all, err := board.ListCommentsSince(context.Background(), 42, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c1", all[0].ID, "oldest first")

	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	newer, err := board.ListCommentsSince(context.Background(), 42, since)
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, "c2", newer[0].ID)
	assert.Equal(t, "agent[bot]", newer[0].Author)
}

func TestRateLimitClassification(t *testing.T) {
	runner := &mockRunner{errs: map[string]error{
		"issue view": &RunError{
			Command: "gh issue view",
			Stderr:  "HTTP 403: API rate limit exceeded. Retry-After: 30",
			Err:     errors.New("exit status 1"),
		},
	}}
	board := newTestBoard(t, runner)

	_, err := board.ListCommentsSince(context.Background(), 42, time.Time{})
	require.Error(t, err)
	assert.Equal(t, core.CodeRateLimitExceeded, core.CodeOf(err))

	wait, ok := core.RateLimitWait(err)
	require.True(t, ok)
	assert.Equal(t, 30, wait)
}

func TestRateLimitDefaultWait(t *testing.T) {
	err := classifyGHError(&RunError{
		Command: "gh issue view",
		Stderr:  "API rate limit exceeded for user",
		Err:     errors.New("exit status 1"),
	})
	wait, ok := core.RateLimitWait(err)
	require.True(t, ok)
	assert.Equal(t, defaultRateLimitWait, wait)
}

func TestNotFoundClassification(t *testing.T) {
	err := classifyGHError(&RunError{
		Command: "gh issue view",
		Stderr:  "GraphQL: Could not find issue (HTTP 404)",
		Err:     errors.New("exit status 1"),
	})
	assert.Equal(t, "ISSUE_NOT_FOUND", core.CodeOf(err))
}

func TestParseIssueNumberFromURL(t *testing.T) {
	n, err := parseIssueNumberFromURL("https://github.com/acme/api/issues/123")
	require.NoError(t, err)
	assert.Equal(t, 123, n)

	_, err = parseIssueNumberFromURL("https://github.com/acme/api/pull/123")
	require.Error(t, err)
}

func TestLabelEditing(t *testing.T) {
	runner := &mockRunner{}
	board := newTestBoard(t, runner)
	ctx := context.Background()

	require.NoError(t, board.AddLabels(ctx, 42, "waiting-approval", "phase-2"))
	require.NoError(t, board.RemoveLabels(ctx, 42, "in-progress"))
	require.NoError(t, board.AddLabels(ctx, 42))

	require.Len(t, runner.calls, 2, "empty label sets skip the gh call")
	assert.Contains(t, runner.calls[0], "--add-label waiting-approval")
	assert.Contains(t, runner.calls[0], "--add-label phase-2")
	assert.Contains(t, runner.calls[1], "--remove-label in-progress")
}

func TestNewBoardValidatesRepo(t *testing.T) {
	_, err := NewBoard("not-a-repo", nil, nil)
	require.Error(t, err)
}
