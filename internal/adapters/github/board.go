// Package github adapts the gh CLI to the IssueBoard port. All operations
// shell out to gh so the adapter inherits the user's authentication and
// proxy setup.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// Compile-time interface conformance check.
var _ core.IssueBoard = (*Board)(nil)

// DefaultCommandTimeout bounds a single gh invocation.
const DefaultCommandTimeout = 60 * time.Second

// Board implements the IssueBoard port on top of the gh CLI.
type Board struct {
	repo    string // owner/name
	runner  CommandRunner
	timeout time.Duration
	logger  *logging.Logger
}

// NewBoard creates a board bound to an owner/name repository. A nil runner
// falls back to os/exec.
func NewBoard(repo string, runner CommandRunner, logger *logging.Logger) (*Board, error) {
	if !strings.Contains(repo, "/") {
		return nil, core.ErrValidation("INVALID_REPO",
			fmt.Sprintf("repository %q is not owner/name", repo))
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Board{repo: repo, runner: runner, timeout: DefaultCommandTimeout, logger: logger}, nil
}

// NewBoardFromRepo creates a board detecting owner/name from the current
// git remote via gh.
func NewBoardFromRepo(ctx context.Context, runner CommandRunner, logger *logging.Logger) (*Board, error) {
	if runner == nil {
		runner = NewExecRunner()
	}
	output, err := runner.Run(ctx, "gh", "repo", "view", "--json", "owner,name")
	if err != nil {
		return nil, fmt.Errorf("detecting repository: %w", classifyGHError(err))
	}

	var repo struct {
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(output), &repo); err != nil {
		return nil, fmt.Errorf("parsing repository info: %w", err)
	}
	return NewBoard(repo.Owner.Login+"/"+repo.Name, runner, logger)
}

// WithTimeout sets the per-command timeout.
func (b *Board) WithTimeout(d time.Duration) *Board {
	b.timeout = d
	return b
}

// VerifyAuth checks that gh is installed and authenticated.
func (b *Board) VerifyAuth(ctx context.Context) error {
	if _, err := b.runner.Run(ctx, "gh", "auth", "status"); err != nil {
		return core.ErrValidation("GH_NOT_AUTHENTICATED",
			"gh CLI is not authenticated, run 'gh auth login'").WithCause(err)
	}
	return nil
}

// run executes a gh command with the board's timeout and error mapping.
func (b *Board) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	output, err := b.runner.Run(ctx, "gh", args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", core.ErrTimeout("GH_COMMAND_TIMEOUT",
				fmt.Sprintf("gh %s timed out after %s", args[0], b.timeout))
		}
		return "", classifyGHError(err)
	}
	return output, nil
}

// CreateIssue creates an issue and returns it. gh prints the issue URL;
// the number is parsed from it.
func (b *Board) CreateIssue(ctx context.Context, opts core.CreateIssueOptions) (*core.Issue, error) {
	args := []string{"issue", "create",
		"--repo", b.repo,
		"--title", opts.Title,
		"--body", opts.Body,
	}
	for _, label := range opts.Labels {
		args = append(args, "--label", label)
	}

	output, err := b.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}

	number, err := parseIssueNumberFromURL(output)
	if err != nil {
		return nil, fmt.Errorf("parsing issue URL: %w", err)
	}

	b.logger.Info("issue created", "repo", b.repo, "number", number)

	issue, err := b.GetIssue(ctx, number)
	if err != nil {
		// The issue exists; return what is known rather than failing.
		return &core.Issue{
			Number: number,
			Title:  opts.Title,
			Body:   opts.Body,
			State:  "open",
			URL:    output,
			Labels: opts.Labels,
		}, nil
	}
	return issue, nil
}

// GetIssue retrieves an issue by number.
func (b *Board) GetIssue(ctx context.Context, number int) (*core.Issue, error) {
	output, err := b.run(ctx, "issue", "view", strconv.Itoa(number),
		"--repo", b.repo,
		"--json", "number,title,body,state,url,labels,createdAt,updatedAt")
	if err != nil {
		return nil, err
	}

	var data struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		URL    string `json:"url"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		return nil, fmt.Errorf("parsing issue %d: %w", number, err)
	}

	labels := make([]string, len(data.Labels))
	for i, l := range data.Labels {
		labels[i] = l.Name
	}
	return &core.Issue{
		Number:    data.Number,
		Title:     data.Title,
		Body:      data.Body,
		State:     strings.ToLower(data.State),
		URL:       data.URL,
		Labels:    labels,
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}, nil
}

// ListCommentsSince returns comments created strictly after since, oldest
// first. A zero since returns the full feed.
func (b *Board) ListCommentsSince(ctx context.Context, number int, since time.Time) ([]core.Comment, error) {
	output, err := b.run(ctx, "issue", "view", strconv.Itoa(number),
		"--repo", b.repo,
		"--json", "comments")
	if err != nil {
		return nil, err
	}

	var data struct {
		Comments []struct {
			ID     string `json:"id"`
			Author struct {
				Login string `json:"login"`
			} `json:"author"`
			Body      string    `json:"body"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"comments"`
	}
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		return nil, fmt.Errorf("parsing comments on issue %d: %w", number, err)
	}

	var out []core.Comment
	for _, c := range data.Comments {
		if !since.IsZero() && !c.CreatedAt.After(since) {
			continue
		}
		out = append(out, core.Comment{
			ID:        c.ID,
			Author:    c.Author.Login,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AddComment posts a comment on an issue.
func (b *Board) AddComment(ctx context.Context, number int, body string) error {
	_, err := b.run(ctx, "issue", "comment", strconv.Itoa(number),
		"--repo", b.repo,
		"--body", body)
	return err
}

// AddLabels adds labels to an issue.
func (b *Board) AddLabels(ctx context.Context, number int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	args := []string{"issue", "edit", strconv.Itoa(number), "--repo", b.repo}
	for _, label := range labels {
		args = append(args, "--add-label", label)
	}
	_, err := b.run(ctx, args...)
	return err
}

// RemoveLabels removes labels from an issue.
func (b *Board) RemoveLabels(ctx context.Context, number int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	args := []string{"issue", "edit", strconv.Itoa(number), "--repo", b.repo}
	for _, label := range labels {
		args = append(args, "--remove-label", label)
	}
	_, err := b.run(ctx, args...)
	return err
}

var issueURLPattern = regexp.MustCompile(`/issues/(\d+)$`)

func parseIssueNumberFromURL(url string) (int, error) {
	m := issueURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return 0, fmt.Errorf("no issue number in %q", url)
	}
	return strconv.Atoi(m[1])
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry.after[: ]+(\d+)`)

// defaultRateLimitWait is used when gh reports a rate limit without a
// retry hint.
const defaultRateLimitWait = 60

// classifyGHError maps gh failures onto domain errors. Rate limits carry a
// wait-seconds hint so the poller can back off.
func classifyGHError(err error) error {
	var runErr *RunError
	if !errors.As(err, &runErr) {
		return err
	}

	stderr := runErr.Stderr
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(stderr, "HTTP 429"):
		wait := defaultRateLimitWait
		if m := retryAfterPattern.FindStringSubmatch(stderr); m != nil {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil {
				wait = n
			}
		}
		return core.ErrRateLimit(wait, "gh API rate limited").WithCause(err)
	case strings.Contains(lower, "could not find"), strings.Contains(stderr, "HTTP 404"):
		return core.ErrNotFound("ISSUE_NOT_FOUND", "issue not found").WithCause(err)
	default:
		return err
	}
}
