// Package poller implements the external-signal polling loop: watch an
// issue's comment feed for a named signal, return the first match or time
// out.
package poller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// Request describes one poll.
type Request struct {
	TicketID       int
	Signal         core.SignalType
	Timeout        time.Duration
	Interval       time.Duration
	RaiseOnTimeout bool
}

// Result is the outcome of a poll.
type Result struct {
	Detected  bool          `json:"detected"`
	CommentID string        `json:"comment_id,omitempty"`
	Author    string        `json:"author,omitempty"`
	Body      string        `json:"body,omitempty"`
	PollCount int           `json:"poll_count"`
	Elapsed   time.Duration `json:"elapsed"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// DefaultInterval is used when a request does not set one.
const DefaultInterval = 5 * time.Second

// Poller watches issue comment feeds through the IssueBoard port.
type Poller struct {
	board  core.IssueBoard
	clock  core.Clock
	logger *logging.Logger
}

// New creates a poller.
func New(board core.IssueBoard, clk core.Clock, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{board: board, clock: clk, logger: logger}
}

// Poll runs the polling loop. It returns the first matching comment, a
// non-detected result on timeout (or a POLL_TIMEOUT error when
// RaiseOnTimeout is set), or a cancelled result once ctx is done. After
// cancellation is observed no further board calls are made.
func (p *Poller) Poll(ctx context.Context, req Request) (*Result, error) {
	if req.Interval <= 0 {
		req.Interval = DefaultInterval
	}

	logger := p.logger.With("ticket", req.TicketID, "signal", string(req.Signal))
	start := p.clock.Now()
	result := &Result{}
	var lastSeen time.Time

	for {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Elapsed = p.clock.Now().Sub(start)
			logger.Debug("poll cancelled", "poll_count", result.PollCount)
			return result, nil
		}

		result.PollCount++
		comments, err := p.board.ListCommentsSince(ctx, req.TicketID, lastSeen)
		if err != nil {
			if wait, ok := core.RateLimitWait(err); ok {
				pause := time.Duration(wait) * time.Second
				if pause < req.Interval {
					pause = req.Interval
				}
				logger.Warn("issue board rate limited", "wait_seconds", wait)
				if sleepErr := p.clock.Sleep(ctx, pause); sleepErr != nil {
					result.Cancelled = true
					result.Elapsed = p.clock.Now().Sub(start)
					return result, nil
				}
				if timedOut, res, err := p.checkDeadline(ctx, req, start, result, logger); timedOut {
					return res, err
				}
				continue
			}
			return nil, fmt.Errorf("listing comments on ticket %d: %w", req.TicketID, err)
		}

		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		})

		for _, c := range comments {
			if c.CreatedAt.After(lastSeen) {
				lastSeen = c.CreatedAt
			}
			if req.Signal.Matches(c.Body) {
				result.Detected = true
				result.CommentID = c.ID
				result.Author = c.Author
				result.Body = c.Body
				result.Elapsed = p.clock.Now().Sub(start)
				logger.Info("signal detected",
					"comment_id", c.ID, "author", c.Author, "poll_count", result.PollCount)
				return result, nil
			}
		}

		if timedOut, res, err := p.checkDeadline(ctx, req, start, result, logger); timedOut {
			return res, err
		}

		if err := p.clock.Sleep(ctx, req.Interval); err != nil {
			result.Cancelled = true
			result.Elapsed = p.clock.Now().Sub(start)
			return result, nil
		}
	}
}

func (p *Poller) checkDeadline(_ context.Context, req Request, start time.Time, result *Result, logger *logging.Logger) (bool, *Result, error) {
	elapsed := p.clock.Now().Sub(start)
	if elapsed < req.Timeout {
		return false, nil, nil
	}
	result.TimedOut = true
	result.Elapsed = elapsed
	logger.Warn("poll timed out", "poll_count", result.PollCount, "elapsed", elapsed)
	if req.RaiseOnTimeout {
		return true, nil, core.ErrTimeout(core.CodePollTimeout,
			fmt.Sprintf("no %s signal on ticket %d within %s", req.Signal, req.TicketID, req.Timeout))
	}
	return true, result, nil
}
