package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/poller"
)

var (
	pollTicket   int
	pollSignal   string
	pollTimeout  int
	pollInterval int
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll an issue's comments for a signal",
	Long: `Watch a tracking issue's comment feed until a signal appears or the
timeout elapses.

Signals:
  agent_complete  the agent's completion check mark
  human_approval  a comment containing "approved" (case-insensitive)`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().IntVar(&pollTicket, "ticket", 0, "issue number to watch")
	pollCmd.Flags().StringVar(&pollSignal, "signal", "agent_complete",
		"signal to wait for (agent_complete, human_approval)")
	pollCmd.Flags().IntVar(&pollTimeout, "timeout", 0,
		"timeout in seconds (default: configured poll timeout)")
	pollCmd.Flags().IntVar(&pollInterval, "interval", 0,
		"poll interval in seconds (default: configured interval)")
	_ = pollCmd.MarkFlagRequired("ticket")
}

func runPoll(cmd *cobra.Command, _ []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	signalType, err := core.ParseSignalType(pollSignal)
	if err != nil {
		return err
	}

	board, err := d.buildBoard(cmd.Context())
	if err != nil {
		return err
	}

	timeout := time.Duration(d.cfg.Poll.TimeoutSeconds) * time.Second
	if pollTimeout > 0 {
		timeout = time.Duration(pollTimeout) * time.Second
	}
	interval := time.Duration(d.cfg.Poll.IntervalSeconds) * time.Second
	if pollInterval > 0 {
		interval = time.Duration(pollInterval) * time.Second
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching issue #%d for %s (timeout %s)...\n", pollTicket, signalType, timeout)
	res, err := d.buildPoller(board).Poll(ctx, poller.Request{
		TicketID: pollTicket,
		Signal:   signalType,
		Timeout:  timeout,
		Interval: interval,
	})
	if err != nil {
		return err
	}

	switch {
	case res.Detected:
		fmt.Printf("Signal detected after %d polls (%s): %s by %s\n",
			res.PollCount, res.Elapsed.Round(time.Second), res.CommentID, res.Author)
	case res.Cancelled:
		fmt.Println("Poll cancelled.")
	default:
		fmt.Printf("No signal within %s (%d polls).\n", timeout, res.PollCount)
	}
	return nil
}
