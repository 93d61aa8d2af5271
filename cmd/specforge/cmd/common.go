package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/specforge/specforge/internal/adapters/agent"
	"github.com/specforge/specforge/internal/adapters/git"
	"github.com/specforge/specforge/internal/adapters/github"
	"github.com/specforge/specforge/internal/adapters/state"
	"github.com/specforge/specforge/internal/audit"
	"github.com/specforge/specforge/internal/clock"
	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/engine"
	"github.com/specforge/specforge/internal/hub"
	"github.com/specforge/specforge/internal/logging"
	"github.com/specforge/specforge/internal/poller"
)

// stateStore is the persistence surface the CLI wires up: one backend
// serves workflows, sessions and escalations.
type stateStore interface {
	core.WorkflowStore
	core.SessionStore
	core.EscalationStore
}

// deps holds the wired application dependencies shared by commands.
type deps struct {
	cfg    *config.Config
	logger *logging.Logger
	store  stateStore
	sink   *audit.Sink
	clock  core.Clock
	engine *engine.Engine

	closers []func() error
}

// initDeps loads and validates configuration, then wires the storage layer
// and the workflow engine. Commands layer adapters on top as needed.
func initDeps() (*deps, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	d := &deps{cfg: cfg, logger: logger, clock: clock.NewSystem()}

	if cfg.State.Path == "memory" {
		d.store = state.NewMemoryStore()
	} else {
		sqlStore, err := state.NewSQLiteStore(cfg.State.Path)
		if err != nil {
			return nil, err
		}
		d.store = sqlStore
		d.closers = append(d.closers, sqlStore.Close)
	}

	sink, err := audit.NewSink(cfg.Audit.Dir, logger)
	if err != nil {
		d.close()
		return nil, err
	}
	d.sink = sink

	d.engine = engine.New(d.store, d.clock, logger)
	return d, nil
}

func (d *deps) close() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			d.logger.Warn("closing dependency", "error", err)
		}
	}
}

// buildBoard connects the gh-backed issue board, detecting the repository
// from the git remote when none is configured.
func (d *deps) buildBoard(ctx context.Context) (*github.Board, error) {
	runner := github.NewExecRunner()
	if d.cfg.GitHub.Repo != "" {
		return github.NewBoard(d.cfg.GitHub.Repo, runner, d.logger)
	}
	return github.NewBoardFromRepo(ctx, runner, d.logger)
}

// buildWorkspace creates the git worktree manager.
func (d *deps) buildWorkspace() (*git.Workspace, error) {
	return git.NewWorkspace(git.Options{
		RepoPath:     d.cfg.Git.RepoPath,
		BaseBranch:   d.cfg.Git.BaseBranch,
		WorktreeBase: d.cfg.Git.WorktreeDir,
		Clock:        d.clock,
		Logger:       d.logger,
	})
}

// buildRunner creates the agent CLI dispatcher.
func (d *deps) buildRunner() *agent.CLIRunner {
	return agent.NewCLIRunner(nil, d.logger)
}

// buildPoller creates the signal poller over the issue board.
func (d *deps) buildPoller(board core.IssueBoard) *poller.Poller {
	return poller.New(board, d.clock, d.logger)
}

// buildExecutor wires the full phase executor: board, workspace, agent
// runner and signal poller.
func (d *deps) buildExecutor(ctx context.Context) (*engine.Executor, error) {
	board, err := d.buildBoard(ctx)
	if err != nil {
		return nil, err
	}
	workspace, err := d.buildWorkspace()
	if err != nil {
		return nil, err
	}

	return engine.NewExecutor(d.engine, engine.Adapters{
		Runner:    d.buildRunner(),
		Board:     board,
		Workspace: workspace,
	}, d.buildPoller(board), engine.ExecutorConfig{
		DefaultAgentID: d.cfg.Agents.Default,
		DefaultModel:   d.cfg.Agents.Model,
		AgentTimeout:   time.Duration(d.cfg.Agents.TimeoutSeconds) * time.Second,
		PollTimeout:    time.Duration(d.cfg.Poll.TimeoutSeconds) * time.Second,
		PollInterval:   time.Duration(d.cfg.Poll.IntervalSeconds) * time.Second,
	}, d.logger), nil
}

// buildHub creates the expert hub with the configured routing table.
func (d *deps) buildHub() (*hub.Hub, error) {
	table, err := config.LoadRoutingTableOrDefault(d.cfg.Routing.File)
	if err != nil {
		return nil, err
	}
	return hub.New(d.buildRunner(), d.store, d.store, d.sink, table, d.clock, d.logger), nil
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
