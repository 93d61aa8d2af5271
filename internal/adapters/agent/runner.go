// Package agent adapts local agent CLIs (claude, gemini) to the
// AgentRunner port. Agents run as subprocesses; prompts go in on stdin or
// argv and the raw text response comes back on stdout.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// Compile-time interface conformance check.
var _ core.AgentRunner = (*CLIRunner)(nil)

// DefaultTimeout bounds a dispatch when the caller sets none.
const DefaultTimeout = 5 * time.Minute

// Executor abstracts subprocess execution for testability.
type Executor interface {
	// Run executes name with args in dir, feeding stdin, and returns stdout.
	Run(ctx context.Context, dir, name string, args []string, stdin string) (string, error)
}

// ExecExecutor runs subprocesses through os/exec.
type ExecExecutor struct{}

// Run executes the command.
func (ExecExecutor) Run(ctx context.Context, dir, name string, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s: %w", name, strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// Spec describes how to invoke one agent CLI.
type Spec struct {
	// Path is the binary to execute.
	Path string

	// DefaultModel is used when a dispatch names none.
	DefaultModel string

	// BuildArgs renders argv for a dispatch. The prompt itself is passed
	// on stdin.
	BuildArgs func(opts core.DispatchOptions, model string) []string
}

// CLIRunner dispatches prompts to registered agent CLIs.
type CLIRunner struct {
	agents map[string]Spec
	exec   Executor
	logger *logging.Logger
}

// NewCLIRunner creates a runner with the built-in agent registry. A nil
// executor falls back to os/exec.
func NewCLIRunner(exec Executor, logger *logging.Logger) *CLIRunner {
	if exec == nil {
		exec = ExecExecutor{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CLIRunner{
		agents: builtinAgents(),
		exec:   exec,
		logger: logger,
	}
}

// Register adds or replaces an agent spec.
func (r *CLIRunner) Register(id string, spec Spec) {
	r.agents[id] = spec
}

// Agents returns the registered agent ids.
func (r *CLIRunner) Agents() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Dispatch runs a prompt through the named agent CLI.
func (r *CLIRunner) Dispatch(ctx context.Context, opts core.DispatchOptions) (*core.DispatchResult, error) {
	spec, ok := r.agents[opts.AgentID]
	if !ok {
		return nil, core.ErrExecution(core.CodeAgentUnavailable,
			fmt.Sprintf("no agent registered as %q", opts.AgentID))
	}

	model := opts.Model
	if model == "" {
		model = spec.DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := spec.BuildArgs(opts, model)
	started := time.Now()
	output, err := r.exec.Run(ctx, opts.WorkDir, spec.Path, args, opts.UserPrompt)
	duration := time.Since(started)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, core.ErrTimeout(core.CodeAgentTimeout,
				fmt.Sprintf("agent %s timed out after %s", opts.AgentID, timeout))
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, core.ErrExecution(core.CodeAgentUnavailable,
				fmt.Sprintf("agent binary %q not found", spec.Path)).WithCause(err)
		}
		return nil, core.ErrExecution("AGENT_DISPATCH_FAILED",
			fmt.Sprintf("agent %s failed", opts.AgentID)).WithCause(err)
	}

	r.logger.Debug("agent dispatched",
		"agent", opts.AgentID, "model", model, "duration", duration)

	return &core.DispatchResult{
		Output:   output,
		Model:    model,
		Duration: duration,
	}, nil
}

// Ping checks that the agent's binary is runnable.
func (r *CLIRunner) Ping(ctx context.Context, agentID string) error {
	spec, ok := r.agents[agentID]
	if !ok {
		return core.ErrExecution(core.CodeAgentUnavailable,
			fmt.Sprintf("no agent registered as %q", agentID))
	}
	if _, err := r.exec.Run(ctx, "", spec.Path, []string{"--version"}, ""); err != nil {
		return core.ErrExecution(core.CodeAgentUnavailable,
			fmt.Sprintf("agent %s is not available", agentID)).WithCause(err)
	}
	return nil
}

func builtinAgents() map[string]Spec {
	return map[string]Spec{
		"claude": {
			Path:         "claude",
			DefaultModel: "sonnet",
			BuildArgs: func(opts core.DispatchOptions, model string) []string {
				args := []string{"-p", "--model", model}
				if opts.SystemPrompt != "" {
					args = append(args, "--append-system-prompt", opts.SystemPrompt)
				}
				for _, tool := range opts.Tools {
					args = append(args, "--allowedTools", tool)
				}
				return args
			},
		},
		"gemini": {
			Path:         "gemini",
			DefaultModel: "gemini-2.5-pro",
			BuildArgs: func(opts core.DispatchOptions, model string) []string {
				args := []string{"-m", model}
				if opts.SystemPrompt != "" {
					// gemini has no system prompt flag; fold it into argv
					// ahead of the stdin prompt.
					args = append(args, "-p", opts.SystemPrompt)
				}
				return args
			},
		},
	}
}
