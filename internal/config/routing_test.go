package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/core"
)

const routingYAML = `
default_confidence_threshold: 80
default_timeout_seconds: 120
default_model: sonnet
agents:
  architect:
    display_name: Architect
    topics: [architecture, database]
  security:
    display_name: Security
    topics: [security]
overrides:
  security:
    agent: security
    confidence_threshold: 90
  compliance:
    agent: human
`

func TestLoadRoutingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(routingYAML), 0o600))

	table, err := LoadRoutingTable(path)
	require.NoError(t, err)

	route, err := table.Resolve("security")
	require.NoError(t, err)
	assert.Equal(t, "security", route.AgentID)
	assert.Equal(t, 90, route.Threshold)
	assert.Equal(t, core.ThresholdSourceOverride, route.ThresholdSource)

	route, err = table.Resolve("compliance")
	require.NoError(t, err)
	assert.Equal(t, core.HumanAgentID, route.AgentID)
}

func TestLoadRoutingTable_InvalidRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_confidence_threshold: 80
agents: {}
overrides:
  x:
    agent: ghost
`), 0o600))

	_, err := LoadRoutingTable(path)
	require.Error(t, err)
}

func TestLoadRoutingTableOrDefault(t *testing.T) {
	table, err := LoadRoutingTableOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	route, err := table.Resolve("general")
	require.NoError(t, err)
	assert.Equal(t, "claude", route.AgentID)
}

func TestRoutingWatcher_ReloadsValidAndKeepsOldOnInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(routingYAML), 0o600))

	var mu sync.Mutex
	var swaps []*core.RoutingTable
	watcher, err := NewRoutingWatcher(path, func(table *core.RoutingTable) error {
		mu.Lock()
		defer mu.Unlock()
		swaps = append(swaps, table)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// A valid rewrite lands as a swap.
	updated := strings.Replace(routingYAML, "default_model: sonnet", "default_model: opus", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(swaps) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	last := swaps[len(swaps)-1]
	count := len(swaps)
	mu.Unlock()
	assert.Equal(t, "opus", last.DefaultModel)

	// An invalid rewrite is rejected without a swap.
	require.NoError(t, os.WriteFile(path, []byte("agents: {{"), 0o600))
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, count, len(swaps))
	mu.Unlock()

	cancel()
	<-done
}
