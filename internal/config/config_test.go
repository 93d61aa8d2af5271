package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyConfig pins the loader to an empty file so the host's real config
// never leaks into tests.
func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile(emptyConfig(t)).Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ".specforge/state.db", cfg.State.Path)
	assert.Equal(t, ".specforge/audit", cfg.Audit.Dir)
	assert.Equal(t, "main", cfg.Git.BaseBranch)
	assert.Equal(t, "claude", cfg.Agents.Default)
	assert.Equal(t, 600, cfg.Poll.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Poll.IntervalSeconds)
	assert.Equal(t, 8484, cfg.Server.Port)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
github:
  repo: acme/api
poll:
  interval_seconds: 2
`), 0o600))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "acme/api", cfg.GitHub.Repo)
	assert.Equal(t, 2, cfg.Poll.IntervalSeconds)
	assert.Equal(t, 600, cfg.Poll.TimeoutSeconds, "unset keys keep defaults")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SPECFORGE_LOG_LEVEL", "warn")
	t.Setenv("SPECFORGE_SERVER_PORT", "9000")

	cfg, err := NewLoader().WithConfigFile(emptyConfig(t)).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestValidator(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile(emptyConfig(t)).Load()
	require.NoError(t, err)
	require.NoError(t, NewValidator().Validate(cfg))

	cfg.Log.Level = "loud"
	cfg.Poll.IntervalSeconds = 0
	cfg.Server.Port = 0
	cfg.GitHub.Repo = "no-slash"

	err = NewValidator().Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["log.level"])
	assert.True(t, fields["poll.interval_seconds"])
	assert.True(t, fields["server.port"])
	assert.True(t, fields["github.repo"])
}

func TestValidator_IntervalBeyondTimeout(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile(emptyConfig(t)).Load()
	require.NoError(t, err)
	cfg.Poll.IntervalSeconds = cfg.Poll.TimeoutSeconds + 1

	require.Error(t, NewValidator().Validate(cfg))
}
