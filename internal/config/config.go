package config

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	State   StateConfig   `mapstructure:"state"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Git     GitConfig     `mapstructure:"git"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Agents  AgentsConfig  `mapstructure:"agents"`
	Poll    PollConfig    `mapstructure:"poll"`
	Routing RoutingConfig `mapstructure:"routing"`
	Server  ServerConfig  `mapstructure:"server"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StateConfig configures workflow state persistence.
type StateConfig struct {
	// Path is the SQLite database file. "memory" selects the in-memory
	// store for dry runs.
	Path string `mapstructure:"path"`
}

// AuditConfig configures the exchange audit log.
type AuditConfig struct {
	Dir string `mapstructure:"dir"`
}

// GitConfig configures workspace management.
type GitConfig struct {
	RepoPath    string `mapstructure:"repo_path"`
	BaseBranch  string `mapstructure:"base_branch"`
	WorktreeDir string `mapstructure:"worktree_dir"`
}

// GitHubConfig configures the issue board.
type GitHubConfig struct {
	// Repo is owner/name. Empty means detect from the git remote.
	Repo   string `mapstructure:"repo"`
	Remote string `mapstructure:"remote"`
}

// AgentsConfig configures agent dispatch.
type AgentsConfig struct {
	Default        string `mapstructure:"default"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PollConfig configures the signal polling loop.
type PollConfig struct {
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// RoutingConfig points at the topic routing table.
type RoutingConfig struct {
	File string `mapstructure:"file"`

	// Watch reloads the routing table when the file changes.
	Watch bool `mapstructure:"watch"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}
