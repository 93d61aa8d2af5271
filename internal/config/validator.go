package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateState(&cfg.State)
	v.validateAudit(&cfg.Audit)
	v.validateGitHub(&cfg.GitHub)
	v.validateAgents(&cfg.Agents)
	v.validatePoll(&cfg.Poll)
	v.validateServer(&cfg.Server)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !validLogLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be debug, info, warn or error")
	}
	switch cfg.Format {
	case "auto", "json", "text", "pretty":
	default:
		v.addError("log.format", cfg.Format, "must be auto, json, text or pretty")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	if cfg.Path == "" {
		v.addError("state.path", cfg.Path, "must not be empty")
	}
}

func (v *Validator) validateAudit(cfg *AuditConfig) {
	if cfg.Dir == "" {
		v.addError("audit.dir", cfg.Dir, "must not be empty")
	}
}

func (v *Validator) validateGitHub(cfg *GitHubConfig) {
	if cfg.Repo != "" && !strings.Contains(cfg.Repo, "/") {
		v.addError("github.repo", cfg.Repo, "must be owner/name")
	}
}

func (v *Validator) validateAgents(cfg *AgentsConfig) {
	if cfg.Default == "" {
		v.addError("agents.default", cfg.Default, "must name an agent")
	}
	if cfg.TimeoutSeconds <= 0 {
		v.addError("agents.timeout_seconds", cfg.TimeoutSeconds, "must be positive")
	}
}

func (v *Validator) validatePoll(cfg *PollConfig) {
	if cfg.IntervalSeconds <= 0 {
		v.addError("poll.interval_seconds", cfg.IntervalSeconds, "must be positive")
	}
	if cfg.TimeoutSeconds <= 0 {
		v.addError("poll.timeout_seconds", cfg.TimeoutSeconds, "must be positive")
	}
	if cfg.TimeoutSeconds > 0 && cfg.IntervalSeconds > cfg.TimeoutSeconds {
		v.addError("poll.interval_seconds", cfg.IntervalSeconds, "must not exceed poll.timeout_seconds")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be in 1..65535")
	}
	if cfg.TimeoutSeconds <= 0 {
		v.addError("server.timeout_seconds", cfg.TimeoutSeconds, "must be positive")
	}
}
