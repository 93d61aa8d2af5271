package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/specforge/specforge/internal/core"
)

// LoadRoutingTable reads and validates a routing table YAML file.
func LoadRoutingTable(path string) (*core.RoutingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routing table: %w", err)
	}

	var table core.RoutingTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parsing routing table %s: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("routing table %s: %w", path, err)
	}
	return &table, nil
}

// LoadRoutingTableOrDefault loads the routing table, falling back to the
// built-in default when the file does not exist.
func LoadRoutingTableOrDefault(path string) (*core.RoutingTable, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultRoutingTable(), nil
	}
	return LoadRoutingTable(path)
}

// DefaultRoutingTable returns the routing table used when no file is
// configured: one generalist agent plus a human-only compliance topic.
func DefaultRoutingTable() *core.RoutingTable {
	return &core.RoutingTable{
		DefaultConfidenceThreshold: 80,
		DefaultTimeoutSeconds:      120,
		DefaultModel:               "sonnet",
		Agents: map[string]core.AgentSpec{
			"claude": {
				DisplayName: "Generalist",
				Topics:      []string{"architecture", "database", "security", "testing", "general"},
			},
		},
		Overrides: map[string]core.TopicOverride{
			"compliance": {Agent: core.HumanAgentID},
		},
	}
}
