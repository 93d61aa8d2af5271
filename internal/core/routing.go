package core

import (
	"fmt"
	"sort"
	"time"
)

// HumanAgentID is the sentinel routing target that short-circuits agent
// dispatch and opens an escalation directly.
const HumanAgentID = "human"

// AgentSpec describes one expert agent in the routing table.
type AgentSpec struct {
	DisplayName    string        `yaml:"display_name" json:"display_name"`
	Topics         []string      `yaml:"topics" json:"topics"`
	DefaultModel   string        `yaml:"default_model,omitempty" json:"default_model,omitempty"`
	DefaultTimeout time.Duration `yaml:"default_timeout,omitempty" json:"default_timeout,omitempty"`
}

// TopicOverride pins a topic to an agent and optionally tightens the
// confidence threshold or model. Overrides win over agent topic sets.
type TopicOverride struct {
	Agent               string `yaml:"agent" json:"agent"`
	ConfidenceThreshold *int   `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	Model               string `yaml:"model,omitempty" json:"model,omitempty"`
}

// RoutingTable is the process-wide topic routing configuration. Immutable
// between reloads.
type RoutingTable struct {
	DefaultConfidenceThreshold int                      `yaml:"default_confidence_threshold" json:"default_confidence_threshold"`
	DefaultTimeoutSeconds      int                      `yaml:"default_timeout_seconds" json:"default_timeout_seconds"`
	DefaultModel               string                   `yaml:"default_model" json:"default_model"`
	Agents                     map[string]AgentSpec     `yaml:"agents" json:"agents"`
	Overrides                  map[string]TopicOverride `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// ThresholdSource reports where a threshold came from.
type ThresholdSource string

const (
	ThresholdSourceDefault  ThresholdSource = "default"
	ThresholdSourceOverride ThresholdSource = "override"
)

// Route is a resolved topic routing decision.
type Route struct {
	Topic           string
	AgentID         string
	Threshold       int
	ThresholdSource ThresholdSource
	Model           string
	Timeout         time.Duration
}

// Topics returns the sorted set of recognized topics.
func (t *RoutingTable) Topics() []string {
	seen := map[string]bool{}
	for topic := range t.Overrides {
		seen[topic] = true
	}
	for _, spec := range t.Agents {
		for _, topic := range spec.Topics {
			seen[topic] = true
		}
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve maps a topic to a route: override agent first, else the first
// agent (by sorted id, for determinism) whose topic set contains it, else
// the human sentinel. Unknown topics fail with the recognized topic set
// attached.
func (t *RoutingTable) Resolve(topic string) (*Route, error) {
	route := &Route{
		Topic:           topic,
		Threshold:       t.DefaultConfidenceThreshold,
		ThresholdSource: ThresholdSourceDefault,
		Model:           t.DefaultModel,
		Timeout:         time.Duration(t.DefaultTimeoutSeconds) * time.Second,
	}

	if ov, ok := t.Overrides[topic]; ok {
		route.AgentID = ov.Agent
		if ov.ConfidenceThreshold != nil {
			route.Threshold = *ov.ConfidenceThreshold
			route.ThresholdSource = ThresholdSourceOverride
		}
		if ov.Model != "" {
			route.Model = ov.Model
		}
		t.applyAgentDefaults(route)
		return route, nil
	}

	agentIDs := make([]string, 0, len(t.Agents))
	for id := range t.Agents {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	for _, id := range agentIDs {
		for _, agentTopic := range t.Agents[id].Topics {
			if agentTopic == topic {
				route.AgentID = id
				t.applyAgentDefaults(route)
				return route, nil
			}
		}
	}

	known := t.Topics()
	for _, k := range known {
		if k == topic {
			// Topic is declared but maps to no agent: route to human.
			route.AgentID = HumanAgentID
			return route, nil
		}
	}

	return nil, ErrValidation(CodeUnknownTopic,
		fmt.Sprintf("unknown topic %q", topic)).WithDetail("available_topics", known)
}

func (t *RoutingTable) applyAgentDefaults(route *Route) {
	spec, ok := t.Agents[route.AgentID]
	if !ok {
		return
	}
	if route.Model == t.DefaultModel && spec.DefaultModel != "" {
		route.Model = spec.DefaultModel
	}
	if spec.DefaultTimeout > 0 {
		route.Timeout = spec.DefaultTimeout
	}
}

// Validate checks the table for internal consistency.
func (t *RoutingTable) Validate() error {
	if t.DefaultConfidenceThreshold < 0 || t.DefaultConfidenceThreshold > 100 {
		return ErrValidation("INVALID_ROUTING_CONFIG",
			fmt.Sprintf("default confidence threshold %d outside [0,100]", t.DefaultConfidenceThreshold))
	}
	for topic, ov := range t.Overrides {
		if ov.Agent == "" {
			return ErrValidation("INVALID_ROUTING_CONFIG",
				fmt.Sprintf("override for topic %q names no agent", topic))
		}
		if ov.Agent != HumanAgentID {
			if _, ok := t.Agents[ov.Agent]; !ok {
				return ErrValidation("INVALID_ROUTING_CONFIG",
					fmt.Sprintf("override for topic %q references unknown agent %q", topic, ov.Agent))
			}
		}
		if ov.ConfidenceThreshold != nil {
			if c := *ov.ConfidenceThreshold; c < 0 || c > 100 {
				return ErrValidation("INVALID_ROUTING_CONFIG",
					fmt.Sprintf("override threshold %d for topic %q outside [0,100]", c, topic))
			}
		}
	}
	return nil
}
