package core

import "time"

// AuditStatus records how an expert exchange concluded.
type AuditStatus string

const (
	AuditStatusResolved  AuditStatus = "resolved"
	AuditStatusEscalated AuditStatus = "escalated"
)

// AuditRecord is one line of the append-only exchange log, partitioned by
// feature id. ParentID links a re-routed follow-up to its origin record.
type AuditRecord struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	FeatureID    string                 `json:"feature_id"`
	Topic        string                 `json:"topic"`
	Question     string                 `json:"question"`
	Answer       string                 `json:"answer"`
	Confidence   int                    `json:"confidence"`
	Status       AuditStatus            `json:"status"`
	DurationMS   int64                  `json:"duration_ms"`
	SessionID    string                 `json:"session_id,omitempty"`
	EscalationID string                 `json:"escalation_id,omitempty"`
	ParentID     string                 `json:"parent_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
