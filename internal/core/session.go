package core

import (
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// MessageRole identifies the author class of a session message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleHuman     MessageRole = "human"
)

// Message is one entry in a session's conversation. Order is insertion
// order and never changes.
type Message struct {
	Role      MessageRole            `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Session is an ordered conversation with an expert agent, bound to a
// feature.
type Session struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	FeatureID string        `json:"feature_id"`
	Status    SessionStatus `json:"status"`
	Messages  []Message     `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewSession creates an active session bound to an agent and feature.
func NewSession(id, agentID, featureID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		AgentID:   agentID,
		FeatureID: featureID,
		Status:    SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the session. Closed sessions reject appends.
func (s *Session) Append(msg Message) error {
	if s.Status == SessionStatusClosed {
		return ErrValidation(CodeSessionClosed,
			fmt.Sprintf("session %s is closed", s.ID))
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.Timestamp
	return nil
}

// Close marks the session closed. Closing twice is a no-op.
func (s *Session) Close(now time.Time) {
	if s.Status != SessionStatusClosed {
		s.Status = SessionStatusClosed
		s.UpdatedAt = now
	}
}

// History renders the conversation for inclusion in agent context.
func (s *Session) History() string {
	if len(s.Messages) == 0 {
		return ""
	}
	out := ""
	for _, m := range s.Messages {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}
