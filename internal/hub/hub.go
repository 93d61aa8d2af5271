// Package hub routes topic-tagged questions to expert agents, validates
// their answers against confidence thresholds and escalates low-confidence
// answers to a human reviewer.
package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// AskStatus is the outcome class of one AskExpert call.
type AskStatus string

const (
	AskStatusResolved AskStatus = "resolved"

	// AskStatusPendingHuman is returned whenever an escalation was opened,
	// whether by a below-threshold answer or a human-routed topic. The
	// audit record's own status keeps the escalated/resolved vocabulary.
	AskStatusPendingHuman AskStatus = "pending_human"
)

// AskRequest is one question for an expert.
type AskRequest struct {
	Topic     string `json:"topic"`
	Question  string `json:"question"`
	Context   string `json:"context,omitempty"`
	FeatureID string `json:"feature_id"`

	// SessionID continues an existing conversation. Empty opens a new one.
	SessionID string `json:"session_id,omitempty"`
}

// AskResult is the outcome of one AskExpert call.
type AskResult struct {
	Status          AskStatus            `json:"status"`
	Answer          *core.Answer         `json:"answer,omitempty"`
	Threshold       int                  `json:"threshold"`
	ThresholdSource core.ThresholdSource `json:"threshold_source"`
	AgentID         string               `json:"agent_id"`
	SessionID       string               `json:"session_id"`
	EscalationID    string               `json:"escalation_id,omitempty"`
	AuditRecordID   string               `json:"audit_record_id"`
}

// Hub is the expert front door. It holds the routing table (swappable on
// config reload) and owns sessions, escalations and the audit trail of
// every exchange.
type Hub struct {
	runner      core.AgentRunner
	sessions    core.SessionStore
	escalations core.EscalationStore
	audit       core.AuditLog
	clock       core.Clock
	logger      *logging.Logger

	mu    sync.RWMutex
	table *core.RoutingTable
}

// New creates a hub. The routing table must already be validated.
func New(runner core.AgentRunner, sessions core.SessionStore, escalations core.EscalationStore,
	audit core.AuditLog, table *core.RoutingTable, clk core.Clock, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		runner:      runner,
		sessions:    sessions,
		escalations: escalations,
		audit:       audit,
		clock:       clk,
		logger:      logger,
		table:       table,
	}
}

// RoutingTable returns the active routing table.
func (h *Hub) RoutingTable() *core.RoutingTable {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.table
}

// SwapRoutingTable atomically replaces the routing table. Invalid tables
// are rejected and the previous table stays active.
func (h *Hub) SwapRoutingTable(table *core.RoutingTable) error {
	if err := table.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.table = table
	h.mu.Unlock()
	h.logger.Info("routing table swapped", "topics", len(table.Topics()))
	return nil
}

// AskExpert routes a question to the topic's expert, validates the answer's
// confidence against the topic threshold and either resolves or escalates.
// Questions routed to the human sentinel skip dispatch entirely and open an
// escalation immediately.
func (h *Hub) AskExpert(ctx context.Context, req AskRequest) (*AskResult, error) {
	if req.Question == "" {
		return nil, core.ErrValidation("INVALID_QUESTION", "question text is required")
	}
	if !core.ValidFeatureID(req.FeatureID) {
		return nil, core.ErrValidation("INVALID_FEATURE_ID",
			fmt.Sprintf("malformed feature id %q", req.FeatureID))
	}

	route, err := h.RoutingTable().Resolve(req.Topic)
	if err != nil {
		return nil, err
	}

	sess, err := h.resolveSession(ctx, req, route.AgentID)
	if err != nil {
		return nil, err
	}

	question := core.Question{
		ID:        uuid.NewString(),
		Topic:     req.Topic,
		Text:      req.Question,
		Context:   req.Context,
		FeatureID: req.FeatureID,
	}

	now := h.clock.Now()
	if err := sess.Append(core.Message{Role: core.RoleUser, Content: req.Question, Timestamp: now}); err != nil {
		return nil, err
	}

	logger := h.logger.WithFeature(req.FeatureID).WithSession(sess.ID).With(
		"topic", req.Topic, "agent", route.AgentID)

	if route.AgentID == core.HumanAgentID {
		return h.escalateToHuman(ctx, question, route, sess, logger)
	}

	answer, err := h.dispatch(ctx, question, route, sess)
	if err != nil {
		// The question stays on the session even when the agent fails, so
		// a retry carries the full conversation.
		_ = h.sessions.SaveSession(ctx, sess)
		return nil, err
	}

	if err := sess.Append(core.Message{
		Role:      core.RoleAssistant,
		Content:   answer.Text,
		Timestamp: h.clock.Now(),
		Metadata: map[string]interface{}{
			"confidence": answer.Confidence,
			"rationale":  answer.Rationale,
		},
	}); err != nil {
		return nil, err
	}
	if err := h.sessions.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	result := &AskResult{
		Answer:          answer,
		Threshold:       route.Threshold,
		ThresholdSource: route.ThresholdSource,
		AgentID:         route.AgentID,
		SessionID:       sess.ID,
	}

	var esc *core.Escalation
	if answer.Confidence >= route.Threshold {
		result.Status = AskStatusResolved
		logger.Info("question resolved", "confidence", answer.Confidence, "threshold", route.Threshold)
	} else {
		esc = &core.Escalation{
			ID:              uuid.NewString(),
			Question:        question,
			TentativeAnswer: *answer,
			ThresholdUsed:   route.Threshold,
			Status:          core.EscalationStatusPending,
			CreatedAt:       h.clock.Now(),
			SessionID:       sess.ID,
		}
		result.Status = AskStatusPendingHuman
		result.EscalationID = esc.ID
		logger.Warn("question escalated", "confidence", answer.Confidence, "threshold", route.Threshold)
	}

	// The audit record lands before the escalation so an escalation never
	// exists without its trail.
	recordID, err := h.appendAudit(ctx, question, answer, result, route)
	if err != nil {
		return nil, err
	}
	result.AuditRecordID = recordID

	if esc != nil {
		if err := h.escalations.SaveEscalation(ctx, esc); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// resolveSession loads the requested session or opens a new one bound to
// the routed agent.
func (h *Hub) resolveSession(ctx context.Context, req AskRequest, agentID string) (*core.Session, error) {
	if req.SessionID != "" {
		sess, err := h.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status == core.SessionStatusClosed {
			return nil, core.ErrValidation(core.CodeSessionClosed,
				fmt.Sprintf("session %s is closed", sess.ID))
		}
		return sess, nil
	}
	return core.NewSession(uuid.NewString(), agentID, req.FeatureID, h.clock.Now()), nil
}

// dispatch runs the question through the routed agent and parses the
// answer document out of the raw output.
func (h *Hub) dispatch(ctx context.Context, q core.Question, route *core.Route, sess *core.Session) (*core.Answer, error) {
	started := h.clock.Now()
	res, err := h.runner.Dispatch(ctx, core.DispatchOptions{
		AgentID:      route.AgentID,
		SystemPrompt: expertSystemPrompt(route),
		UserPrompt:   expertUserPrompt(q, sess),
		Model:        route.Model,
		Timeout:      route.Timeout,
	})
	if err != nil {
		return nil, err
	}

	payload, err := parseAnswer(res.Output)
	if err != nil {
		return nil, err
	}

	confidence := 0
	switch {
	case payload.Confidence != nil:
		confidence = *payload.Confidence
	case res.Confidence != nil:
		confidence = *res.Confidence
	}
	reasons := payload.UncertaintyReasons
	if len(reasons) == 0 {
		reasons = res.UncertaintyReasons
	}

	answer := &core.Answer{
		QuestionID:         q.ID,
		AnsweredBy:         route.AgentID,
		Text:               payload.Answer,
		Rationale:          payload.Rationale,
		Confidence:         core.ClampConfidence(confidence),
		UncertaintyReasons: reasons,
		ModelUsed:          res.Model,
		DurationSeconds:    h.clock.Now().Sub(started).Seconds(),
	}
	if err := answer.Validate(); err != nil {
		return nil, err
	}
	return answer, nil
}

// escalateToHuman opens an escalation without dispatching any agent.
func (h *Hub) escalateToHuman(ctx context.Context, q core.Question, route *core.Route,
	sess *core.Session, logger *logging.Logger) (*AskResult, error) {
	if err := h.sessions.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	esc := &core.Escalation{
		ID:            uuid.NewString(),
		Question:      q,
		ThresholdUsed: route.Threshold,
		Status:        core.EscalationStatusPending,
		CreatedAt:     h.clock.Now(),
		SessionID:     sess.ID,
	}

	result := &AskResult{
		Status:          AskStatusPendingHuman,
		Threshold:       route.Threshold,
		ThresholdSource: route.ThresholdSource,
		AgentID:         core.HumanAgentID,
		SessionID:       sess.ID,
		EscalationID:    esc.ID,
	}
	recordID, err := h.appendAudit(ctx, q, nil, result, route)
	if err != nil {
		return nil, err
	}
	result.AuditRecordID = recordID

	if err := h.escalations.SaveEscalation(ctx, esc); err != nil {
		return nil, err
	}

	logger.Info("question routed to human reviewer", "escalation_id", esc.ID)
	return result, nil
}

// appendAudit records the exchange on the feature's audit partition.
func (h *Hub) appendAudit(ctx context.Context, q core.Question, answer *core.Answer,
	result *AskResult, route *core.Route) (string, error) {
	rec := &core.AuditRecord{
		ID:           uuid.NewString(),
		Timestamp:    h.clock.Now(),
		FeatureID:    q.FeatureID,
		Topic:        q.Topic,
		Question:     q.Text,
		Status:       core.AuditStatusEscalated,
		SessionID:    result.SessionID,
		EscalationID: result.EscalationID,
		Metadata: map[string]interface{}{
			"agent":            result.AgentID,
			"threshold":        route.Threshold,
			"threshold_source": string(route.ThresholdSource),
		},
	}
	if answer != nil {
		rec.Answer = answer.Text
		rec.Confidence = answer.Confidence
		rec.DurationMS = int64(answer.DurationSeconds * 1000)
	}
	if result.Status == AskStatusResolved {
		rec.Status = core.AuditStatusResolved
	}
	if err := h.audit.Append(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// GetSession loads a session by id.
func (h *Hub) GetSession(ctx context.Context, id string) (*core.Session, error) {
	return h.sessions.GetSession(ctx, id)
}

// CloseSession marks a session closed. Closing twice is a no-op.
func (h *Hub) CloseSession(ctx context.Context, id string) (*core.Session, error) {
	sess, err := h.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Close(h.clock.Now())
	if err := h.sessions.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func expertSystemPrompt(route *core.Route) string {
	return fmt.Sprintf(`You are the %q expert for topic %q in a software delivery pipeline.
Answer the question using only well-established knowledge of your domain.
Respond with a single JSON object and nothing else:
{"answer": "<your answer>", "rationale": "<why, at least one full sentence>", "confidence": <0-100>, "uncertainty_reasons": ["<optional>"]}`,
		route.AgentID, route.Topic)
}

func expertUserPrompt(q core.Question, sess *core.Session) string {
	out := ""
	if history := sess.History(); history != "" {
		out += "Conversation so far:\n" + history + "\n"
	}
	if q.Context != "" {
		out += "Context:\n" + q.Context + "\n\n"
	}
	out += "Question: " + q.Text
	return out
}
