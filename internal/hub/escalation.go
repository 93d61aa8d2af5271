package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/specforge/specforge/internal/core"
)

// ResolveRequest applies a human action to a pending escalation.
type ResolveRequest struct {
	EscalationID string `json:"escalation_id"`
	Action       string `json:"action"`
	Responder    string `json:"responder"`

	// Payload carries the corrected answer for "correct" and the extra
	// context for "add_context". Ignored for "confirm".
	Payload string `json:"payload,omitempty"`
}

// ResolveResult reports how an escalation was closed.
type ResolveResult struct {
	Escalation  *core.Escalation `json:"escalation"`
	FinalAnswer *core.Answer     `json:"final_answer,omitempty"`

	// NeedsReroute signals that the question must be re-asked with the
	// augmented context; RerouteQuestion carries it.
	NeedsReroute    bool           `json:"needs_reroute,omitempty"`
	RerouteQuestion *core.Question `json:"reroute_question,omitempty"`
}

// CheckEscalation returns the current state of an escalation.
func (h *Hub) CheckEscalation(ctx context.Context, id string) (*core.Escalation, error) {
	return h.escalations.GetEscalation(ctx, id)
}

// ListEscalations returns escalations filtered by status.
func (h *Hub) ListEscalations(ctx context.Context, status core.EscalationStatus) ([]*core.Escalation, error) {
	return h.escalations.ListEscalations(ctx, status)
}

// ResolveEscalation closes a pending escalation with a human action:
//
//	confirm      accepts the tentative answer as final
//	correct      replaces the answer with the human's, at full confidence
//	add_context  augments the question and asks for a re-route
//
// The resolution is chained to the escalation's originating audit record
// through parent_id.
func (h *Hub) ResolveEscalation(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	action, err := core.ParseHumanAction(req.Action)
	if err != nil {
		return nil, err
	}
	if req.Responder == "" {
		return nil, core.ErrValidation("INVALID_RESPONDER", "responder is required")
	}
	if (action == core.ActionCorrect || action == core.ActionAddContext) && req.Payload == "" {
		return nil, core.ErrValidation("INVALID_PAYLOAD",
			fmt.Sprintf("action %q requires a payload", action))
	}

	esc, err := h.escalations.GetEscalation(ctx, req.EscalationID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	if err := esc.Resolve(action, req.Responder, req.Payload, now); err != nil {
		return nil, err
	}
	if err := h.escalations.SaveEscalation(ctx, esc); err != nil {
		return nil, err
	}

	result := &ResolveResult{Escalation: esc}
	switch action {
	case core.ActionConfirm:
		final := esc.TentativeAnswer
		final.AnsweredBy = req.Responder
		result.FinalAnswer = &final

	case core.ActionCorrect:
		result.FinalAnswer = &core.Answer{
			QuestionID: esc.Question.ID,
			AnsweredBy: req.Responder,
			Text:       req.Payload,
			Rationale:  fmt.Sprintf("corrected by %s", req.Responder),
			Confidence: 100,
			ModelUsed:  "human",
		}

	case core.ActionAddContext:
		rerouted := esc.Question
		rerouted.ID = uuid.NewString()
		rerouted.Context = augmentContext(esc.Question.Context, req.Payload)
		result.NeedsReroute = true
		result.RerouteQuestion = &rerouted
	}

	if err := h.recordResolution(ctx, esc, action, req, result); err != nil {
		return nil, err
	}

	if esc.SessionID != "" {
		if err := h.appendHumanMessage(ctx, esc, action, req, now); err != nil {
			h.logger.Warn("recording human message on session failed",
				"session_id", esc.SessionID, "error", err)
		}
	}

	h.logger.WithFeature(esc.Question.FeatureID).Info("escalation resolved",
		"escalation_id", esc.ID, "action", string(action), "responder", req.Responder)
	return result, nil
}

// recordResolution appends the resolution to the audit trail, chained to
// the escalation's originating record.
func (h *Hub) recordResolution(ctx context.Context, esc *core.Escalation, action core.HumanAction,
	req ResolveRequest, result *ResolveResult) error {
	parentID, err := h.originRecordID(ctx, esc)
	if err != nil {
		return err
	}

	rec := &core.AuditRecord{
		ID:           uuid.NewString(),
		Timestamp:    h.clock.Now(),
		FeatureID:    esc.Question.FeatureID,
		Topic:        esc.Question.Topic,
		Question:     esc.Question.Text,
		Status:       core.AuditStatusResolved,
		SessionID:    esc.SessionID,
		EscalationID: esc.ID,
		ParentID:     parentID,
		Metadata: map[string]interface{}{
			"human_action": string(action),
			"responder":    req.Responder,
		},
	}
	if result.FinalAnswer != nil {
		rec.Answer = result.FinalAnswer.Text
		rec.Confidence = result.FinalAnswer.Confidence
	}
	if result.NeedsReroute {
		rec.Metadata["needs_reroute"] = true
	}
	return h.audit.Append(ctx, rec)
}

// originRecordID finds the audit record that opened this escalation.
func (h *Hub) originRecordID(ctx context.Context, esc *core.Escalation) (string, error) {
	records, err := h.audit.List(ctx, esc.Question.FeatureID)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.EscalationID == esc.ID && rec.ParentID == "" {
			return rec.ID, nil
		}
	}
	return "", nil
}

// appendHumanMessage adds the human action to the escalation's session.
func (h *Hub) appendHumanMessage(ctx context.Context, esc *core.Escalation, action core.HumanAction,
	req ResolveRequest, now time.Time) error {
	sess, err := h.sessions.GetSession(ctx, esc.SessionID)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("%s: %s", action, req.Payload)
	if action == core.ActionConfirm {
		content = fmt.Sprintf("confirmed tentative answer (confidence %d)", esc.TentativeAnswer.Confidence)
	}
	if err := sess.Append(core.Message{
		Role:      core.RoleHuman,
		Content:   content,
		Timestamp: now,
		Metadata:  map[string]interface{}{"responder": req.Responder, "escalation_id": esc.ID},
	}); err != nil {
		return err
	}
	return h.sessions.SaveSession(ctx, sess)
}

// augmentContext appends the human's context block to the original.
func augmentContext(original, extra string) string {
	block := "Additional context from human:\n" + extra
	if original == "" {
		return block
	}
	return original + "\n\n" + block
}
