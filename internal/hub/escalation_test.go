package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/core"
)

// escalate sets up a pending escalation through the normal ask path.
func escalate(t *testing.T, h *hubHarness) *AskResult {
	t.Helper()
	h.runner.confidence = 60
	res, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic:     "database",
		Question:  "Which KDF should we use?",
		Context:   "Passwords for the admin panel.",
		FeatureID: "001-add-auth",
	})
	require.NoError(t, err)
	require.Equal(t, AskStatusPendingHuman, res.Status)
	return res
}

func TestResolveEscalation_Confirm(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	asked := escalate(t, h)

	res, err := h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID,
		Action:       "confirm",
		Responder:    "@reviewer",
	})
	require.NoError(t, err)

	assert.Equal(t, core.EscalationStatusResolved, res.Escalation.Status)
	assert.Equal(t, core.ActionConfirm, res.Escalation.HumanAction)
	require.NotNil(t, res.FinalAnswer)
	assert.Equal(t, "use argon2id", res.FinalAnswer.Text)
	assert.Equal(t, 60, res.FinalAnswer.Confidence, "confirm keeps the tentative confidence")
	assert.Equal(t, "@reviewer", res.FinalAnswer.AnsweredBy)
	assert.False(t, res.NeedsReroute)

	// The human action lands on the session.
	sess, err := h.hub.GetSession(ctx, asked.SessionID)
	require.NoError(t, err)
	last := sess.Messages[len(sess.Messages)-1]
	assert.Equal(t, core.RoleHuman, last.Role)
	assert.Equal(t, "@reviewer", last.Metadata["responder"])
}

func TestResolveEscalation_Correct(t *testing.T) {
	h := newTestHub(t)
	asked := escalate(t, h)

	res, err := h.hub.ResolveEscalation(context.Background(), ResolveRequest{
		EscalationID: asked.EscalationID,
		Action:       "correct",
		Responder:    "@reviewer",
		Payload:      "Use scrypt, the HSM lacks argon2 support.",
	})
	require.NoError(t, err)

	require.NotNil(t, res.FinalAnswer)
	assert.Equal(t, "Use scrypt, the HSM lacks argon2 support.", res.FinalAnswer.Text)
	assert.Equal(t, 100, res.FinalAnswer.Confidence)
	assert.Equal(t, "human", res.FinalAnswer.ModelUsed)
	assert.Equal(t, "@reviewer", res.FinalAnswer.AnsweredBy)
}

func TestResolveEscalation_AddContextReroutes(t *testing.T) {
	h := newTestHub(t)
	asked := escalate(t, h)

	res, err := h.hub.ResolveEscalation(context.Background(), ResolveRequest{
		EscalationID: asked.EscalationID,
		Action:       "add_context",
		Responder:    "@reviewer",
		Payload:      "Compliance requires FIPS-validated primitives.",
	})
	require.NoError(t, err)

	assert.True(t, res.NeedsReroute)
	assert.Nil(t, res.FinalAnswer)
	require.NotNil(t, res.RerouteQuestion)
	assert.Equal(t, "Which KDF should we use?", res.RerouteQuestion.Text)
	assert.Contains(t, res.RerouteQuestion.Context, "Passwords for the admin panel.")
	assert.Contains(t, res.RerouteQuestion.Context, "Additional context from human:")
	assert.Contains(t, res.RerouteQuestion.Context, "FIPS-validated")
	assert.NotEqual(t, res.Escalation.Question.ID, res.RerouteQuestion.ID)
}

func TestResolveEscalation_AuditChain(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	asked := escalate(t, h)

	_, err := h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID,
		Action:       "confirm",
		Responder:    "@reviewer",
	})
	require.NoError(t, err)

	records, err := h.sink.List(ctx, "001-add-auth")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, asked.AuditRecordID, records[1].ParentID,
		"resolution chains to the originating record")
	assert.Equal(t, core.AuditStatusResolved, records[1].Status)
	assert.Equal(t, "confirm", records[1].Metadata["human_action"])

	chain, err := h.sink.Chain(ctx, "001-add-auth", records[1].ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, asked.AuditRecordID, chain[0].ID)
}

func TestResolveEscalation_AlreadyResolved(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	asked := escalate(t, h)

	_, err := h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID, Action: "confirm", Responder: "@first",
	})
	require.NoError(t, err)

	_, err = h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID, Action: "confirm", Responder: "@second",
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeEscalationAlreadyResolved, core.CodeOf(err))
}

func TestResolveEscalation_Validation(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	asked := escalate(t, h)

	_, err := h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID, Action: "approve", Responder: "@r",
	})
	require.Error(t, err, "unknown action")

	_, err = h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID, Action: "correct", Responder: "@r",
	})
	require.Error(t, err, "correct without payload")

	_, err = h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID, Action: "confirm",
	})
	require.Error(t, err, "missing responder")

	_, err = h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: "missing", Action: "confirm", Responder: "@r",
	})
	assert.Equal(t, core.CodeEscalationNotFound, core.CodeOf(err))
}

func TestListEscalations(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	asked := escalate(t, h)

	pending, err := h.hub.ListEscalations(ctx, core.EscalationStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = h.hub.ResolveEscalation(ctx, ResolveRequest{
		EscalationID: asked.EscalationID, Action: "confirm", Responder: "@r",
	})
	require.NoError(t, err)

	pending, err = h.hub.ListEscalations(ctx, core.EscalationStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	resolved, err := h.hub.ListEscalations(ctx, core.EscalationStatusResolved)
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}
