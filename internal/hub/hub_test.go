package hub

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/adapters/state"
	"github.com/specforge/specforge/internal/audit"
	"github.com/specforge/specforge/internal/clock"
	"github.com/specforge/specforge/internal/core"
)

var testStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// scriptedRunner answers every dispatch with a canned confidence.
type scriptedRunner struct {
	confidence    int
	output        string // overrides the default JSON document when set
	resConfidence *int   // transport-level confidence on the dispatch result
	err           error

	calls    int
	lastOpts core.DispatchOptions
}

func (r *scriptedRunner) Dispatch(_ context.Context, opts core.DispatchOptions) (*core.DispatchResult, error) {
	r.calls++
	r.lastOpts = opts
	if r.err != nil {
		return nil, r.err
	}
	output := r.output
	if output == "" {
		output = fmt.Sprintf(
			`{"answer": "use argon2id", "rationale": "memory-hard and the current OWASP recommendation", "confidence": %d}`,
			r.confidence)
	}
	return &core.DispatchResult{
		Output:     output,
		Confidence: r.resConfidence,
		Model:      "sonnet",
		Duration:   2 * time.Second,
	}, nil
}

func (r *scriptedRunner) Ping(context.Context, string) error { return nil }

func testTable() *core.RoutingTable {
	strict := 90
	return &core.RoutingTable{
		DefaultConfidenceThreshold: 80,
		DefaultTimeoutSeconds:      120,
		DefaultModel:               "sonnet",
		Agents: map[string]core.AgentSpec{
			"architect": {DisplayName: "Architect", Topics: []string{"architecture", "database"}},
			"security":  {DisplayName: "Security", Topics: []string{"security"}},
		},
		Overrides: map[string]core.TopicOverride{
			"security":   {Agent: "security", ConfidenceThreshold: &strict},
			"compliance": {Agent: core.HumanAgentID},
		},
	}
}

type hubHarness struct {
	hub    *Hub
	runner *scriptedRunner
	store  *state.MemoryStore
	sink   *audit.Sink
	clock  *clock.Manual
}

func newTestHub(t *testing.T) *hubHarness {
	t.Helper()
	sink, err := audit.NewSink(t.TempDir(), nil)
	require.NoError(t, err)

	h := &hubHarness{
		runner: &scriptedRunner{confidence: 92},
		store:  state.NewMemoryStore(),
		sink:   sink,
		clock:  clock.NewManual(testStart),
	}
	h.hub = New(h.runner, h.store, h.store, sink, testTable(), h.clock, nil)
	return h
}

func TestAskExpert_HighConfidenceResolves(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	res, err := h.hub.AskExpert(ctx, AskRequest{
		Topic:     "database",
		Question:  "Which index type for the lookup table?",
		FeatureID: "001-add-auth",
	})
	require.NoError(t, err)

	assert.Equal(t, AskStatusResolved, res.Status)
	assert.Equal(t, "architect", res.AgentID)
	assert.Equal(t, 80, res.Threshold)
	assert.Equal(t, core.ThresholdSourceDefault, res.ThresholdSource)
	require.NotNil(t, res.Answer)
	assert.Equal(t, 92, res.Answer.Confidence)
	assert.Empty(t, res.EscalationID)

	// Both sides of the exchange land on the session.
	sess, err := h.hub.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, core.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, core.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, 92, sess.Messages[1].Metadata["confidence"])

	// And on the audit partition.
	records, err := h.sink.List(ctx, "001-add-auth")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.AuditStatusResolved, records[0].Status)
	assert.Equal(t, res.AuditRecordID, records[0].ID)
}

func TestAskExpert_ConfidenceAtThresholdResolves(t *testing.T) {
	h := newTestHub(t)
	h.runner.confidence = 80

	res, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)
	assert.Equal(t, AskStatusResolved, res.Status, "threshold is inclusive")
}

func TestAskExpert_LowConfidenceEscalates(t *testing.T) {
	h := newTestHub(t)
	h.runner.confidence = 79
	ctx := context.Background()

	res, err := h.hub.AskExpert(ctx, AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)

	assert.Equal(t, AskStatusPendingHuman, res.Status)
	require.NotEmpty(t, res.EscalationID)

	esc, err := h.hub.CheckEscalation(ctx, res.EscalationID)
	require.NoError(t, err)
	assert.Equal(t, core.EscalationStatusPending, esc.Status)
	assert.Equal(t, 79, esc.TentativeAnswer.Confidence)
	assert.Equal(t, 80, esc.ThresholdUsed)

	records, err := h.sink.List(ctx, "001-x")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.AuditStatusEscalated, records[0].Status)
	assert.Equal(t, res.EscalationID, records[0].EscalationID)
}

func TestAskExpert_StatedZeroConfidenceKept(t *testing.T) {
	h := newTestHub(t)
	h.runner.output = `{"answer": "unsure", "rationale": "the docs give conflicting guidance", "confidence": 0}`
	transport := 95
	h.runner.resConfidence = &transport

	res, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)

	// A stated 0 is a real answer, not a missing key; the transport-level
	// confidence must not override it.
	assert.Equal(t, AskStatusPendingHuman, res.Status)
	assert.Equal(t, 0, res.Answer.Confidence)
}

func TestAskExpert_MissingConfidenceFallsBackToTransport(t *testing.T) {
	h := newTestHub(t)
	h.runner.output = `{"answer": "use a queue", "rationale": "decouples producers from consumers"}`
	transport := 95
	h.runner.resConfidence = &transport

	res, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)
	assert.Equal(t, AskStatusResolved, res.Status)
	assert.Equal(t, 95, res.Answer.Confidence)
}

// failingEscalations rejects every save.
type failingEscalations struct {
	core.EscalationStore
	err error
}

func (f *failingEscalations) SaveEscalation(context.Context, *core.Escalation) error {
	return f.err
}

func TestAskExpert_AuditRecordPrecedesEscalation(t *testing.T) {
	h := newTestHub(t)
	h.runner.confidence = 50
	h.hub = New(h.runner, h.store, &failingEscalations{EscalationStore: h.store, err: errors.New("disk full")},
		h.sink, testTable(), h.clock, nil)
	ctx := context.Background()

	_, err := h.hub.AskExpert(ctx, AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.Error(t, err)

	// The exchange is on the trail even though the escalation save failed.
	records, err := h.sink.List(ctx, "001-x")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.AuditStatusEscalated, records[0].Status)
	assert.NotEmpty(t, records[0].EscalationID)
}

func TestAskExpert_OverrideThresholdWins(t *testing.T) {
	h := newTestHub(t)
	h.runner.confidence = 85 // above default, below the security override

	res, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "security", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)
	assert.Equal(t, AskStatusPendingHuman, res.Status)
	assert.Equal(t, 90, res.Threshold)
	assert.Equal(t, core.ThresholdSourceOverride, res.ThresholdSource)
}

func TestAskExpert_HumanSentinelSkipsDispatch(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	res, err := h.hub.AskExpert(ctx, AskRequest{
		Topic: "compliance", Question: "May we store PII in region X?", FeatureID: "001-x",
	})
	require.NoError(t, err)

	assert.Equal(t, AskStatusPendingHuman, res.Status)
	assert.Equal(t, core.HumanAgentID, res.AgentID)
	require.NotEmpty(t, res.EscalationID)
	assert.Zero(t, h.runner.calls, "no agent dispatch for the human sentinel")

	esc, err := h.hub.CheckEscalation(ctx, res.EscalationID)
	require.NoError(t, err)
	assert.Empty(t, esc.TentativeAnswer.Text)
}

func TestAskExpert_UnknownTopic(t *testing.T) {
	h := newTestHub(t)

	_, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "astrology", Question: "q?", FeatureID: "001-x",
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeUnknownTopic, core.CodeOf(err))

	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Contains(t, domErr.Details["available_topics"], "security")
}

func TestAskExpert_InvalidInput(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	_, err := h.hub.AskExpert(ctx, AskRequest{Topic: "database", FeatureID: "001-x"})
	require.Error(t, err)

	_, err = h.hub.AskExpert(ctx, AskRequest{Topic: "database", Question: "q?", FeatureID: "not-a-feature"})
	require.Error(t, err)
}

func TestAskExpert_MalformedAgentOutput(t *testing.T) {
	h := newTestHub(t)
	h.runner.output = "I think you should probably use a B-tree index."

	_, err := h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeAgentResponseInvalid, core.CodeOf(err))
}

func TestAskExpert_MultiTurnSession(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	first, err := h.hub.AskExpert(ctx, AskRequest{
		Topic: "architecture", Question: "Monolith or services?", FeatureID: "001-x",
	})
	require.NoError(t, err)

	second, err := h.hub.AskExpert(ctx, AskRequest{
		Topic: "architecture", Question: "And for the data layer?", FeatureID: "001-x",
		SessionID: first.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	// The second dispatch carries the first exchange.
	assert.Contains(t, h.runner.lastOpts.UserPrompt, "Monolith or services?")

	sess, err := h.hub.GetSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 4)
}

func TestAskExpert_ClosedSessionRejected(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	first, err := h.hub.AskExpert(ctx, AskRequest{
		Topic: "architecture", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)

	_, err = h.hub.CloseSession(ctx, first.SessionID)
	require.NoError(t, err)

	_, err = h.hub.AskExpert(ctx, AskRequest{
		Topic: "architecture", Question: "follow-up?", FeatureID: "001-x",
		SessionID: first.SessionID,
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeSessionClosed, core.CodeOf(err))
}

func TestSwapRoutingTable_RejectsInvalid(t *testing.T) {
	h := newTestHub(t)

	bad := testTable()
	bad.Overrides["broken"] = core.TopicOverride{Agent: "ghost"}
	err := h.hub.SwapRoutingTable(bad)
	require.Error(t, err)

	// Previous table stays active.
	_, err = h.hub.AskExpert(context.Background(), AskRequest{
		Topic: "database", Question: "q?", FeatureID: "001-x",
	})
	require.NoError(t, err)
}
