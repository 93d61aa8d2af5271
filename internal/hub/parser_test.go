package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/core"
)

func TestParseAnswer_BareObject(t *testing.T) {
	payload, err := parseAnswer(`{"answer": "yes", "rationale": "because of the constraint", "confidence": 88}`)
	require.NoError(t, err)
	assert.Equal(t, "yes", payload.Answer)
	require.NotNil(t, payload.Confidence)
	assert.Equal(t, 88, *payload.Confidence)
}

func TestParseAnswer_ZeroConfidenceIsStated(t *testing.T) {
	payload, err := parseAnswer(`{"answer": "unsure", "rationale": "conflicting sources on this", "confidence": 0}`)
	require.NoError(t, err)
	require.NotNil(t, payload.Confidence)
	assert.Equal(t, 0, *payload.Confidence)
}

func TestParseAnswer_MissingConfidence(t *testing.T) {
	payload, err := parseAnswer(`{"answer": "yes", "rationale": "the constraint requires it"}`)
	require.NoError(t, err)
	assert.Nil(t, payload.Confidence)
}

func TestParseAnswer_FencedBlock(t *testing.T) {
	output := "Here is my assessment:\n```json\n{\"answer\": \"use a queue\", \"rationale\": \"decouples producers\", \"confidence\": 75}\n```\nLet me know if you need more."
	payload, err := parseAnswer(output)
	require.NoError(t, err)
	assert.Equal(t, "use a queue", payload.Answer)
	require.NotNil(t, payload.Confidence)
	assert.Equal(t, 75, *payload.Confidence)
}

func TestParseAnswer_FencedBlockNoLanguageTag(t *testing.T) {
	output := "```\n{\"answer\": \"a\", \"rationale\": \"r\", \"confidence\": 50}\n```"
	payload, err := parseAnswer(output)
	require.NoError(t, err)
	assert.Equal(t, "a", payload.Answer)
}

func TestParseAnswer_EmbeddedObject(t *testing.T) {
	output := `Sure. {"answer": "shard by tenant", "rationale": "keeps hot tenants isolated", "confidence": 91, "uncertainty_reasons": ["no load data"]} Hope that helps.`
	payload, err := parseAnswer(output)
	require.NoError(t, err)
	assert.Equal(t, "shard by tenant", payload.Answer)
	assert.Equal(t, []string{"no load data"}, payload.UncertaintyReasons)
}

func TestParseAnswer_BracesInsideStrings(t *testing.T) {
	output := `{"answer": "wrap in {} literals", "rationale": "the template syntax needs it", "confidence": 70}`
	payload, err := parseAnswer(output)
	require.NoError(t, err)
	assert.Equal(t, "wrap in {} literals", payload.Answer)
}

func TestParseAnswer_Invalid(t *testing.T) {
	for name, output := range map[string]string{
		"empty":          "",
		"prose only":     "I would recommend PostgreSQL for this.",
		"missing answer": `{"rationale": "r", "confidence": 50}`,
		"broken json":    `{"answer": "x", "rationale":`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseAnswer(output)
			require.Error(t, err)
			assert.Equal(t, core.CodeAgentResponseInvalid, core.CodeOf(err))
		})
	}
}
