package core

import "fmt"

// Question is a topic-tagged request for an expert answer.
type Question struct {
	ID              string `json:"id"`
	Topic           string `json:"topic"`
	Text            string `json:"text"`
	Context         string `json:"context,omitempty"`
	FeatureID       string `json:"feature_id"`
	SuggestedTarget string `json:"suggested_target,omitempty"`
}

// minRationaleLen discourages empty justifications.
const minRationaleLen = 20

// Answer is an expert's response to a question.
type Answer struct {
	QuestionID         string   `json:"question_id"`
	AnsweredBy         string   `json:"answered_by"`
	Text               string   `json:"text"`
	Rationale          string   `json:"rationale"`
	Confidence         int      `json:"confidence"`
	UncertaintyReasons []string `json:"uncertainty_reasons,omitempty"`
	ModelUsed          string   `json:"model_used,omitempty"`
	DurationSeconds    float64  `json:"duration_seconds,omitempty"`
}

// ClampConfidence bounds a confidence value to [0,100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// Validate checks answer invariants: confidence in range, rationale present.
func (a *Answer) Validate() error {
	if a.Confidence < 0 || a.Confidence > 100 {
		return ErrValidation(CodeAgentResponseInvalid,
			fmt.Sprintf("confidence %d outside [0,100]", a.Confidence))
	}
	if len(a.Rationale) < minRationaleLen {
		return ErrValidation(CodeAgentResponseInvalid,
			fmt.Sprintf("rationale too short (%d chars, need %d)", len(a.Rationale), minRationaleLen))
	}
	return nil
}
