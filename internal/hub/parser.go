package hub

import (
	"encoding/json"
	"strings"

	"github.com/specforge/specforge/internal/core"
)

// answerPayload is the JSON document experts are instructed to emit.
// Confidence is a pointer so a stated 0 is distinguishable from a missing
// key.
type answerPayload struct {
	Answer             string   `json:"answer"`
	Rationale          string   `json:"rationale"`
	Confidence         *int     `json:"confidence"`
	UncertaintyReasons []string `json:"uncertainty_reasons,omitempty"`
}

// parseAnswer extracts the answer document from raw agent output. Agents
// mostly return a bare JSON object, but some wrap it in a fenced code block
// or surround it with prose; all three shapes are accepted.
func parseAnswer(output string) (*answerPayload, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, core.ErrValidation(core.CodeAgentResponseInvalid, "empty agent output")
	}

	candidates := []string{trimmed}
	if fenced := extractFenced(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if span := extractObjectSpan(trimmed); span != "" {
		candidates = append(candidates, span)
	}

	for _, c := range candidates {
		var payload answerPayload
		if err := json.Unmarshal([]byte(c), &payload); err != nil {
			continue
		}
		if payload.Answer == "" {
			continue
		}
		return &payload, nil
	}

	return nil, core.ErrValidation(core.CodeAgentResponseInvalid,
		"agent output contains no answer document").WithDetail("output_prefix", prefix(trimmed, 120))
}

// extractFenced returns the body of the first fenced code block, if any.
func extractFenced(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Skip the language tag line ("json", "JSON" or nothing).
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// extractObjectSpan returns the outermost {...} span, brace-balanced and
// string-aware, so prose around the document does not break parsing.
func extractObjectSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
