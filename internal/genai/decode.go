package genai

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/mvellano/pulsecheck/internal/store"
)

// decodeQuestions validates raw model output against the question batch
// shape. Decode failure is ErrMalformedResult; a decodable payload with zero
// usable questions is ErrEmptyResult.
func decodeQuestions(raw string) ([]store.Question, error) {
	raw = stripCodeFence(raw)

	var wrapped struct {
		Questions []store.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		// Some models emit the bare array instead of the wrapper object.
		var bare []store.Question
		if err := json.Unmarshal([]byte(raw), &bare); err != nil {
			return nil, ErrMalformedResult
		}
		wrapped.Questions = bare
	}

	out := make([]store.Question, 0, len(wrapped.Questions))
	for _, q := range wrapped.Questions {
		if strings.TrimSpace(q.Label) == "" {
			continue
		}
		if q.Type != store.QuestionBoolean && q.Type != store.QuestionScale {
			continue
		}
		if strings.TrimSpace(q.ID) == "" {
			q.ID = uuid.NewString()
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

func decodeSummary(raw string) (store.Summary, error) {
	raw = stripCodeFence(raw)

	var sum store.Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return store.Summary{}, ErrMalformedResult
	}
	if strings.TrimSpace(sum.Summary) == "" && len(sum.Insights) == 0 && len(sum.Recommendations) == 0 {
		return store.Summary{}, ErrEmptyResult
	}
	if sum.Insights == nil {
		sum.Insights = []string{}
	}
	if sum.Recommendations == nil {
		sum.Recommendations = []string{}
	}
	return sum, nil
}

// stripCodeFence unwraps ```json ... ``` blocks models wrap around payloads.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		raw = raw[idx+1:]
	}
	if idx := strings.LastIndex(raw, "```"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}
