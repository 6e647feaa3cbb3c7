package study

import (
	"context"
	"fmt"
	"slices"

	"github.com/studlyhq/studly/internal/llm"
)

// Quiz is a single multiple-choice comprehension question. Answer is
// always verbatim one of Options.
type Quiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

var quizSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"question": map[string]any{"type": "string"},
		"options": map[string]any{
			"type":     "array",
			"minItems": 4,
			"maxItems": 4,
			"items":    map[string]any{"type": "string"},
		},
		"answer": map[string]any{"type": "string"},
	},
	"required":             []string{"question", "options", "answer"},
	"additionalProperties": false,
}

// DeriveQuiz produces one four-option question for the given prompt.
// The schema pins the option count; the answer-in-options invariant is
// checked here with one retry since JSON schema cannot express it.
func DeriveQuiz(ctx context.Context, gen llm.ObjectGenerator, model, system, prompt string) (*Quiz, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var q Quiz
		if err := gen.GenerateObject(ctx, model, system, prompt, quizSchema, &q); err != nil {
			return nil, fmt.Errorf("generate quiz: %w", err)
		}
		if len(q.Options) != 4 {
			lastErr = fmt.Errorf("quiz has %d options, want 4", len(q.Options))
			continue
		}
		if !slices.Contains(q.Options, q.Answer) {
			lastErr = fmt.Errorf("quiz answer %q is not among its options", q.Answer)
			continue
		}
		return &q, nil
	}
	return nil, lastErr
}
