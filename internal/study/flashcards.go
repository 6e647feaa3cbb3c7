// Package study holds the generation procedures behind the study
// methods: flashcard derivation and rehearsal comparison.
package study

import (
	"context"
	"fmt"
	"strings"

	"github.com/studlyhq/studly/internal/llm"
)

// Flashcard count bounds. Requests outside the range are clamped, not
// rejected, so a model asking for 200 cards still gets a usable deck.
const (
	DefaultNumCards = 12
	MinNumCards     = 1
	MaxNumCards     = 100
)

// Card is one question/answer flashcard.
type Card struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

const flashcardSystem = `You create flashcards from study notes.
Each card has a short question and a concise answer drawn strictly from the notes.
Cover the material evenly. Never invent facts not present in the notes.`

// ClampNumCards normalizes a requested card count. Zero means unset and
// maps to the default.
func ClampNumCards(n int) int {
	if n == 0 {
		return DefaultNumCards
	}
	if n < MinNumCards {
		return MinNumCards
	}
	if n > MaxNumCards {
		return MaxNumCards
	}
	return n
}

// DeriveFlashcards produces exactly numCards cards from the notes. The
// schema pins the array length so the model cannot under- or overshoot.
func DeriveFlashcards(ctx context.Context, gen llm.ObjectGenerator, model, notes string, numCards int) ([]Card, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("notes are empty")
	}
	numCards = ClampNumCards(numCards)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cards": map[string]any{
				"type":     "array",
				"minItems": numCards,
				"maxItems": numCards,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{"type": "string"},
						"answer":   map[string]any{"type": "string"},
					},
					"required":             []string{"question", "answer"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"cards"},
		"additionalProperties": false,
	}

	var out struct {
		Cards []Card `json:"cards"`
	}
	prompt := fmt.Sprintf("Create exactly %d flashcards from these notes:\n\n%s", numCards, notes)
	if err := gen.GenerateObject(ctx, model, flashcardSystem, prompt, schema, &out); err != nil {
		return nil, fmt.Errorf("generate flashcards: %w", err)
	}

	// Schema should guarantee the count; enforce it anyway since the
	// cards feed a fixed-size deck UI.
	if len(out.Cards) > numCards {
		out.Cards = out.Cards[:numCards]
	}
	if len(out.Cards) < numCards {
		return nil, fmt.Errorf("expected %d cards, model produced %d", numCards, len(out.Cards))
	}
	return out.Cards, nil
}
