package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/studlyhq/studly/internal/study"
)

// generateFlashcardsTool derives a fixed-size deck from the lesson notes.
func generateFlashcardsTool(deps Deps) *Tool {
	return &Tool{
		Name:        "generateFlashcards",
		Description: "Creates question/answer flashcards from the user's notes.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"numCards": map[string]any{
					"type":        "integer",
					"description": "How many cards to create (1-100, default 12)",
				},
			},
		},
		Handler: func(ctx context.Context, sess Session, args map[string]any) (any, error) {
			if sess.LessonID == uuid.Nil {
				return map[string]any{"error": "Lesson ID is missing."}, nil
			}

			numCards := 0
			if n, ok := args["numCards"].(float64); ok {
				numCards = int(n)
			}

			source, err := loadSource(deps, sess.LessonID)
			if err != nil {
				return nil, fmt.Errorf("load lesson: %w", err)
			}
			if source == "" {
				return map[string]any{"error": "No notes found for this lesson."}, nil
			}

			cards, err := study.DeriveFlashcards(ctx, deps.Objects, deps.ObjectModel, source, numCards)
			if err != nil {
				return nil, err
			}
			return map[string]any{"cards": cards}, nil
		},
	}
}

// compareRehearsalTool grades a free-recall attempt against the notes.
func compareRehearsalTool(deps Deps) *Tool {
	return &Tool{
		Name:        "compareRehearsal",
		Description: "Compares what the user recited from memory against their notes and reports what was missing or wrong.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"userInput": map[string]any{
					"type":        "string",
					"description": "The user's recall attempt, verbatim",
				},
			},
			"required": []string{"userInput"},
		},
		Handler: func(ctx context.Context, sess Session, args map[string]any) (any, error) {
			if sess.LessonID == uuid.Nil {
				return map[string]any{"error": "Lesson ID is missing."}, nil
			}
			userInput, _ := args["userInput"].(string)

			source, err := loadSource(deps, sess.LessonID)
			if err != nil {
				return nil, fmt.Errorf("load lesson: %w", err)
			}
			if source == "" {
				return map[string]any{"error": "No notes found for this lesson."}, nil
			}

			feedback, err := study.CompareRecall(ctx, deps.Text, deps.TextModel, source, userInput)
			if err != nil {
				// Degrade to an apology rather than failing the turn;
				// the student can simply try again.
				deps.Logger.Warn("rehearsal comparison failed", "error", err, "lesson", sess.LessonID)
				return map[string]any{"feedback": "Sorry, I wasn't able to compare your rehearsal this time. Please try again."}, nil
			}
			return map[string]any{"feedback": feedback}, nil
		},
	}
}
