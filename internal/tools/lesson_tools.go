package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/prompts"
	"github.com/studlyhq/studly/internal/study"
)

// loadSource fetches a lesson's notes, translating not-found into an
// empty string so handlers can phrase a soft error.
func loadSource(deps Deps, lessonID uuid.UUID) (string, error) {
	src, err := deps.Lessons.Source(lessonID)
	if errors.Is(err, lesson.ErrNotFound) {
		return "", nil
	}
	return src, err
}

// giveInfoTool explains the lesson's current objective from the user's
// own notes. Teach mode only.
func giveInfoTool(deps Deps) *Tool {
	return &Tool{
		Name:        "giveInfo",
		Description: "Gives info on the current learning objective, based on the user's notes.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, sess Session, args map[string]any) (any, error) {
			if sess.LessonID == uuid.Nil {
				return map[string]any{"error": "Lesson ID is missing."}, nil
			}

			cp, err := deps.Checkpoints.Current(sess.LessonID)
			if err != nil {
				return nil, fmt.Errorf("load current checkpoint: %w", err)
			}
			if cp == nil {
				return map[string]any{
					"info":      "It looks like you've completed all objectives for this lesson. Great job!",
					"objective": nil,
				}, nil
			}

			source, err := loadSource(deps, sess.LessonID)
			if err != nil {
				return nil, fmt.Errorf("load lesson: %w", err)
			}
			if source == "" {
				return map[string]any{
					"info":      "I couldn't find any notes for this lesson, so I can't explain this objective.",
					"objective": cp.Objective,
				}, nil
			}

			info, err := deps.Text.GenerateText(ctx, deps.TextModel, prompts.ExplainSystem, prompts.Explain(cp.Objective, source))
			if err != nil {
				return nil, fmt.Errorf("generate explanation: %w", err)
			}

			return map[string]any{
				"info":         info,
				"objective":    cp.Objective,
				"checkpointId": cp.ID.String(),
			}, nil
		},
	}
}

// getNotesTool returns the lesson's source text verbatim.
func getNotesTool(deps Deps) *Tool {
	return &Tool{
		Name:        "getNotes",
		Description: "Fetches the user's uploaded notes for this lesson.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, sess Session, args map[string]any) (any, error) {
			if sess.LessonID == uuid.Nil {
				return map[string]any{"error": "Lesson ID is missing."}, nil
			}

			source, err := loadSource(deps, sess.LessonID)
			if err != nil {
				return nil, fmt.Errorf("load lesson: %w", err)
			}
			if source == "" {
				return map[string]any{"error": "No notes found for this lesson."}, nil
			}
			return map[string]any{"notes": source}, nil
		},
	}
}

// generateQuizTool produces one comprehension question for an objective
// and echoes checkpointId through so the client can mark the objective
// complete after a correct answer.
func generateQuizTool(deps Deps) *Tool {
	return &Tool{
		Name:        "generateQuiz",
		Description: "Generates a multiple-choice question to check comprehension of a learning objective.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"objective": map[string]any{
					"type":        "string",
					"description": "The learning objective being tested",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "The explanation or notes the question should be answerable from",
				},
				"checkpointId": map[string]any{
					"type":        "string",
					"description": "The checkpoint this question belongs to",
				},
			},
			"required": []string{"objective", "checkpointId"},
		},
		Handler: func(ctx context.Context, sess Session, args map[string]any) (any, error) {
			objective, _ := args["objective"].(string)
			quizContext, _ := args["context"].(string)
			checkpointID, _ := args["checkpointId"].(string)

			q, err := study.DeriveQuiz(ctx, deps.Objects, deps.ObjectModel,
				prompts.QuizSystem, prompts.Quiz(objective, quizContext))
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"question":     q.Question,
				"options":      q.Options,
				"answer":       q.Answer,
				"checkpointId": checkpointID,
			}, nil
		},
	}
}
