package prompts

import "fmt"

// quizTemplate produces a single comprehension question for an
// objective. Format verbs: objective, context.
const quizTemplate = `Write one multiple-choice question that checks comprehension of this objective.
The question must be answerable from the context alone.

Objective: %s

Context:
%s`

// QuizSystem is the system prompt for quiz generation.
const QuizSystem = "You write fair multiple-choice questions with exactly four options and one correct answer."

// Quiz returns the interpolated quiz prompt.
func Quiz(objective, context string) string {
	return fmt.Sprintf(quizTemplate, objective, context)
}
