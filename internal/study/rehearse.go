package study

import (
	"context"
	"fmt"
	"strings"

	"github.com/studlyhq/studly/internal/llm"
)

const compareSystem = `You grade a student's recall of their study notes.
Compare the student's attempt against the source notes and produce feedback that:
1. Lists information present in the notes but missing from the attempt.
2. Points out statements in the attempt that contradict the notes.
3. Stays encouraging and brief.
Base feedback only on the source notes.`

// CompareRecall checks a free-recall attempt against the source notes
// and returns feedback text.
func CompareRecall(ctx context.Context, gen llm.TextGenerator, model, source, userInput string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("source notes are empty")
	}
	if strings.TrimSpace(userInput) == "" {
		return "", fmt.Errorf("recall attempt is empty")
	}

	prompt := fmt.Sprintf("Source notes:\n%s\n\nStudent's recall attempt:\n%s", source, userInput)
	feedback, err := gen.GenerateText(ctx, model, compareSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("generate feedback: %w", err)
	}
	return feedback, nil
}
