// Package lesson persists uploaded study material and its study mode.
package lesson

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode selects the study method for a lesson. It is fixed at creation
// and determines which tools the agent may use.
type Mode string

const (
	ModeSong      Mode = "song"
	ModeTeach     Mode = "teach"
	ModeFlashcard Mode = "flashcard"
	ModeRehearse  Mode = "rehearse"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSong, ModeTeach, ModeFlashcard, ModeRehearse:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Lesson is a unit of uploaded study notes. Source holds the extracted
// text and may be empty when extraction failed upstream. Embedding is
// kept for retrieval experiments and is not consumed by the agent loop.
type Lesson struct {
	ID        uuid.UUID
	Source    string
	Embedding []float32
	Mode      Mode
	CreatedAt time.Time
}
