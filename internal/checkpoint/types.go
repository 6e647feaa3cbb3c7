// Package checkpoint tracks ordered learning objectives per lesson.
// The lowest-ordered incomplete checkpoint is the lesson's "current"
// objective; completion is a one-way transition.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is one learning objective within a lesson's plan.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	LessonID  uuid.UUID `json:"lessonId"`
	Order     int       `json:"order"`
	Objective string    `json:"objective"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"createdAt"`
}

// Completed acknowledges a completion request. AlreadyComplete is set
// when the checkpoint was complete before the call; callers treat both
// cases as success.
type Completed struct {
	CheckpointID    uuid.UUID `json:"checkpointId"`
	LessonID        uuid.UUID `json:"lessonId"`
	AlreadyComplete bool      `json:"alreadyComplete"`
}
