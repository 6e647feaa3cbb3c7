package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/study"
)

// FlashcardsRequest is the POST /v1/flashcards body.
type FlashcardsRequest struct {
	Notes    string `json:"notes"`
	NumCards int    `json:"numCards,omitempty"`
}

// handleFlashcards derives a deck directly from posted notes, without
// the agent loop.
func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	var req FlashcardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Notes) == "" {
		s.errorResponse(w, http.StatusBadRequest, "notes are required")
		return
	}

	cards, err := study.DeriveFlashcards(r.Context(), s.deps.Objects, s.deps.ObjectModel, req.Notes, req.NumCards)
	if err != nil {
		s.logger.Error("flashcard derivation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to generate flashcards")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"cards": cards}, s.logger)
}

// RehearseRequest is the POST /v1/rehearse body.
type RehearseRequest struct {
	Source    string `json:"source"`
	UserInput string `json:"userInput"`
}

func (s *Server) handleRehearse(w http.ResponseWriter, r *http.Request) {
	var req RehearseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.UserInput) == "" {
		s.errorResponse(w, http.StatusBadRequest, "source and userInput are required")
		return
	}

	feedback, err := study.CompareRecall(r.Context(), s.deps.Text, s.deps.TextModel, req.Source, req.UserInput)
	if err != nil {
		s.logger.Error("rehearsal comparison failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to compare rehearsal")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"feedback": feedback}, s.logger)
}

// LessonCreateRequest is the POST /v1/lessons body.
type LessonCreateRequest struct {
	Notes string `json:"notes"`
	Mode  string `json:"mode"`
}

// handleLessonCreate stores the notes, embeds them, and in teach mode
// plans the lesson's checkpoints.
func (s *Server) handleLessonCreate(w http.ResponseWriter, r *http.Request) {
	var req LessonCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := lesson.ParseMode(req.Mode)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Notes) == "" {
		s.errorResponse(w, http.StatusBadRequest, "notes are required")
		return
	}

	// Embedding is kept for retrieval experiments; failure to embed
	// never blocks lesson creation.
	var embedding []float32
	if s.deps.Embedder != nil {
		embedding, err = s.deps.Embedder.Embed(r.Context(), s.deps.EmbeddingModel, req.Notes)
		if err != nil {
			s.logger.Warn("embedding failed, storing lesson without one", "error", err)
			embedding = nil
		}
	}

	l, err := s.deps.Lessons.Create(req.Notes, embedding, mode)
	if err != nil {
		s.logger.Error("lesson create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to create lesson")
		return
	}

	var checkpoints []*checkpoint.Checkpoint
	if mode == lesson.ModeTeach && s.deps.Planner != nil {
		objectives, err := s.deps.Planner.Plan(r.Context(), req.Notes)
		if err != nil {
			s.logger.Error("lesson planning failed", "error", err, "lesson", l.ID)
			s.errorResponse(w, http.StatusInternalServerError, "failed to plan lesson")
			return
		}
		checkpoints, err = s.deps.Checkpoints.CreateAll(l.ID, objectives)
		if err != nil {
			s.logger.Error("checkpoint creation failed", "error", err, "lesson", l.ID)
			s.errorResponse(w, http.StatusInternalServerError, "failed to create checkpoints")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"id":          l.ID,
		"mode":        l.Mode,
		"createdAt":   l.CreatedAt,
		"checkpoints": checkpoints,
	}, s.logger)
}

func (s *Server) handleLessonGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid lesson id")
		return
	}

	l, err := s.deps.Lessons.Get(id)
	if errors.Is(err, lesson.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "lesson not found")
		return
	}
	if err != nil {
		s.logger.Error("lesson get failed", "error", err, "id", id)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load lesson")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"id":        l.ID,
		"source":    l.Source,
		"mode":      l.Mode,
		"createdAt": l.CreatedAt,
	}, s.logger)
}

func (s *Server) handleCheckpointList(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid lesson id")
		return
	}

	checkpoints, err := s.deps.Checkpoints.ListByLesson(id)
	if err != nil {
		s.logger.Error("checkpoint list failed", "error", err, "lesson", id)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}

	current, err := s.deps.Checkpoints.Current(id)
	if err != nil {
		s.logger.Error("current checkpoint failed", "error", err, "lesson", id)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load current checkpoint")
		return
	}

	resp := map[string]any{
		"checkpoints": checkpoints,
		"count":       len(checkpoints),
	}
	if current != nil {
		resp["current"] = current.ID
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// handleCheckpointComplete marks an objective done. Completing an
// already-complete checkpoint succeeds and says so, so clients can
// retry safely.
func (s *Server) handleCheckpointComplete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid checkpoint id")
		return
	}

	ack, err := s.deps.Checkpoints.Complete(id)
	if errors.Is(err, checkpoint.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "checkpoint not found")
		return
	}
	if err != nil {
		s.logger.Error("checkpoint complete failed", "error", err, "id", id)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]any{"success": false, "error": "failed to update checkpoint"}, s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":         true,
		"checkpointId":    ack.CheckpointID,
		"lessonId":        ack.LessonID,
		"alreadyComplete": ack.AlreadyComplete,
	}, s.logger)
}
