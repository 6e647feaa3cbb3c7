// Package web serves a minimal read-only progress view for a lesson:
// its objectives, completion state, and the uploaded notes rendered
// from markdown.
package web

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/lesson"
)

//go:embed templates/*.html
var templateFiles embed.FS

// lessonTemplate is parsed once at startup; panics on syntax errors so
// that startup fails fast.
var lessonTemplate = template.Must(
	template.New("lesson.html").ParseFS(templateFiles, "templates/lesson.html"),
)

type server struct {
	lessons     *lesson.Store
	checkpoints *checkpoint.Store
	logger      *slog.Logger
}

// RegisterRoutes mounts the lesson view on the given mux.
func RegisterRoutes(mux *http.ServeMux, lessons *lesson.Store, checkpoints *checkpoint.Store, logger *slog.Logger) {
	s := &server{lessons: lessons, checkpoints: checkpoints, logger: logger}
	mux.HandleFunc("GET /lessons/{id}", s.handleLesson)
}

type checkpointView struct {
	Objective string
	Complete  bool
	Current   bool
}

type lessonView struct {
	Mode        lesson.Mode
	CreatedAt   time.Time
	Checkpoints []checkpointView
	DoneCount   int
	TotalCount  int
	NotesHTML   template.HTML
}

func (s *server) handleLesson(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid lesson id", http.StatusBadRequest)
		return
	}

	l, err := s.lessons.Get(id)
	if errors.Is(err, lesson.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("lesson load failed", "error", err, "id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	cps, err := s.checkpoints.ListByLesson(id)
	if err != nil {
		s.logger.Error("checkpoint load failed", "error", err, "id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	view := lessonView{
		Mode:       l.Mode,
		CreatedAt:  l.CreatedAt,
		TotalCount: len(cps),
	}

	currentMarked := false
	for _, cp := range cps {
		cv := checkpointView{Objective: cp.Objective, Complete: cp.Complete}
		if cp.Complete {
			view.DoneCount++
		} else if !currentMarked {
			cv.Current = true
			currentMarked = true
		}
		view.Checkpoints = append(view.Checkpoints, cv)
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(l.Source), &buf); err != nil {
		s.logger.Warn("markdown render failed, serving raw notes", "error", err, "id", id)
		buf.Reset()
		buf.WriteString(template.HTMLEscapeString(l.Source))
	}
	view.NotesHTML = template.HTML(buf.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := lessonTemplate.Execute(w, view); err != nil {
		s.logger.Error("template render failed", "error", err, "id", id)
	}
}
