package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/songgen"
	"github.com/studlyhq/studly/internal/study"
)

type fakeTextGen struct {
	text string
	err  error
}

func (f *fakeTextGen) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	return f.text, f.err
}

type fakeObjectGen struct {
	fill func(out any)
	err  error
}

func (f *fakeObjectGen) GenerateObject(ctx context.Context, model, system, prompt string, schema map[string]any, out any) error {
	if f.err != nil {
		return f.err
	}
	if f.fill != nil {
		f.fill(out)
	}
	return nil
}

type testEnv struct {
	registry    *Registry
	lessons     *lesson.Store
	checkpoints *checkpoint.Store
	text        *fakeTextGen
	objects     *fakeObjectGen
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	lessons, err := lesson.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	checkpoints, err := checkpoint.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		lessons:     lessons,
		checkpoints: checkpoints,
		text:        &fakeTextGen{text: "here is an explanation"},
		objects:     &fakeObjectGen{},
	}
	env.registry = NewRegistry(Deps{
		Lessons:     lessons,
		Checkpoints: checkpoints,
		Text:        env.text,
		Objects:     env.objects,
		TextModel:   "test-text",
		ObjectModel: "test-object",
	})
	return env
}

func TestToolAvailabilityByMode(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		mode lesson.Mode
		want []string
	}{
		{lesson.ModeTeach, []string{"generateSong", "giveInfo", "generateQuiz"}},
		{lesson.ModeSong, []string{"generateSong", "getNotes"}},
		{lesson.ModeFlashcard, []string{"generateSong", "getNotes", "generateFlashcards"}},
		{lesson.ModeRehearse, []string{"generateSong", "getNotes", "compareRehearsal"}},
	}
	for _, tt := range tests {
		got := env.registry.ForMode(tt.mode).Names()
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("mode %s: got %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestListFunctionFormat(t *testing.T) {
	env := newTestEnv(t)

	list := env.registry.ForMode(lesson.ModeSong).List()
	if len(list) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(list))
	}
	if list[0]["type"] != "function" {
		t.Errorf("expected function type, got %v", list[0]["type"])
	}
	fn, ok := list[0]["function"].(map[string]any)
	if !ok || fn["name"] != "generateSong" {
		t.Errorf("unexpected first tool: %v", list[0])
	}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	sess := Session{LessonID: uuid.New(), Mode: lesson.ModeSong}

	// Missing required field.
	_, err := env.registry.Execute(context.Background(), sess, "generateSong", map[string]any{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing prompt, got %v", err)
	}

	// Wrong type for declared field.
	_, err = env.registry.Execute(context.Background(), sess, "generateSong", map[string]any{"prompt": 42.0})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for numeric prompt, got %v", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Execute(context.Background(), Session{}, "launchRocket", nil)
	if err == nil || errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
}

func TestGiveInfoMissingLesson(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.registry.Execute(context.Background(), Session{Mode: lesson.ModeTeach}, "giveInfo", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["error"] != "Lesson ID is missing." {
		t.Errorf("expected soft error, got %v", m)
	}
}

func TestGiveInfoAllObjectivesComplete(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.lessons.Create("notes", nil, lesson.ModeTeach)
	if err != nil {
		t.Fatal(err)
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: l.ID, Mode: lesson.ModeTeach}, "giveInfo", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["objective"] != nil {
		t.Errorf("expected nil objective, got %v", m["objective"])
	}
	if m["info"] == "" {
		t.Error("expected completion message")
	}
}

func TestGiveInfoExplainsCurrentObjective(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.lessons.Create("mitosis has phases", nil, lesson.ModeTeach)
	if err != nil {
		t.Fatal(err)
	}
	cps, err := env.checkpoints.CreateAll(l.ID, []string{"name the phases", "order the phases"})
	if err != nil {
		t.Fatal(err)
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: l.ID, Mode: lesson.ModeTeach}, "giveInfo", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["objective"] != "name the phases" {
		t.Errorf("expected first objective, got %v", m["objective"])
	}
	if m["info"] != "here is an explanation" {
		t.Errorf("unexpected info: %v", m["info"])
	}
	if m["checkpointId"] != cps[0].ID.String() {
		t.Errorf("expected checkpoint id echoed, got %v", m["checkpointId"])
	}
}

func TestGiveInfoLessonWithoutNotes(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.lessons.Create("", nil, lesson.ModeTeach)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.checkpoints.CreateAll(l.ID, []string{"objective one"}); err != nil {
		t.Fatal(err)
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: l.ID, Mode: lesson.ModeTeach}, "giveInfo", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["objective"] != "objective one" {
		t.Errorf("expected objective with no-notes message, got %v", m)
	}
	if _, hasCheckpoint := m["checkpointId"]; hasCheckpoint {
		t.Error("no-notes response should not carry a checkpoint id")
	}
}

func TestGetNotes(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.lessons.Create("the krebs cycle", nil, lesson.ModeSong)
	if err != nil {
		t.Fatal(err)
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: l.ID, Mode: lesson.ModeSong}, "getNotes", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if result.(map[string]any)["notes"] != "the krebs cycle" {
		t.Errorf("unexpected notes: %v", result)
	}

	// Unknown lesson gives a soft error, not a failure.
	result, err = env.registry.Execute(context.Background(),
		Session{LessonID: uuid.New(), Mode: lesson.ModeSong}, "getNotes", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if result.(map[string]any)["error"] == nil {
		t.Errorf("expected soft error for missing lesson, got %v", result)
	}
}

func TestGenerateQuizEchoesCheckpointID(t *testing.T) {
	env := newTestEnv(t)
	env.objects.fill = func(out any) {
		q := out.(*study.Quiz)
		q.Question = "Which phase comes first?"
		q.Options = []string{"prophase", "metaphase", "anaphase", "telophase"}
		q.Answer = "prophase"
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: uuid.New(), Mode: lesson.ModeTeach}, "generateQuiz", map[string]any{
			"objective":    "name the phases",
			"context":      "mitosis notes",
			"checkpointId": "cp-123",
		})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["checkpointId"] != "cp-123" {
		t.Errorf("checkpointId not echoed: %v", m)
	}
	options := m["options"].([]string)
	if len(options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(options))
	}
	if m["answer"] != "prophase" {
		t.Errorf("unexpected answer: %v", m["answer"])
	}
}

func TestGenerateFlashcardsClampsCount(t *testing.T) {
	env := newTestEnv(t)
	var requested int
	env.objects.fill = func(out any) {
		o := out.(*struct {
			Cards []study.Card `json:"cards"`
		})
		o.Cards = make([]study.Card, requested)
	}

	l, err := env.lessons.Create("flashcard notes", nil, lesson.ModeFlashcard)
	if err != nil {
		t.Fatal(err)
	}
	sess := Session{LessonID: l.ID, Mode: lesson.ModeFlashcard}

	requested = study.MaxNumCards
	result, err := env.registry.Execute(context.Background(), sess, "generateFlashcards",
		map[string]any{"numCards": 500.0})
	if err != nil {
		t.Fatal(err)
	}
	cards := result.(map[string]any)["cards"].([]study.Card)
	if len(cards) != study.MaxNumCards {
		t.Errorf("expected clamp to %d, got %d", study.MaxNumCards, len(cards))
	}

	requested = study.DefaultNumCards
	result, err = env.registry.Execute(context.Background(), sess, "generateFlashcards", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	cards = result.(map[string]any)["cards"].([]study.Card)
	if len(cards) != study.DefaultNumCards {
		t.Errorf("expected default %d cards, got %d", study.DefaultNumCards, len(cards))
	}
}

func TestCompareRehearsal(t *testing.T) {
	env := newTestEnv(t)
	env.text.text = "You forgot the electron transport chain."

	l, err := env.lessons.Create("respiration notes", nil, lesson.ModeRehearse)
	if err != nil {
		t.Fatal(err)
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: l.ID, Mode: lesson.ModeRehearse}, "compareRehearsal",
		map[string]any{"userInput": "cells breathe"})
	if err != nil {
		t.Fatal(err)
	}
	if result.(map[string]any)["feedback"] != "You forgot the electron transport chain." {
		t.Errorf("unexpected feedback: %v", result)
	}
}

func TestCompareRehearsalDegradesOnUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.text.err = errors.New("provider down")

	l, err := env.lessons.Create("respiration notes", nil, lesson.ModeRehearse)
	if err != nil {
		t.Fatal(err)
	}

	result, err := env.registry.Execute(context.Background(),
		Session{LessonID: l.ID, Mode: lesson.ModeRehearse}, "compareRehearsal",
		map[string]any{"userInput": "cells breathe"})
	if err != nil {
		t.Fatalf("upstream failure should not fail the tool: %v", err)
	}
	feedback, _ := result.(map[string]any)["feedback"].(string)
	if feedback == "" {
		t.Errorf("expected apology feedback, got %v", result)
	}
}

func TestGenerateSongSurfacesGenerationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	env := newTestEnv(t)
	env.registry = NewRegistry(Deps{
		Lessons:     env.lessons,
		Checkpoints: env.checkpoints,
		Songs:       songgen.NewClient("key", server.URL, nil),
		Text:        env.text,
		Objects:     env.objects,
	})

	_, err := env.registry.Execute(context.Background(),
		Session{LessonID: uuid.New(), Mode: lesson.ModeSong}, "generateSong",
		map[string]any{"prompt": "a song about osmosis"})
	if !errors.Is(err, songgen.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestMarshalResult(t *testing.T) {
	if got := MarshalResult("plain"); got != "plain" {
		t.Errorf("string passthrough failed: %q", got)
	}
	got := MarshalResult(map[string]any{"a": 1})
	if got != `{"a":1}` {
		t.Errorf("unexpected JSON: %q", got)
	}
}
