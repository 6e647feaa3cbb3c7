package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/studlyhq/studly/internal/agent"
	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/llm"
	"github.com/studlyhq/studly/internal/study"
)

// stubRunner replays a scripted sequence of stream events, then
// returns the configured response.
type stubRunner struct {
	events   []llm.StreamEvent
	response *agent.Response
	err      error
	lastReq  *agent.Request
}

func (s *stubRunner) Run(ctx context.Context, req *agent.Request, callback llm.StreamCallback) (*agent.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if callback != nil {
		for _, ev := range s.events {
			callback(ev)
		}
	}
	return s.response, nil
}

type fakeTextGen struct {
	text string
	err  error
}

func (f *fakeTextGen) GenerateText(context.Context, string, string, string) (string, error) {
	return f.text, f.err
}

type fakeObjectGen struct{ err error }

func (f *fakeObjectGen) GenerateObject(_ context.Context, _, _, _ string, schema map[string]any, out any) error {
	if f.err != nil {
		return f.err
	}
	switch o := out.(type) {
	case *struct {
		Cards []study.Card `json:"cards"`
	}:
		n := 12
		if props, ok := schema["properties"].(map[string]any); ok {
			if cards, ok := props["cards"].(map[string]any); ok {
				if max, ok := cards["maxItems"].(int); ok {
					n = max
				}
			}
		}
		o.Cards = make([]study.Card, n)
		for i := range o.Cards {
			o.Cards[i] = study.Card{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)}
		}
	case *struct {
		Objectives []string `json:"objectives"`
	}:
		o.Objectives = []string{"objective one", "objective two"}
	}
	return nil
}

type testServer struct {
	server      *Server
	runner      *stubRunner
	lessons     *lesson.Store
	checkpoints *checkpoint.Store
	http        *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
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

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := &stubRunner{response: &agent.Response{Content: "ok", FinishReason: agent.FinishStop}}

	srv := NewServer("127.0.0.1", 0, Deps{
		Runner:      runner,
		Lessons:     lessons,
		Checkpoints: checkpoints,
		Planner:     lesson.NewPlanner(&fakeObjectGen{}, "test-object", logger),
		Text:        &fakeTextGen{text: "feedback text"},
		Objects:     &fakeObjectGen{},
		TextModel:   "test-text",
		ObjectModel: "test-object",
	}, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{server: srv, runner: runner, lessons: lessons, checkpoints: checkpoints, http: ts}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if m := decodeBody(t, resp); m["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", m)
	}

	resp, err = http.Get(ts.http.URL + "/v1/version")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("version status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFlashcardsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.http.URL+"/v1/flashcards", FlashcardsRequest{Notes: "the water cycle", NumCards: 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	m := decodeBody(t, resp)
	cards := m["cards"].([]any)
	if len(cards) != 3 {
		t.Errorf("expected exactly 3 cards, got %d", len(cards))
	}
}

func TestFlashcardsRequiresNotes(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.http.URL+"/v1/flashcards", FlashcardsRequest{Notes: "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRehearseEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.http.URL+"/v1/rehearse", RehearseRequest{Source: "notes", UserInput: "recall"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if m := decodeBody(t, resp); m["feedback"] != "feedback text" {
		t.Errorf("unexpected body: %v", m)
	}

	resp = postJSON(t, ts.http.URL+"/v1/rehearse", RehearseRequest{Source: "", UserInput: "recall"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty source status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLessonCreateTeachPlansCheckpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.http.URL+"/v1/lessons", LessonCreateRequest{Notes: "# Mitosis\nPhases...", Mode: "teach"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	m := decodeBody(t, resp)

	id, err := uuid.Parse(m["id"].(string))
	if err != nil {
		t.Fatalf("bad lesson id: %v", m["id"])
	}
	cps := m["checkpoints"].([]any)
	if len(cps) != 2 {
		t.Fatalf("expected 2 planned checkpoints, got %d", len(cps))
	}

	// The store agrees.
	current, err := ts.checkpoints.Current(id)
	if err != nil {
		t.Fatal(err)
	}
	if current == nil || current.Objective != "objective one" {
		t.Errorf("unexpected current checkpoint: %+v", current)
	}
}

func TestLessonCreateSongSkipsPlanning(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.http.URL+"/v1/lessons", LessonCreateRequest{Notes: "notes", Mode: "song"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	m := decodeBody(t, resp)
	if m["checkpoints"] != nil {
		t.Errorf("song mode should not plan checkpoints: %v", m["checkpoints"])
	}
}

func TestLessonCreateRejectsBadMode(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.http.URL+"/v1/lessons", LessonCreateRequest{Notes: "notes", Mode: "osmosis"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLessonGet(t *testing.T) {
	ts := newTestServer(t)
	l, err := ts.lessons.Create("my notes", nil, lesson.ModeFlashcard)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.http.URL + "/v1/lessons/" + l.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	m := decodeBody(t, resp)
	if m["source"] != "my notes" || m["mode"] != "flashcard" {
		t.Errorf("unexpected body: %v", m)
	}

	resp, err = http.Get(ts.http.URL + "/v1/lessons/" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing lesson status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCheckpointCompleteEndpoint(t *testing.T) {
	ts := newTestServer(t)
	l, err := ts.lessons.Create("notes", nil, lesson.ModeTeach)
	if err != nil {
		t.Fatal(err)
	}
	cps, err := ts.checkpoints.CreateAll(l.ID, []string{"first"})
	if err != nil {
		t.Fatal(err)
	}

	url := ts.http.URL + "/v1/checkpoints/" + cps[0].ID.String() + "/complete"

	resp := postJSON(t, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	m := decodeBody(t, resp)
	if m["success"] != true || m["alreadyComplete"] != false {
		t.Errorf("unexpected first completion: %v", m)
	}

	// Idempotent retry.
	resp = postJSON(t, url, nil)
	m = decodeBody(t, resp)
	if m["success"] != true || m["alreadyComplete"] != true {
		t.Errorf("unexpected repeat completion: %v", m)
	}

	// Unknown checkpoint.
	resp = postJSON(t, ts.http.URL+"/v1/checkpoints/"+uuid.NewString()+"/complete", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing checkpoint status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCheckpointListEndpoint(t *testing.T) {
	ts := newTestServer(t)
	l, err := ts.lessons.Create("notes", nil, lesson.ModeTeach)
	if err != nil {
		t.Fatal(err)
	}
	cps, err := ts.checkpoints.CreateAll(l.ID, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.http.URL + "/v1/lessons/" + l.ID.String() + "/checkpoints")
	if err != nil {
		t.Fatal(err)
	}
	m := decodeBody(t, resp)
	if m["count"] != float64(2) {
		t.Errorf("count = %v, want 2", m["count"])
	}
	if m["current"] != cps[0].ID.String() {
		t.Errorf("current = %v, want %s", m["current"], cps[0].ID)
	}
}

func TestWebLessonView(t *testing.T) {
	ts := newTestServer(t)
	l, err := ts.lessons.Create("# Mitosis\n\nCells divide.", nil, lesson.ModeTeach)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.checkpoints.CreateAll(l.ID, []string{"name the phases"}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.http.URL + "/lessons/" + l.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	html := string(body)
	if !strings.Contains(html, "<h1>Mitosis</h1>") {
		t.Errorf("markdown not rendered: %s", html)
	}
	if !strings.Contains(html, "name the phases") {
		t.Errorf("objectives missing: %s", html)
	}
}
