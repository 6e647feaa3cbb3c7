// Package tools defines the tools available to the agent. The active
// tool set is a pure function of the session's study mode.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/llm"
	"github.com/studlyhq/studly/internal/songgen"
)

// ErrInvalidInput marks a tool call rejected before execution because
// its arguments were missing or badly typed.
var ErrInvalidInput = errors.New("invalid tool input")

// Session carries the per-request context tools execute against.
type Session struct {
	LessonID uuid.UUID
	Mode     lesson.Mode
}

// Tool represents a callable tool. Handlers return a JSON-serializable
// result; soft failures (missing notes, no objective left) are returned
// as result objects with an explanatory field so the model can phrase a
// graceful answer, while hard failures use the error return.
type Tool struct {
	Name        string                                                              `json:"name"`
	Description string                                                              `json:"description"`
	Parameters  map[string]any                                                      `json:"parameters"`
	Handler     func(ctx context.Context, sess Session, args map[string]any) (any, error) `json:"-"`
}

// Deps are the collaborators tool handlers call into.
type Deps struct {
	Lessons     *lesson.Store
	Checkpoints *checkpoint.Store
	Songs       *songgen.Client
	Text        llm.TextGenerator
	Objects     llm.ObjectGenerator
	TextModel   string
	ObjectModel string
	Logger      *slog.Logger
}

// Registry holds available tools in registration order.
type Registry struct {
	tools map[string]*Tool
	order []string
	deps  Deps
}

// NewRegistry creates a tool registry with every tool registered.
// Use ForMode to get the subset a session may call.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{
		tools: make(map[string]*Tool),
		deps:  deps,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(generateSongTool(r.deps))
	r.Register(giveInfoTool(r.deps))
	r.Register(generateQuizTool(r.deps))
	r.Register(getNotesTool(r.deps))
	r.Register(generateFlashcardsTool(r.deps))
	r.Register(compareRehearsalTool(r.deps))
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// modeTools maps each study mode to its available tool names.
// generateSong is universal.
var modeTools = map[lesson.Mode][]string{
	lesson.ModeTeach:     {"generateSong", "giveInfo", "generateQuiz"},
	lesson.ModeSong:      {"generateSong", "getNotes"},
	lesson.ModeFlashcard: {"generateSong", "getNotes", "generateFlashcards"},
	lesson.ModeRehearse:  {"generateSong", "getNotes", "compareRehearsal"},
}

// ForMode returns a registry restricted to the tools the given mode may
// use. The returned registry shares tool definitions with the parent.
func (r *Registry) ForMode(mode lesson.Mode) *Registry {
	sub := &Registry{
		tools: make(map[string]*Tool),
		deps:  r.deps,
	}
	for _, name := range modeTools[mode] {
		if t := r.tools[name]; t != nil {
			sub.Register(t)
		}
	}
	return sub
}

// List returns the tools in LLM function-calling format, in
// registration order so prompts are reproducible.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute validates arguments and runs a tool by name. Validation
// failures surface as ErrInvalidInput before the handler runs, so a
// rejected call never has partial side effects.
func (r *Registry) Execute(ctx context.Context, sess Session, name string, args map[string]any) (any, error) {
	tool := r.tools[name]
	if tool == nil {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	if err := validateArgs(tool.Parameters, args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
	}

	return tool.Handler(ctx, sess, args)
}

// validateArgs checks args against a JSON-schema style parameter spec:
// required fields present, declared fields type-correct. Unknown fields
// are tolerated, matching how models over-produce arguments.
func validateArgs(params, args map[string]any) error {
	props, _ := params["properties"].(map[string]any)

	if required, ok := params["required"].([]string); ok {
		for _, field := range required {
			if _, present := args[field]; !present {
				return fmt.Errorf("missing required field %q", field)
			}
		}
	}

	for field, value := range args {
		spec, ok := props[field].(map[string]any)
		if !ok {
			continue
		}
		declared, _ := spec["type"].(string)
		if declared == "" || value == nil {
			continue
		}
		if !typeMatches(declared, value) {
			return fmt.Errorf("field %q: expected %s, got %T", field, declared, value)
		}
	}
	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer", "number":
		// JSON numbers decode as float64
		switch value.(type) {
		case float64, int:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	}
	return true
}

// MarshalResult renders a tool result for the model's context window.
func MarshalResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
