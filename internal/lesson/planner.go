package lesson

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studlyhq/studly/internal/llm"
)

const plannerSystem = `You are a curriculum planner. Given a student's raw notes,
produce a short ordered list of learning objectives that cover the material.
Each objective is one concise sentence. Order them from foundational to advanced.`

// Planner derives an ordered lesson plan from raw notes using the
// structured generation capability.
type Planner struct {
	gen    llm.ObjectGenerator
	model  string
	logger *slog.Logger
}

// NewPlanner creates a lesson planner.
func NewPlanner(gen llm.ObjectGenerator, model string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{gen: gen, model: model, logger: logger.With("component", "planner")}
}

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"objectives": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"objectives"},
	"additionalProperties": false,
}

// Plan produces the ordered learning objectives for the given notes.
func (p *Planner) Plan(ctx context.Context, notes string) ([]string, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("notes are empty")
	}

	var out struct {
		Objectives []string `json:"objectives"`
	}
	prompt := "Create a lesson plan for these notes:\n\n" + notes
	if err := p.gen.GenerateObject(ctx, p.model, plannerSystem, prompt, planSchema, &out); err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	if len(out.Objectives) == 0 {
		return nil, fmt.Errorf("planner returned no objectives")
	}

	p.logger.Info("lesson plan created", "objectives", len(out.Objectives))
	return out.Objectives, nil
}
