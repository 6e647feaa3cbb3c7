// Package agent implements the core agent loop: given a message
// history, a study mode, and a step budget, it drives the model through
// text and tool-call turns until the model stops or the budget runs out.
package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/llm"
	"github.com/studlyhq/studly/internal/prompts"
	"github.com/studlyhq/studly/internal/tools"
)

// DefaultStepBudget caps turns for modes without an explicit budget.
const DefaultStepBudget = 5

// Request represents one chat turn to run.
type Request struct {
	Messages []llm.Message `json:"messages"`
	LessonID uuid.UUID     `json:"lessonId"`
	Mode     lesson.Mode   `json:"mode"`

	// MaxSteps overrides the mode's configured step budget when > 0.
	MaxSteps int `json:"maxSteps,omitempty"`
}

// Response is the completed turn.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Steps        int    `json:"steps"`
	FinishReason string `json:"finish_reason"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Finish reasons.
const (
	FinishStop     = "stop"      // model produced a turn with no tool calls
	FinishMaxSteps = "max_steps" // step budget exhausted
)

// Loop is the core agent execution loop.
type Loop struct {
	logger   *slog.Logger
	llm      llm.Client
	model    string
	registry *tools.Registry
	budgets  map[string]int
}

// NewLoop creates a new agent loop. budgets maps mode names to step
// budgets; missing modes fall back to DefaultStepBudget.
func NewLoop(logger *slog.Logger, client llm.Client, model string, registry *tools.Registry, budgets map[string]int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:   logger,
		llm:      client,
		model:    model,
		registry: registry,
		budgets:  budgets,
	}
}

func (l *Loop) stepBudget(req *Request) int {
	if req.MaxSteps > 0 {
		return req.MaxSteps
	}
	if b, ok := l.budgets[string(req.Mode)]; ok && b > 0 {
		return b
	}
	return DefaultStepBudget
}

// Run executes one turn of the agent loop. Each model call consumes one
// unit of the step budget whether it emits text or a tool call. Tool
// failures are recoverable: the error is surfaced as an event and folded
// back into context so the model can respond. Model failures abort the
// turn. If callback is non-nil it receives tokens and tool lifecycle
// events as they happen.
func (l *Loop) Run(ctx context.Context, req *Request, callback llm.StreamCallback) (*Response, error) {
	maxSteps := l.stepBudget(req)
	toolset := l.registry.ForMode(req.Mode)
	defs := toolset.List()
	sess := tools.Session{LessonID: req.LessonID, Mode: req.Mode}

	l.logger.Info("agent loop started",
		"lesson", req.LessonID,
		"mode", req.Mode,
		"messages", len(req.Messages),
		"max_steps", maxSteps,
	)

	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: prompts.System(req.Mode)})
	messages = append(messages, req.Messages...)

	resp := &Response{Model: l.model, FinishReason: FinishMaxSteps}
	sawToolOutput := false

	// Carried into the final KindDone event.
	var lastModelResp *llm.ChatResponse

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		llmResp, err := l.llm.ChatStream(ctx, l.model, messages, defs, callback)
		if err != nil {
			l.logger.Error("model call failed", "step", step, "error", err)
			return nil, err
		}
		lastModelResp = llmResp
		resp.Steps = step + 1
		resp.InputTokens += llmResp.InputTokens
		resp.OutputTokens += llmResp.OutputTokens
		if llmResp.Message.Content != "" {
			resp.Content = llmResp.Message.Content
		}

		messages = append(messages, llmResp.Message)

		if len(llmResp.Message.ToolCalls) == 0 {
			resp.FinishReason = FinishStop
			break
		}

		for _, tc := range llmResp.Message.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			messages = append(messages, l.invokeTool(ctx, toolset, sess, tc, callback))
			sawToolOutput = true
		}
	}

	if resp.Content == "" && !sawToolOutput {
		resp.Content = prompts.EmptyResponseFallback
	}

	if callback != nil {
		callback(llm.StreamEvent{Kind: llm.KindDone, Response: lastModelResp})
	}

	l.logger.Info("agent loop completed",
		"lesson", req.LessonID,
		"steps", resp.Steps,
		"finish", resp.FinishReason,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}

// invokeTool executes one tool call and returns the tool message to
// append to context. Execution errors become an error payload the model
// can read; only context cancellation escapes as a message with the
// cancellation recorded, since the outer loop checks ctx itself.
func (l *Loop) invokeTool(ctx context.Context, toolset *tools.Registry, sess tools.Session, tc llm.ToolCall, callback llm.StreamCallback) llm.Message {
	name := tc.Function.Name

	if callback != nil {
		callback(llm.StreamEvent{Kind: llm.KindToolCallStart, ToolCall: &tc})
	}

	result, err := toolset.Execute(ctx, sess, name, tc.Function.Arguments)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, tools.ErrInvalidInput) {
			level = slog.LevelInfo
		}
		l.logger.Log(ctx, level, "tool failed", "tool", name, "error", err)

		if callback != nil {
			callback(llm.StreamEvent{
				Kind:       llm.KindToolCallDone,
				ToolCallID: tc.ID,
				ToolName:   name,
				ToolError:  err.Error(),
			})
		}
		return llm.Message{
			Role:       "tool",
			Content:    tools.MarshalResult(map[string]any{"error": err.Error()}),
			ToolCallID: tc.ID,
		}
	}

	rendered := tools.MarshalResult(result)
	l.logger.Debug("tool executed", "tool", name, "result_len", len(rendered))

	if callback != nil {
		callback(llm.StreamEvent{
			Kind:       llm.KindToolCallDone,
			ToolCallID: tc.ID,
			ToolName:   name,
			ToolResult: rendered,
		})
	}
	return llm.Message{
		Role:       "tool",
		Content:    rendered,
		ToolCallID: tc.ID,
	}
}
