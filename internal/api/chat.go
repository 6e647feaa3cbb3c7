package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/studlyhq/studly/internal/agent"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/llm"
	"github.com/studlyhq/studly/internal/prompts"
)

// UIMessage is the client-visible unit of conversation: an ordered
// sequence of parts that accumulated as an earlier turn streamed.
type UIMessage struct {
	ID    string   `json:"id,omitempty"`
	Role  string   `json:"role"`
	Parts []UIPart `json:"parts"`
}

// UIPart is a tagged variant: a text part or a tool call part in one of
// its lifecycle states.
type UIPart struct {
	Type string `json:"type"`

	// Text parts
	Text string `json:"text,omitempty"`

	// Tool parts
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// ChatRequest is the POST /v1/chat body.
type ChatRequest struct {
	Messages []UIMessage `json:"messages"`
	LessonID string      `json:"lessonId"`
	Mode     string      `json:"mode,omitempty"`
}

// flattenHistory converts UI messages to model messages. Text parts
// concatenate; completed tool outputs are folded into the assistant
// content so the model remembers what its tools reported, without
// replaying provider-specific tool call IDs from old turns.
func flattenHistory(messages []UIMessage) []llm.Message {
	var out []llm.Message
	for _, msg := range messages {
		var sb strings.Builder
		for _, part := range msg.Parts {
			switch {
			case part.Type == "text":
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(part.Text)
			case strings.HasPrefix(part.Type, "tool-") && len(part.Output) > 0:
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(fmt.Sprintf("[%s result: %s]", part.ToolName, part.Output))
			}
		}
		if sb.Len() == 0 {
			continue
		}
		out = append(out, llm.Message{Role: msg.Role, Content: sb.String()})
	}
	return out
}

// streamWriter serializes part-delta events onto an SSE response.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	server  *Server
}

func (sw *streamWriter) send(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		sw.server.logger.Debug("failed to marshal SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		sw.server.logger.Debug("failed to write SSE event", "error", err)
		return
	}
	sw.flusher.Flush()

	// Reset the write deadline after every event so long tool
	// executions (song polling) don't trip the server write timeout.
	if err := sw.rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
		sw.server.logger.Debug("failed to reset write deadline", "error", err)
	}
}

// handleChat runs one agent turn and streams message part deltas:
// text-delta events for tokens, tool lifecycle events as the loop
// invokes tools, then finish (or error) and a [DONE] marker.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "messages are required")
		return
	}

	var lessonID uuid.UUID
	if req.LessonID != "" {
		var err error
		if lessonID, err = uuid.Parse(req.LessonID); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid lessonId")
			return
		}
	}

	mode, err := s.resolveMode(req.Mode, lessonID)
	if err != nil {
		if req.Mode != "" {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to resolve mode", "error", err, "lesson", lessonID)
		s.errorResponse(w, http.StatusInternalServerError, "failed to resolve study mode")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sw := &streamWriter{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		server:  s,
	}

	messageID := ulid.Make().String()
	sw.send(map[string]any{"type": "start", "messageId": messageID})

	// Text deltas belong to a part; a new part opens after each tool
	// call so the client keeps parts in orchestrator order.
	var textPartID string
	streamedText := false

	closeTextPart := func() {
		if textPartID != "" {
			sw.send(map[string]any{"type": "text-end", "id": textPartID})
			textPartID = ""
		}
	}

	callback := func(ev llm.StreamEvent) {
		switch ev.Kind {
		case llm.KindToken:
			if textPartID == "" {
				textPartID = ulid.Make().String()
				sw.send(map[string]any{"type": "text-start", "id": textPartID})
			}
			streamedText = true
			sw.send(map[string]any{"type": "text-delta", "id": textPartID, "delta": ev.Token})

		case llm.KindToolCallStart:
			closeTextPart()
			sw.send(map[string]any{
				"type":       "tool-input-available",
				"toolCallId": ev.ToolCall.ID,
				"toolName":   ev.ToolCall.Function.Name,
				"input":      ev.ToolCall.Function.Arguments,
			})

		case llm.KindToolCallDone:
			if ev.ToolError != "" {
				sw.send(map[string]any{
					"type":       "tool-output-error",
					"toolCallId": ev.ToolCallID,
					"toolName":   ev.ToolName,
					"errorText":  ev.ToolError,
				})
				return
			}
			var output any = json.RawMessage(ev.ToolResult)
			if !json.Valid([]byte(ev.ToolResult)) {
				output = ev.ToolResult
			}
			sw.send(map[string]any{
				"type":       "tool-output-available",
				"toolCallId": ev.ToolCallID,
				"toolName":   ev.ToolName,
				"output":     output,
			})
		}
	}

	agentReq := &agent.Request{
		Messages: flattenHistory(req.Messages),
		LessonID: lessonID,
		Mode:     mode,
	}

	// One wall-clock budget covers the whole turn, tool calls included.
	ctx := r.Context()
	if s.deps.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.TurnTimeout)
		defer cancel()
	}

	resp, err := s.deps.Runner.Run(ctx, agentReq, callback)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("turn exceeded time budget", "lesson", lessonID, "timeout", s.deps.TurnTimeout)
		} else {
			s.logger.Error("agent loop failed", "error", err, "lesson", lessonID)
		}
		closeTextPart()
		// Headers are already sent; report the failure in-stream.
		sw.send(map[string]any{"type": "error", "errorText": prompts.TurnFailed})
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	// A non-streaming provider (or fallback content) produces the final
	// text only on the response; emit it as a single delta.
	if !streamedText && resp.Content != "" {
		callback(llm.StreamEvent{Kind: llm.KindToken, Token: resp.Content})
	}
	closeTextPart()

	sw.send(map[string]any{"type": "finish", "finishReason": resp.FinishReason})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// resolveMode uses the explicit mode when given, otherwise falls back
// to the lesson's stored mode. An unknown lesson studies in teach mode;
// any other store failure is surfaced to the caller.
func (s *Server) resolveMode(explicit string, lessonID uuid.UUID) (lesson.Mode, error) {
	if explicit != "" {
		return lesson.ParseMode(explicit)
	}
	if lessonID != uuid.Nil && s.deps.Lessons != nil {
		l, err := s.deps.Lessons.Get(lessonID)
		switch {
		case err == nil:
			return l.Mode, nil
		case errors.Is(err, lesson.ErrNotFound):
			// New conversation against a lesson that was never
			// ingested; use the default mode.
		default:
			return "", fmt.Errorf("load lesson: %w", err)
		}
	}
	return lesson.ModeTeach, nil
}
