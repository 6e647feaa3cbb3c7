package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/studlyhq/studly/internal/httpkit"
)

// OpenAIClient is a client for the OpenAI Chat Completions API (or any
// compatible endpoint selected via baseURL).
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a new OpenAI client. baseURL defaults to the
// public API when empty.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	// Model responses can take significant time before sending headers
	// (long prompts, structured generation). Use a custom transport with
	// a generous response header timeout.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "openai"),
		httpClient: httpkit.NewClient(
			// No global timeout; streaming responses can be long-lived.
			// Rely on ctx deadlines/cancellation for timeout control.
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// OpenAI request/response types

type openaiRequest struct {
	Model          string           `json:"model"`
	Messages       []openaiMessage  `json:"messages"`
	Tools          []map[string]any `json:"tools,omitempty"`
	Stream         bool             `json:"stream,omitempty"`
	StreamOptions  *streamOptions   `json:"stream_options,omitempty"`
	ResponseFormat map[string]any   `json:"response_format,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"` // JSON-encoded
	} `json:"function"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openaiUsage `json:"usage"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openaiStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string           `json:"role,omitempty"`
			Content   string           `json:"content,omitempty"`
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
}

// Chat sends a non-streaming chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	return c.ChatStream(ctx, model, messages, tools, nil)
}

// ChatStream sends a chat request, optionally streaming tokens via callback.
func (c *OpenAIClient) ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error) {
	stream := callback != nil

	req := openaiRequest{
		Model:    model,
		Messages: convertToOpenAI(messages),
		Tools:    tools,
		Stream:   stream,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(req.Messages),
		"tools", len(tools),
		"stream", stream,
	)

	body, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if !stream {
		return c.handleNonStreaming(ctx, body)
	}
	return c.handleStreaming(ctx, body, callback)
}

// GenerateText is the plain text-generation capability: system+prompt → text.
func (c *OpenAIClient) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	messages := []Message{{Role: "user", Content: prompt}}
	if system != "" {
		messages = append([]Message{{Role: "system", Content: system}}, messages...)
	}

	resp, err := c.Chat(ctx, model, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// GenerateObject is the structured-generation capability. The schema is a
// JSON-schema object; the model output is decoded into out. One retry is
// attempted when the model returns malformed JSON.
func (c *OpenAIClient) GenerateObject(ctx context.Context, model, system, prompt string, schema map[string]any, out any) error {
	req := openaiRequest{
		Model: model,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "result",
				"strict": true,
				"schema": schema,
			},
		},
	}
	if system != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: prompt})

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, err := c.post(ctx, "/chat/completions", req)
		if err != nil {
			return err
		}

		var resp openaiResponse
		err = json.NewDecoder(body).Decode(&resp)
		body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty response from model")
		}

		content := resp.Choices[0].Message.Content
		c.logger.Log(ctx, LevelTrace, "structured output", "content", content)

		if err := json.Unmarshal([]byte(content), out); err != nil {
			lastErr = fmt.Errorf("unmarshal structured output: %w", err)
			c.logger.Warn("structured output did not validate, retrying",
				"model", model, "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

// Embed returns the embedding vector for a text.
func (c *OpenAIClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	req := map[string]any{
		"model": model,
		"input": text,
	}

	body, err := c.post(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

// Ping checks if the API is reachable and the key is accepted.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status from OpenAI API: %d", resp.StatusCode)
	}
	return nil
}

// post issues a JSON POST and returns the response body on 2xx.
func (c *OpenAIClient) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, errBody)
	}

	return resp.Body, nil
}

func (c *OpenAIClient) handleNonStreaming(ctx context.Context, body io.Reader) (*ChatResponse, error) {
	var resp openaiResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	result := &ChatResponse{
		Model:        resp.Model,
		CreatedAt:    time.Unix(resp.Created, 0),
		Message:      convertFromOpenAI(resp.Choices[0].Message),
		Done:         true,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)

	return result, nil
}

// partialToolCall accumulates a tool call assembled from stream deltas.
// OpenAI fragments the JSON arguments across chunks, keyed by index.
type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (c *OpenAIClient) handleStreaming(ctx context.Context, body io.Reader, callback StreamCallback) (*ChatResponse, error) {
	scanner := bufio.NewScanner(body)
	// Increase scanner buffer for large responses
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		contentBuilder strings.Builder
		partials       = make(map[int]*partialToolCall)
		usage          openaiUsage
		model          string
	)

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip malformed events
		}

		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			if callback != nil {
				callback(StreamEvent{Kind: KindToken, Token: delta.Content})
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p := partials[idx]
			if p == nil {
				p = &partialToolCall{}
				partials[idx] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args.WriteString(tc.Function.Arguments)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	// Assemble tool calls in index order.
	indexes := make([]int, 0, len(partials))
	for idx := range partials {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var toolCalls []ToolCall
	for _, idx := range indexes {
		p := partials[idx]
		var args map[string]any
		if raw := p.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{"_raw": raw}
			}
		}
		toolCalls = append(toolCalls, NewToolCall(p.id, p.name, args))
	}

	resp := &ChatResponse{
		Model: model,
		Message: Message{
			Role:      "assistant",
			Content:   contentBuilder.String(),
			ToolCalls: toolCalls,
		},
		Done:         true,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}

	c.logger.Debug("stream complete",
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"content_len", len(resp.Message.Content),
		"tool_calls", len(resp.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "stream final content", "content", resp.Message.Content)

	return resp, nil
}

// convertToOpenAI converts internal messages to the wire format.
// Tool call arguments are re-encoded as JSON strings.
func convertToOpenAI(messages []Message) []openaiMessage {
	result := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		om := openaiMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args := tc.Function.Arguments
			if args == nil {
				args = map[string]any{}
			}
			encoded, err := json.Marshal(args)
			if err != nil {
				encoded = []byte("{}")
			}
			otc := openaiToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Function.Name
			otc.Function.Arguments = string(encoded)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		result = append(result, om)
	}
	return result
}

// convertFromOpenAI converts a wire message to our internal format,
// decoding tool call argument strings into maps.
func convertFromOpenAI(msg openaiMessage) Message {
	out := Message{
		Role:    msg.Role,
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		out.ToolCalls = append(out.ToolCalls, NewToolCall(tc.ID, tc.Function.Name, args))
	}
	return out
}
