package llm

import "context"

// Client is the interface the agent loop drives.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If callback is non-nil, tokens are streamed to it.
	ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// TextGenerator is the plain text-generation capability: prompt plus
// optional system instructions in, text out.
type TextGenerator interface {
	GenerateText(ctx context.Context, model, system, prompt string) (string, error)
}

// ObjectGenerator is the structured-generation capability. The schema is a
// JSON-schema map; out receives the decoded object.
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, model, system, prompt string, schema map[string]any, out any) error
}

// Embedder produces a fixed-length embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}
