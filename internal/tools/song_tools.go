package tools

import (
	"context"
	"fmt"

	"github.com/studlyhq/studly/internal/songgen"
)

// generateSongTool starts a song generation job and polls it until the
// clips are streamable. Available in every mode.
func generateSongTool(deps Deps) *Tool {
	return &Tool{
		Name:        "generateSong",
		Description: "Generates a song using AI",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "Describe your song!",
				},
				"tags": map[string]any{
					"type":        "string",
					"description": "Specify genres, instruments, and moods (e.g., 'rock, electric guitar, energetic')",
				},
			},
			"required": []string{"prompt"},
		},
		Handler: func(ctx context.Context, sess Session, args map[string]any) (any, error) {
			prompt, _ := args["prompt"].(string)
			tags, _ := args["tags"].(string)

			clips, err := deps.Songs.Generate(ctx, prompt, tags)
			if err != nil {
				return nil, fmt.Errorf("start generation: %w", err)
			}

			ids := make([]string, len(clips))
			for i, clip := range clips {
				ids[i] = clip.ID
			}

			// Streaming is enough for a playable partial result; waiting
			// for complete would blow the turn deadline.
			ready, err := deps.Songs.PollUntil(ctx, ids, songgen.StatusStreaming)
			if err != nil {
				return nil, err
			}

			return map[string]any{"clips": ready}, nil
		},
	}
}
