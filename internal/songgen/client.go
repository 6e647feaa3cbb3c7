// Package songgen talks to an external asynchronous music generation
// service. Generation is a two-phase operation: start a job, then poll
// the returned clips until they reach a target status.
package songgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studlyhq/studly/internal/httpkit"
)

// Status is a clip's generation state. Statuses progress monotonically
// queued → streaming → complete.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

var statusRank = map[Status]int{
	StatusQueued:    0,
	StatusStreaming: 1,
	StatusComplete:  2,
}

// AtLeast reports whether s has reached target in the status ordering.
// Unknown statuses (including "error") never satisfy a target.
func (s Status) AtLeast(target Status) bool {
	r, ok := statusRank[s]
	if !ok {
		return false
	}
	t, ok := statusRank[target]
	if !ok {
		return false
	}
	return r >= t
}

// Clip is one generated audio track. AudioURL and ImageURL are populated
// once the clip reaches streaming.
type Clip struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	Title      string `json:"title,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	LyricsText string `json:"lyrics_text,omitempty"`
}

var (
	// ErrGenerationFailed means the upstream accepted the request but
	// returned no clips to poll.
	ErrGenerationFailed = errors.New("song generation failed to start")

	// ErrTimeout means the poll budget was exhausted before all clips
	// reached the target status.
	ErrTimeout = errors.New("timed out waiting for song generation")

	// ErrPollFailed means repeated upstream failures during polling.
	ErrPollFailed = errors.New("song status polling failed")
)

// Client calls the generation service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	pollInterval time.Duration
	maxAttempts  int
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithMaxPollAttempts bounds the number of status polls per PollUntil call.
func WithMaxPollAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// NewClient creates a song generation client.
func NewClient(apiKey, baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger.With("component", "songgen"),
		httpClient:   httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
		pollInterval: 4 * time.Second,
		maxAttempts:  30,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type generateRequest struct {
	Prompt           string `json:"prompt"`
	Tags             string `json:"tags,omitempty"`
	MakeInstrumental bool   `json:"make_instrumental"`
	WaitAudio        bool   `json:"wait_audio"`
}

// Generate starts a generation job and returns the initial clip set.
// Returns ErrGenerationFailed when the upstream reports success but no
// clips, so callers can distinguish a dead job from a transport error.
func (c *Client) Generate(ctx context.Context, prompt, tags string) ([]Clip, error) {
	req := generateRequest{Prompt: prompt, Tags: tags}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpkit.StatusError("songgen", resp.StatusCode, resp.Body)
	}

	var clips []Clip
	if err := json.NewDecoder(resp.Body).Decode(&clips); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}
	if len(clips) == 0 {
		return nil, ErrGenerationFailed
	}

	ids := make([]string, len(clips))
	for i, clip := range clips {
		ids[i] = clip.ID
	}
	c.logger.Info("generation started", "clips", ids, "prompt_len", len(prompt))

	return clips, nil
}

// GetClips fetches the current state of the given clips.
func (c *Client) GetClips(ctx context.Context, ids []string) ([]Clip, error) {
	u := c.baseURL + "/api/get?ids=" + url.QueryEscape(strings.Join(ids, ","))
	httpReq, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpkit.StatusError("songgen", resp.StatusCode, resp.Body)
	}

	var clips []Clip
	if err := json.NewDecoder(resp.Body).Decode(&clips); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}
	return clips, nil
}
