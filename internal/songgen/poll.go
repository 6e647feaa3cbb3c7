package songgen

import (
	"context"
	"fmt"
)

// maxConsecutivePollFailures bounds tolerated upstream errors before a
// poll is abandoned as ErrPollFailed.
const maxConsecutivePollFailures = 3

// PollUntil polls the given clips until every one has reached target
// status. Clips that reach the target early stop being waited on; their
// latest observed state is returned. Returns ErrTimeout when the attempt
// budget runs out and ErrPollFailed after repeated upstream failures.
func (c *Client) PollUntil(ctx context.Context, ids []string, target Status) ([]Clip, error) {
	satisfied := make(map[string]Clip, len(ids))
	failures := 0

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return nil, err
			}
		}

		pending := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := satisfied[id]; !ok {
				pending = append(pending, id)
			}
		}

		clips, err := c.GetClips(ctx, pending)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			c.logger.Warn("poll attempt failed", "attempt", attempt, "failures", failures, "error", err)
			if failures >= maxConsecutivePollFailures {
				return nil, fmt.Errorf("%w: %v", ErrPollFailed, err)
			}
			continue
		}
		failures = 0

		for _, clip := range clips {
			if clip.Status.AtLeast(target) {
				satisfied[clip.ID] = clip
			}
		}

		if len(satisfied) == len(ids) {
			result := make([]Clip, 0, len(ids))
			for _, id := range ids {
				result = append(result, satisfied[id])
			}
			c.logger.Info("all clips ready", "clips", len(result), "target", target, "attempts", attempt+1)
			return result, nil
		}
	}

	return nil, fmt.Errorf("%w: %d/%d clips reached %q after %d attempts",
		ErrTimeout, len(satisfied), len(ids), target, c.maxAttempts)
}
