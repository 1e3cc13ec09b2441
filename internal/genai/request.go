package genai

import (
	"context"
	"time"
)

// Generation defaults applied when a request leaves the fields zero.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
)

// defaultRateLimitWait is the pause before the single retry after a 429
// response. The upstream window resets on the minute, so a full minute is
// the safe choice.
const defaultRateLimitWait = 60 * time.Second

func buildPrompt(req CompletionRequest) string {
	if req.Context == "" {
		return req.Prompt
	}
	return req.Context + "\n\n" + req.Prompt
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}

func temperatureOrDefault(t float64) float64 {
	if t <= 0 {
		return DefaultTemperature
	}
	return t
}

// completeWithRateLimitRetry runs one provider call, retrying exactly once
// after a fixed context-aware pause when the response is rate limited. The
// attempt count is capped deliberately so a throttled provider cannot stall
// an inbound event handler indefinitely.
func completeWithRateLimitRetry(ctx context.Context, wait time.Duration, call func() (*Completion, *ProviderError)) (*Completion, error) {
	completion, perr := call()
	if perr == nil {
		return completion, nil
	}
	if !perr.IsRateLimited() {
		return nil, perr
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}

	completion, perr = call()
	if perr != nil {
		return nil, perr
	}
	return completion, nil
}
