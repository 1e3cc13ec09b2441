package genai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProviderError_IsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  ProviderError
		want bool
	}{
		{"status 429", ProviderError{Status: 429}, true},
		{"status 500", ProviderError{Status: 500, Cause: errors.New("server error")}, false},
		{"429 in message", ProviderError{Cause: errors.New("unexpected status code: 429")}, true},
		{"rate limit in message", ProviderError{Cause: errors.New("Rate limit exceeded")}, true},
		{"plain failure", ProviderError{Cause: errors.New("connection refused")}, false},
		{"no cause", ProviderError{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRateLimited(); got != tt.want {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ProviderError{Provider: ProviderAnthropic, Model: "claude-3-haiku-20240307", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if got := err.Error(); got == "" {
		t.Error("Error() should not be empty")
	}
}

func TestAllProvidersFailed_Unwrap(t *testing.T) {
	primary := errors.New("primary down")
	secondary := errors.New("secondary down")
	err := &AllProvidersFailed{Primary: primary, Secondary: secondary}

	if !errors.Is(err, primary) || !errors.Is(err, secondary) {
		t.Error("errors.Is should reach both underlying errors")
	}
}

func TestCompleteWithRateLimitRetry(t *testing.T) {
	t.Run("success first try", func(t *testing.T) {
		calls := 0
		completion, err := completeWithRateLimitRetry(context.Background(), time.Millisecond, func() (*Completion, *ProviderError) {
			calls++
			return &Completion{Text: "ok"}, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if completion.Text != "ok" || calls != 1 {
			t.Errorf("calls = %d, text = %q", calls, completion.Text)
		}
	})

	t.Run("retries once on 429", func(t *testing.T) {
		calls := 0
		completion, err := completeWithRateLimitRetry(context.Background(), time.Millisecond, func() (*Completion, *ProviderError) {
			calls++
			if calls == 1 {
				return nil, &ProviderError{Status: 429}
			}
			return &Completion{Text: "recovered"}, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if completion.Text != "recovered" || calls != 2 {
			t.Errorf("calls = %d, text = %q", calls, completion.Text)
		}
	})

	t.Run("caps at two attempts", func(t *testing.T) {
		calls := 0
		_, err := completeWithRateLimitRetry(context.Background(), time.Millisecond, func() (*Completion, *ProviderError) {
			calls++
			return nil, &ProviderError{Status: 429}
		})
		if err == nil {
			t.Fatal("should fail after second 429")
		}
		if calls != 2 {
			t.Errorf("calls = %d, want exactly 2", calls)
		}
	})

	t.Run("non-429 fails immediately", func(t *testing.T) {
		calls := 0
		_, err := completeWithRateLimitRetry(context.Background(), time.Millisecond, func() (*Completion, *ProviderError) {
			calls++
			return nil, &ProviderError{Status: 500, Cause: errors.New("server error")}
		})
		if err == nil {
			t.Fatal("should fail")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("context cancellation aborts the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := completeWithRateLimitRetry(ctx, time.Hour, func() (*Completion, *ProviderError) {
			calls++
			return nil, &ProviderError{Status: 429}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
