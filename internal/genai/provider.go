// Package genai produces generated replies for inbound customer messages,
// preferring a primary provider and failing over to a secondary one.
package genai

import "context"

// ProviderName identifies a configured provider.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
)

// CompletionRequest is a single generation call.
type CompletionRequest struct {
	// Prompt is the user-facing message to answer.
	Prompt string

	// Context is optional conversation history prepended to the prompt.
	Context string

	// MaxTokens bounds the reply length. Zero means the provider default.
	MaxTokens int

	// Temperature controls sampling. Zero means the provider default.
	Temperature float64
}

// Completion is the result of a provider call.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Provider is a language-model completion client.
type Provider interface {
	// Name returns the stable provider identifier.
	Name() ProviderName

	// Model returns the model identifier requests are sent to.
	Model() string

	// Available reports whether the provider is configured and usable.
	Available() bool

	// Complete performs one generation round trip.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// UsageStats tracks accumulated usage for one provider over the current
// accounting period. Reset only by explicit operator action.
type UsageStats struct {
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
	Model    string  `json:"model"`
}
