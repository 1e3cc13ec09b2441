package genai

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-haiku-20240307"

// AnthropicClient is the primary reply generation provider, backed by the
// Anthropic Messages API.
type AnthropicClient struct {
	client        anthropic.Client
	model         string
	available     bool
	rateLimitWait time.Duration
}

// AnthropicConfig holds construction parameters for AnthropicClient.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Empty means the client reports
	// itself unavailable rather than failing at call time.
	APIKey string

	// Model overrides DefaultAnthropicModel.
	Model string

	// RateLimitWait is the pause before the single retry on a 429
	// response. Defaults to 60 seconds.
	RateLimitWait time.Duration
}

// NewAnthropicClient creates an Anthropic-backed provider.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = defaultRateLimitWait
	}

	c := &AnthropicClient{
		model:         cfg.Model,
		rateLimitWait: cfg.RateLimitWait,
	}
	if cfg.APIKey != "" {
		c.client = anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
		c.available = true
	}
	return c
}

// Name returns "anthropic".
func (c *AnthropicClient) Name() ProviderName {
	return ProviderAnthropic
}

// Model returns the configured model identifier.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Available reports whether an API key was configured.
func (c *AnthropicClient) Available() bool {
	return c.available
}

// Complete performs one generation round trip. A 429 response is retried
// exactly once after a fixed pause; all other failures are returned as a
// *ProviderError.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if !c.available {
		return nil, &ProviderError{Provider: ProviderAnthropic, Model: c.model, Cause: ErrProviderUnavailable}
	}

	return completeWithRateLimitRetry(ctx, c.rateLimitWait, func() (*Completion, *ProviderError) {
		return c.complete(ctx, req)
	})
}

func (c *AnthropicClient) complete(ctx context.Context, req CompletionRequest) (*Completion, *ProviderError) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	}
	if temp := temperatureOrDefault(req.Temperature); temp > 0 {
		params.Temperature = anthropic.Float(temp)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		perr := &ProviderError{Provider: ProviderAnthropic, Model: c.model, Cause: err}
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			perr.Status = apierr.StatusCode
		}
		return nil, perr
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Completion{
		Text:         text,
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}, nil
}
