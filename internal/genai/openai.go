package genai

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured. The mini model
// keeps failover traffic cheap.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient is the secondary reply generation provider.
type OpenAIClient struct {
	client        *openai.Client
	model         string
	rateLimitWait time.Duration
}

// OpenAIConfig holds construction parameters for OpenAIClient.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Empty means the client reports itself
	// unavailable, which disables failover to it.
	APIKey string

	// Model overrides DefaultOpenAIModel.
	Model string

	// RateLimitWait is the pause before the single retry on a 429
	// response. Defaults to 60 seconds.
	RateLimitWait time.Duration
}

// NewOpenAIClient creates an OpenAI-backed provider.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = defaultRateLimitWait
	}

	c := &OpenAIClient{
		model:         cfg.Model,
		rateLimitWait: cfg.RateLimitWait,
	}
	if cfg.APIKey != "" {
		c.client = openai.NewClient(cfg.APIKey)
	}
	return c
}

// Name returns "openai".
func (c *OpenAIClient) Name() ProviderName {
	return ProviderOpenAI
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Available reports whether an API key was configured.
func (c *OpenAIClient) Available() bool {
	return c.client != nil
}

// Complete performs one generation round trip. A 429 response is retried
// exactly once after a fixed pause.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.client == nil {
		return nil, &ProviderError{Provider: ProviderOpenAI, Model: c.model, Cause: ErrProviderUnavailable}
	}

	return completeWithRateLimitRetry(ctx, c.rateLimitWait, func() (*Completion, *ProviderError) {
		return c.complete(ctx, req)
	})
}

func (c *OpenAIClient) complete(ctx context.Context, req CompletionRequest) (*Completion, *ProviderError) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(req),
			},
		},
		MaxTokens:   maxTokensOrDefault(req.MaxTokens),
		Temperature: float32(temperatureOrDefault(req.Temperature)),
	})
	if err != nil {
		perr := &ProviderError{Provider: ProviderOpenAI, Model: c.model, Cause: err}
		var apierr *openai.APIError
		if errors.As(err, &apierr) {
			perr.Status = apierr.HTTPStatusCode
		}
		return nil, perr
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return &Completion{
		Text:         text,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}
