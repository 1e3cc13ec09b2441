package genai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vivoly/sofia/internal/observability"
)

// Options tunes a single Generate call.
type Options struct {
	// MaxTokens bounds the reply length. Zero means the router default.
	MaxTokens int

	// Temperature controls sampling. Zero means the router default.
	Temperature float64

	// ForceProvider bypasses the preference order for this call.
	ForceProvider ProviderName
}

// Result is a generated reply tagged with the provider that served it.
type Result struct {
	Text     string
	Provider ProviderName

	// Cost is the serving provider's accumulated period cost after this
	// call, in dollars.
	Cost float64
}

// RouterConfig holds construction parameters for Router.
type RouterConfig struct {
	// Primary serves requests first unless Preferred says otherwise.
	Primary Provider

	// Secondary serves failover traffic. May be nil or unavailable, which
	// disables failover.
	Secondary Provider

	// Preferred selects which of the two is tried first. Defaults to the
	// primary's name.
	Preferred ProviderName

	// FailoverEnabled allows a failed primary call to be retried against
	// the secondary. Requires Secondary to be available.
	FailoverEnabled bool

	// MaxTokens and Temperature are applied when Options leave them zero.
	MaxTokens   int
	Temperature float64

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Router obtains generated replies with automatic failover and per-provider
// usage accounting.
type Router struct {
	primary   Provider
	secondary Provider

	mu        sync.Mutex
	preferred ProviderName
	usage     map[ProviderName]*UsageStats

	failoverEnabled bool
	maxTokens       int
	temperature     float64

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRouter creates a router over the given providers. Failover is only
// armed when the secondary provider is configured and available.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Preferred == "" {
		cfg.Preferred = cfg.Primary.Name()
	}

	failover := cfg.FailoverEnabled && cfg.Secondary != nil && cfg.Secondary.Available()

	r := &Router{
		primary:         cfg.Primary,
		secondary:       cfg.Secondary,
		preferred:       cfg.Preferred,
		usage:           make(map[ProviderName]*UsageStats),
		failoverEnabled: failover,
		maxTokens:       cfg.MaxTokens,
		temperature:     cfg.Temperature,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}
	r.usage[cfg.Primary.Name()] = &UsageStats{Model: cfg.Primary.Model()}
	if cfg.Secondary != nil {
		r.usage[cfg.Secondary.Name()] = &UsageStats{Model: cfg.Secondary.Model()}
	}

	cfg.Logger.Info("generation router initialized",
		"primary", cfg.Primary.Name(),
		"primary_available", cfg.Primary.Available(),
		"secondary_available", cfg.Secondary != nil && cfg.Secondary.Available(),
		"failover_enabled", failover)

	return r
}

// Generate produces a reply for the prompt, preferring the configured
// provider and failing over to the secondary when enabled. When both
// providers fail the returned error is an *AllProvidersFailed carrying both
// underlying errors; a direct secondary failure propagates unchanged.
func (r *Router) Generate(ctx context.Context, prompt, convContext string, opts *Options) (*Result, error) {
	target := r.resolveTarget(opts)
	req := r.buildRequest(prompt, convContext, opts)

	result, err := r.callProvider(ctx, target, req)
	if err == nil {
		return result, nil
	}

	// Failover applies only when the primary was the one that failed.
	if r.failoverEnabled && target.Name() == r.primary.Name() {
		r.logger.Warn("primary provider failed, trying failover",
			"primary", target.Name(), "error", err)

		result, ferr := r.callProvider(ctx, r.secondary, req)
		if ferr == nil {
			return result, nil
		}
		return nil, &AllProvidersFailed{Primary: err, Secondary: ferr}
	}

	return nil, err
}

// Analyze sends the prompt expecting a JSON-shaped reply, following the
// same provider order. Surrounding code fences are stripped before parsing.
// A reply that fails to parse is returned as {"raw_response": text} rather
// than an error; only provider failures are fatal.
func (r *Router) Analyze(ctx context.Context, prompt string) (map[string]any, error) {
	result, err := r.Generate(ctx, prompt, "", nil)
	if err != nil {
		return nil, err
	}

	cleaned := stripCodeFences(result.Text)

	var parsed map[string]any
	if jsonErr := json.Unmarshal([]byte(cleaned), &parsed); jsonErr != nil {
		r.logger.Debug("analysis response was not valid JSON, returning raw text",
			"provider", result.Provider)
		return map[string]any{"raw_response": result.Text}, nil
	}
	return parsed, nil
}

// SetPreferred switches which provider is tried first.
func (r *Router) SetPreferred(name ProviderName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferred = name
	r.logger.Info("preferred provider changed", "provider", name)
}

// UsageStats returns a snapshot of per-provider usage for the current
// accounting period.
func (r *Router) UsageStats() map[ProviderName]UsageStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[ProviderName]UsageStats, len(r.usage))
	for name, stats := range r.usage {
		out[name] = *stats
	}
	return out
}

// ResetUsage zeroes request counts and accumulated cost for all providers.
// This is an operator action; usage never resets automatically.
func (r *Router) ResetUsage() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stats := range r.usage {
		stats.Requests = 0
		stats.Cost = 0
	}
	r.logger.Info("provider usage stats reset")
}

func (r *Router) resolveTarget(opts *Options) Provider {
	if opts != nil && opts.ForceProvider != "" {
		return r.providerByName(opts.ForceProvider)
	}

	r.mu.Lock()
	preferred := r.preferred
	r.mu.Unlock()

	return r.providerByName(preferred)
}

func (r *Router) providerByName(name ProviderName) Provider {
	if r.secondary != nil && r.secondary.Name() == name {
		return r.secondary
	}
	return r.primary
}

func (r *Router) buildRequest(prompt, convContext string, opts *Options) CompletionRequest {
	req := CompletionRequest{
		Prompt:      prompt,
		Context:     convContext,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
		if opts.Temperature > 0 {
			req.Temperature = opts.Temperature
		}
	}
	return req
}

func (r *Router) callProvider(ctx context.Context, p Provider, req CompletionRequest) (*Result, error) {
	start := time.Now()
	completion, err := p.Complete(ctx, req)

	if r.metrics != nil {
		r.metrics.GenerationDuration.WithLabelValues(string(p.Name())).
			Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.GenerationCounter.WithLabelValues(string(p.Name()), "error").Inc()
		}
		return nil, err
	}

	cost := r.recordUsage(p, completion)

	if r.metrics != nil {
		r.metrics.GenerationCounter.WithLabelValues(string(p.Name()), "success").Inc()
		r.metrics.TokensUsed.WithLabelValues(string(p.Name()), "input").
			Add(float64(completion.InputTokens))
		r.metrics.TokensUsed.WithLabelValues(string(p.Name()), "output").
			Add(float64(completion.OutputTokens))
	}

	return &Result{
		Text:     completion.Text,
		Provider: p.Name(),
		Cost:     cost,
	}, nil
}

// recordUsage updates the serving provider's stats and returns its
// accumulated period cost after this call.
func (r *Router) recordUsage(p Provider, completion *Completion) float64 {
	cost := ResolveModelCost(p.Name(), p.Model()).
		Amount(completion.InputTokens, completion.OutputTokens)

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.usage[p.Name()]
	if !ok {
		stats = &UsageStats{Model: p.Model()}
		r.usage[p.Name()] = stats
	}
	stats.Requests++
	stats.Cost += cost
	return stats.Cost
}

// stripCodeFences removes surrounding markdown code-fence markers from a
// JSON-shaped reply.
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
