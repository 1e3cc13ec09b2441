package genai

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeProvider is a scriptable Provider for router tests.
type fakeProvider struct {
	name      ProviderName
	model     string
	available bool
	calls     int
	fail      error
	text      string
	inTokens  int64
	outTokens int64
}

func (f *fakeProvider) Name() ProviderName { return f.name }
func (f *fakeProvider) Model() string      { return f.model }
func (f *fakeProvider) Available() bool    { return f.available }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return &Completion{Text: f.text, InputTokens: f.inTokens, OutputTokens: f.outTokens}, nil
}

func newTestProviders() (*fakeProvider, *fakeProvider) {
	primary := &fakeProvider{
		name: ProviderAnthropic, model: "claude-3-haiku-20240307",
		available: true, text: "primary reply", inTokens: 100, outTokens: 50,
	}
	secondary := &fakeProvider{
		name: ProviderOpenAI, model: "gpt-4o-mini",
		available: true, text: "secondary reply", inTokens: 80, outTokens: 40,
	}
	return primary, secondary
}

func TestRouter_GenerateUsesPrimary(t *testing.T) {
	primary, secondary := newTestProviders()
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: true})

	result, err := router.Generate(context.Background(), "hello", "", nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if result.Provider != ProviderAnthropic {
		t.Errorf("Provider = %q, want anthropic", result.Provider)
	}
	if result.Text != "primary reply" {
		t.Errorf("Text = %q, want primary reply", result.Text)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary.calls = %d, want 0", secondary.calls)
	}
}

func TestRouter_FailoverOnPrimaryError(t *testing.T) {
	primary, secondary := newTestProviders()
	primary.fail = &ProviderError{Provider: ProviderAnthropic, Cause: errors.New("boom")}
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: true})

	result, err := router.Generate(context.Background(), "hello", "", nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if result.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want openai after failover", result.Provider)
	}
	if secondary.calls != 1 {
		t.Errorf("secondary.calls = %d, want exactly 1", secondary.calls)
	}

	stats := router.UsageStats()
	if stats[ProviderOpenAI].Requests != 1 {
		t.Errorf("secondary requests = %d, want 1", stats[ProviderOpenAI].Requests)
	}
	if stats[ProviderAnthropic].Requests != 0 {
		t.Errorf("primary requests = %d, want 0 (failed call not counted)", stats[ProviderAnthropic].Requests)
	}
}

func TestRouter_FailoverDisabledPropagates(t *testing.T) {
	primary, secondary := newTestProviders()
	primaryErr := &ProviderError{Provider: ProviderAnthropic, Cause: errors.New("boom")}
	primary.fail = primaryErr
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: false})

	_, err := router.Generate(context.Background(), "hello", "", nil)
	if err == nil {
		t.Fatal("Generate() should fail")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary.calls = %d, want 0 with failover disabled", secondary.calls)
	}
}

func TestRouter_AllProvidersFailed(t *testing.T) {
	primary, secondary := newTestProviders()
	primary.fail = errors.New("primary down")
	secondary.fail = errors.New("secondary down")
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: true})

	_, err := router.Generate(context.Background(), "hello", "", nil)

	var all *AllProvidersFailed
	if !errors.As(err, &all) {
		t.Fatalf("error type = %T, want *AllProvidersFailed", err)
	}
	if all.Primary == nil || all.Secondary == nil {
		t.Error("both underlying errors should be carried")
	}
}

func TestRouter_FailoverRequiresAvailableSecondary(t *testing.T) {
	primary, secondary := newTestProviders()
	primary.fail = errors.New("primary down")
	secondary.available = false
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: true})

	_, err := router.Generate(context.Background(), "hello", "", nil)
	if err == nil {
		t.Fatal("Generate() should fail")
	}
	var all *AllProvidersFailed
	if errors.As(err, &all) {
		t.Error("failover should be disarmed when secondary is unavailable")
	}
	if secondary.calls != 0 {
		t.Errorf("secondary.calls = %d, want 0", secondary.calls)
	}
}

func TestRouter_DirectSecondaryFailurePropagatesUnchanged(t *testing.T) {
	primary, secondary := newTestProviders()
	secondaryErr := &ProviderError{Provider: ProviderOpenAI, Cause: errors.New("boom")}
	secondary.fail = secondaryErr
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: true})

	_, err := router.Generate(context.Background(), "hello", "", &Options{ForceProvider: ProviderOpenAI})
	if !errors.Is(err, secondaryErr) {
		t.Errorf("error = %v, want the secondary's own error unchanged", err)
	}
	if primary.calls != 0 {
		t.Errorf("primary.calls = %d, want 0 (no fallback from secondary)", primary.calls)
	}
}

func TestRouter_ForceProvider(t *testing.T) {
	primary, secondary := newTestProviders()
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary})

	result, err := router.Generate(context.Background(), "hello", "", &Options{ForceProvider: ProviderOpenAI})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if result.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want openai", result.Provider)
	}
}

func TestRouter_SetPreferred(t *testing.T) {
	primary, secondary := newTestProviders()
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary})

	router.SetPreferred(ProviderOpenAI)

	result, err := router.Generate(context.Background(), "hello", "", nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if result.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want openai after SetPreferred", result.Provider)
	}
}

func TestRouter_CostAccumulates(t *testing.T) {
	primary, secondary := newTestProviders()
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary})

	first, err := router.Generate(context.Background(), "hello", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := router.Generate(context.Background(), "again", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Cost is the provider's running total, so the second call reports
	// twice the per-call amount.
	perCall := ResolveModelCost(ProviderAnthropic, primary.model).Amount(100, 50)
	if diff := first.Cost - perCall; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("first.Cost = %v, want %v", first.Cost, perCall)
	}
	if diff := second.Cost - 2*perCall; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("second.Cost = %v, want %v", second.Cost, 2*perCall)
	}

	router.ResetUsage()
	stats := router.UsageStats()
	if stats[ProviderAnthropic].Requests != 0 || stats[ProviderAnthropic].Cost != 0 {
		t.Errorf("stats after reset = %+v, want zeroed", stats[ProviderAnthropic])
	}
}

func TestRouter_GenerateWithContext(t *testing.T) {
	recorded := &recordingProvider{fakeProvider: fakeProvider{
		name: ProviderAnthropic, model: "claude-3-haiku-20240307", available: true, text: "ok",
	}}
	router := NewRouter(RouterConfig{Primary: recorded})

	_, err := router.Generate(context.Background(), "question", "Contact: hi\nSofia: hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if recorded.lastReq.Context != "Contact: hi\nSofia: hello" {
		t.Errorf("Context = %q, want conversation history", recorded.lastReq.Context)
	}
	if recorded.lastReq.Prompt != "question" {
		t.Errorf("Prompt = %q, want question", recorded.lastReq.Prompt)
	}
}

type recordingProvider struct {
	fakeProvider
	lastReq CompletionRequest
}

func (r *recordingProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	r.lastReq = req
	return r.fakeProvider.Complete(ctx, req)
}

func TestRouter_Analyze(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantKey  string
		wantVal  any
	}{
		{"plain json", `{"urgency": "high"}`, "urgency", "high"},
		{"fenced json", "```json\n{\"urgency\": \"low\"}\n```", "urgency", "low"},
		{"bare fences", "```\n{\"intent\": \"scheduling\"}\n```", "intent", "scheduling"},
		{"not json", "I could not produce JSON, sorry.", "raw_response", "I could not produce JSON, sorry."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, secondary := newTestProviders()
			primary.text = tt.response
			router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary})

			parsed, err := router.Analyze(context.Background(), "analyze this")
			if err != nil {
				t.Fatalf("Analyze() error: %v", err)
			}
			if got := parsed[tt.wantKey]; got != tt.wantVal {
				t.Errorf("parsed[%q] = %v, want %v", tt.wantKey, got, tt.wantVal)
			}
		})
	}
}

func TestRouter_AnalyzeFailsOver(t *testing.T) {
	primary, secondary := newTestProviders()
	primary.fail = errors.New("primary down")
	secondary.text = `{"ok": true}`
	router := NewRouter(RouterConfig{Primary: primary, Secondary: secondary, FailoverEnabled: true})

	parsed, err := router.Analyze(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if parsed["ok"] != true {
		t.Errorf("parsed = %v, want ok=true from secondary", parsed)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for i, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("case %d: stripCodeFences(%q) = %q, want %q", i, tt.in, got, tt.want)
		}
	}
}

func ExampleRouter_Generate() {
	primary := &fakeProvider{name: ProviderAnthropic, model: "claude-3-haiku-20240307", available: true, text: "Olá! Como posso ajudar?"}
	router := NewRouter(RouterConfig{Primary: primary})

	result, _ := router.Generate(context.Background(), "Oi", "", nil)
	fmt.Println(result.Provider, result.Text)
	// Output: anthropic Olá! Como posso ajudar?
}
