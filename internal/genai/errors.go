package genai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrProviderUnavailable indicates the provider has no usable configuration.
var ErrProviderUnavailable = errors.New("provider not available")

// ProviderError wraps a failure from a single provider call with enough
// context for failover decisions and logging.
type ProviderError struct {
	// Provider is the provider that failed.
	Provider ProviderName

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if known.
	Status int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: model=%s status=%d: %v", e.Provider, e.Model, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s: model=%s: %v", e.Provider, e.Model, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether the error is a 429-class response.
func (e *ProviderError) IsRateLimited() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	if e.Cause == nil {
		return false
	}
	msg := e.Cause.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit")
}

// AllProvidersFailed reports that both the primary and the failover provider
// failed for the same request. Both underlying errors are carried.
type AllProvidersFailed struct {
	Primary   error
	Secondary error
}

// Error implements the error interface.
func (e *AllProvidersFailed) Error() string {
	return fmt.Sprintf("all providers failed: primary: %v; secondary: %v", e.Primary, e.Secondary)
}

// Unwrap exposes both underlying errors to errors.Is/As.
func (e *AllProvidersFailed) Unwrap() []error {
	return []error{e.Primary, e.Secondary}
}
