// Package core provides the normalized request/response model and typed
// errors shared by every component of the AI service layer.
package core

import (
	"fmt"
	"time"
)

// ProviderErrorCode classifies provider failures so callers can branch on
// the kind of failure rather than string-matching messages.
type ProviderErrorCode string

const (
	// ErrCodeAPIError indicates a transport failure or a non-2xx vendor response.
	ErrCodeAPIError ProviderErrorCode = "API_ERROR"
	// ErrCodeInvalidResponse indicates a 2xx vendor response missing expected
	// content fields or carrying an unparseable body.
	ErrCodeInvalidResponse ProviderErrorCode = "INVALID_RESPONSE"
	// ErrCodeMaxTokensExceeded indicates the vendor truncated the response at
	// the token limit and produced no usable content. Distinct from
	// ErrCodeInvalidResponse so callers can retry with a larger budget.
	ErrCodeMaxTokensExceeded ProviderErrorCode = "MAX_TOKENS_EXCEEDED"
	// ErrCodeMissingAPIKey indicates the adapter was constructed without
	// credentials for a live vendor.
	ErrCodeMissingAPIKey ProviderErrorCode = "MISSING_API_KEY"
)

// ProviderError is the typed error for transport and vendor failures.
type ProviderError struct {
	Code       ProviderErrorCode `json:"code"`
	Provider   Provider          `json:"provider"`
	Model      string            `json:"model,omitempty"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Message    string            `json:"message"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("[%s] %s (%d): %s", e.Provider, e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError with the given code.
func NewProviderError(provider Provider, code ProviderErrorCode, message string, err error) *ProviderError {
	return &ProviderError{
		Code:     code,
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// NewProviderHTTPError creates an API_ERROR carrying the vendor's HTTP status.
func NewProviderHTTPError(provider Provider, status int, message string) *ProviderError {
	return &ProviderError{
		Code:       ErrCodeAPIError,
		Provider:   provider,
		HTTPStatus: status,
		Message:    message,
	}
}

// QuotaExceededError signals the caller has no remaining budget for the
// feature. It is a normal control-flow outcome, not an infrastructure
// failure; ResetAt tells the caller when the window rolls over.
type QuotaExceededError struct {
	UserID  string      `json:"user_id"`
	Feature FeatureType `json:"feature"`
	ResetAt time.Time   `json:"reset_at"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s/%s, resets at %s", e.UserID, e.Feature, e.ResetAt.Format(time.RFC3339))
}

// CacheError wraps a persistence-layer failure on a cache read or write.
// The orchestrator degrades gracefully on these: reads become misses and
// write failures are logged, never surfaced in place of a provider result.
type CacheError struct {
	Op  string // "lookup" or "store"
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// AccountingError signals a model missing from the static rate table.
// Silent zero-cost accounting is a correctness bug class this design
// explicitly avoids, so unknown models fail fast.
type AccountingError struct {
	Model string
}

func (e *AccountingError) Error() string {
	return fmt.Sprintf("no cost rate registered for model %q", e.Model)
}
