package model

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired       = errors.New("authentication required")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorageUnavailable = errors.New("export storage not configured")

	ErrProviderRateLimited    = errors.New("research provider rate limited")
	ErrProviderQuotaExhausted = errors.New("research provider quota exhausted")
	ErrProviderUnavailable    = errors.New("research provider unavailable")

	// ErrMalformedOutput is recovered inside the research adapter and never
	// returned to callers.
	ErrMalformedOutput = errors.New("malformed provider output")
)

// ProviderError is a classified failure from the research backend. Kind is
// one of the ErrProvider* sentinels, so errors.Is(err, ErrProviderRateLimited)
// works through any amount of wrapping.
type ProviderError struct {
	Kind error
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewProviderError wraps err with a provider error kind.
func NewProviderError(kind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}
