package providers

import (
	"errors"
	"fmt"
	"time"
)

// AuthError is fatal: the whole collection run aborts. It is never
// retried.
type AuthError struct {
	Provider  string
	AccountID string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth failed for account %s: %v", e.Provider, e.AccountID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError is a transient provider-side failure, retried with
// backoff before being recorded as a permanent unit failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitError signals the provider rejected a request for exceeding
// its rate ceiling. RetryAfter carries the provider-supplied hint when
// one was given, zero otherwise.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded on %s: %v", e.Op, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimited reports whether err is a rate-limit rejection
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTransient reports whether err may succeed on retry
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) || IsRateLimited(err)
}
