package dataaccess

import (
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExhausted signals a provider-declared hard-quota condition that
// retries cannot recover from within the request. The executor answers it
// with a stale cached value when one exists; callers otherwise treat it as a
// failover trigger.
var ErrQuotaExhausted = errors.New("provider quota exhausted")

// ErrRetriesExhausted is returned when rate-limit retries run out.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RateLimitError signals an HTTP 429 or equivalent. RetryAfter carries the
// server-declared delay when present, zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// IsRateLimit reports whether err is a rate-limit signal.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
