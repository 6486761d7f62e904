// Package backoff computes exponential retry delays shared by request
// retries and channel reconnects.
package backoff

import (
	"math"
	"time"
)

// Delay returns base * 2^attempt, capped at max when max > 0.
// Negative attempts are treated as zero; overflow saturates.
func Delay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	limit := time.Duration(math.MaxInt64)
	if max > 0 {
		limit = max
	}

	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay >= float64(limit) {
		return limit
	}
	return time.Duration(delay)
}
