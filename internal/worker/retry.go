package worker

import (
	"time"

	"bookingsync/internal/models"
)

// RetryPolicy is a fixed backoff table with a terminal attempt limit.
type RetryPolicy struct {
	Delays      []time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy is 60s, 5m, 15m, then 30m, failing on the 10th failure.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delays: models.DefaultBackoff, MaxAttempts: models.DefaultMaxAttempts}
}

// NextDelay returns the wait after the given number of failed deliveries
// (1-based). Past the end of the table the last slot is reused.
func (r RetryPolicy) NextDelay(failures int) time.Duration {
	delays := r.Delays
	if len(delays) == 0 {
		delays = models.DefaultBackoff
	}
	i := failures - 1
	if i < 0 {
		i = 0
	}
	if i >= len(delays) {
		i = len(delays) - 1
	}
	return delays[i]
}

// Exhausted reports whether an entry with this many failures is terminal.
func (r RetryPolicy) Exhausted(failures int) bool {
	limit := r.MaxAttempts
	if limit <= 0 {
		limit = models.DefaultMaxAttempts
	}
	return failures >= limit
}
