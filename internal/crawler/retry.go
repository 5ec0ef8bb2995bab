package crawler

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the wait before retry attempt n (0-indexed): base doubled
// per attempt, capped at limit, plus up to half of that in jitter.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > limit {
		d = limit
	}
	if d <= 0 {
		return 0
	}

	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d + jitter
}
