package driven

import (
	"context"
	"time"
)

// RateLimiter counts attempts per subject in fixed time buckets.
type RateLimiter interface {
	// Allow records one attempt for subject and reports whether it is within
	// the limit for the bucket containing now.
	Allow(ctx context.Context, subject string, now time.Time) (bool, error)

	// PurgeExpired deletes buckets that ended at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
