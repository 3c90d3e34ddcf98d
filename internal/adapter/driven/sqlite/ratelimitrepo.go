package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateLimiter = (*RateLimitRepo)(nil)

// RateLimitRepo is a fixed-window rate limiter backed by SQLite. Each
// (subject, window) bucket is one row whose id encodes the window index, so
// a new window never reads an old row and old rows only need a purge.
type RateLimitRepo struct {
	db     *DB
	limit  int
	window time.Duration
}

// NewRateLimitRepo allows limit attempts per subject per window.
func NewRateLimitRepo(db *DB, limit int, window time.Duration) *RateLimitRepo {
	return &RateLimitRepo{db: db, limit: limit, window: window}
}

// Allow check-and-increments the subject's current bucket in one statement.
// Subjects are hashed before storage.
func (r *RateLimitRepo) Allow(ctx context.Context, subject string, now time.Time) (bool, error) {
	if r.limit <= 0 || r.window <= 0 {
		return true, nil
	}

	seconds := int64(r.window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	index := now.Unix() / seconds
	bucketID := fmt.Sprintf("%s:%d:%s", model.HashCredential(subject)[:16], index, r.window)
	bucketEnd := time.Unix((index+1)*seconds, 0)

	const query = `
		INSERT INTO rate_limits (bucket_id, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT (bucket_id) DO UPDATE SET count = rate_limits.count + 1
		WHERE rate_limits.count < ?`

	result, err := r.db.Writer.ExecContext(ctx, query, bucketID, formatTime(bucketEnd), r.limit)
	if err != nil {
		return false, wrapErr("rate limit check", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows == 1, nil
}

// PurgeExpired deletes buckets whose window ended at or before now.
func (r *RateLimitRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM rate_limits WHERE expires_at <= ?`
	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(now))
	if err != nil {
		return 0, wrapErr("purge rate limit buckets", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}
