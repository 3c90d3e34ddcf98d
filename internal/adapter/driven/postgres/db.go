// Package postgres implements the ballot recorder's driven ports on
// PostgreSQL. It is the deployment target for the voting spike: row locks are
// taken with FOR UPDATE NOWAIT so contention surfaces immediately instead of
// queueing behind the request timeout.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL with a deliberately small pool. maxConns times
// the number of recorder instances should stay within the server's
// max_connections.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	if maxConns <= 0 {
		maxConns = 10
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
