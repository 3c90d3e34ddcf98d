package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Options sizes the connection pools and sets the lock wait budget.
type Options struct {
	// WriterConns caps concurrent write transactions. Each write transaction
	// starts with BEGIN IMMEDIATE, so extra writers contend on the database
	// write lock and fail fast after BusyTimeout.
	WriterConns int
	ReaderConns int
	BusyTimeout time.Duration
}

// DefaultOptions mirrors the single-writer layout used for low-traffic stores.
func DefaultOptions() Options {
	return Options{
		WriterConns: 1,
		ReaderConns: 4,
		BusyTimeout: 5 * time.Second,
	}
}

// DB provides dual reader/writer database connections with WAL mode enabled.
// Writer transactions take the write lock up front (_txlock=immediate), which
// is the SQLite equivalent of an exclusive row lock for the read-then-write
// sequences in this package.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens a dual-connection SQLite database with WAL mode, busy timeout,
// synchronous NORMAL, foreign keys enabled, and a 64MB cache.
func NewDB(ctx context.Context, dbPath string, opts Options) (*DB, error) {
	if opts.WriterConns <= 0 {
		opts.WriterConns = 1
	}
	if opts.ReaderConns <= 0 {
		opts.ReaderConns = 4
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)&_txlock=immediate",
		dbPath, opts.BusyTimeout.Milliseconds(),
	)

	return open(ctx, dsn, dbPath, opts)
}

func open(ctx context.Context, dsn, path string, opts Options) (*DB, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(opts.WriterConns)
	writer.SetMaxIdleConns(opts.WriterConns)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(opts.ReaderConns)

	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &DB{
		Writer: writer,
		Reader: reader,
		path:   path,
	}, nil
}

// Path returns the database file path the DB was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close closes both reader and writer connections. Returns the first error encountered.
func (db *DB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
