package main

import (
	"context"
	"log/slog"

	pgadapter "github.com/ericfisherdev/ballotbox/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/ballotbox/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ballotbox/internal/config"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// recorderStores is an opened, migrated recorder datastore.
type recorderStores struct {
	ledger driven.LedgerStore
	audit  driven.AuditStore
	close  func() error
}

func openRecorder(ctx context.Context, cfg config.Database) (*recorderStores, error) {
	if cfg.Driver == config.DriverPostgres {
		db, err := pgadapter.Open(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := pgadapter.RunMigrations(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Debug("postgres recorder datastore ready")
		return &recorderStores{
			ledger: pgadapter.NewLedgerRepo(db),
			audit:  pgadapter.NewAuditRepo(db),
			close:  db.Close,
		}, nil
	}

	db, err := openSQLite(ctx, cfg, sqliteadapter.SchemaRecorder)
	if err != nil {
		return nil, err
	}
	return &recorderStores{
		ledger: sqliteadapter.NewLedgerRepo(db),
		audit:  sqliteadapter.NewAuditRepo(db),
		close:  db.Close,
	}, nil
}

// issuerStores is an opened, migrated issuer datastore. Only the stores the
// administrative commands need are wired.
type issuerStores struct {
	audit   driven.AuditStore
	escrow  driven.EscrowStore
	limiter driven.RateLimiter
	close   func() error
}

func openIssuer(ctx context.Context, cfg config.Database) (*issuerStores, error) {
	db, err := openSQLite(ctx, cfg, sqliteadapter.SchemaIssuer)
	if err != nil {
		return nil, err
	}
	return &issuerStores{
		audit:   sqliteadapter.NewAuditRepo(db),
		escrow:  sqliteadapter.NewEscrowRepo(db, nil),
		limiter: sqliteadapter.NewRateLimitRepo(db, 0, 0),
		close:   db.Close,
	}, nil
}

func openSQLite(ctx context.Context, cfg config.Database, schema sqliteadapter.Schema) (*sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.Path, sqliteadapter.Options{
		WriterConns: 1,
		ReaderConns: 1,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("sqlite datastore ready", "path", cfg.Path, "schema", schema)
	return db, nil
}
