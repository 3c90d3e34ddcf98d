package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // CA certs for verify-full Postgres TLS in scratch containers

	pgadapter "github.com/ericfisherdev/ballotbox/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/ballotbox/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/ballotbox/internal/adapter/driving/http"
	"github.com/ericfisherdev/ballotbox/internal/application"
	"github.com/ericfisherdev/ballotbox/internal/config"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.LoadRecorder()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_driver", cfg.Database.Driver,
		"max_in_flight", cfg.MaxInFlight,
		"s2s_keys", len(cfg.S2SAPIKeys),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the ledger and run migrations.
	ledger, audit, closeDB, err := openStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeDB(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Wire service and routes.
	svc := application.NewRecorderService(ledger, audit, slog.Default())
	handler := httphandler.NewRecorderMux(
		httphandler.NewRecorderHandler(svc, slog.Default()),
		httphandler.RecorderOptions{
			APIKeys:        cfg.S2SAPIKeys,
			RequestTimeout: cfg.RequestTimeout,
			MaxInFlight:    int64(cfg.MaxInFlight),
			AdmissionWait:  cfg.AdmissionWait,
		},
		slog.Default(),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("ballot recorder started", "listen_addr", cfg.ListenAddr)

	// 5. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 6. Graceful shutdown with 10s timeout for in-flight ballots to commit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStores opens the configured ledger backend and applies its migrations.
func openStores(ctx context.Context, cfg config.Database) (driven.LedgerStore, driven.AuditStore, func() error, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := pgadapter.Open(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pgadapter.RunMigrations(db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		slog.Info("postgres ledger ready", "max_conns", cfg.MaxConns)
		return pgadapter.NewLedgerRepo(db), pgadapter.NewAuditRepo(db), db.Close, nil

	default:
		db, err := sqliteadapter.NewDB(ctx, cfg.Path, sqliteadapter.Options{
			WriterConns: cfg.MaxConns,
			ReaderConns: cfg.MaxConns,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer, sqliteadapter.SchemaRecorder); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		slog.Info("sqlite ledger ready", "path", cfg.Path, "busy_timeout", cfg.BusyTimeout)
		return sqliteadapter.NewLedgerRepo(db), sqliteadapter.NewAuditRepo(db), db.Close, nil
	}
}
