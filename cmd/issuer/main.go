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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/ballotbox/internal/adapter/driven/elections"
	"github.com/ericfisherdev/ballotbox/internal/adapter/driven/membership"
	"github.com/ericfisherdev/ballotbox/internal/adapter/driven/recorderclient"
	sqliteadapter "github.com/ericfisherdev/ballotbox/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/ballotbox/internal/adapter/driving/http"
	"github.com/ericfisherdev/ballotbox/internal/application"
	"github.com/ericfisherdev/ballotbox/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.LoadIssuer()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.Database.Path,
		"recorder_url", cfg.RecorderURL,
		"elections_file", cfg.ElectionsFile,
		"escrow", cfg.EscrowKey != nil,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.Database.Path, sqliteadapter.Options{
		WriterConns: 1,
		ReaderConns: cfg.Database.MaxConns,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.Database.Path)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer, sqliteadapter.SchemaIssuer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire external collaborators.
	directory, err := elections.NewFileDirectory(cfg.ElectionsFile)
	if err != nil {
		return err
	}
	recorder, err := recorderclient.NewClient(cfg.RecorderURL, cfg.S2SAPIKey, cfg.S2STimeout)
	if err != nil {
		return err
	}
	verifier, err := membership.NewVerifier(cfg.MembershipURL, cfg.S2STimeout)
	if err != nil {
		return err
	}

	// 6. Wire service and routes.
	svc := application.NewIssuerService(application.IssuerDeps{
		Credentials: sqliteadapter.NewCredentialRepo(db),
		Escrow:      sqliteadapter.NewEscrowRepo(db, cfg.EscrowKey),
		Limiter:     sqliteadapter.NewRateLimitRepo(db, cfg.RateLimit, cfg.RateLimitEvery),
		Audit:       sqliteadapter.NewAuditRepo(db),
		Elections:   directory,
		Recorder:    recorder,
	}, application.IssuerConfig{
		CredentialTTL: cfg.CredentialTTL,
		EscrowTTL:     cfg.EscrowTTL,
	}, slog.Default())

	handler := httphandler.NewIssuerMux(
		httphandler.NewIssuerHandler(svc, verifier, slog.Default()),
		cfg.RequestTimeout,
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

	slog.Info("credential issuer started",
		"listen_addr", cfg.ListenAddr,
		"credential_ttl", cfg.CredentialTTL,
	)

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 8. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
