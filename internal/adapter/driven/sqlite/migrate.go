package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/issuer/*.sql migrations/recorder/*.sql
var migrationsFS embed.FS

// Schema selects which service's migration set to apply. The issuer and the
// recorder never share a database.
type Schema string

const (
	SchemaIssuer   Schema = "issuer"
	SchemaRecorder Schema = "recorder"
)

// RunMigrations applies all pending migrations for schema embedded in the binary.
// It is safe to call on every startup; already-applied migrations are skipped.
func RunMigrations(db *sql.DB, schema Schema) error {
	if schema != SchemaIssuer && schema != SchemaRecorder {
		return fmt.Errorf("unknown schema %q", schema)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+string(schema))
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run %s migrations: %w", schema, err)
	}

	return nil
}
