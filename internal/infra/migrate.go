// README: Embedded schema migrations for the local cache and the remote store.
package infra

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/local/*.sql migrations/remote/*.sql
var migrationsFS embed.FS

// MigrateLocal applies the local cache schema to db. The driver is not
// closed here because closing it would close db.
func MigrateLocal(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations/local")
	if err != nil {
		return fmt.Errorf("local migrations source: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("local migrations driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("local migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("local migrate up: %w", err)
	}
	return nil
}

// MigrateRemote applies the remote schema using the pgx/v5 migrate driver.
func MigrateRemote(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/remote")
	if err != nil {
		return fmt.Errorf("remote migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(dsn))
	if err != nil {
		return fmt.Errorf("remote migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("remote migrate up: %w", err)
	}
	return nil
}

func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
