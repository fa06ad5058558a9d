// README: Embedded SQLite handle for the local cache. Opened once by the
// entry point and injected into the stores that use it.
package infra

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenLocal opens (creating if needed) the local cache at path and applies
// its schema. ":memory:" gives a private in-memory cache.
func OpenLocal(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping local cache: %w", err)
	}
	if err := MigrateLocal(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
