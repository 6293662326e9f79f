// Package sqlite implements the repository interfaces on a SQL table store.
//
// The same code serves two deployments:
//   - a local SQLite file (modernc.org/sqlite, pure Go, no CGo), and
//   - a hosted libsql database (Turso) reached over the network.
//
// The driver is picked from the URL scheme: libsql:// (or wss://, https://)
// selects the remote libsql driver, anything else is handed to the local
// SQLite driver. Both speak the same SQL dialect, so the queries below are
// shared.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	// Side-effect imports register the "libsql" and "sqlite" drivers
	// with database/sql.
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB pool and implements ContentRepository and
// AdminRepository.
type DB struct {
	conn   *sql.DB
	driver string

	// schemaMu guards schemaOK. The schema is set up on first use and
	// retried until it succeeds, so an unreachable database at startup
	// only fails the calls made while it is down.
	schemaMu sync.Mutex
	schemaOK bool
}

// driverFor picks the database/sql driver name for a connection URL.
func driverFor(dbURL string) string {
	for _, prefix := range []string{"libsql://", "wss://", "ws://", "https://", "http://"} {
		if strings.HasPrefix(dbURL, prefix) {
			return "libsql"
		}
	}
	return "sqlite"
}

// New opens the connection pool. It does not connect: the first query
// sets up the schema (see Ready), so a database that is down at startup
// only fails the calls made while it is down.
//
// dbURL examples:
//   - "file:data/site.db"                        local file
//   - ":memory:"                                 in-memory (tests)
//   - "libsql://clinic.turso.io?authToken=..."   hosted
func New(dbURL string) (*DB, error) {
	driver := driverFor(dbURL)

	conn, err := sql.Open(driver, dbURL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if driver == "sqlite" {
		// One connection: an in-memory database exists per connection, and
		// a file database only ever has one writer anyway.
		conn.SetMaxOpenConns(1)
	}

	return &DB{conn: conn, driver: driver}, nil
}

// Ready connects and creates the tables if that has not happened yet.
// Every query calls it; the server calls it once at startup to log
// whether the database is reachable.
func (db *DB) Ready(ctx context.Context) error {
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()

	if db.schemaOK {
		return nil
	}

	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if db.driver == "sqlite" {
		if _, err := db.conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	if err := db.migrate(ctx); err != nil {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}

	db.schemaOK = true
	return nil
}

// Driver reports which database/sql driver the pool uses.
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the tables if they do not exist yet. Both statements are
// idempotent.
func (db *DB) migrate(ctx context.Context) error {
	// One row per content record. value is the record's JSON.
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS site_content (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating site_content table: %w", err)
	}

	// Admin credentials for the hybrid backend. password_hash holds a
	// bcrypt hash, never the plaintext.
	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS admin_users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating admin_users table: %w", err)
	}

	return nil
}
