// Package sqlite provides the "sqlite" store.Driver for single-node
// deployments: database/sql over the pure Go modernc.org/sqlite driver with
// OTEL instrumentation via otelsql. The schema is applied on open.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/config"
	"github.com/jensholdgaard/squad-auction/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id           TEXT PRIMARY KEY,
    aggregate_id TEXT    NOT NULL,
    type         TEXT    NOT NULL,
    data         BLOB    NOT NULL,
    version      INTEGER NOT NULL,
    created_at   TEXT    NOT NULL,
    UNIQUE (aggregate_id, version)
);

CREATE TABLE IF NOT EXISTS snapshots (
    auction_id TEXT PRIMARY KEY,
    version    INTEGER NOT NULL,
    data       BLOB    NOT NULL,
    updated_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS settlements (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT    NOT NULL UNIQUE,
    auction_id TEXT    NOT NULL,
    player_id  TEXT    NOT NULL,
    team_id    TEXT    NOT NULL,
    sold_price INTEGER NOT NULL,
    sold_at    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_settlements_auction ON settlements (auction_id, seq);
`

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("sqlite", open)
}

// open is the store.Driver for the "sqlite" backend.
func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Snapshots:   NewSnapshotRepo(db, clk),
		Settlements: NewSettlementRepo(db),
		Events:      NewEventStore(db),
		Closer:      closerFunc(db.Close),
		Ping:        db.PingContext,
	}, nil
}

// Connect opens the database at path, creating its directory and schema
// when missing.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// sqlite allows a single writer; one connection also keeps an
	// in-memory database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}
