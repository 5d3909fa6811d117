package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"canonkeep/internal/canon"
	"canonkeep/internal/staging"
)

var (
	_ canon.Store   = (*Client)(nil)
	_ staging.Store = (*Client)(nil)
)

// Client backs both the canonical graph store and the staging store
// with a single sqlite database. Canonical tables are append-only;
// nothing in this package issues a DELETE against them.
type Client struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, dsn string, now func() time.Time) (*Client, error) {
	driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if now == nil {
		now = time.Now
	}
	return &Client{db: db, now: now}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close()
}
