package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"canonkeep/internal/canon"
	"canonkeep/internal/staging"
)

var (
	_ canon.Store   = (*Client)(nil)
	_ staging.Store = (*Client)(nil)
)

// Client backs both the canonical graph store and the staging store
// with postgres. Canonical tables are append-only; nothing in this
// package issues a DELETE against them.
type Client struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(ctx context.Context, dsn string, now func() time.Time) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Client{pool: pool, now: now}, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}
