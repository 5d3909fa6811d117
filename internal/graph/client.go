package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"canonkeep/internal/canon"
)

var _ canon.Store = (*Client)(nil)

// Client is the neo4j backend for the canonical graph of record. The
// staging store lives elsewhere; this package only ever sees canon.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	return &Client{driver: driver, database: database}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT canon_unique_id IF NOT EXISTS
FOR (n:Canon) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX canon_universe IF NOT EXISTS FOR (n:Canon) ON (n.universe_id)`,
		`CREATE INDEX canon_node_type IF NOT EXISTS FOR (n:Canon) ON (n.node_type)`,
		`CREATE INDEX canon_name IF NOT EXISTS FOR (n:Canon) ON (n.name_normalized)`,
	}

	for _, stmt := range statements {
		if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		}); err != nil {
			return fmt.Errorf("ensuring indexes: %w", err)
		}
	}

	return nil
}

// timePropFormat pads fractional seconds to full width so recorded_at
// strings compare lexicographically in chronological order; RFC3339Nano
// trims trailing zeros and breaks ORDER BY for sub-second-spaced values.
const timePropFormat = "2006-01-02T15:04:05.000000000Z07:00"

func timeProp(t time.Time) string {
	return t.UTC().Format(timePropFormat)
}

func parseTimeProp(value any) time.Time {
	s, ok := value.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toString(value any) string {
	s, _ := value.(string)
	return s
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func toStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
