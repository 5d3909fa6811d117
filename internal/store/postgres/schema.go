package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	// All DDL runs in one call, which postgres wraps in an implicit
	// transaction; IF NOT EXISTS keeps it idempotent across restarts.
	ddl := `
CREATE TABLE IF NOT EXISTS canon_nodes (
    id            TEXT PRIMARY KEY,
    universe_id   TEXT NOT NULL DEFAULT '',
    node_type     TEXT NOT NULL,
    name          TEXT DEFAULT '',
    category      TEXT DEFAULT '',
    kind          TEXT DEFAULT '',
    statement     TEXT DEFAULT '',
    canon_level   TEXT DEFAULT '',
    authority     TEXT DEFAULT '',
    confidence    DOUBLE PRECISION DEFAULT 0,
    dimension     TEXT DEFAULT '',
    tag           TEXT DEFAULT '',
    properties    JSONB DEFAULT '{}',
    state_tags    JSONB DEFAULT '{}',
    source_kind   TEXT DEFAULT '',
    source_ref    TEXT DEFAULT '',
    superseded_by TEXT DEFAULT '',
    retcon_reason TEXT DEFAULT '',
    recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS canon_edges (
    id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    src_id    TEXT NOT NULL REFERENCES canon_nodes(id),
    dst_id    TEXT NOT NULL REFERENCES canon_nodes(id),
    edge_type TEXT NOT NULL,
    CONSTRAINT uq_canon_edge UNIQUE (src_id, dst_id, edge_type)
);

CREATE TABLE IF NOT EXISTS scenes (
    id          TEXT PRIMARY KEY,
    universe_id TEXT NOT NULL,
    name        TEXT DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'active',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposals (
    id             TEXT PRIMARY KEY,
    scene_id       TEXT NOT NULL REFERENCES scenes(id),
    universe_id    TEXT NOT NULL,
    proposal_type  TEXT NOT NULL,
    payload        JSONB NOT NULL DEFAULT '{}',
    authority      TEXT NOT NULL,
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT 'proposed',
    rationale      TEXT DEFAULT '',
    contradictions JSONB DEFAULT '[]',
    created_at     TIMESTAMPTZ NOT NULL,
    resolved_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS canonization_leases (
    scene_id   TEXT PRIMARY KEY,
    holder     TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_canon_nodes_universe ON canon_nodes (universe_id);
CREATE INDEX IF NOT EXISTS idx_canon_nodes_type ON canon_nodes (node_type);
CREATE INDEX IF NOT EXISTS idx_canon_nodes_type_universe ON canon_nodes (node_type, universe_id);
CREATE INDEX IF NOT EXISTS idx_canon_nodes_name ON canon_nodes (lower(name));
CREATE INDEX IF NOT EXISTS idx_canon_edges_src ON canon_edges (src_id);
CREATE INDEX IF NOT EXISTS idx_canon_edges_dst ON canon_edges (dst_id);
CREATE INDEX IF NOT EXISTS idx_canon_edges_src_type ON canon_edges (src_id, edge_type);
CREATE INDEX IF NOT EXISTS idx_proposals_scene_status ON proposals (scene_id, status);
`

	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
