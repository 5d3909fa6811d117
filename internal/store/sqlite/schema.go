package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
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
		confidence    REAL DEFAULT 0,
		dimension     TEXT DEFAULT '',
		tag           TEXT DEFAULT '',
		properties    TEXT DEFAULT '{}',
		state_tags    TEXT DEFAULT '{}',
		source_kind   TEXT DEFAULT '',
		source_ref    TEXT DEFAULT '',
		superseded_by TEXT DEFAULT '',
		retcon_reason TEXT DEFAULT '',
		recorded_at   TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS canon_edges (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
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
		created_at  TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS proposals (
		id             TEXT PRIMARY KEY,
		scene_id       TEXT NOT NULL REFERENCES scenes(id),
		universe_id    TEXT NOT NULL,
		proposal_type  TEXT NOT NULL,
		payload        TEXT NOT NULL DEFAULT '{}',
		authority      TEXT NOT NULL,
		confidence     REAL NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'proposed',
		rationale      TEXT DEFAULT '',
		contradictions TEXT DEFAULT '[]',
		created_at     TEXT NOT NULL,
		resolved_at    TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS canonization_leases (
		scene_id   TEXT PRIMARY KEY,
		holder     TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_canon_nodes_universe ON canon_nodes (universe_id);
	CREATE INDEX IF NOT EXISTS idx_canon_nodes_type ON canon_nodes (node_type);
	CREATE INDEX IF NOT EXISTS idx_canon_nodes_type_universe ON canon_nodes (node_type, universe_id);
	CREATE INDEX IF NOT EXISTS idx_canon_nodes_name ON canon_nodes (name);
	CREATE INDEX IF NOT EXISTS idx_canon_edges_src ON canon_edges (src_id);
	CREATE INDEX IF NOT EXISTS idx_canon_edges_dst ON canon_edges (dst_id);
	CREATE INDEX IF NOT EXISTS idx_canon_edges_type ON canon_edges (edge_type);
	CREATE INDEX IF NOT EXISTS idx_canon_edges_src_type ON canon_edges (src_id, edge_type);
	CREATE INDEX IF NOT EXISTS idx_proposals_scene ON proposals (scene_id);
	CREATE INDEX IF NOT EXISTS idx_proposals_scene_status ON proposals (scene_id, status);
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
