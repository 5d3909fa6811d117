package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"canonkeep/internal/canon"
)

func (c *Client) CreateStory(ctx context.Context, cap canon.WriteCap, story canon.Story) error {
	if err := cap.Check(canon.OpCreateStory); err != nil {
		return err
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO canon_nodes (id, universe_id, node_type, name, recorded_at)
VALUES ($1, $1, 'story', $2, $3)`,
		story.ID, story.Name, story.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating story: %w", err)
	}
	return nil
}

func (c *Client) CreateSource(ctx context.Context, cap canon.WriteCap, src canon.Source) error {
	if err := cap.Check(canon.OpCreateSource); err != nil {
		return err
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO canon_nodes (id, universe_id, node_type, source_kind, source_ref, recorded_at)
VALUES ($1, $2, 'source', $3, $4, $5)`,
		src.ID, src.UniverseID, string(src.Kind), src.Ref, src.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating source: %w", err)
	}
	return nil
}

func (c *Client) CreateArchetype(ctx context.Context, cap canon.WriteCap, a canon.Archetype) error {
	if err := cap.Check(canon.OpCreateArchetype); err != nil {
		return err
	}
	props, err := json.Marshal(orEmptyMap(a.Properties))
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
INSERT INTO canon_nodes (id, universe_id, node_type, name, category, properties, recorded_at)
VALUES ($1, $2, 'archetype', $3, $4, $5, $6)`,
		a.ID, a.UniverseID, a.Name, a.Category, props, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating archetype: %w", err)
	}
	return nil
}

func (c *Client) CreateInstance(ctx context.Context, cap canon.WriteCap, inst canon.Instance) error {
	if err := cap.Check(canon.OpCreateInstance); err != nil {
		return err
	}
	props, err := json.Marshal(orEmptyMap(inst.Properties))
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	tags, err := json.Marshal(orEmptyStringMap(inst.StateTags))
	if err != nil {
		return fmt.Errorf("marshaling state tags: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if inst.ArchetypeID != "" {
		if err := nodeExistsTx(ctx, tx, inst.ArchetypeID, "archetype"); err != nil {
			return fmt.Errorf("archetype %s: %w", inst.ArchetypeID, err)
		}
	}

	_, err = tx.Exec(ctx, `
INSERT INTO canon_nodes (id, universe_id, node_type, name, category, properties, state_tags, recorded_at)
VALUES ($1, $2, 'instance', $3, $4, $5, $6, $7)`,
		inst.ID, inst.UniverseID, inst.Name, inst.Category, props, tags, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating instance: %w", err)
	}

	if inst.ArchetypeID != "" {
		if err := insertEdgeTx(ctx, tx, inst.ID, inst.ArchetypeID, canon.EdgeDerivesFrom); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing instance: %w", err)
	}
	return nil
}

func (c *Client) WriteFact(ctx context.Context, cap canon.WriteCap, fact canon.Fact) error {
	if err := cap.Check(canon.OpWriteFact); err != nil {
		return err
	}
	if len(fact.Evidence) == 0 {
		return canon.ErrMissingEvidence
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ref := range fact.Evidence {
		if err := nodeExistsTx(ctx, tx, ref, ""); err != nil {
			return fmt.Errorf("evidence ref %s: %w", ref, err)
		}
	}
	for _, ref := range fact.Involves {
		if err := nodeExistsTx(ctx, tx, ref, ""); err != nil {
			return fmt.Errorf("involved entity %s: %w", ref, err)
		}
	}

	causesSource := fact.ID
	if fact.CausesFrom != "" {
		causesSource = fact.CausesFrom
		if err := nodeExistsTx(ctx, tx, causesSource, "fact"); err != nil {
			return fmt.Errorf("causes source %s: %w", causesSource, err)
		}
	}
	for _, target := range fact.Causes {
		if err := nodeExistsTx(ctx, tx, target, "fact"); err != nil {
			return fmt.Errorf("causes target %s: %w", target, err)
		}
		if target == causesSource {
			return fmt.Errorf("%w: %s -> %s", canon.ErrCausesCycle, causesSource, target)
		}
		cycles, err := causesPathExistsTx(ctx, tx, target, causesSource)
		if err != nil {
			return err
		}
		if cycles {
			return fmt.Errorf("%w: %s -> %s", canon.ErrCausesCycle, causesSource, target)
		}
	}

	_, err = tx.Exec(ctx, `
INSERT INTO canon_nodes (id, universe_id, node_type, kind, statement, canon_level, authority, confidence, dimension, tag, recorded_at)
VALUES ($1, $2, 'fact', $3, $4, $5, $6, $7, $8, $9, $10)`,
		fact.ID, fact.UniverseID, string(fact.Kind), fact.Statement, string(fact.Level),
		string(fact.Authority), fact.Confidence, strings.ToLower(fact.Dimension), strings.ToLower(fact.Tag),
		fact.RecordedAt)
	if err != nil {
		return fmt.Errorf("creating fact: %w", err)
	}

	for _, ref := range fact.Involves {
		if err := insertEdgeTx(ctx, tx, fact.ID, ref, canon.EdgeInvolves); err != nil {
			return err
		}
	}
	for _, ref := range fact.Evidence {
		if err := insertEdgeTx(ctx, tx, fact.ID, ref, canon.EdgeSupportedBy); err != nil {
			return err
		}
	}
	for _, target := range fact.Causes {
		if err := insertEdgeTx(ctx, tx, causesSource, target, canon.EdgeCauses); err != nil {
			return err
		}
	}

	if fact.Dimension != "" && fact.Tag != "" {
		for _, ref := range fact.Involves {
			if _, err := tx.Exec(ctx, `
UPDATE canon_nodes SET state_tags = state_tags || jsonb_build_object($2::text, $3::text)
WHERE id = $1 AND node_type = 'instance'`,
				ref, strings.ToLower(fact.Dimension), strings.ToLower(fact.Tag)); err != nil {
				return fmt.Errorf("updating state tags: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing fact: %w", err)
	}
	return nil
}

func (c *Client) RetconFact(ctx context.Context, cap canon.WriteCap, factID, supersededBy, reason string) error {
	if err := cap.Check(canon.OpRetconFact); err != nil {
		return err
	}

	res, err := c.pool.Exec(ctx, `
UPDATE canon_nodes SET canon_level = $1, superseded_by = $2, retcon_reason = $3
WHERE id = $4 AND node_type = 'fact' AND canon_level = $5`,
		string(canon.LevelRetconned), supersededBy, reason, factID, string(canon.LevelCanon))
	if err != nil {
		return fmt.Errorf("retconning fact: %w", err)
	}
	if res.RowsAffected() == 0 {
		fact, err := c.GetFact(ctx, factID)
		if err != nil {
			return err
		}
		if fact.Level == canon.LevelRetconned {
			return fmt.Errorf("%s: %w", factID, canon.ErrAlreadyRetconned)
		}
		return fmt.Errorf("retconning fact %s: no row updated", factID)
	}
	return nil
}

func (c *Client) GetStory(ctx context.Context, id string) (*canon.Story, error) {
	var story canon.Story
	err := c.pool.QueryRow(ctx, `
SELECT id, name, recorded_at FROM canon_nodes WHERE id = $1 AND node_type = 'story'`, id).
		Scan(&story.ID, &story.Name, &story.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("story %s: %w", id, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("getting story: %w", err)
	}
	return &story, nil
}

func (c *Client) GetFact(ctx context.Context, id string) (*canon.Fact, error) {
	row := c.pool.QueryRow(ctx, `
SELECT id, universe_id, kind, statement, canon_level, authority, confidence, dimension, tag, superseded_by, retcon_reason, recorded_at
FROM canon_nodes WHERE id = $1 AND node_type = 'fact'`, id)
	fact, err := scanFact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fact %s: %w", id, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("getting fact: %w", err)
	}
	if err := c.loadFactEdges(ctx, fact); err != nil {
		return nil, err
	}
	return fact, nil
}

func (c *Client) GetInstance(ctx context.Context, id string) (*canon.Instance, error) {
	row := c.pool.QueryRow(ctx, `
SELECT id, universe_id, name, category, properties, state_tags, recorded_at
FROM canon_nodes WHERE id = $1 AND node_type = 'instance'`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("instance %s: %w", id, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("getting instance: %w", err)
	}
	if err := c.loadInstanceArchetype(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *Client) GetArchetype(ctx context.Context, id string) (*canon.Archetype, error) {
	var a canon.Archetype
	var props []byte
	err := c.pool.QueryRow(ctx, `
SELECT id, universe_id, name, category, properties, recorded_at
FROM canon_nodes WHERE id = $1 AND node_type = 'archetype'`, id).
		Scan(&a.ID, &a.UniverseID, &a.Name, &a.Category, &props, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("archetype %s: %w", id, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("getting archetype: %w", err)
	}
	if err := json.Unmarshal(props, &a.Properties); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	return &a, nil
}

func (c *Client) FindInstanceByName(ctx context.Context, universeID, name string) (*canon.Instance, error) {
	row := c.pool.QueryRow(ctx, `
SELECT id, universe_id, name, category, properties, state_tags, recorded_at
FROM canon_nodes
WHERE node_type = 'instance' AND universe_id = $1 AND lower(name) = lower($2)
ORDER BY recorded_at ASC LIMIT 1`, universeID, name)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("instance %q: %w", name, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("finding instance: %w", err)
	}
	if err := c.loadInstanceArchetype(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *Client) CanonContext(ctx context.Context, universeID string, entityIDs []string) ([]canon.Fact, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	rows, err := c.pool.Query(ctx, `
SELECT DISTINCT n.id, n.universe_id, n.kind, n.statement, n.canon_level, n.authority, n.confidence, n.dimension, n.tag, n.superseded_by, n.retcon_reason, n.recorded_at
FROM canon_nodes n
JOIN canon_edges e ON e.src_id = n.id AND e.edge_type = 'INVOLVES'
WHERE n.node_type = 'fact' AND n.universe_id = $1 AND e.dst_id = ANY($2)
ORDER BY n.recorded_at ASC, n.id ASC`, universeID, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("querying canon context: %w", err)
	}
	defer rows.Close()

	var facts []canon.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying canon context: %w", err)
	}

	for i := range facts {
		if err := c.loadFactEdges(ctx, &facts[i]); err != nil {
			return nil, err
		}
	}
	return facts, nil
}

func (c *Client) CausesPathExists(ctx context.Context, fromID, toID string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `
WITH RECURSIVE reachable(id) AS (
    SELECT dst_id FROM canon_edges WHERE src_id = $1 AND edge_type = 'CAUSES'
    UNION
    SELECT e.dst_id FROM canon_edges e
    JOIN reachable r ON e.src_id = r.id
    WHERE e.edge_type = 'CAUSES'
)
SELECT EXISTS (SELECT 1 FROM reachable WHERE id = $2)`, fromID, toID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking causes path: %w", err)
	}
	return exists, nil
}

func (c *Client) NodeCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM canon_nodes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting canon nodes: %w", err)
	}
	return count, nil
}

func (c *Client) ListFactsMissingEvidence(ctx context.Context) ([]canon.Fact, error) {
	rows, err := c.pool.Query(ctx, `
SELECT n.id, n.universe_id, n.kind, n.statement, n.canon_level, n.authority, n.confidence, n.dimension, n.tag, n.superseded_by, n.retcon_reason, n.recorded_at
FROM canon_nodes n
WHERE n.node_type = 'fact'
  AND NOT EXISTS (SELECT 1 FROM canon_edges e WHERE e.src_id = n.id AND e.edge_type = 'SUPPORTED_BY')
ORDER BY n.recorded_at ASC, n.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing facts missing evidence: %w", err)
	}
	defer rows.Close()

	var facts []canon.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	return facts, rows.Err()
}

func (c *Client) ListOrphanedInstances(ctx context.Context) ([]canon.Instance, error) {
	rows, err := c.pool.Query(ctx, `
SELECT n.id, n.universe_id, n.name, n.category, n.properties, n.state_tags, n.recorded_at
FROM canon_nodes n
WHERE n.node_type = 'instance'
  AND NOT EXISTS (SELECT 1 FROM canon_edges e WHERE e.src_id = n.id OR e.dst_id = n.id)
ORDER BY n.recorded_at ASC, n.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned instances: %w", err)
	}
	defer rows.Close()

	var instances []canon.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instance: %w", err)
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*canon.Fact, error) {
	var fact canon.Fact
	var kind, level, authority string
	if err := row.Scan(&fact.ID, &fact.UniverseID, &kind, &fact.Statement, &level, &authority,
		&fact.Confidence, &fact.Dimension, &fact.Tag, &fact.SupersededBy, &fact.RetconReason, &fact.RecordedAt); err != nil {
		return nil, err
	}
	fact.Kind = canon.Kind(kind)
	fact.Level = canon.CanonLevel(level)
	fact.Authority = canon.Authority(authority)
	return &fact, nil
}

func scanInstance(row rowScanner) (*canon.Instance, error) {
	var inst canon.Instance
	var props, tags []byte
	if err := row.Scan(&inst.ID, &inst.UniverseID, &inst.Name, &inst.Category, &props, &tags, &inst.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(props, &inst.Properties); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	if err := json.Unmarshal(tags, &inst.StateTags); err != nil {
		return nil, fmt.Errorf("unmarshaling state tags: %w", err)
	}
	return &inst, nil
}

func (c *Client) loadFactEdges(ctx context.Context, fact *canon.Fact) error {
	rows, err := c.pool.Query(ctx, `
SELECT dst_id, edge_type FROM canon_edges WHERE src_id = $1 ORDER BY id ASC`, fact.ID)
	if err != nil {
		return fmt.Errorf("loading fact edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dst, edgeType string
		if err := rows.Scan(&dst, &edgeType); err != nil {
			return fmt.Errorf("scanning edge: %w", err)
		}
		switch edgeType {
		case canon.EdgeInvolves:
			fact.Involves = append(fact.Involves, dst)
		case canon.EdgeSupportedBy:
			fact.Evidence = append(fact.Evidence, dst)
		case canon.EdgeCauses:
			fact.Causes = append(fact.Causes, dst)
		}
	}
	return rows.Err()
}

func (c *Client) loadInstanceArchetype(ctx context.Context, inst *canon.Instance) error {
	var archetype string
	err := c.pool.QueryRow(ctx, `
SELECT dst_id FROM canon_edges WHERE src_id = $1 AND edge_type = $2 LIMIT 1`,
		inst.ID, canon.EdgeDerivesFrom).Scan(&archetype)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("loading archetype edge: %w", err)
	}
	inst.ArchetypeID = archetype
	return nil
}

func nodeExistsTx(ctx context.Context, tx pgx.Tx, id, nodeType string) error {
	var exists bool
	err := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM canon_nodes WHERE id = $1 AND ($2 = '' OR node_type = $2))`,
		id, nodeType).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking node existence: %w", err)
	}
	if !exists {
		return canon.ErrNotFound
	}
	return nil
}

func insertEdgeTx(ctx context.Context, tx pgx.Tx, src, dst, edgeType string) error {
	_, err := tx.Exec(ctx, `
INSERT INTO canon_edges (src_id, dst_id, edge_type) VALUES ($1, $2, $3)
ON CONFLICT (src_id, dst_id, edge_type) DO NOTHING`, src, dst, edgeType)
	if err != nil {
		return fmt.Errorf("inserting %s edge: %w", edgeType, err)
	}
	return nil
}

func causesPathExistsTx(ctx context.Context, tx pgx.Tx, fromID, toID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
WITH RECURSIVE reachable(id) AS (
    SELECT dst_id FROM canon_edges WHERE src_id = $1 AND edge_type = 'CAUSES'
    UNION
    SELECT e.dst_id FROM canon_edges e
    JOIN reachable r ON e.src_id = r.id
    WHERE e.edge_type = 'CAUSES'
)
SELECT EXISTS (SELECT 1 FROM reachable WHERE id = $2)`, fromID, toID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking causes path: %w", err)
	}
	return exists, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
