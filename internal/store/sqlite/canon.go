package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"canonkeep/internal/canon"
)

// timeFormat pads fractional seconds to full width so stored strings
// compare lexicographically in chronological order. RFC3339Nano trims
// trailing zeros, which breaks ORDER BY and lease-expiry comparisons
// for sub-second-spaced values.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func (c *Client) CreateStory(ctx context.Context, cap canon.WriteCap, story canon.Story) error {
	if err := cap.Check(canon.OpCreateStory); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO canon_nodes (id, universe_id, node_type, name, recorded_at)
	VALUES (?, ?, 'story', ?, ?)`,
		story.ID, story.ID, story.Name, story.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating story: %w", err)
	}
	return nil
}

func (c *Client) CreateSource(ctx context.Context, cap canon.WriteCap, src canon.Source) error {
	if err := cap.Check(canon.OpCreateSource); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO canon_nodes (id, universe_id, node_type, source_kind, source_ref, recorded_at)
	VALUES (?, ?, 'source', ?, ?, ?)`,
		src.ID, src.UniverseID, string(src.Kind), src.Ref, src.CreatedAt.UTC().Format(timeFormat))
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
	_, err = c.db.ExecContext(ctx, `
	INSERT INTO canon_nodes (id, universe_id, node_type, name, category, properties, recorded_at)
	VALUES (?, ?, 'archetype', ?, ?, ?, ?)`,
		a.ID, a.UniverseID, a.Name, a.Category, string(props), a.CreatedAt.UTC().Format(timeFormat))
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

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if inst.ArchetypeID != "" {
		if err := nodeExistsTx(ctx, tx, inst.ArchetypeID, "archetype"); err != nil {
			return fmt.Errorf("archetype %s: %w", inst.ArchetypeID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO canon_nodes (id, universe_id, node_type, name, category, properties, state_tags, recorded_at)
	VALUES (?, ?, 'instance', ?, ?, ?, ?, ?)`,
		inst.ID, inst.UniverseID, inst.Name, inst.Category, string(props), string(tags), inst.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating instance: %w", err)
	}

	if inst.ArchetypeID != "" {
		if err := insertEdgeTx(ctx, tx, inst.ID, inst.ArchetypeID, canon.EdgeDerivesFrom); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing instance: %w", err)
	}
	return nil
}

// WriteFact persists the fact node with all its edges and the state-tag
// update on involved instances as one transaction, so an orphaned fact
// with no evidence can never exist.
func (c *Client) WriteFact(ctx context.Context, cap canon.WriteCap, fact canon.Fact) error {
	if err := cap.Check(canon.OpWriteFact); err != nil {
		return err
	}
	if len(fact.Evidence) == 0 {
		return canon.ErrMissingEvidence
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

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

	// CAUSES edges connect events to events.
	causesSource := fact.ID
	if fact.CausesFrom != "" && fact.CausesFrom != fact.ID {
		causesSource = fact.CausesFrom
		if err := eventExistsTx(ctx, tx, causesSource); err != nil {
			return fmt.Errorf("causes source %s: %w", causesSource, err)
		}
	} else if len(fact.Causes) > 0 && fact.Kind != canon.KindEvent {
		return fmt.Errorf("causes edges require an event source, got kind %s", fact.Kind)
	}
	for _, target := range fact.Causes {
		if target == causesSource {
			return fmt.Errorf("%w: %s -> %s", canon.ErrCausesCycle, causesSource, target)
		}
		if err := eventExistsTx(ctx, tx, target); err != nil {
			return fmt.Errorf("causes target %s: %w", target, err)
		}
		cycles, err := causesPathExistsTx(ctx, tx, target, causesSource)
		if err != nil {
			return err
		}
		if cycles {
			return fmt.Errorf("%w: %s -> %s", canon.ErrCausesCycle, causesSource, target)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO canon_nodes (id, universe_id, node_type, kind, statement, canon_level, authority, confidence, dimension, tag, recorded_at)
	VALUES (?, ?, 'fact', ?, ?, ?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.UniverseID, string(fact.Kind), fact.Statement, string(fact.Level),
		string(fact.Authority), fact.Confidence, strings.ToLower(fact.Dimension), strings.ToLower(fact.Tag),
		fact.RecordedAt.UTC().Format(timeFormat))
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
			if err := applyStateTagTx(ctx, tx, ref, fact.Dimension, fact.Tag); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fact: %w", err)
	}
	return nil
}

func (c *Client) RetconFact(ctx context.Context, cap canon.WriteCap, factID, supersededBy, reason string) error {
	if err := cap.Check(canon.OpRetconFact); err != nil {
		return err
	}

	res, err := c.db.ExecContext(ctx, `
	UPDATE canon_nodes SET canon_level = ?, superseded_by = ?, retcon_reason = ?
	WHERE id = ? AND node_type = 'fact' AND canon_level = ?`,
		string(canon.LevelRetconned), supersededBy, reason, factID, string(canon.LevelCanon))
	if err != nil {
		return fmt.Errorf("retconning fact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retconning fact: %w", err)
	}
	if affected == 0 {
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
	row := c.db.QueryRowContext(ctx, `
	SELECT id, name, recorded_at FROM canon_nodes WHERE id = ? AND node_type = 'story'`, id)

	var story canon.Story
	var recorded string
	if err := row.Scan(&story.ID, &story.Name, &recorded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("story %s: %w", id, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("getting story: %w", err)
	}
	story.CreatedAt = parseTime(recorded)
	return &story, nil
}

func (c *Client) GetFact(ctx context.Context, id string) (*canon.Fact, error) {
	row := c.db.QueryRowContext(ctx, `
	SELECT id, universe_id, kind, statement, canon_level, authority, confidence, dimension, tag, superseded_by, retcon_reason, recorded_at
	FROM canon_nodes WHERE id = ? AND node_type = 'fact'`, id)

	fact, err := scanFact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	row := c.db.QueryRowContext(ctx, `
	SELECT id, universe_id, name, category, properties, state_tags, recorded_at
	FROM canon_nodes WHERE id = ? AND node_type = 'instance'`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	row := c.db.QueryRowContext(ctx, `
	SELECT id, universe_id, name, category, properties, recorded_at
	FROM canon_nodes WHERE id = ? AND node_type = 'archetype'`, id)

	var a canon.Archetype
	var props, recorded string
	if err := row.Scan(&a.ID, &a.UniverseID, &a.Name, &a.Category, &props, &recorded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("archetype %s: %w", id, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("getting archetype: %w", err)
	}
	if err := json.Unmarshal([]byte(props), &a.Properties); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	a.CreatedAt = parseTime(recorded)
	return &a, nil
}

func (c *Client) FindInstanceByName(ctx context.Context, universeID, name string) (*canon.Instance, error) {
	row := c.db.QueryRowContext(ctx, `
	SELECT id, universe_id, name, category, properties, state_tags, recorded_at
	FROM canon_nodes
	WHERE node_type = 'instance' AND universe_id = ? AND lower(name) = lower(?)
	ORDER BY recorded_at ASC LIMIT 1`, universeID, name)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("instance %q: %w", name, canon.ErrNotFound)
		}
		return nil, fmt.Errorf("finding instance: %w", err)
	}
	if err := c.loadInstanceArchetype(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CanonContext returns facts and events in the universe that involve
// any of the given entities, oldest first. Retconned facts are included
// so callers can see superseded history; evaluation filters on level.
func (c *Client) CanonContext(ctx context.Context, universeID string, entityIDs []string) ([]canon.Fact, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(entityIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{universeID}
	for _, id := range entityIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
	SELECT DISTINCT n.id, n.universe_id, n.kind, n.statement, n.canon_level, n.authority, n.confidence, n.dimension, n.tag, n.superseded_by, n.retcon_reason, n.recorded_at
	FROM canon_nodes n
	JOIN canon_edges e ON e.src_id = n.id AND e.edge_type = '%s'
	WHERE n.node_type = 'fact' AND n.universe_id = ? AND e.dst_id IN (%s)
	ORDER BY n.recorded_at ASC, n.id ASC`, canon.EdgeInvolves, placeholders)

	rows, err := c.db.QueryContext(ctx, query, args...)
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
	err := c.db.QueryRowContext(ctx, `
	WITH RECURSIVE reachable(id) AS (
		SELECT dst_id FROM canon_edges WHERE src_id = ? AND edge_type = 'CAUSES'
		UNION
		SELECT e.dst_id FROM canon_edges e
		JOIN reachable r ON e.src_id = r.id
		WHERE e.edge_type = 'CAUSES'
	)
	SELECT EXISTS (SELECT 1 FROM reachable WHERE id = ?)`, fromID, toID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking causes path: %w", err)
	}
	return exists, nil
}

func (c *Client) NodeCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM canon_nodes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting canon nodes: %w", err)
	}
	return count, nil
}

func (c *Client) ListFactsMissingEvidence(ctx context.Context) ([]canon.Fact, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT n.id, n.universe_id, n.kind, n.statement, n.canon_level, n.authority, n.confidence, n.dimension, n.tag, n.superseded_by, n.retcon_reason, n.recorded_at
	FROM canon_nodes n
	WHERE n.node_type = 'fact'
	  AND NOT EXISTS (SELECT 1 FROM canon_edges e WHERE e.src_id = n.id AND e.edge_type = '%s')
	ORDER BY n.recorded_at ASC, n.id ASC`, canon.EdgeSupportedBy))
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
	rows, err := c.db.QueryContext(ctx, `
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
	var kind, level, authority, recorded string
	if err := row.Scan(&fact.ID, &fact.UniverseID, &kind, &fact.Statement, &level, &authority,
		&fact.Confidence, &fact.Dimension, &fact.Tag, &fact.SupersededBy, &fact.RetconReason, &recorded); err != nil {
		return nil, err
	}
	fact.Kind = canon.Kind(kind)
	fact.Level = canon.CanonLevel(level)
	fact.Authority = canon.Authority(authority)
	fact.RecordedAt = parseTime(recorded)
	return &fact, nil
}

func scanInstance(row rowScanner) (*canon.Instance, error) {
	var inst canon.Instance
	var props, tags, recorded string
	if err := row.Scan(&inst.ID, &inst.UniverseID, &inst.Name, &inst.Category, &props, &tags, &recorded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(props), &inst.Properties); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &inst.StateTags); err != nil {
		return nil, fmt.Errorf("unmarshaling state tags: %w", err)
	}
	inst.CreatedAt = parseTime(recorded)
	return &inst, nil
}

func (c *Client) loadFactEdges(ctx context.Context, fact *canon.Fact) error {
	rows, err := c.db.QueryContext(ctx, `
	SELECT dst_id, edge_type FROM canon_edges WHERE src_id = ? ORDER BY id ASC`, fact.ID)
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
	row := c.db.QueryRowContext(ctx, `
	SELECT dst_id FROM canon_edges WHERE src_id = ? AND edge_type = ? LIMIT 1`,
		inst.ID, canon.EdgeDerivesFrom)
	var archetype string
	if err := row.Scan(&archetype); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("loading archetype edge: %w", err)
	}
	inst.ArchetypeID = archetype
	return nil
}

func nodeExistsTx(ctx context.Context, tx *sql.Tx, id, nodeType string) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `
	SELECT EXISTS (SELECT 1 FROM canon_nodes WHERE id = ? AND (? = '' OR node_type = ?))`,
		id, nodeType, nodeType).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking node existence: %w", err)
	}
	if !exists {
		return canon.ErrNotFound
	}
	return nil
}

// eventExistsTx checks that id names a canonical event. Plain facts are
// not valid CAUSES endpoints.
func eventExistsTx(ctx context.Context, tx *sql.Tx, id string) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `
	SELECT EXISTS (SELECT 1 FROM canon_nodes WHERE id = ? AND node_type = 'fact' AND kind = 'event')`,
		id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking event existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("not a canonical event: %w", canon.ErrNotFound)
	}
	return nil
}

func insertEdgeTx(ctx context.Context, tx *sql.Tx, src, dst, edgeType string) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO canon_edges (src_id, dst_id, edge_type) VALUES (?, ?, ?)
	ON CONFLICT (src_id, dst_id, edge_type) DO NOTHING`, src, dst, edgeType)
	if err != nil {
		return fmt.Errorf("inserting %s edge: %w", edgeType, err)
	}
	return nil
}

func causesPathExistsTx(ctx context.Context, tx *sql.Tx, fromID, toID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
	WITH RECURSIVE reachable(id) AS (
		SELECT dst_id FROM canon_edges WHERE src_id = ? AND edge_type = 'CAUSES'
		UNION
		SELECT e.dst_id FROM canon_edges e
		JOIN reachable r ON e.src_id = r.id
		WHERE e.edge_type = 'CAUSES'
	)
	SELECT EXISTS (SELECT 1 FROM reachable WHERE id = ?)`, fromID, toID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking causes path: %w", err)
	}
	return exists, nil
}

// applyStateTagTx maintains the denormalized state-tag map on an
// instance. The authoritative record of the change is the fact being
// written in the same transaction.
func applyStateTagTx(ctx context.Context, tx *sql.Tx, instanceID, dimension, tag string) error {
	var raw string
	err := tx.QueryRowContext(ctx, `
	SELECT state_tags FROM canon_nodes WHERE id = ? AND node_type = 'instance'`, instanceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		// Facts may involve archetypes or sources; state tags only
		// apply to instances.
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading state tags: %w", err)
	}

	tags := map[string]string{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return fmt.Errorf("unmarshaling state tags: %w", err)
		}
	}
	tags[strings.ToLower(dimension)] = strings.ToLower(tag)

	updated, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshaling state tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
	UPDATE canon_nodes SET state_tags = ? WHERE id = ?`, string(updated), instanceID); err != nil {
		return fmt.Errorf("updating state tags: %w", err)
	}
	return nil
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

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
