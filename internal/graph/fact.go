package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"canonkeep/internal/canon"
)

// WriteFact runs inside a single managed transaction, so the fact node,
// its edges, and the state-tag update land together or not at all.
func (c *Client) WriteFact(ctx context.Context, cap canon.WriteCap, fact canon.Fact) error {
	if err := cap.Check(canon.OpWriteFact); err != nil {
		return err
	}
	if len(fact.Evidence) == 0 {
		return canon.ErrMissingEvidence
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, ref := range fact.Evidence {
			found, err := nodeExistsTx(ctx, tx, ref, "")
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("evidence ref %s: %w", ref, canon.ErrNotFound)
			}
		}
		for _, ref := range fact.Involves {
			found, err := nodeExistsTx(ctx, tx, ref, "")
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("involved entity %s: %w", ref, canon.ErrNotFound)
			}
		}

		// CAUSES edges connect events to events.
		causesSource := fact.ID
		if fact.CausesFrom != "" && fact.CausesFrom != fact.ID {
			causesSource = fact.CausesFrom
			found, err := eventExistsTx(ctx, tx, causesSource)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("causes source %s is not a canonical event: %w", causesSource, canon.ErrNotFound)
			}
		} else if len(fact.Causes) > 0 && fact.Kind != canon.KindEvent {
			return nil, fmt.Errorf("causes edges require an event source, got kind %s", fact.Kind)
		}
		for _, target := range fact.Causes {
			if target == causesSource {
				return nil, fmt.Errorf("%w: %s -> %s", canon.ErrCausesCycle, causesSource, target)
			}
			found, err := eventExistsTx(ctx, tx, target)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("causes target %s is not a canonical event: %w", target, canon.ErrNotFound)
			}
			cycles, err := causesPathExistsTx(ctx, tx, target, causesSource)
			if err != nil {
				return nil, err
			}
			if cycles {
				return nil, fmt.Errorf("%w: %s -> %s", canon.ErrCausesCycle, causesSource, target)
			}
		}

		if _, err := tx.Run(ctx, `
CREATE (n:Canon:Fact {id: $id, universe_id: $universe_id, node_type: 'fact', kind: $kind,
	statement: $statement, canon_level: $canon_level, authority: $authority,
	confidence: $confidence, dimension: $dimension, tag: $tag, recorded_at: $recorded_at,
	superseded_by: '', retcon_reason: ''})`,
			map[string]any{
				"id":          fact.ID,
				"universe_id": fact.UniverseID,
				"kind":        string(fact.Kind),
				"statement":   fact.Statement,
				"canon_level": string(fact.Level),
				"authority":   string(fact.Authority),
				"confidence":  fact.Confidence,
				"dimension":   strings.ToLower(fact.Dimension),
				"tag":         strings.ToLower(fact.Tag),
				"recorded_at": timeProp(fact.RecordedAt),
			}); err != nil {
			return nil, err
		}

		for _, ref := range fact.Involves {
			if err := mergeEdgeTx(ctx, tx, fact.ID, ref, "INVOLVES"); err != nil {
				return nil, err
			}
		}
		for _, ref := range fact.Evidence {
			if err := mergeEdgeTx(ctx, tx, fact.ID, ref, "SUPPORTED_BY"); err != nil {
				return nil, err
			}
		}
		for _, target := range fact.Causes {
			if err := mergeEdgeTx(ctx, tx, causesSource, target, "CAUSES"); err != nil {
				return nil, err
			}
		}

		if fact.Dimension != "" && fact.Tag != "" {
			for _, ref := range fact.Involves {
				if err := applyStateTagTx(ctx, tx, ref, fact.Dimension, fact.Tag); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, canon.ErrNotFound) || errors.Is(err, canon.ErrCausesCycle) {
			return err
		}
		return fmt.Errorf("writing fact: %w", err)
	}
	return nil
}

func (c *Client) RetconFact(ctx context.Context, cap canon.WriteCap, factID, supersededBy, reason string) error {
	if err := cap.Check(canon.OpRetconFact); err != nil {
		return err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Canon {id: $id, node_type: 'fact'})
WITH n, n.canon_level AS level
SET n.canon_level = CASE WHEN level = $canon THEN $retconned ELSE n.canon_level END,
    n.superseded_by = CASE WHEN level = $canon THEN $superseded_by ELSE n.superseded_by END,
    n.retcon_reason = CASE WHEN level = $canon THEN $reason ELSE n.retcon_reason END
RETURN level`,
			map[string]any{
				"id":            factID,
				"canon":         string(canon.LevelCanon),
				"retconned":     string(canon.LevelRetconned),
				"superseded_by": supersededBy,
				"reason":        reason,
			})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			value, _ := res.Record().Get("level")
			return value, nil
		}
		return nil, res.Err()
	})
	if err != nil {
		return fmt.Errorf("retconning fact: %w", err)
	}
	if result == nil {
		return fmt.Errorf("fact %s: %w", factID, canon.ErrNotFound)
	}
	if toString(result) == string(canon.LevelRetconned) {
		return fmt.Errorf("%s: %w", factID, canon.ErrAlreadyRetconned)
	}
	return nil
}

func (c *Client) GetFact(ctx context.Context, id string) (*canon.Fact, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fetchFactTx(ctx, tx, `
MATCH (n:Canon {id: $id, node_type: 'fact'})
OPTIONAL MATCH (n)-[:INVOLVES]->(i:Canon)
OPTIONAL MATCH (n)-[:SUPPORTED_BY]->(s:Canon)
OPTIONAL MATCH (n)-[:CAUSES]->(e:Canon)
RETURN n, collect(DISTINCT i.id) AS involves, collect(DISTINCT s.id) AS evidence, collect(DISTINCT e.id) AS causes`,
			map[string]any{"id": id})
	})
	if err != nil {
		return nil, fmt.Errorf("getting fact: %w", err)
	}
	facts := result.([]canon.Fact)
	if len(facts) == 0 {
		return nil, fmt.Errorf("fact %s: %w", id, canon.ErrNotFound)
	}
	return &facts[0], nil
}

func (c *Client) CanonContext(ctx context.Context, universeID string, entityIDs []string) ([]canon.Fact, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fetchFactTx(ctx, tx, `
MATCH (n:Canon {node_type: 'fact', universe_id: $universe_id})-[:INVOLVES]->(t:Canon)
WHERE t.id IN $entity_ids
WITH DISTINCT n
OPTIONAL MATCH (n)-[:INVOLVES]->(i:Canon)
OPTIONAL MATCH (n)-[:SUPPORTED_BY]->(s:Canon)
OPTIONAL MATCH (n)-[:CAUSES]->(e:Canon)
RETURN n, collect(DISTINCT i.id) AS involves, collect(DISTINCT s.id) AS evidence, collect(DISTINCT e.id) AS causes
ORDER BY n.recorded_at ASC, n.id ASC`,
			map[string]any{"universe_id": universeID, "entity_ids": entityIDs})
	})
	if err != nil {
		return nil, fmt.Errorf("querying canon context: %w", err)
	}
	return result.([]canon.Fact), nil
}

func (c *Client) CausesPathExists(ctx context.Context, fromID, toID string) (bool, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return causesPathExistsTx(ctx, tx, fromID, toID)
	})
	if err != nil {
		return false, fmt.Errorf("checking causes path: %w", err)
	}
	return result.(bool), nil
}

func (c *Client) NodeCount(ctx context.Context) (int64, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Canon) RETURN count(n) AS c`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			value, _ := res.Record().Get("c")
			count, _ := value.(int64)
			return count, nil
		}
		return int64(0), res.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("counting canon nodes: %w", err)
	}
	return result.(int64), nil
}

func fetchFactTx(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]canon.Fact, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	var facts []canon.Fact
	for res.Next(ctx) {
		record := res.Record()
		value, _ := record.Get("n")
		node, ok := value.(neo4j.Node)
		if !ok {
			continue
		}
		involves, _ := record.Get("involves")
		evidence, _ := record.Get("evidence")
		causes, _ := record.Get("causes")
		facts = append(facts, factFromNode(node, involves, evidence, causes))
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func factFromNode(node neo4j.Node, involves, evidence, causes any) canon.Fact {
	props := node.Props
	return canon.Fact{
		ID:           toString(props["id"]),
		UniverseID:   toString(props["universe_id"]),
		Kind:         canon.Kind(toString(props["kind"])),
		Statement:    toString(props["statement"]),
		Level:        canon.CanonLevel(toString(props["canon_level"])),
		Authority:    canon.Authority(toString(props["authority"])),
		Confidence:   toFloat(props["confidence"]),
		Dimension:    toString(props["dimension"]),
		Tag:          toString(props["tag"]),
		RecordedAt:   parseTimeProp(props["recorded_at"]),
		SupersededBy: toString(props["superseded_by"]),
		RetconReason: toString(props["retcon_reason"]),
		Involves:     toStringSlice(involves),
		Evidence:     toStringSlice(evidence),
		Causes:       toStringSlice(causes),
	}
}

func mergeEdgeTx(ctx context.Context, tx neo4j.ManagedTransaction, src, dst, relType string) error {
	query := fmt.Sprintf(`
MATCH (a:Canon {id: $src}), (b:Canon {id: $dst})
MERGE (a)-[:%s]->(b)`, relType)
	if _, err := tx.Run(ctx, query, map[string]any{"src": src, "dst": dst}); err != nil {
		return fmt.Errorf("merging %s edge: %w", relType, err)
	}
	return nil
}

// eventExistsTx checks that id names a canonical event. Plain facts are
// not valid CAUSES endpoints.
func eventExistsTx(ctx context.Context, tx neo4j.ManagedTransaction, id string) (bool, error) {
	res, err := tx.Run(ctx, `
MATCH (n:Canon {id: $id, node_type: 'fact', kind: 'event'})
RETURN count(n) > 0 AS found`,
		map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	if res.Next(ctx) {
		value, _ := res.Record().Get("found")
		found, _ := value.(bool)
		return found, nil
	}
	return false, res.Err()
}

func causesPathExistsTx(ctx context.Context, tx neo4j.ManagedTransaction, fromID, toID string) (bool, error) {
	res, err := tx.Run(ctx, `
MATCH (a:Canon {id: $from}), (b:Canon {id: $to})
RETURN EXISTS ((a)-[:CAUSES*]->(b)) AS found`,
		map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return false, err
	}
	if res.Next(ctx) {
		value, _ := res.Record().Get("found")
		found, _ := value.(bool)
		return found, nil
	}
	return false, res.Err()
}

func applyStateTagTx(ctx context.Context, tx neo4j.ManagedTransaction, instanceID, dimension, tag string) error {
	res, err := tx.Run(ctx, `
MATCH (n:Canon {id: $id, node_type: 'instance'}) RETURN n.state_tags_json AS tags`,
		map[string]any{"id": instanceID})
	if err != nil {
		return err
	}
	if !res.Next(ctx) {
		// State tags only apply to instances; involved archetypes and
		// sources are skipped.
		return res.Err()
	}
	value, _ := res.Record().Get("tags")
	updated, err := mergeStateTags(toString(value), dimension, tag)
	if err != nil {
		return err
	}
	if _, err := tx.Run(ctx, `
MATCH (n:Canon {id: $id}) SET n.state_tags_json = $tags`,
		map[string]any{"id": instanceID, "tags": updated}); err != nil {
		return err
	}
	return nil
}

func mergeStateTags(raw, dimension, tag string) (string, error) {
	tags := map[string]string{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return "", fmt.Errorf("unmarshaling state tags: %w", err)
		}
	}
	tags[strings.ToLower(dimension)] = strings.ToLower(tag)
	out, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshaling state tags: %w", err)
	}
	return string(out), nil
}
