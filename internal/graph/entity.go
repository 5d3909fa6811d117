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

func (c *Client) CreateStory(ctx context.Context, cap canon.WriteCap, story canon.Story) error {
	if err := cap.Check(canon.OpCreateStory); err != nil {
		return err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
CREATE (n:Canon:Story {id: $id, universe_id: $id, node_type: 'story', name: $name,
	name_normalized: $name_normalized, recorded_at: $recorded_at})`,
			map[string]any{
				"id":              story.ID,
				"name":            story.Name,
				"name_normalized": strings.ToLower(story.Name),
				"recorded_at":     timeProp(story.CreatedAt),
			})
		return nil, err
	}); err != nil {
		return fmt.Errorf("creating story: %w", err)
	}
	return nil
}

func (c *Client) CreateSource(ctx context.Context, cap canon.WriteCap, src canon.Source) error {
	if err := cap.Check(canon.OpCreateSource); err != nil {
		return err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
CREATE (n:Canon:Source {id: $id, universe_id: $universe_id, node_type: 'source',
	source_kind: $source_kind, source_ref: $source_ref, recorded_at: $recorded_at})`,
			map[string]any{
				"id":          src.ID,
				"universe_id": src.UniverseID,
				"source_kind": string(src.Kind),
				"source_ref":  src.Ref,
				"recorded_at": timeProp(src.CreatedAt),
			})
		return nil, err
	}); err != nil {
		return fmt.Errorf("creating source: %w", err)
	}
	return nil
}

func (c *Client) CreateArchetype(ctx context.Context, cap canon.WriteCap, a canon.Archetype) error {
	if err := cap.Check(canon.OpCreateArchetype); err != nil {
		return err
	}
	props, err := json.Marshal(a.Properties)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
CREATE (n:Canon:Archetype {id: $id, universe_id: $universe_id, node_type: 'archetype',
	name: $name, name_normalized: $name_normalized, category: $category,
	properties_json: $properties_json, recorded_at: $recorded_at})`,
			map[string]any{
				"id":              a.ID,
				"universe_id":     a.UniverseID,
				"name":            a.Name,
				"name_normalized": strings.ToLower(a.Name),
				"category":        a.Category,
				"properties_json": string(props),
				"recorded_at":     timeProp(a.CreatedAt),
			})
		return nil, err
	}); err != nil {
		return fmt.Errorf("creating archetype: %w", err)
	}
	return nil
}

func (c *Client) CreateInstance(ctx context.Context, cap canon.WriteCap, inst canon.Instance) error {
	if err := cap.Check(canon.OpCreateInstance); err != nil {
		return err
	}
	props, err := json.Marshal(inst.Properties)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	tags, err := json.Marshal(inst.StateTags)
	if err != nil {
		return fmt.Errorf("marshaling state tags: %w", err)
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if inst.ArchetypeID != "" {
			found, err := nodeExistsTx(ctx, tx, inst.ArchetypeID, "archetype")
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("archetype %s: %w", inst.ArchetypeID, canon.ErrNotFound)
			}
		}

		if _, err := tx.Run(ctx, `
CREATE (n:Canon:Instance {id: $id, universe_id: $universe_id, node_type: 'instance',
	name: $name, name_normalized: $name_normalized, category: $category,
	properties_json: $properties_json, state_tags_json: $state_tags_json,
	recorded_at: $recorded_at})`,
			map[string]any{
				"id":              inst.ID,
				"universe_id":     inst.UniverseID,
				"name":            inst.Name,
				"name_normalized": strings.ToLower(inst.Name),
				"category":        inst.Category,
				"properties_json": string(props),
				"state_tags_json": string(tags),
				"recorded_at":     timeProp(inst.CreatedAt),
			}); err != nil {
			return nil, err
		}

		if inst.ArchetypeID != "" {
			if _, err := tx.Run(ctx, `
MATCH (i:Canon {id: $instance_id}), (a:Canon {id: $archetype_id})
MERGE (i)-[:DERIVES_FROM]->(a)`,
				map[string]any{"instance_id": inst.ID, "archetype_id": inst.ArchetypeID}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}); err != nil {
		if errors.Is(err, canon.ErrNotFound) {
			return err
		}
		return fmt.Errorf("creating instance: %w", err)
	}
	return nil
}

func (c *Client) GetStory(ctx context.Context, id string) (*canon.Story, error) {
	node, err := c.fetchNode(ctx, id, "story")
	if err != nil {
		return nil, err
	}
	return &canon.Story{
		ID:        toString(node.Props["id"]),
		Name:      toString(node.Props["name"]),
		CreatedAt: parseTimeProp(node.Props["recorded_at"]),
	}, nil
}

func (c *Client) GetArchetype(ctx context.Context, id string) (*canon.Archetype, error) {
	node, err := c.fetchNode(ctx, id, "archetype")
	if err != nil {
		return nil, err
	}
	return archetypeFromNode(node)
}

func (c *Client) GetInstance(ctx context.Context, id string) (*canon.Instance, error) {
	node, err := c.fetchNode(ctx, id, "instance")
	if err != nil {
		return nil, err
	}
	inst, err := instanceFromNode(node)
	if err != nil {
		return nil, err
	}
	if err := c.loadInstanceArchetype(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *Client) FindInstanceByName(ctx context.Context, universeID, name string) (*canon.Instance, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Canon {node_type: 'instance', universe_id: $universe_id, name_normalized: $name})
RETURN n ORDER BY n.recorded_at ASC LIMIT 1`,
			map[string]any{"universe_id": universeID, "name": strings.ToLower(name)})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			value, _ := res.Record().Get("n")
			if node, ok := value.(neo4j.Node); ok {
				return node, nil
			}
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("finding instance: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("instance %q: %w", name, canon.ErrNotFound)
	}
	inst, err := instanceFromNode(result.(neo4j.Node))
	if err != nil {
		return nil, err
	}
	if err := c.loadInstanceArchetype(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *Client) fetchNode(ctx context.Context, id, nodeType string) (neo4j.Node, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Canon {id: $id, node_type: $node_type}) RETURN n`,
			map[string]any{"id": id, "node_type": nodeType})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			value, _ := res.Record().Get("n")
			if node, ok := value.(neo4j.Node); ok {
				return node, nil
			}
		}
		return nil, res.Err()
	})
	if err != nil {
		return neo4j.Node{}, fmt.Errorf("fetching node: %w", err)
	}
	if result == nil {
		return neo4j.Node{}, fmt.Errorf("%s %s: %w", nodeType, id, canon.ErrNotFound)
	}
	return result.(neo4j.Node), nil
}

func (c *Client) loadInstanceArchetype(ctx context.Context, inst *canon.Instance) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (i:Canon {id: $id})-[:DERIVES_FROM]->(a:Canon) RETURN a.id AS archetype_id LIMIT 1`,
			map[string]any{"id": inst.ID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			value, _ := res.Record().Get("archetype_id")
			return value, nil
		}
		return nil, res.Err()
	})
	if err != nil {
		return fmt.Errorf("loading archetype edge: %w", err)
	}
	if result != nil {
		inst.ArchetypeID = toString(result)
	}
	return nil
}

func archetypeFromNode(node neo4j.Node) (*canon.Archetype, error) {
	a := &canon.Archetype{
		ID:         toString(node.Props["id"]),
		UniverseID: toString(node.Props["universe_id"]),
		Name:       toString(node.Props["name"]),
		Category:   toString(node.Props["category"]),
		CreatedAt:  parseTimeProp(node.Props["recorded_at"]),
	}
	if raw := toString(node.Props["properties_json"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.Properties); err != nil {
			return nil, fmt.Errorf("unmarshaling properties: %w", err)
		}
	}
	return a, nil
}

func instanceFromNode(node neo4j.Node) (*canon.Instance, error) {
	inst := &canon.Instance{
		ID:         toString(node.Props["id"]),
		UniverseID: toString(node.Props["universe_id"]),
		Name:       toString(node.Props["name"]),
		Category:   toString(node.Props["category"]),
		CreatedAt:  parseTimeProp(node.Props["recorded_at"]),
	}
	if raw := toString(node.Props["properties_json"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &inst.Properties); err != nil {
			return nil, fmt.Errorf("unmarshaling properties: %w", err)
		}
	}
	if raw := toString(node.Props["state_tags_json"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &inst.StateTags); err != nil {
			return nil, fmt.Errorf("unmarshaling state tags: %w", err)
		}
	}
	return inst, nil
}

func nodeExistsTx(ctx context.Context, tx neo4j.ManagedTransaction, id, nodeType string) (bool, error) {
	res, err := tx.Run(ctx, `
MATCH (n:Canon {id: $id})
WHERE $node_type = '' OR n.node_type = $node_type
RETURN count(n) > 0 AS found`,
		map[string]any{"id": id, "node_type": nodeType})
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
