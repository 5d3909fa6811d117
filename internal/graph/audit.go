package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"canonkeep/internal/canon"
)

// ListFactsMissingEvidence returns fact nodes with no SUPPORTED_BY
// edge. The write path refuses such facts, so anything here points at a
// store written outside this tool.
func (c *Client) ListFactsMissingEvidence(ctx context.Context) ([]canon.Fact, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fetchFactTx(ctx, tx, `
MATCH (n:Canon {node_type: 'fact'})
WHERE NOT (n)-[:SUPPORTED_BY]->(:Canon)
OPTIONAL MATCH (n)-[:INVOLVES]->(i:Canon)
OPTIONAL MATCH (n)-[:CAUSES]->(e:Canon)
RETURN n, collect(DISTINCT i.id) AS involves, [] AS evidence, collect(DISTINCT e.id) AS causes
ORDER BY n.recorded_at ASC, n.id ASC`, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("listing facts missing evidence: %w", err)
	}
	return result.([]canon.Fact), nil
}

// ListOrphanedInstances returns instance nodes with no DERIVES_FROM
// edge to an archetype.
func (c *Client) ListOrphanedInstances(ctx context.Context) ([]canon.Instance, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Canon {node_type: 'instance'})
WHERE NOT (n)-[:DERIVES_FROM]->(:Canon {node_type: 'archetype'})
RETURN n ORDER BY n.id`, nil)
		if err != nil {
			return nil, err
		}
		var instances []canon.Instance
		for res.Next(ctx) {
			value, _ := res.Record().Get("n")
			node, ok := value.(neo4j.Node)
			if !ok {
				continue
			}
			inst, err := instanceFromNode(node)
			if err != nil {
				return nil, err
			}
			instances = append(instances, *inst)
		}
		return instances, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing orphaned instances: %w", err)
	}
	return result.([]canon.Instance), nil
}
