package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"canonkeep/internal/canon"
	"canonkeep/internal/staging"
)

func (c *Client) CreateScene(ctx context.Context, scene staging.Scene) error {
	status := scene.Status
	if status == "" {
		status = staging.SceneActive
	}
	created := scene.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO scenes (id, universe_id, name, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`,
		scene.ID, scene.UniverseID, scene.Name, string(status), created)
	if err != nil {
		return fmt.Errorf("creating scene: %w", err)
	}
	return nil
}

func (c *Client) GetScene(ctx context.Context, id string) (*staging.Scene, error) {
	var scene staging.Scene
	var status string
	err := c.pool.QueryRow(ctx, `
SELECT id, universe_id, name, status, created_at, updated_at FROM scenes WHERE id = $1`, id).
		Scan(&scene.ID, &scene.UniverseID, &scene.Name, &status, &scene.CreatedAt, &scene.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("scene %s: %w", id, staging.ErrSceneNotFound)
		}
		return nil, fmt.Errorf("getting scene: %w", err)
	}
	scene.Status = staging.SceneStatus(status)
	return &scene, nil
}

func (c *Client) TransitionScene(ctx context.Context, id string, from, to staging.SceneStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", staging.ErrInvalidTransition, from, to)
	}

	res, err := c.pool.Exec(ctx, `
UPDATE scenes SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), c.now(), id, string(from))
	if err != nil {
		return fmt.Errorf("transitioning scene: %w", err)
	}
	if res.RowsAffected() == 0 {
		scene, err := c.GetScene(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: scene %s is %s, not %s", staging.ErrInvalidTransition, id, scene.Status, from)
	}
	return nil
}

func (c *Client) CreateProposal(ctx context.Context, p staging.Proposal) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM scenes WHERE id = $1`, p.SceneID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("scene %s: %w", p.SceneID, staging.ErrSceneNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking scene: %w", err)
	}
	if staging.SceneStatus(status) == staging.SceneCompleted {
		return fmt.Errorf("scene %s: %w", p.SceneID, staging.ErrSceneCompleted)
	}

	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = c.now()
	}

	_, err = tx.Exec(ctx, `
INSERT INTO proposals (id, scene_id, universe_id, proposal_type, payload, authority, confidence, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SceneID, p.UniverseID, string(p.Type), payload,
		string(p.Authority), p.Confidence, string(staging.StatusProposed), created)
	if err != nil {
		return fmt.Errorf("creating proposal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing proposal: %w", err)
	}
	return nil
}

func (c *Client) GetProposal(ctx context.Context, id string) (*staging.Proposal, error) {
	row := c.pool.QueryRow(ctx, `
SELECT id, scene_id, universe_id, proposal_type, payload, authority, confidence, status, rationale, contradictions, created_at, resolved_at
FROM proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("proposal %s: %w", id, staging.ErrProposalNotFound)
		}
		return nil, fmt.Errorf("getting proposal: %w", err)
	}
	return p, nil
}

func (c *Client) PendingProposals(ctx context.Context, sceneID string) ([]staging.Proposal, error) {
	rows, err := c.pool.Query(ctx, `
SELECT id, scene_id, universe_id, proposal_type, payload, authority, confidence, status, rationale, contradictions, created_at, resolved_at
FROM proposals
WHERE scene_id = $1 AND status = $2
ORDER BY created_at ASC, id ASC`, sceneID, string(staging.StatusProposed))
	if err != nil {
		return nil, fmt.Errorf("listing pending proposals: %w", err)
	}
	defer rows.Close()

	var proposals []staging.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func (c *Client) ResolveProposal(ctx context.Context, id string, status staging.ProposalStatus, rationale string, contradictions []string) error {
	if !status.Terminal() {
		return fmt.Errorf("resolution status must be terminal: %s", status)
	}
	if contradictions == nil {
		contradictions = []string{}
	}
	encoded, err := json.Marshal(contradictions)
	if err != nil {
		return fmt.Errorf("marshaling contradictions: %w", err)
	}

	res, err := c.pool.Exec(ctx, `
UPDATE proposals SET status = $1, rationale = $2, contradictions = $3, resolved_at = $4
WHERE id = $5 AND status = $6`,
		string(status), rationale, encoded, c.now(), id, string(staging.StatusProposed))
	if err != nil {
		return fmt.Errorf("resolving proposal: %w", err)
	}
	if res.RowsAffected() == 0 {
		if _, err := c.GetProposal(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("proposal %s: %w", id, staging.ErrAlreadyResolved)
	}
	return nil
}

func (c *Client) AcquireLease(ctx context.Context, sceneID, holder string, ttl time.Duration) error {
	now := c.now()

	res, err := c.pool.Exec(ctx, `
INSERT INTO canonization_leases (scene_id, holder, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (scene_id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
WHERE canonization_leases.holder = excluded.holder OR canonization_leases.expires_at <= $4`,
		sceneID, holder, now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("scene %s: %w", sceneID, staging.ErrCanonizationInFlight)
	}
	return nil
}

func (c *Client) ReleaseLease(ctx context.Context, sceneID, holder string) error {
	if _, err := c.pool.Exec(ctx, `
DELETE FROM canonization_leases WHERE scene_id = $1 AND holder = $2`, sceneID, holder); err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

func scanProposal(row rowScanner) (*staging.Proposal, error) {
	var p staging.Proposal
	var proposalType, authority, status string
	var payload, contradictions []byte
	var resolved sql.NullTime
	if err := row.Scan(&p.ID, &p.SceneID, &p.UniverseID, &proposalType, &payload, &authority,
		&p.Confidence, &status, &p.Rationale, &contradictions, &p.CreatedAt, &resolved); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &p.Payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}
	if len(contradictions) > 0 {
		if err := json.Unmarshal(contradictions, &p.Contradictions); err != nil {
			return nil, fmt.Errorf("unmarshaling contradictions: %w", err)
		}
	}
	p.Type = staging.ProposalType(proposalType)
	p.Authority = canon.Authority(authority)
	p.Status = staging.ProposalStatus(status)
	if resolved.Valid {
		p.ResolvedAt = resolved.Time
	}
	return &p, nil
}
