package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO scenes (id, universe_id, name, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		scene.ID, scene.UniverseID, scene.Name, string(status),
		created.UTC().Format(timeFormat), created.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating scene: %w", err)
	}
	return nil
}

func (c *Client) GetScene(ctx context.Context, id string) (*staging.Scene, error) {
	row := c.db.QueryRowContext(ctx, `
	SELECT id, universe_id, name, status, created_at, updated_at FROM scenes WHERE id = ?`, id)

	var scene staging.Scene
	var status, created, updated string
	if err := row.Scan(&scene.ID, &scene.UniverseID, &scene.Name, &status, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scene %s: %w", id, staging.ErrSceneNotFound)
		}
		return nil, fmt.Errorf("getting scene: %w", err)
	}
	scene.Status = staging.SceneStatus(status)
	scene.CreatedAt = parseTime(created)
	scene.UpdatedAt = parseTime(updated)
	return &scene, nil
}

// TransitionScene is a compare-and-set on scene status, so concurrent
// callers cannot both move the same scene.
func (c *Client) TransitionScene(ctx context.Context, id string, from, to staging.SceneStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", staging.ErrInvalidTransition, from, to)
	}

	res, err := c.db.ExecContext(ctx, `
	UPDATE scenes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), c.now().UTC().Format(timeFormat), id, string(from))
	if err != nil {
		return fmt.Errorf("transitioning scene: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning scene: %w", err)
	}
	if affected == 0 {
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

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM scenes WHERE id = ?`, p.SceneID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
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

	_, err = tx.ExecContext(ctx, `
	INSERT INTO proposals (id, scene_id, universe_id, proposal_type, payload, authority, confidence, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SceneID, p.UniverseID, string(p.Type), string(payload),
		string(p.Authority), p.Confidence, string(staging.StatusProposed),
		created.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating proposal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing proposal: %w", err)
	}
	return nil
}

func (c *Client) GetProposal(ctx context.Context, id string) (*staging.Proposal, error) {
	row := c.db.QueryRowContext(ctx, `
	SELECT id, scene_id, universe_id, proposal_type, payload, authority, confidence, status, rationale, contradictions, created_at, resolved_at
	FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("proposal %s: %w", id, staging.ErrProposalNotFound)
		}
		return nil, fmt.Errorf("getting proposal: %w", err)
	}
	return p, nil
}

// PendingProposals orders by creation time with proposal id as the tie
// break, which makes batch evaluation order deterministic.
func (c *Client) PendingProposals(ctx context.Context, sceneID string) ([]staging.Proposal, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT id, scene_id, universe_id, proposal_type, payload, authority, confidence, status, rationale, contradictions, created_at, resolved_at
	FROM proposals
	WHERE scene_id = ? AND status = ?
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

	res, err := c.db.ExecContext(ctx, `
	UPDATE proposals SET status = ?, rationale = ?, contradictions = ?, resolved_at = ?
	WHERE id = ? AND status = ?`,
		string(status), rationale, string(encoded), c.now().UTC().Format(timeFormat),
		id, string(staging.StatusProposed))
	if err != nil {
		return fmt.Errorf("resolving proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving proposal: %w", err)
	}
	if affected == 0 {
		if _, err := c.GetProposal(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("proposal %s: %w", id, staging.ErrAlreadyResolved)
	}
	return nil
}

// AcquireLease takes or refreshes the scene's canonization lease. A
// live lease owned by another holder wins; an expired one is claimable.
func (c *Client) AcquireLease(ctx context.Context, sceneID, holder string, ttl time.Duration) error {
	now := c.now().UTC()
	expires := now.Add(ttl).Format(timeFormat)

	res, err := c.db.ExecContext(ctx, `
	INSERT INTO canonization_leases (scene_id, holder, expires_at) VALUES (?, ?, ?)
	ON CONFLICT (scene_id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
	WHERE canonization_leases.holder = excluded.holder OR canonization_leases.expires_at <= ?`,
		sceneID, holder, expires, now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("scene %s: %w", sceneID, staging.ErrCanonizationInFlight)
	}
	return nil
}

func (c *Client) ReleaseLease(ctx context.Context, sceneID, holder string) error {
	if _, err := c.db.ExecContext(ctx, `
	DELETE FROM canonization_leases WHERE scene_id = ? AND holder = ?`, sceneID, holder); err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

func scanProposal(row rowScanner) (*staging.Proposal, error) {
	var p staging.Proposal
	var proposalType, payload, authority, status, contradictions, created, resolved string
	if err := row.Scan(&p.ID, &p.SceneID, &p.UniverseID, &proposalType, &payload, &authority,
		&p.Confidence, &status, &p.Rationale, &contradictions, &created, &resolved); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}
	if contradictions != "" {
		if err := json.Unmarshal([]byte(contradictions), &p.Contradictions); err != nil {
			return nil, fmt.Errorf("unmarshaling contradictions: %w", err)
		}
	}
	p.Type = staging.ProposalType(proposalType)
	p.Authority = canon.Authority(authority)
	p.Status = staging.ProposalStatus(status)
	p.CreatedAt = parseTime(created)
	if resolved != "" {
		p.ResolvedAt = parseTime(resolved)
	}
	return &p, nil
}
