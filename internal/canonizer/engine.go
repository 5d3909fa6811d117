package canonizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canonkeep/internal/canon"
	"canonkeep/internal/eval"
	"canonkeep/internal/staging"
)

const defaultLeaseTTL = 60 * time.Second

// Engine orchestrates canonization batches. It is the exclusive writer
// of the canonical store, which it proves by holding a canonizer-role
// write capability.
type Engine struct {
	canon   canon.Store
	staging staging.Store
	policy  eval.Policy
	cap     canon.WriteCap

	holder   string
	leaseTTL time.Duration
	now      func() time.Time
	newID    func() string
}

// New wires an engine. now and newID may be nil, defaulting to the wall
// clock and random UUIDs; tests inject deterministic versions.
func New(canonStore canon.Store, stagingStore staging.Store, policy eval.Policy, holder string, leaseTTL time.Duration, now func() time.Time, newID func() string) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	writeCap, err := canon.NewWriteCap(canon.RoleCanonizer)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	if holder == "" {
		holder = "canonkeep-" + uuid.NewString()
	}
	return &Engine{
		canon:    canonStore,
		staging:  stagingStore,
		policy:   policy,
		cap:      writeCap,
		holder:   holder,
		leaseTTL: leaseTTL,
		now:      now,
		newID:    newID,
	}, nil
}

// EndScene moves an active scene into finalizing and canonizes it. A
// scene already finalizing is retried; a completed scene is a no-op
// returning an empty report.
func (e *Engine) EndScene(ctx context.Context, sceneID string) (*Report, error) {
	scene, err := e.staging.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	switch scene.Status {
	case staging.SceneCompleted:
		return &Report{SceneID: sceneID}, nil
	case staging.SceneActive:
		if err := e.staging.TransitionScene(ctx, sceneID, staging.SceneActive, staging.SceneFinalizing); err != nil {
			return nil, err
		}
	}
	return e.CanonizeScene(ctx, sceneID)
}

// CanonizeScene runs one batch for a finalizing scene: it takes the
// scene's canonization lease, evaluates pending proposals in creation
// order against a canon context re-fetched per proposal, writes accepted
// results, and completes the scene when no write errored. Earlier
// writes in the batch are visible to later proposals, so within-batch
// contradictions are caught by ordering.
func (e *Engine) CanonizeScene(ctx context.Context, sceneID string) (*Report, error) {
	scene, err := e.staging.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	switch scene.Status {
	case staging.SceneCompleted:
		// Re-running a finished scene performs no writes.
		return &Report{SceneID: sceneID}, nil
	case staging.SceneActive:
		return nil, fmt.Errorf("%w: scene %s is active; end the scene first", staging.ErrInvalidTransition, sceneID)
	}

	if err := e.staging.AcquireLease(ctx, sceneID, e.holder, e.leaseTTL); err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = e.staging.ReleaseLease(releaseCtx, sceneID, e.holder)
	}()

	pending, err := e.staging.PendingProposals(ctx, sceneID)
	if err != nil {
		return nil, err
	}

	report := &Report{SceneID: sceneID}
	mutated := false

	for _, proposal := range pending {
		// Cancellation is honored only between proposals; a started
		// write always runs to completion or failure.
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("canonization interrupted after %d proposals: %w", len(report.Accepted)+len(report.Rejected)+len(report.Errors), err)
		}

		canonCtx, err := e.canon.CanonContext(ctx, proposal.UniverseID, proposal.Payload.Entities)
		if err != nil {
			if !mutated {
				// Nothing has changed yet; fail fast so a retry of the
				// whole call stays idempotent.
				return nil, err
			}
			report.Errors = append(report.Errors, ProposalError{ProposalID: proposal.ID, Reason: err.Error()})
			continue
		}

		decision := eval.Evaluate(proposal, canonCtx, e.policy)
		if !decision.Accept {
			if err := e.reject(ctx, proposal.ID, decision.Rationale, decision.Contradictions, report, &mutated); err != nil {
				return nil, err
			}
			continue
		}

		if reason, err := e.checkCauses(ctx, proposal); err != nil {
			if !mutated {
				return nil, err
			}
			report.Errors = append(report.Errors, ProposalError{ProposalID: proposal.ID, Reason: err.Error()})
			continue
		} else if reason != "" {
			// Structural invariant violation: forced rejection, not a
			// fatal error. The batch continues.
			if err := e.reject(ctx, proposal.ID, reason, nil, report, &mutated); err != nil {
				return nil, err
			}
			continue
		}

		if err := e.apply(ctx, proposal); err != nil {
			if isForcedRejection(err) {
				if rerr := e.reject(ctx, proposal.ID, "rejected: "+err.Error(), nil, report, &mutated); rerr != nil {
					return nil, rerr
				}
				continue
			}
			if !mutated {
				return nil, err
			}
			report.Errors = append(report.Errors, ProposalError{ProposalID: proposal.ID, Reason: err.Error()})
			continue
		}
		mutated = true

		if err := e.staging.ResolveProposal(ctx, proposal.ID, staging.StatusAccepted, decision.Rationale, nil); err != nil {
			report.Errors = append(report.Errors, ProposalError{ProposalID: proposal.ID, Reason: fmt.Sprintf("canon write succeeded but status update failed: %v", err)})
			continue
		}
		report.Accepted = append(report.Accepted, proposal.ID)
	}

	if report.OK() {
		if err := e.staging.TransitionScene(ctx, sceneID, staging.SceneFinalizing, staging.SceneCompleted); err != nil {
			return report, err
		}
	}
	return report, nil
}

// reject resolves a proposal as rejected. A failure before anything was
// mutated fails the whole call fast; afterwards it is recorded and the
// batch continues, which the caller handles via the returned error being
// nil.
func (e *Engine) reject(ctx context.Context, proposalID, rationale string, contradictions []string, report *Report, mutated *bool) error {
	if err := e.staging.ResolveProposal(ctx, proposalID, staging.StatusRejected, rationale, contradictions); err != nil {
		if !*mutated {
			return err
		}
		report.Errors = append(report.Errors, ProposalError{ProposalID: proposalID, Reason: err.Error()})
		return nil
	}
	*mutated = true
	report.Rejected = append(report.Rejected, proposalID)
	return nil
}

// checkCauses pre-checks the acyclicity invariant for CAUSES edges the
// proposal would add. A non-empty reason means forced rejection; an
// error means the store could not answer.
func (e *Engine) checkCauses(ctx context.Context, p staging.Proposal) (reason string, err error) {
	if len(p.Payload.Causes) == 0 {
		return "", nil
	}
	source := p.Payload.CausesFrom
	if source == "" {
		// A freshly minted node cannot be the target of any existing
		// edge, so edges from it cannot close a cycle.
		return "", nil
	}
	for _, target := range p.Payload.Causes {
		if target == source {
			return fmt.Sprintf("rejected: CAUSES edge %s -> %s is a self-loop", source, target), nil
		}
		exists, err := e.canon.CausesPathExists(ctx, target, source)
		if err != nil {
			return "", err
		}
		if exists {
			return fmt.Sprintf("rejected: CAUSES edge %s -> %s would close a cycle", source, target), nil
		}
	}
	return "", nil
}

// apply performs the canonical writes for an accepted proposal as one
// atomic unit. Canonical ids are freshly minted and never derived from
// staging ids.
func (e *Engine) apply(ctx context.Context, p staging.Proposal) error {
	switch p.Type {
	case staging.TypeEntity:
		spec := p.Payload.Entity
		if spec.Archetype {
			return e.canon.CreateArchetype(ctx, e.cap, canon.Archetype{
				ID:         e.newID(),
				UniverseID: p.UniverseID,
				Name:       spec.Name,
				Category:   spec.Category,
				Properties: spec.Properties,
				CreatedAt:  e.now(),
			})
		}
		return e.canon.CreateInstance(ctx, e.cap, canon.Instance{
			ID:          e.newID(),
			UniverseID:  p.UniverseID,
			Name:        spec.Name,
			Category:    spec.Category,
			ArchetypeID: spec.ArchetypeID,
			Properties:  spec.Properties,
			CreatedAt:   e.now(),
		})
	case staging.TypeFact, staging.TypeEvent, staging.TypeStateChange:
		kind := canon.KindFact
		if p.Type == staging.TypeEvent {
			kind = canon.KindEvent
		}
		return e.canon.WriteFact(ctx, e.cap, canon.Fact{
			ID:         e.newID(),
			UniverseID: p.UniverseID,
			Kind:       kind,
			Statement:  p.Payload.Statement,
			Level:      canon.LevelCanon,
			Authority:  p.Authority,
			Confidence: p.Confidence,
			RecordedAt: e.now(),
			Dimension:  p.Payload.Dimension,
			Tag:        p.Payload.Tag,
			Involves:   p.Payload.Entities,
			Evidence:   p.Payload.Evidence,
			Causes:     p.Payload.Causes,
			CausesFrom: p.Payload.CausesFrom,
		})
	}
	return fmt.Errorf("unknown proposal type: %s", p.Type)
}

// Retcon is the explicit path for superseding canon. It is distinct
// from proposal evaluation and gated by the policy's retcon authorities.
func (e *Engine) Retcon(ctx context.Context, authority canon.Authority, factID, supersededBy, reason string) error {
	if !e.policy.AllowsRetcon(authority) {
		return fmt.Errorf("authority %s may not retcon canon", authority)
	}
	return e.canon.RetconFact(ctx, e.cap, factID, supersededBy, reason)
}

// isForcedRejection distinguishes per-proposal invariant violations,
// which reject the proposal and continue, from infrastructure failures.
func isForcedRejection(err error) bool {
	return errors.Is(err, canon.ErrCausesCycle) ||
		errors.Is(err, canon.ErrMissingEvidence) ||
		errors.Is(err, canon.ErrNotFound)
}
