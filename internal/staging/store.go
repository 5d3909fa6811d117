package staging

import (
	"context"
	"time"
)

// Store holds mutable, short-lived staging state: scenes, proposals,
// and the per-scene canonization leases.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	CreateScene(ctx context.Context, scene Scene) error
	GetScene(ctx context.Context, id string) (*Scene, error)

	// TransitionScene moves a scene from one status to the next as a
	// compare-and-set: it fails with ErrInvalidTransition when the
	// scene is not currently in from, or when from cannot move to to.
	TransitionScene(ctx context.Context, id string, from, to SceneStatus) error

	// CreateProposal stages a proposal. It fails with ErrSceneCompleted
	// when the target scene is terminal.
	CreateProposal(ctx context.Context, p Proposal) error
	GetProposal(ctx context.Context, id string) (*Proposal, error)

	// PendingProposals returns the scene's proposed-status proposals
	// ordered by creation time, ties broken by id, so canonization is
	// deterministic and reproducible.
	PendingProposals(ctx context.Context, sceneID string) ([]Proposal, error)

	// ResolveProposal moves a proposal from proposed to a terminal
	// status exactly once, recording the rationale and any
	// contradicting fact ids for audit.
	ResolveProposal(ctx context.Context, id string, status ProposalStatus, rationale string, contradictions []string) error

	// AcquireLease grants the exclusive right to canonize a scene for
	// ttl. A live lease held elsewhere fails with
	// ErrCanonizationInFlight; an expired lease is claimable.
	AcquireLease(ctx context.Context, sceneID, holder string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, sceneID, holder string) error
}
