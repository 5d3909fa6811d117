package canon

import "context"

// Store is the canonical graph of record. Everything written through it
// is append-only: nodes and edges are never physically removed, and a
// superseded fact is relabeled retconned rather than deleted. All
// mutating methods except CreateStory require a capability whose role
// the grants table allows for that operation.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	CreateStory(ctx context.Context, cap WriteCap, story Story) error
	CreateSource(ctx context.Context, cap WriteCap, src Source) error
	CreateArchetype(ctx context.Context, cap WriteCap, a Archetype) error
	CreateInstance(ctx context.Context, cap WriteCap, inst Instance) error

	// WriteFact persists the fact node, its INVOLVES and SUPPORTED_BY
	// edges, any CAUSES edges, and the denormalized state-tag update on
	// the involved instance as one atomic unit. A fact with no evidence
	// or a CAUSES edge that would close a cycle is refused whole.
	WriteFact(ctx context.Context, cap WriteCap, fact Fact) error

	// RetconFact relabels a canon fact as retconned, recording what
	// superseded it and why. The fact itself is never removed.
	RetconFact(ctx context.Context, cap WriteCap, factID, supersededBy, reason string) error

	GetStory(ctx context.Context, id string) (*Story, error)
	GetFact(ctx context.Context, id string) (*Fact, error)
	GetInstance(ctx context.Context, id string) (*Instance, error)
	GetArchetype(ctx context.Context, id string) (*Archetype, error)
	FindInstanceByName(ctx context.Context, universeID, name string) (*Instance, error)

	// CanonContext returns the facts and events that involve any of the
	// given entities within one universe, ordered by recording time.
	// Retconned history is included; evaluation filters on level. This
	// is the read slice evaluation runs against.
	CanonContext(ctx context.Context, universeID string, entityIDs []string) ([]Fact, error)

	// CausesPathExists reports whether a CAUSES path already leads from
	// fromID to toID.
	CausesPathExists(ctx context.Context, fromID, toID string) (bool, error)

	NodeCount(ctx context.Context) (int64, error)

	ListFactsMissingEvidence(ctx context.Context) ([]Fact, error)
	ListOrphanedInstances(ctx context.Context) ([]Instance, error)
}
