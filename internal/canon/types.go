package canon

import "time"

// Authority classes a canonical assertion by the credibility of whoever
// asserted it. Ordering matters: source outranks gm outranks player
// outranks system.
type Authority string

const (
	AuthoritySource Authority = "source"
	AuthorityGM     Authority = "gm"
	AuthorityPlayer Authority = "player"
	AuthoritySystem Authority = "system"
)

func (a Authority) Valid() bool {
	switch a {
	case AuthoritySource, AuthorityGM, AuthorityPlayer, AuthoritySystem:
		return true
	}
	return false
}

// CanonLevel marks whether a fact is current truth or has been
// explicitly superseded. There is no deleted level: retired facts stay
// in the graph as retconned.
type CanonLevel string

const (
	LevelCanon     CanonLevel = "canon"
	LevelRetconned CanonLevel = "retconned"
)

// Kind distinguishes plain assertions from events, which may participate
// in CAUSES chains.
type Kind string

const (
	KindFact  Kind = "fact"
	KindEvent Kind = "event"
)

// Story is the top-level container for a universe of canon. Its id is
// the universe id every other node carries.
type Story struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Archetype is a timeless template, e.g. a creature type. It has no
// mutable state; anything asserted about it lives in Fact nodes.
type Archetype struct {
	ID         string
	UniverseID string
	Name       string
	Category   string
	Properties map[string]any
	CreatedAt  time.Time
}

// Instance is a concrete occurrence of at most one Archetype. StateTags
// is a denormalized view of the instance's current status, keyed by
// dimension; it changes only through canonized state-change facts.
type Instance struct {
	ID          string
	UniverseID  string
	Name        string
	Category    string
	ArchetypeID string
	Properties  map[string]any
	StateTags   map[string]string
	CreatedAt   time.Time
}

// Fact is a canonical assertion or event. Evidence is mandatory: a fact
// with no SUPPORTED_BY references is invalid and must never be written.
type Fact struct {
	ID         string
	UniverseID string
	Kind       Kind
	Statement  string
	Level      CanonLevel
	Authority  Authority
	Confidence float64
	RecordedAt time.Time

	// Dimension and Tag are set when the fact asserts a state within a
	// mutually-exclusive dimension (e.g. life=alive).
	Dimension string
	Tag       string

	Involves []string // INVOLVES -> instance/archetype ids
	Evidence []string // SUPPORTED_BY -> source/fact/event ids
	Causes   []string // CAUSES -> event ids; must stay acyclic

	// CausesFrom redirects the CAUSES edges to originate from an
	// existing event instead of this fact, for assertions that link two
	// events already in canon. Empty means this fact is the source.
	CausesFrom string

	// Set when Level is retconned.
	SupersededBy string
	RetconReason string
}

// Edge types in the canonical graph.
const (
	EdgeDerivesFrom = "DERIVES_FROM"
	EdgeInvolves    = "INVOLVES"
	EdgeSupportedBy = "SUPPORTED_BY"
	EdgeCauses      = "CAUSES"
)

// SourceKind distinguishes provenance roots.
type SourceKind string

const (
	SourceDocument     SourceKind = "document"
	SourceGMStatement  SourceKind = "gm_statement"
	SourcePlayerAction SourceKind = "player_action"
)

// Source is an immutable provenance root that evidence links point at.
type Source struct {
	ID         string
	UniverseID string
	Kind       SourceKind
	Ref        string
	CreatedAt  time.Time
}
