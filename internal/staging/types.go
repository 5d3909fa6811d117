package staging

import (
	"fmt"
	"strings"
	"time"

	"canonkeep/internal/canon"
)

// ProposalType categorizes what a proposal wants to add to canon.
type ProposalType string

const (
	TypeFact        ProposalType = "fact"
	TypeEvent       ProposalType = "event"
	TypeEntity      ProposalType = "entity"
	TypeStateChange ProposalType = "state_change"
)

func (t ProposalType) Valid() bool {
	switch t {
	case TypeFact, TypeEvent, TypeEntity, TypeStateChange:
		return true
	}
	return false
}

// ProposalStatus is monotonic: proposed transitions exactly once, to
// accepted or rejected, and never back.
type ProposalStatus string

const (
	StatusProposed ProposalStatus = "proposed"
	StatusAccepted ProposalStatus = "accepted"
	StatusRejected ProposalStatus = "rejected"
)

func (s ProposalStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// EntitySpec describes the entity a type=entity proposal wants created.
type EntitySpec struct {
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Archetype   bool           `json:"archetype,omitempty"`
	ArchetypeID string         `json:"archetype_id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Payload carries the substance of a proposal. Entities are canonical
// instance/archetype ids; Evidence entries are canonical source, fact,
// or event ids.
type Payload struct {
	Statement string   `json:"statement"`
	Entities  []string `json:"entities,omitempty"`
	Dimension string   `json:"dimension,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Evidence  []string `json:"evidence,omitempty"`

	// Causes lists event ids the canonized node will have CAUSES edges
	// to. CausesFrom names an existing event as the edge source for
	// proposals that assert a causal link between two events already in
	// canon; empty means the new node itself.
	Causes     []string `json:"causes,omitempty"`
	CausesFrom string   `json:"causes_from,omitempty"`

	Entity *EntitySpec `json:"entity,omitempty"`
}

// Proposal is a staged, mutable candidate change. Its id is a staging
// identifier and must never leak into canonical node ids.
type Proposal struct {
	ID         string
	SceneID    string
	UniverseID string
	Type       ProposalType
	Payload    Payload
	Authority  canon.Authority
	Confidence float64
	Status     ProposalStatus
	CreatedAt  time.Time

	// Populated when the proposal reaches a terminal status.
	Rationale      string
	Contradictions []string
	ResolvedAt     time.Time
}

// Validate checks the structural shape of a proposal before it is
// staged. Evidence presence is deliberately not checked here: that is
// an evaluation concern with its own rejection path.
func (p *Proposal) Validate() error {
	if strings.TrimSpace(p.SceneID) == "" {
		return fmt.Errorf("scene id is required")
	}
	if strings.TrimSpace(p.UniverseID) == "" {
		return fmt.Errorf("universe id is required")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("invalid proposal type: %s", p.Type)
	}
	if !p.Authority.Valid() {
		return fmt.Errorf("invalid authority: %s", p.Authority)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1]: %g", p.Confidence)
	}
	switch p.Type {
	case TypeEntity:
		if p.Payload.Entity == nil || strings.TrimSpace(p.Payload.Entity.Name) == "" {
			return fmt.Errorf("entity proposal requires an entity spec with a name")
		}
	case TypeStateChange:
		if !canon.ValidDimension(p.Payload.Dimension) {
			return fmt.Errorf("unknown state dimension: %s", p.Payload.Dimension)
		}
		if !canon.ValidTag(p.Payload.Dimension, p.Payload.Tag) {
			return fmt.Errorf("invalid tag %q for dimension %s", p.Payload.Tag, p.Payload.Dimension)
		}
		if len(p.Payload.Entities) == 0 {
			return fmt.Errorf("state change requires a target entity")
		}
	default:
		if strings.TrimSpace(p.Payload.Statement) == "" {
			return fmt.Errorf("%s proposal requires a statement", p.Type)
		}
	}
	return nil
}
