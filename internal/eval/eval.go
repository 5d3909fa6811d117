package eval

import (
	"fmt"
	"strings"

	"canonkeep/internal/canon"
	"canonkeep/internal/staging"
)

// Decision is the outcome of evaluating one proposal against its canon
// context. Evaluation is pure: identical inputs always produce the
// identical decision.
type Decision struct {
	Accept         bool
	Score          float64
	Rationale      string
	Contradictions []string

	// HardOverride marks a rejection forced by a contradiction against
	// source- or gm-authority canon, regardless of score.
	HardOverride bool
}

const contradictionPenalty = 0.5

// Evaluate scores a proposal against the canon facts that involve the
// same entities and decides acceptance. Evidence presence is a hard
// precondition for fact, event, and state-change proposals; it is never
// outweighed by a good score.
func Evaluate(p staging.Proposal, canonCtx []canon.Fact, pol Policy) Decision {
	if requiresEvidence(p.Type) && len(p.Payload.Evidence) == 0 {
		return Decision{
			Accept:    false,
			Rationale: "rejected: missing mandatory evidence; attach at least one source, fact, or event reference and retry",
		}
	}

	contradictions, hardOverride := findContradictions(p, canonCtx)

	authority := pol.AuthorityWeights[p.Authority]
	evidence := evidenceQuality(p.Payload.Evidence)
	consistency := 1.0 - contradictionPenalty*float64(len(contradictions))
	if consistency < 0 {
		consistency = 0
	}

	factors := []factor{
		{"authority", pol.Weights.Authority * authority},
		{"evidence", pol.Weights.Evidence * evidence},
		{"consistency", pol.Weights.Consistency * consistency},
		{"confidence", pol.Weights.Confidence * p.Confidence},
	}
	score := 0.0
	dominant := factors[0]
	for _, f := range factors {
		score += f.contribution
		if f.contribution > dominant.contribution {
			dominant = f
		}
	}

	accept := score >= pol.Threshold && !hardOverride

	return Decision{
		Accept:         accept,
		Score:          score,
		Rationale:      rationale(accept, hardOverride, score, pol.Threshold, dominant, contradictions),
		Contradictions: contradictions,
		HardOverride:   hardOverride,
	}
}

type factor struct {
	name         string
	contribution float64
}

func requiresEvidence(t staging.ProposalType) bool {
	switch t {
	case staging.TypeFact, staging.TypeEvent, staging.TypeStateChange:
		return true
	}
	return false
}

// evidenceQuality is a presence test graded by count: one reference
// clears the bar, additional references raise quality up to 1.0.
func evidenceQuality(refs []string) float64 {
	if len(refs) == 0 {
		return 0
	}
	quality := 0.6 + 0.2*float64(len(refs)-1)
	if quality > 1.0 {
		return 1.0
	}
	return quality
}

// findContradictions returns the ids of canon-level facts that directly
// negate the proposal: same entity, same state dimension, incompatible
// tag. hardOverride is set when any such fact carries source or gm
// authority, which a lower-authority proposal can never overturn.
func findContradictions(p staging.Proposal, canonCtx []canon.Fact) (ids []string, hardOverride bool) {
	dim, tag := p.Payload.Dimension, p.Payload.Tag
	if strings.TrimSpace(dim) == "" {
		return nil, false
	}

	targets := make(map[string]bool, len(p.Payload.Entities))
	for _, id := range p.Payload.Entities {
		targets[id] = true
	}

	for _, f := range canonCtx {
		if f.Level != canon.LevelCanon {
			continue
		}
		if !involvesAny(f, targets) {
			continue
		}
		if !canon.Incompatible(f.Dimension, f.Tag, dim, tag) {
			continue
		}
		ids = append(ids, f.ID)
		if f.Authority == canon.AuthoritySource || f.Authority == canon.AuthorityGM {
			hardOverride = true
		}
	}
	return ids, hardOverride
}

func involvesAny(f canon.Fact, targets map[string]bool) bool {
	for _, id := range f.Involves {
		if targets[id] {
			return true
		}
	}
	return false
}

func rationale(accept, hardOverride bool, score, threshold float64, dominant factor, contradictions []string) string {
	if hardOverride {
		return fmt.Sprintf("rejected: contradicts higher-authority canon [%s]; overturning it requires an explicit retcon", strings.Join(contradictions, ", "))
	}
	if accept {
		return fmt.Sprintf("accepted: score %.2f meets threshold %.2f, dominant factor %s", score, threshold, dominant.name)
	}
	if len(contradictions) > 0 {
		return fmt.Sprintf("rejected: score %.2f below threshold %.2f, dominant factor %s, contradicts [%s]", score, threshold, dominant.name, strings.Join(contradictions, ", "))
	}
	return fmt.Sprintf("rejected: score %.2f below threshold %.2f, dominant factor %s", score, threshold, dominant.name)
}
