package eval

import (
	"fmt"

	"canonkeep/internal/canon"
)

// Weights are the relative shares of the four scoring factors. They
// are policy parameters, not law; Default mirrors the illustrative
// 0.3/0.3/0.3/0.1 split.
type Weights struct {
	Authority   float64
	Evidence    float64
	Consistency float64
	Confidence  float64
}

// Policy is the complete acceptance policy for proposal evaluation.
type Policy struct {
	Threshold        float64
	Weights          Weights
	AuthorityWeights map[canon.Authority]float64

	// RetconAuthorities may invoke the explicit retcon operation.
	RetconAuthorities []canon.Authority
}

func Default() Policy {
	return Policy{
		Threshold: 0.6,
		Weights:   Weights{Authority: 0.3, Evidence: 0.3, Consistency: 0.3, Confidence: 0.1},
		AuthorityWeights: map[canon.Authority]float64{
			canon.AuthoritySource: 1.0,
			canon.AuthorityGM:     0.8,
			canon.AuthorityPlayer: 0.5,
			canon.AuthoritySystem: 0.2,
		},
		RetconAuthorities: []canon.Authority{canon.AuthorityGM, canon.AuthoritySource},
	}
}

// Validate rejects policies that break evaluation assumptions. The
// authority mapping must stay monotonic in source > gm > player >
// system order; the exact values are configurable.
func (p Policy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0,1]: %g", p.Threshold)
	}
	for name, w := range map[string]float64{
		"authority":   p.Weights.Authority,
		"evidence":    p.Weights.Evidence,
		"consistency": p.Weights.Consistency,
		"confidence":  p.Weights.Confidence,
	} {
		if w < 0 {
			return fmt.Errorf("%s weight must not be negative: %g", name, w)
		}
	}
	for _, a := range []canon.Authority{canon.AuthoritySource, canon.AuthorityGM, canon.AuthorityPlayer, canon.AuthoritySystem} {
		w, ok := p.AuthorityWeights[a]
		if !ok {
			return fmt.Errorf("authority weight missing for %s", a)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("authority weight for %s must be within [0,1]: %g", a, w)
		}
	}
	if !(p.AuthorityWeights[canon.AuthoritySource] > p.AuthorityWeights[canon.AuthorityGM] &&
		p.AuthorityWeights[canon.AuthorityGM] > p.AuthorityWeights[canon.AuthorityPlayer] &&
		p.AuthorityWeights[canon.AuthorityPlayer] > p.AuthorityWeights[canon.AuthoritySystem]) {
		return fmt.Errorf("authority weights must be monotonic: source > gm > player > system")
	}
	for _, a := range p.RetconAuthorities {
		if !a.Valid() {
			return fmt.Errorf("invalid retcon authority: %s", a)
		}
	}
	return nil
}

// AllowsRetcon reports whether the authority may invoke the explicit
// retcon operation.
func (p Policy) AllowsRetcon(a canon.Authority) bool {
	for _, allowed := range p.RetconAuthorities {
		if allowed == a {
			return true
		}
	}
	return false
}
