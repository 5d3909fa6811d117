package staging

import (
	"strings"
	"testing"

	"canonkeep/internal/canon"
)

func validProposal() Proposal {
	return Proposal{
		ID:         "prop-1",
		SceneID:    "scene-1",
		UniverseID: "story-1",
		Type:       TypeFact,
		Authority:  canon.AuthorityGM,
		Confidence: 0.9,
		Status:     StatusProposed,
		Payload:    Payload{Statement: "The gate is sealed"},
	}
}

func TestProposalValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Proposal)
		wantErr string
	}{
		{"valid fact", func(p *Proposal) {}, ""},
		{"missing scene", func(p *Proposal) { p.SceneID = " " }, "scene id"},
		{"missing universe", func(p *Proposal) { p.UniverseID = "" }, "universe id"},
		{"bad type", func(p *Proposal) { p.Type = "rumor" }, "proposal type"},
		{"bad authority", func(p *Proposal) { p.Authority = "narrator" }, "authority"},
		{"confidence above one", func(p *Proposal) { p.Confidence = 1.5 }, "confidence"},
		{"confidence negative", func(p *Proposal) { p.Confidence = -0.1 }, "confidence"},
		{"fact without statement", func(p *Proposal) { p.Payload.Statement = "" }, "statement"},
		{"entity without spec", func(p *Proposal) {
			p.Type = TypeEntity
			p.Payload = Payload{}
		}, "entity spec"},
		{"entity ok", func(p *Proposal) {
			p.Type = TypeEntity
			p.Payload = Payload{Entity: &EntitySpec{Name: "Gandalf", Category: "character"}}
		}, ""},
		{"state change unknown dimension", func(p *Proposal) {
			p.Type = TypeStateChange
			p.Payload = Payload{Dimension: "mood", Tag: "grumpy", Entities: []string{"inst-1"}}
		}, "dimension"},
		{"state change bad tag", func(p *Proposal) {
			p.Type = TypeStateChange
			p.Payload = Payload{Dimension: "life", Tag: "undead", Entities: []string{"inst-1"}}
		}, "tag"},
		{"state change without target", func(p *Proposal) {
			p.Type = TypeStateChange
			p.Payload = Payload{Dimension: "life", Tag: "dead"}
		}, "target entity"},
		{"state change ok", func(p *Proposal) {
			p.Type = TypeStateChange
			p.Payload = Payload{Dimension: "life", Tag: "dead", Entities: []string{"inst-1"}}
		}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProposal()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestProposalStatusTerminal(t *testing.T) {
	if StatusProposed.Terminal() {
		t.Fatalf("proposed must not be terminal")
	}
	if !StatusAccepted.Terminal() || !StatusRejected.Terminal() {
		t.Fatalf("accepted and rejected must be terminal")
	}
}
