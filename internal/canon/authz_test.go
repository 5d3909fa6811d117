package canon

import (
	"errors"
	"testing"
)

func TestWriteCapGrants(t *testing.T) {
	cases := []struct {
		role    Role
		op      Op
		allowed bool
	}{
		{RoleCanonizer, OpWriteFact, true},
		{RoleCanonizer, OpRetconFact, true},
		{RoleCanonizer, OpCreateInstance, true},
		{RoleCanonizer, OpCreateStory, true},
		{RoleOrchestrator, OpCreateStory, true},
		{RoleOrchestrator, OpCreateSource, true},
		{RoleOrchestrator, OpWriteFact, false},
		{RoleOrchestrator, OpCreateInstance, false},
		{RoleOrchestrator, OpRetconFact, false},
		{RoleReader, OpCreateStory, false},
		{RoleReader, OpWriteFact, false},
	}

	for _, tc := range cases {
		cap, err := NewWriteCap(tc.role)
		if err != nil {
			t.Fatalf("NewWriteCap(%s): %v", tc.role, err)
		}
		err = cap.Check(tc.op)
		if tc.allowed && err != nil {
			t.Errorf("%s should be allowed %s: %v", tc.role, tc.op, err)
		}
		if !tc.allowed {
			if err == nil {
				t.Errorf("%s should be denied %s", tc.role, tc.op)
			} else if !errors.Is(err, ErrWriteDenied) {
				t.Errorf("%s/%s: error should wrap ErrWriteDenied: %v", tc.role, tc.op, err)
			}
		}
	}
}

func TestNewWriteCap_UnknownRole(t *testing.T) {
	if _, err := NewWriteCap(Role("admin")); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestZeroWriteCapHasNoGrants(t *testing.T) {
	var cap WriteCap
	for _, op := range []Op{OpCreateStory, OpCreateSource, OpCreateArchetype, OpCreateInstance, OpWriteFact, OpRetconFact} {
		if err := cap.Check(op); err == nil {
			t.Errorf("zero capability should be denied %s", op)
		}
	}
}
