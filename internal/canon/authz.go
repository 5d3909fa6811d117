package canon

import "fmt"

// Op names a write operation on the canonical store. Every mutating
// store method checks the caller's capability against the grants table
// before touching data, so exclusive-writer discipline is enforced at
// the store boundary rather than by caller convention.
type Op string

const (
	OpCreateStory     Op = "create_story"
	OpCreateSource    Op = "create_source"
	OpCreateArchetype Op = "create_archetype"
	OpCreateInstance  Op = "create_instance"
	OpWriteFact       Op = "write_fact"
	OpRetconFact      Op = "retcon_fact"
)

// Role identifies a class of caller.
type Role string

const (
	// RoleCanonizer is the canonization engine, the exclusive writer of
	// canonical facts, events, instances, and archetypes.
	RoleCanonizer Role = "canonizer"
	// RoleOrchestrator is the scene-lifecycle collaborator. Its only
	// write grant is creating the top-level Story container.
	RoleOrchestrator Role = "orchestrator"
	// RoleReader holds no write grants.
	RoleReader Role = "reader"
)

var grants = map[Op]map[Role]bool{
	OpCreateStory:     {RoleCanonizer: true, RoleOrchestrator: true},
	OpCreateSource:    {RoleCanonizer: true, RoleOrchestrator: true},
	OpCreateArchetype: {RoleCanonizer: true},
	OpCreateInstance:  {RoleCanonizer: true},
	OpWriteFact:       {RoleCanonizer: true},
	OpRetconFact:      {RoleCanonizer: true},
}

// WriteCap is the capability token passed on every canonical write. It
// can only be constructed through NewWriteCap, so holding one proves the
// caller declared a role.
type WriteCap struct {
	role Role
}

func NewWriteCap(role Role) (WriteCap, error) {
	switch role {
	case RoleCanonizer, RoleOrchestrator, RoleReader:
		return WriteCap{role: role}, nil
	}
	return WriteCap{}, fmt.Errorf("unknown role: %s", role)
}

func (c WriteCap) Role() Role { return c.role }

// Check returns ErrWriteDenied unless the grants table allows the
// capability's role to perform op.
func (c WriteCap) Check(op Op) error {
	if grants[op][c.role] {
		return nil
	}
	return fmt.Errorf("%w: role %q may not %s", ErrWriteDenied, c.role, op)
}
