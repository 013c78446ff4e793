package policy

import (
	"context"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
)

// Operation names follow the permission codenames of the entity
// operation surface.
type Operation string

const (
	OperationAdd    Operation = "add"
	OperationRead   Operation = "read"
	OperationChange Operation = "change"
	OperationDelete Operation = "delete"
	OperationExport Operation = "export"
)

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}

	return "deny"
}

// Principal is the authenticated actor a request is made on behalf
// of. It is resolved by the request boundary and treated as opaque
// input here.
type Principal struct {
	ID            string
	Roles         []string
	Scope         string
	Authenticated bool
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// Policy decides whether a principal may perform an operation on an
// entity instance. Decisions are pure functions of their inputs: no
// caching, no hidden state. The instance is nil for collection level
// checks and for add, where no instance exists yet.
type Policy interface {
	Decide(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error)
}

type Func func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error)

func (f Func) Decide(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
	return f(ctx, p, e, op)
}

// Owner allows access to the instance owner only.
func Owner() Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		if e != nil && e.Owner() != "" && e.Owner() == p.ID {
			return Allow, nil
		}

		return Deny, nil
	})
}

// SameScope allows access when the principal belongs to the same
// organizational scope as the instance.
func SameScope() Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		if e != nil && e.Scope() != "" && e.Scope() == p.Scope {
			return Allow, nil
		}

		return Deny, nil
	})
}

// RequireRole allows access to principals carrying the given role.
func RequireRole(role string) Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		if p.HasRole(role) {
			return Allow, nil
		}

		return Deny, nil
	})
}

// AnyOf allows when at least one of the given policies allows.
func AnyOf(policies ...Policy) Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		for _, pol := range policies {
			decision, err := pol.Decide(ctx, p, e, op)
			if err != nil {
				return Deny, err
			}

			if decision == Allow {
				return Allow, nil
			}
		}

		return Deny, nil
	})
}

// AllOf allows only when every one of the given policies allows.
func AllOf(policies ...Policy) Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		for _, pol := range policies {
			decision, err := pol.Decide(ctx, p, e, op)
			if err != nil {
				return Deny, err
			}

			if decision != Allow {
				return Deny, nil
			}
		}

		return Allow, nil
	})
}

// Default is the policy applied when a descriptor declares none:
// read and export are allowed for any authenticated principal, add is
// allowed for any authenticated principal, and change/delete are
// allowed for the instance owner only.
func Default() Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		if !p.Authenticated {
			return Deny, nil
		}

		switch op {
		case OperationRead, OperationExport, OperationAdd:
			return Allow, nil
		case OperationChange, OperationDelete:
			return Owner().Decide(ctx, p, e, op)
		}

		return Deny, nil
	})
}

// ScopeRestricted allows writes only when the principal belongs to
// the same organizational scope as the instance. Reads follow the
// default policy.
func ScopeRestricted() Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		if !p.Authenticated {
			return Deny, nil
		}

		switch op {
		case OperationRead, OperationExport, OperationAdd:
			return Allow, nil
		case OperationChange, OperationDelete:
			return SameScope().Decide(ctx, p, e, op)
		}

		return Deny, nil
	})
}

// RoleRestricted requires the given role for add/change/delete.
// Reads and exports are allowed for any authenticated principal.
func RoleRestricted(role string) Policy {
	return Func(func(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
		if !p.Authenticated {
			return Deny, nil
		}

		switch op {
		case OperationRead, OperationExport:
			return Allow, nil
		case OperationAdd, OperationChange, OperationDelete:
			return RequireRole(role).Decide(ctx, p, e, op)
		}

		return Deny, nil
	})
}
