package guard

import (
	"context"

	"github.com/google/uuid"

	"schoolku_backend/internals/constants"
)

// Principal is the caller identity bound to one request: the tenant claim
// (nil for unauthenticated callers), the user and the role set for that tenant.
type Principal struct {
	SchoolID *uuid.UUID
	UserID   *uuid.UUID
	Roles    []string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal on ctx, or the anonymous principal.
func FromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Principal{}
}

// System is the principal used by queue workers and webhook processing,
// scoped to exactly one tenant.
func System(schoolID uuid.UUID) Principal {
	id := schoolID
	return Principal{SchoolID: &id, Roles: []string{constants.RoleSystem}}
}

func AsSystem(ctx context.Context, schoolID uuid.UUID) context.Context {
	return WithPrincipal(ctx, System(schoolID))
}

func (p Principal) Anonymous() bool { return p.SchoolID == nil }

func (p Principal) HasAnyRole(allowed []string) bool {
	for _, r := range p.Roles {
		r = constants.NormalizeRole(r)
		for _, a := range allowed {
			if r == a {
				return true
			}
		}
	}
	return false
}

// ActorID is the user recorded on audit events; nil for system actions.
func (p Principal) ActorID() *uuid.UUID {
	return p.UserID
}
