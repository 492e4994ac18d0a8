// Package guard binds every billing operation to the caller's tenant claim
// and role set. Services call Enforce at their entry point; the fiber
// middleware runs the same check before a controller is reached.
package guard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/helpers/apperr"
)

// Enforce checks op against the principal on ctx for the tenant implied by
// the request arguments. Unknown operations fail closed.
func Enforce(ctx context.Context, op Op, schoolID uuid.UUID) error {
	pol, ok := Policies[op]
	if !ok {
		return apperr.Unauthorized(fmt.Sprintf("operation %q has no policy", op))
	}
	if schoolID == uuid.Nil {
		return apperr.Validation("school_id is required")
	}

	p := FromContext(ctx)
	if p.SchoolID != nil && *p.SchoolID != schoolID {
		return apperr.Unauthorized(constants.ErrTenantMismatch)
	}
	if pol.Mutation && p.Anonymous() {
		return apperr.Unauthorized(fmt.Sprintf(constants.ErrAnonymousWrite, op))
	}
	if len(pol.Roles) > 0 && !p.HasAnyRole(pol.Roles) {
		return apperr.Unauthorized(constants.RoleErrorOperation(string(op)))
	}
	return nil
}
