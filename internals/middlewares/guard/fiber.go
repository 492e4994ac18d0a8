package guard

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"schoolku_backend/internals/helpers/apperr"
)

// Require runs the policy for op against the :school_id path parameter.
func Require(op Op) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid, err := uuid.Parse(strings.TrimSpace(c.Params("school_id")))
		if err != nil {
			return apperr.Validation("invalid school_id")
		}
		if err := Enforce(c.UserContext(), op, sid); err != nil {
			return err
		}
		c.Locals("school_id", sid)
		return c.Next()
	}
}

// SchoolID returns the tenant resolved by Require.
func SchoolID(c *fiber.Ctx) uuid.UUID {
	if v, ok := c.Locals("school_id").(uuid.UUID); ok {
		return v
	}
	id, _ := uuid.Parse(strings.TrimSpace(c.Params("school_id")))
	return id
}
