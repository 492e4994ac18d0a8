package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/audit/controller"
	"schoolku_backend/internals/middlewares/guard"
)

// AuditAdminRoutes: r = /api/a/:school_id
func AuditAdminRoutes(r fiber.Router, ctl *controller.AuditController) {
	r.Get("/audit-events", guard.Require(guard.OpListAuditEvents), ctl.List)
}
