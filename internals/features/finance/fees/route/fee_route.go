package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/fees/controller"
	"schoolku_backend/internals/middlewares/guard"
)

// FeeUserRoutes: r = /api/u/:school_id
func FeeUserRoutes(r fiber.Router, ctl *controller.FeeController) {
	r.Get("/fee-items", guard.Require(guard.OpListFeeItems), ctl.ListItems)
	r.Get("/fee-schedules/:id", guard.Require(guard.OpGetFeeSchedule), ctl.GetSchedule)
}

// FeeAdminRoutes: r = /api/a/:school_id
func FeeAdminRoutes(r fiber.Router, ctl *controller.FeeController) {
	items := r.Group("/fee-items")
	items.Get("/", guard.Require(guard.OpListFeeItems), ctl.ListItems)
	items.Post("/", guard.Require(guard.OpUpsertFeeItem), ctl.CreateItem)
	items.Patch("/:id", guard.Require(guard.OpUpsertFeeItem), ctl.UpdateItem)
	items.Delete("/:id", guard.Require(guard.OpDeleteFeeItem), ctl.DeleteItem)

	sch := r.Group("/fee-schedules")
	sch.Post("/", guard.Require(guard.OpCreateFeeSchedule), ctl.CreateSchedule)
	sch.Get("/:id", guard.Require(guard.OpGetFeeSchedule), ctl.GetSchedule)
	sch.Patch("/:id", guard.Require(guard.OpUpdateFeeSchedule), ctl.UpdateSchedule)

	r.Put("/billing-policy", guard.Require(guard.OpUpsertBillingPolicy), ctl.UpsertBillingPolicy)
}
