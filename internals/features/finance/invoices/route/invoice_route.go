package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/invoices/controller"
	"schoolku_backend/internals/middlewares/guard"
)

// InvoiceUserRoutes: r = /api/u/:school_id
func InvoiceUserRoutes(r fiber.Router, ctl *controller.InvoiceController) {
	inv := r.Group("/invoices")
	inv.Get("/", guard.Require(guard.OpInvoicesByStudent), ctl.ByStudent)
	inv.Get("/number/:number", guard.Require(guard.OpInvoiceByNumber), ctl.ByNumber)
	inv.Put("/:id/optional-items", guard.Require(guard.OpSelectOptionalItems), ctl.SelectOptionalItems)
	inv.Get("/:id/installment-plan", guard.Require(guard.OpInstallmentPlanByInvoice), ctl.InstallmentPlan)
}

// InvoiceAdminRoutes: r = /api/a/:school_id
func InvoiceAdminRoutes(r fiber.Router, ctl *controller.InvoiceController) {
	inv := r.Group("/invoices")
	inv.Post("/", guard.Require(guard.OpCreateInvoice), ctl.Create)
	inv.Post("/generate", guard.Require(guard.OpGenerateClassInvoices), ctl.Generate)
	inv.Get("/", guard.Require(guard.OpInvoicesByStudent), ctl.ByStudent)
	inv.Get("/number/:number", guard.Require(guard.OpInvoiceByNumber), ctl.ByNumber)
	inv.Post("/:id/adjustments", guard.Require(guard.OpCreateFeeAdjustment), ctl.CreateAdjustment)
	inv.Post("/:id/installment-plan", guard.Require(guard.OpCreateInstallmentPlan), ctl.CreateInstallmentPlan)
	inv.Get("/:id/installment-plan", guard.Require(guard.OpInstallmentPlanByInvoice), ctl.InstallmentPlan)

	r.Get("/defaulters", guard.Require(guard.OpDefaultersByClass), ctl.Defaulters)
}
