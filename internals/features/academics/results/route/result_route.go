package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/academics/results/controller"
	"schoolku_backend/internals/middlewares/guard"
)

// ResultUserRoutes: r = /api/u/:school_id
func ResultUserRoutes(r fiber.Router, ctl *controller.ResultController) {
	r.Get("/report-cards", guard.Require(guard.OpReportCardsByStudentTerm), ctl.ReportCards)
}

// ResultAdminRoutes: r = /api/a/:school_id
func ResultAdminRoutes(r fiber.Router, ctl *controller.ResultController) {
	r.Get("/report-cards", guard.Require(guard.OpReportCardsByStudentTerm), ctl.ReportCards)
	r.Put("/report-cards", guard.Require(guard.OpUpsertReportCard), ctl.UpsertReportCard)
	r.Put("/release-policy", guard.Require(guard.OpUpsertReleasePolicy), ctl.UpsertReleasePolicy)
	r.Post("/results/publish", guard.Require(guard.OpPublishResults), ctl.Publish)
}
