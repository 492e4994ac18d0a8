package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/payments/controller"
	"schoolku_backend/internals/middlewares"
	"schoolku_backend/internals/middlewares/guard"
)

// PaymentWebhookRoutes: r = /api/webhooks (signature-verified, no JWT)
func PaymentWebhookRoutes(r fiber.Router, ctl *controller.PaymentController) {
	r.Use(middlewares.WebhookRateLimiter())
	r.Post("/midtrans", ctl.MidtransWebhook)
	r.Post("/stripe", ctl.StripeWebhook)
}

// PaymentUserRoutes: r = /api/u/:school_id
func PaymentUserRoutes(r fiber.Router, ctl *controller.PaymentController) {
	r.Post("/payment-intents", guard.Require(guard.OpCreatePaymentIntent), ctl.CreateIntent)
	r.Post("/manual-proofs", middlewares.ProofUploadRateLimiter(), guard.Require(guard.OpSubmitManualPaymentProof), ctl.SubmitProof)
	r.Get("/invoices/:id/payments", guard.Require(guard.OpPaymentsByInvoice), ctl.ByInvoice)
}

// PaymentAdminRoutes: r = /api/a/:school_id
func PaymentAdminRoutes(r fiber.Router, ctl *controller.PaymentController) {
	proofs := r.Group("/manual-proofs")
	proofs.Get("/", guard.Require(guard.OpListManualPaymentProofs), ctl.ListProofs)
	proofs.Patch("/:id/review", guard.Require(guard.OpReviewManualPaymentProof), ctl.ReviewProof)

	r.Get("/invoices/:id/payments", guard.Require(guard.OpPaymentsByInvoice), ctl.ByInvoice)
}
