package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/receipts/controller"
	"schoolku_backend/internals/middlewares/guard"
)

// ReceiptPublicRoutes: r = /api/public/:school_id
func ReceiptPublicRoutes(r fiber.Router, ctl *controller.ReceiptController) {
	r.Get("/receipts/:receipt_no", guard.Require(guard.OpReceiptByNumber), ctl.ByNumber)
}

// ReceiptUserRoutes: r = /api/u/:school_id
func ReceiptUserRoutes(r fiber.Router, ctl *controller.ReceiptController) {
	r.Get("/receipts/:receipt_no", guard.Require(guard.OpReceiptByNumber), ctl.ByNumber)
}

// ReceiptAdminRoutes: r = /api/a/:school_id
func ReceiptAdminRoutes(r fiber.Router, ctl *controller.ReceiptController) {
	r.Get("/receipts/:receipt_no", guard.Require(guard.OpReceiptByNumber), ctl.ByNumber)
	r.Patch("/receipts/:receipt_no/url", guard.Require(guard.OpAttachReceiptURL), ctl.AttachURL)
	r.Get("/receipt-sequence", guard.Require(guard.OpReceiptSequence), ctl.Sequence)
}
