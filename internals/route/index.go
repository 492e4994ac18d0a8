package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/bootstrap"
	resultController "schoolku_backend/internals/features/academics/results/controller"
	resultRoute "schoolku_backend/internals/features/academics/results/route"
	auditController "schoolku_backend/internals/features/finance/audit/controller"
	auditRoute "schoolku_backend/internals/features/finance/audit/route"
	feeController "schoolku_backend/internals/features/finance/fees/controller"
	feeRoute "schoolku_backend/internals/features/finance/fees/route"
	invoiceController "schoolku_backend/internals/features/finance/invoices/controller"
	invoiceRoute "schoolku_backend/internals/features/finance/invoices/route"
	paymentController "schoolku_backend/internals/features/finance/payments/controller"
	paymentRoute "schoolku_backend/internals/features/finance/payments/route"
	receiptController "schoolku_backend/internals/features/finance/receipts/controller"
	receiptRoute "schoolku_backend/internals/features/finance/receipts/route"
	schoolkuMiddleware "schoolku_backend/internals/middlewares/auth_school"
)

var startTime time.Time

type controllers struct {
	fees     *feeController.FeeController
	invoices *invoiceController.InvoiceController
	payments *paymentController.PaymentController
	receipts *receiptController.ReceiptController
	results  *resultController.ResultController
	audit    *auditController.AuditController
}

func SetupRoutes(app *fiber.App, c *bootstrap.Container) {
	startTime = time.Now()

	ctl := controllers{
		fees:     feeController.NewFeeController(c.Fees),
		invoices: invoiceController.NewInvoiceController(c.Invoices),
		payments: paymentController.NewPaymentController(c.Payments),
		receipts: receiptController.NewReceiptController(c.Receipts),
		results:  resultController.NewResultController(c.Results),
		audit:    auditController.NewAuditController(c.Audit),
	}

	BaseRoutes(app, c)

	// ===================== WEBHOOKS =====================
	// tanpa JWT; keaslian dicek lewat signature gateway
	log.Println("[INFO] Setting up WEBHOOK group...")
	paymentRoute.PaymentWebhookRoutes(app.Group("/api/webhooks"), ctl.payments)

	// ===================== PUBLIC =====================
	// JWT opsional; hanya lookup kuitansi
	log.Println("[INFO] Setting up PUBLIC group...")
	public := app.Group("/api/public/:school_id",
		schoolkuMiddleware.AuthJWT(schoolkuMiddleware.AuthJWTOpts{
			Secret:              c.Cfg.JWTSecret,
			AllowCookieFallback: true,
			Optional:            true,
		}),
	)
	receiptRoute.ReceiptPublicRoutes(public, ctl.receipts)

	// ===================== PRIVATE (USER) =====================
	log.Println("[INFO] Setting up PRIVATE group...")
	user := app.Group("/api/u/:school_id",
		schoolkuMiddleware.AuthJWT(schoolkuMiddleware.AuthJWTOpts{
			Secret:              c.Cfg.JWTSecret,
			AllowCookieFallback: true,
		}),
	)
	feeRoute.FeeUserRoutes(user, ctl.fees)
	invoiceRoute.InvoiceUserRoutes(user, ctl.invoices)
	paymentRoute.PaymentUserRoutes(user, ctl.payments)
	receiptRoute.ReceiptUserRoutes(user, ctl.receipts)
	resultRoute.ResultUserRoutes(user, ctl.results)

	// ===================== ADMIN (per school) =====================
	// cek role dilakukan guard per operasi
	log.Println("[INFO] Setting up ADMIN group...")
	admin := app.Group("/api/a/:school_id",
		schoolkuMiddleware.AuthJWT(schoolkuMiddleware.AuthJWTOpts{
			Secret:              c.Cfg.JWTSecret,
			AllowCookieFallback: true,
		}),
	)
	feeRoute.FeeAdminRoutes(admin, ctl.fees)
	invoiceRoute.InvoiceAdminRoutes(admin, ctl.invoices)
	paymentRoute.PaymentAdminRoutes(admin, ctl.payments)
	receiptRoute.ReceiptAdminRoutes(admin, ctl.receipts)
	resultRoute.ResultAdminRoutes(admin, ctl.results)
	auditRoute.AuditAdminRoutes(admin, ctl.audit)

	log.Println("[INFO] Routes ready")
}
