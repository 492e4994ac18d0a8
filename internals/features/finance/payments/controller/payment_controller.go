package controller

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schoolku_backend/internals/features/finance/payments/dto"
	"schoolku_backend/internals/features/finance/payments/model"
	"schoolku_backend/internals/features/finance/payments/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/middlewares/guard"
)

type PaymentController struct {
	Svc *service.Service
}

func NewPaymentController(svc *service.Service) *PaymentController {
	return &PaymentController{Svc: svc}
}

// POST /payment-intents
func (ctl *PaymentController) CreateIntent(c *fiber.Ctx) error {
	var req dto.CreatePaymentIntentRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	res, err := ctl.Svc.CreatePaymentIntent(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Payment intent dibuat", res)
}

// POST /manual-proofs
// JSON {invoice_id, amount, file_url} atau multipart (invoice_id, amount, evidence).
func (ctl *PaymentController) SubmitProof(c *fiber.Ctx) error {
	schoolID := guard.SchoolID(c)
	var req dto.SubmitManualPaymentProofRequest

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		id, err := uuid.Parse(strings.TrimSpace(c.FormValue("invoice_id")))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invoice_id tidak valid")
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("amount")))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "amount tidak valid")
		}
		req = dto.SubmitManualPaymentProofRequest{InvoiceID: id, Amount: amount, FileURL: strings.TrimSpace(c.FormValue("file_url"))}

		if fh, ferr := c.FormFile("evidence"); ferr == nil {
			f, err := fh.Open()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "file bukti tidak bisa dibaca")
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "file bukti tidak bisa dibaca")
			}
			url, err := ctl.Svc.UploadEvidence(c.UserContext(), schoolID, fh.Filename, data)
			if err != nil {
				return err
			}
			req.FileURL = url
		}
	} else if err := helper.BindJSON(c, &req); err != nil {
		return err
	}

	res, err := ctl.Svc.SubmitManualPaymentProof(c.UserContext(), schoolID, req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Bukti pembayaran dikirim", res)
}

// PATCH /manual-proofs/:id/review
func (ctl *PaymentController) ReviewProof(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.ReviewManualPaymentProofRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	req.Status = model.ProofStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	res, err := ctl.Svc.ReviewManualPaymentProof(c.UserContext(), guard.SchoolID(c), id, req)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Bukti pembayaran direview", res)
}

// GET /manual-proofs?status=SUBMITTED
func (ctl *PaymentController) ListProofs(c *fiber.Ctx) error {
	status := model.ProofStatus(strings.ToUpper(strings.TrimSpace(c.Query("status", string(model.ProofSubmitted)))))
	rows, err := ctl.Svc.ListManualPaymentProofs(c.UserContext(), guard.SchoolID(c), status)
	if err != nil {
		return err
	}
	return helper.JsonList(c, "ok", rows, nil)
}

// GET /invoices/:id/payments
func (ctl *PaymentController) ByInvoice(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	rows, err := ctl.Svc.PaymentsByInvoice(c.UserContext(), guard.SchoolID(c), id)
	if err != nil {
		return err
	}
	return helper.JsonList(c, "ok", rows, nil)
}

/* ===================== Webhooks (tanpa JWT) ===================== */

// POST /api/webhooks/midtrans
func (ctl *PaymentController) MidtransWebhook(c *fiber.Ctx) error {
	res, err := ctl.Svc.HandleMidtransNotification(c.UserContext(), c.Body())
	if err != nil {
		return err
	}
	return helper.JsonOK(c, res.Status, res)
}

// POST /api/webhooks/stripe
func (ctl *PaymentController) StripeWebhook(c *fiber.Ctx) error {
	res, err := ctl.Svc.HandleStripeWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		return err
	}
	return helper.JsonOK(c, res.Status, res)
}
