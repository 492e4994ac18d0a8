package controller

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/receipts/dto"
	"schoolku_backend/internals/features/finance/receipts/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

type ReceiptController struct {
	Svc *service.Service
}

func NewReceiptController(svc *service.Service) *ReceiptController {
	return &ReceiptController{Svc: svc}
}

// GET /receipts/:receipt_no (juga dipasang di grup public)
func (ctl *ReceiptController) ByNumber(c *fiber.Ctx) error {
	rc, err := ctl.Svc.ReceiptByNumber(c.UserContext(), guard.SchoolID(c), c.Params("receipt_no"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=60")
	return helper.JsonOK(c, "ok", rc)
}

// PATCH /receipts/:receipt_no/url
func (ctl *ReceiptController) AttachURL(c *fiber.Ctx) error {
	var req dto.AttachReceiptURLRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return apperr.ValidationFields(helper.ValidationErrors(err))
	}
	rc, err := ctl.Svc.AttachReceiptURL(c.UserContext(), guard.SchoolID(c), c.Params("receipt_no"), req.URL)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "URL kuitansi disimpan", rc)
}

// GET /receipt-sequence
func (ctl *ReceiptController) Sequence(c *fiber.Ctx) error {
	st, err := ctl.Svc.ReceiptSequence(c.UserContext(), guard.SchoolID(c))
	if err != nil {
		return err
	}
	return helper.JsonOK(c, "ok", st)
}
