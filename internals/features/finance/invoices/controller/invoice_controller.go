package controller

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/invoices/dto"
	"schoolku_backend/internals/features/finance/invoices/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/middlewares/guard"
)

type InvoiceController struct {
	Svc *service.Service
}

func NewInvoiceController(svc *service.Service) *InvoiceController {
	return &InvoiceController{Svc: svc}
}

// POST /invoices
func (ctl *InvoiceController) Create(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	inv, err := ctl.Svc.CreateInvoice(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Invoice dibuat", dto.FromInvoiceModel(*inv))
}

// POST /invoices/generate[?async=true]
// Sukses parsial tetap 200; kegagalan per siswa ada di errors.
// async=true hanya mengantrekan batch ke worker invoicing (202).
func (ctl *InvoiceController) Generate(c *fiber.Ctx) error {
	var req dto.GenerateClassInvoicesRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	in := service.GenerateClassInvoicesInput{
		SchoolID:                     guard.SchoolID(c),
		GenerateClassInvoicesRequest: req,
	}
	if c.QueryBool("async") {
		id, err := ctl.Svc.RequestClassInvoices(c.UserContext(), in)
		if err != nil {
			return err
		}
		return helper.JsonAccepted(c, "Generate invoice diantrekan", fiber.Map{"event_id": id})
	}
	res, err := ctl.Svc.GenerateClassInvoices(c.UserContext(), in)
	if err != nil {
		return err
	}
	return helper.JsonOK(c, "Generate invoice selesai", res)
}

// GET /invoices?student_id=&term_id=
func (ctl *InvoiceController) ByStudent(c *fiber.Ctx) error {
	studentID, err := helper.ParseUUIDQuery(c, "student_id")
	if err != nil {
		return err
	}
	termID, err := helper.ParseUUIDQuery(c, "term_id")
	if err != nil {
		return err
	}
	rows, err := ctl.Svc.InvoicesByStudent(c.UserContext(), guard.SchoolID(c), studentID, termID)
	if err != nil {
		return err
	}
	return helper.JsonList(c, "ok", dto.FromInvoiceModels(rows), nil)
}

// GET /invoices/number/:number
func (ctl *InvoiceController) ByNumber(c *fiber.Ctx) error {
	inv, err := ctl.Svc.InvoiceByNumber(c.UserContext(), guard.SchoolID(c), c.Params("number"))
	if err != nil {
		return err
	}
	return helper.JsonOK(c, "ok", dto.FromInvoiceModel(*inv))
}

// PUT /invoices/:id/optional-items
func (ctl *InvoiceController) SelectOptionalItems(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.SelectOptionalItemsRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	res, err := ctl.Svc.SelectOptionalItems(c.UserContext(), service.SelectOptionalItemsInput{
		SchoolID:        guard.SchoolID(c),
		InvoiceID:       id,
		SelectedLineIDs: req.SelectedLineIDs,
	})
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Pilihan item diperbarui", fiber.Map{
		"invoice":       dto.FromInvoiceModel(res.Invoice),
		"changed_lines": res.ChangedLines,
	})
}

// POST /invoices/:id/adjustments
func (ctl *InvoiceController) CreateAdjustment(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.CreateFeeAdjustmentRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	adj, inv, err := ctl.Svc.CreateFeeAdjustment(c.UserContext(), guard.SchoolID(c), id, req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Penyesuaian dicatat", fiber.Map{
		"adjustment": adj,
		"invoice":    dto.FromInvoiceModel(*inv),
	})
}

// POST /invoices/:id/installment-plan
func (ctl *InvoiceController) CreateInstallmentPlan(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.CreateInstallmentPlanRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	plan, err := ctl.Svc.CreateInstallmentPlan(c.UserContext(), guard.SchoolID(c), id, req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Rencana cicilan dibuat", plan)
}

// GET /invoices/:id/installment-plan
func (ctl *InvoiceController) InstallmentPlan(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	plan, err := ctl.Svc.InstallmentPlanByInvoice(c.UserContext(), guard.SchoolID(c), id)
	if err != nil {
		return err
	}
	return helper.JsonOK(c, "ok", plan)
}

// GET /defaulters?term_id=&class_group_id=&min_days_overdue=&min_amount_due=
func (ctl *InvoiceController) Defaulters(c *fiber.Ctx) error {
	var (
		q   dto.DefaultersQuery
		err error
	)
	if q.TermID, err = helper.ParseUUIDQuery(c, "term_id"); err != nil {
		return err
	}
	if q.ClassGroupID, err = helper.ParseUUIDQuery(c, "class_group_id"); err != nil {
		return err
	}
	if q.MinDaysOverdue, err = helper.QueryInt(c, "min_days_overdue", 0); err != nil {
		return err
	}
	if q.MinAmountDue, err = helper.QueryDecimal(c, "min_amount_due"); err != nil {
		return err
	}
	rows, err := ctl.Svc.DefaultersByClass(c.UserContext(), guard.SchoolID(c), q)
	if err != nil {
		return err
	}
	return helper.JsonList(c, "ok", rows, nil)
}
