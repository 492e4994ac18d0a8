package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/fees/dto"
	"schoolku_backend/internals/features/finance/fees/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/middlewares/guard"
)

type FeeController struct {
	Svc *service.Service
}

func NewFeeController(svc *service.Service) *FeeController {
	return &FeeController{Svc: svc}
}

/* ===================== Fee items ===================== */

// POST /fee-items
func (ctl *FeeController) CreateItem(c *fiber.Ctx) error {
	var req dto.UpsertFeeItemRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	req.FeeItemID = nil
	item, err := ctl.Svc.UpsertFeeItem(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Fee item dibuat", item)
}

// PATCH /fee-items/:id
func (ctl *FeeController) UpdateItem(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpsertFeeItemRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	req.FeeItemID = &id
	item, err := ctl.Svc.UpsertFeeItem(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Fee item diperbarui", item)
}

// DELETE /fee-items/:id
func (ctl *FeeController) DeleteItem(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := ctl.Svc.DeleteFeeItem(c.UserContext(), guard.SchoolID(c), id); err != nil {
		return err
	}
	return helper.JsonDeleted(c, "Fee item dihapus", fiber.Map{"fee_item_id": id})
}

// GET /fee-items?active=true&page=&per_page=
func (ctl *FeeController) ListItems(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 20, 100)
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	rows, total, err := ctl.Svc.ListFeeItems(c.UserContext(), guard.SchoolID(c), activeOnly, p)
	if err != nil {
		return err
	}
	pg := helper.BuildPagination(total, p)
	return helper.JsonList(c, "ok", rows, &pg)
}

/* ===================== Fee schedules ===================== */

// POST /fee-schedules
func (ctl *FeeController) CreateSchedule(c *fiber.Ctx) error {
	var req dto.CreateFeeScheduleRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	sch, err := ctl.Svc.CreateFeeSchedule(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonCreated(c, "Fee schedule dibuat", dto.FromScheduleModel(*sch))
}

// PATCH /fee-schedules/:id (Conflict kalau sudah terkunci invoice)
func (ctl *FeeController) UpdateSchedule(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateFeeScheduleRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	sch, err := ctl.Svc.UpdateFeeSchedule(c.UserContext(), guard.SchoolID(c), id, req)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Fee schedule diperbarui", dto.FromScheduleModel(*sch))
}

// GET /fee-schedules/:id
func (ctl *FeeController) GetSchedule(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	sch, err := ctl.Svc.GetSchedule(c.UserContext(), guard.SchoolID(c), id)
	if err != nil {
		return err
	}
	return helper.JsonOK(c, "ok", dto.FromScheduleModel(*sch))
}

/* ===================== Billing policy ===================== */

// PUT /billing-policy
func (ctl *FeeController) UpsertBillingPolicy(c *fiber.Ctx) error {
	var req dto.UpsertBillingPolicyRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	pol, err := ctl.Svc.UpsertBillingPolicy(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Billing policy diperbarui", pol)
}
