package controller

import (
	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/academics/results/dto"
	"schoolku_backend/internals/features/academics/results/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/middlewares/guard"
)

type ResultController struct {
	Svc *service.Service
}

func NewResultController(svc *service.Service) *ResultController {
	return &ResultController{Svc: svc}
}

// GET /report-cards?student_id=&term_id=
// Diblokir gate → 402 RESULT_BLOCKED dengan pesan kebijakan sekolah.
func (ctl *ResultController) ReportCards(c *fiber.Ctx) error {
	studentID, err := helper.ParseUUIDQuery(c, "student_id")
	if err != nil {
		return err
	}
	termID, err := helper.ParseUUIDQuery(c, "term_id")
	if err != nil {
		return err
	}
	rows, err := ctl.Svc.ReportCardsByStudentTerm(c.UserContext(), guard.SchoolID(c), studentID, termID)
	if err != nil {
		return err
	}
	return helper.JsonList(c, "ok", rows, nil)
}

// PUT /release-policy
func (ctl *ResultController) UpsertReleasePolicy(c *fiber.Ctx) error {
	var req dto.UpsertReleasePolicyRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	pol, err := ctl.Svc.UpsertReleasePolicy(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Kebijakan rilis rapor diperbarui", pol)
}

// PUT /report-cards
func (ctl *ResultController) UpsertReportCard(c *fiber.Ctx) error {
	var req dto.UpsertReportCardRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	rc, err := ctl.Svc.UpsertReportCard(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonUpdated(c, "Rapor disimpan", rc)
}

// POST /results/publish
func (ctl *ResultController) Publish(c *fiber.Ctx) error {
	var req dto.PublishResultsRequest
	if err := helper.BindJSON(c, &req); err != nil {
		return err
	}
	res, err := ctl.Svc.PublishResults(c.UserContext(), guard.SchoolID(c), req)
	if err != nil {
		return err
	}
	return helper.JsonOK(c, "Rapor dipublikasikan", res)
}
