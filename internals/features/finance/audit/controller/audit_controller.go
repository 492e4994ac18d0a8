package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/features/finance/audit/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/middlewares/guard"
)

type AuditController struct {
	Writer *service.Writer
}

func NewAuditController(w *service.Writer) *AuditController {
	return &AuditController{Writer: w}
}

// GET /audit-events?action=&entity_id=&page=&per_page=
// Append-only: tidak ada endpoint ubah/hapus.
func (ctl *AuditController) List(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 50, 200)
	rows, total, err := ctl.Writer.List(c.UserContext(), guard.SchoolID(c), service.ListFilter{
		Action:   strings.ToUpper(strings.TrimSpace(c.Query("action"))),
		EntityID: strings.TrimSpace(c.Query("entity_id")),
	}, p)
	if err != nil {
		return err
	}
	pg := helper.BuildPagination(total, p)
	return helper.JsonList(c, "ok", rows, &pg)
}
