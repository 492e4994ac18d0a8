package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

type SelectOptionalItemsInput struct {
	SchoolID        uuid.UUID
	InvoiceID       uuid.UUID
	SelectedLineIDs []uuid.UUID
}

type SelectionResult struct {
	Invoice      model.Invoice `json:"invoice"`
	ChangedLines int           `json:"changed_lines"`
}

// SelectOptionalItems sets the selected optional lines to exactly the given
// set. Lines already in the requested state are not written.
func (s *Service) SelectOptionalItems(ctx context.Context, in SelectOptionalItemsInput) (*SelectionResult, error) {
	if err := guard.Enforce(ctx, guard.OpSelectOptionalItems, in.SchoolID); err != nil {
		return nil, err
	}
	want := make(map[uuid.UUID]bool, len(in.SelectedLineIDs))
	for _, id := range in.SelectedLineIDs {
		want[id] = true
	}

	var out SelectionResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvoice(tx, in.SchoolID, in.InvoiceID)
		if err != nil {
			return apperr.FromDB(err, "invoice")
		}
		if inv.InvoiceStatus == model.InvoiceStatusVoid {
			return apperr.Conflict("invoice is void")
		}

		var lines []model.InvoiceLine
		if err := tx.Where("invoice_line_invoice_id = ?", inv.InvoiceID).
			Order("invoice_line_sort_order ASC").Find(&lines).Error; err != nil {
			return apperr.FromDB(err, "invoice line")
		}

		byID := make(map[uuid.UUID]*model.InvoiceLine, len(lines))
		for i := range lines {
			byID[lines[i].InvoiceLineID] = &lines[i]
		}
		for id := range want {
			l, ok := byID[id]
			if !ok {
				return apperr.Validation("line " + id.String() + " does not belong to this invoice")
			}
			if !l.InvoiceLineIsOptional {
				return apperr.Validation("line " + id.String() + " is not optional")
			}
		}

		for i := range lines {
			l := &lines[i]
			if !l.InvoiceLineIsOptional || l.InvoiceLineIsSelected == want[l.InvoiceLineID] {
				continue
			}
			l.InvoiceLineIsSelected = want[l.InvoiceLineID]
			if err := tx.Model(&model.InvoiceLine{}).
				Where("invoice_line_id = ?", l.InvoiceLineID).
				Update("invoice_line_is_selected", l.InvoiceLineIsSelected).Error; err != nil {
				return apperr.FromDB(err, "invoice line")
			}
			out.ChangedLines++
		}

		if err := recomputeTotals(tx, inv); err != nil {
			return err
		}
		now := s.now()
		inv.InvoiceLastProcessedAt = &now
		if err := saveTotals(tx, inv); err != nil {
			return err
		}
		inv.Lines = lines
		out.Invoice = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: in.SchoolID, Action: constants.AuditInvoiceSelectionUpdated,
		EntityType: "invoice", EntityID: in.InvoiceID.String(),
		Snapshot: map[string]any{
			"selected_line_ids": in.SelectedLineIDs,
			"changed_lines":     out.ChangedLines,
			"optional_subtotal": out.Invoice.InvoiceOptionalSubtotal,
			"amount_due":        out.Invoice.InvoiceAmountDue,
		},
	})
	s.publish(ctx, out.Invoice, constants.ReasonSelectionUpdate)
	return &out, nil
}
