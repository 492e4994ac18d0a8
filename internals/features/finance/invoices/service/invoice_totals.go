package service

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolku_backend/internals/events"
	feeService "schoolku_backend/internals/features/finance/fees/service"
	"schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

var moneyColumns = []string{
	"invoice_status",
	"invoice_required_subtotal",
	"invoice_optional_subtotal",
	"invoice_discount_total",
	"invoice_penalty_total",
	"invoice_amount_paid",
	"invoice_amount_due",
	"invoice_last_processed_at",
	"invoice_updated_at",
}

// sumDecimal runs COALESCE(SUM(col), 0) over q.
func sumDecimal(q *gorm.DB, col string) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	if err := q.Select("COALESCE(SUM(" + col + "), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// recomputeTotals derives every subtotal from lines, adjustments and payment
// applications, then applies the amount-due invariant. Must run inside tx.
func recomputeTotals(tx *gorm.DB, inv *model.Invoice) error {
	var err error
	lines := func() *gorm.DB {
		return tx.Model(&model.InvoiceLine{}).Where("invoice_line_invoice_id = ?", inv.InvoiceID)
	}
	adj := func(kind model.AdjustmentKind) *gorm.DB {
		return tx.Model(&model.FeeAdjustment{}).
			Where("fee_adjustment_invoice_id = ? AND fee_adjustment_kind = ?", inv.InvoiceID, kind)
	}

	if inv.InvoiceRequiredSubtotal, err = sumDecimal(lines().Where("invoice_line_is_optional = ?", false), "invoice_line_amount"); err != nil {
		return err
	}
	if inv.InvoiceOptionalSubtotal, err = sumDecimal(
		lines().Where("invoice_line_is_optional = ? AND invoice_line_is_selected = ?", true, true), "invoice_line_amount"); err != nil {
		return err
	}
	if inv.InvoiceDiscountTotal, err = sumDecimal(adj(model.AdjustmentCredit), "fee_adjustment_amount"); err != nil {
		return err
	}
	if inv.InvoicePenaltyTotal, err = sumDecimal(adj(model.AdjustmentDebit), "fee_adjustment_amount"); err != nil {
		return err
	}
	if inv.InvoiceAmountPaid, err = sumDecimal(
		tx.Model(&model.InvoicePaymentApplication{}).Where("application_invoice_id = ?", inv.InvoiceID), "application_amount"); err != nil {
		return err
	}
	inv.Recompute()
	return nil
}

func saveTotals(tx *gorm.DB, inv *model.Invoice) error {
	return tx.Model(inv).Select(moneyColumns).Omit(clause.Associations).Updates(inv).Error
}

/* =========================================================
   Line materialization (invoicing worker)
========================================================= */

// MaterializeLines copies the schedule's active fee items onto the invoice.
// Re-running it inserts nothing new: lines are unique per (invoice, fee item).
func (s *Service) MaterializeLines(ctx context.Context, schoolID, invoiceID uuid.UUID) error {
	if err := guard.Enforce(ctx, guard.OpMaterializeInvoiceLines, schoolID); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvoice(tx, schoolID, invoiceID)
		if err != nil {
			return apperr.FromDB(err, "invoice")
		}
		if inv.InvoiceStatus == model.InvoiceStatusVoid {
			log.Printf("[INFO] materialize: invoice %s is VOID, skipped", invoiceID)
			return nil
		}

		sch, err := feeService.LoadSchedule(tx, schoolID, inv.InvoiceFeeScheduleID)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(sch.Lines))
		for _, l := range sch.Lines {
			ids = append(ids, l.FeeScheduleLineFeeItemID)
		}
		items, err := feeService.ItemsByID(tx, schoolID, ids)
		if err != nil {
			return err
		}

		lines := make([]model.InvoiceLine, 0, len(sch.Lines))
		for _, l := range sch.Lines {
			item, ok := items[l.FeeScheduleLineFeeItemID]
			if !ok || !item.FeeItemIsActive || item.FeeItemDeletedAt.Valid {
				continue
			}
			optional := l.EffectiveOptional(item)
			lines = append(lines, model.InvoiceLine{
				InvoiceLineID:         uuid.New(),
				InvoiceLineSchoolID:   schoolID,
				InvoiceLineInvoiceID:  invoiceID,
				InvoiceLineFeeItemID:  item.FeeItemID,
				InvoiceLineName:       item.FeeItemName,
				InvoiceLineIsOptional: optional,
				InvoiceLineIsSelected: !optional,
				InvoiceLineAmount:     l.FeeScheduleLineAmount,
				InvoiceLineSortOrder:  l.FeeScheduleLineSortOrder,
			})
		}
		if len(lines) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "invoice_line_invoice_id"}, {Name: "invoice_line_fee_item_id"}},
				DoNothing: true,
			}).Create(&lines).Error; err != nil {
				return apperr.FromDB(err, "invoice line")
			}
		}

		if err := recomputeTotals(tx, inv); err != nil {
			return err
		}
		now := s.now()
		inv.InvoiceLastProcessedAt = &now
		return saveTotals(tx, inv)
	})
}

/* =========================================================
   Confirmed payment application (invoicing worker)
========================================================= */

// ApplyConfirmedPayment books a confirmed transaction onto its invoice once.
// A replayed event finds the application row and changes nothing.
func (s *Service) ApplyConfirmedPayment(ctx context.Context, p events.PaymentConfirmed) error {
	if err := guard.Enforce(ctx, guard.OpApplyConfirmedPayment, p.SchoolID); err != nil {
		return err
	}
	if !p.Amount.IsPositive() {
		return apperr.Validation("confirmed payment amount must be positive")
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvoice(tx, p.SchoolID, p.InvoiceID)
		if err != nil {
			return apperr.FromDB(err, "invoice")
		}

		app := model.InvoicePaymentApplication{
			ApplicationTransactionID: p.TransactionID,
			ApplicationSchoolID:      p.SchoolID,
			ApplicationInvoiceID:     p.InvoiceID,
			ApplicationAmount:        p.Amount,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&app)
		if res.Error != nil {
			return apperr.FromDB(res.Error, "payment application")
		}
		if res.RowsAffected == 0 {
			log.Printf("[INFO] payment %s already applied to invoice %s", p.TransactionID, p.InvoiceID)
			return nil
		}

		if err := recomputeTotals(tx, inv); err != nil {
			return err
		}
		now := s.now()
		inv.InvoiceLastProcessedAt = &now
		return saveTotals(tx, inv)
	})
}
