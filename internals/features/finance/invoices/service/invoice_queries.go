package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/features/finance/invoices/dto"
	"schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

func linesOrdered(q *gorm.DB) *gorm.DB { return q.Order("invoice_line_sort_order ASC") }

// InvoicesByStudent uses idx_invoices_student_term.
func (s *Service) InvoicesByStudent(ctx context.Context, schoolID, studentID, termID uuid.UUID) ([]model.Invoice, error) {
	if err := guard.Enforce(ctx, guard.OpInvoicesByStudent, schoolID); err != nil {
		return nil, err
	}
	rows := make([]model.Invoice, 0)
	if err := s.DB.WithContext(ctx).
		Preload("Lines", linesOrdered).
		Where("invoice_school_id = ? AND invoice_student_id = ? AND invoice_term_id = ?", schoolID, studentID, termID).
		Order("invoice_created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return rows, nil
}

func (s *Service) InvoiceByNumber(ctx context.Context, schoolID uuid.UUID, number string) (*model.Invoice, error) {
	if err := guard.Enforce(ctx, guard.OpInvoiceByNumber, schoolID); err != nil {
		return nil, err
	}
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, apperr.Validation("invoice number is required")
	}
	var inv model.Invoice
	if err := s.DB.WithContext(ctx).
		Preload("Lines", linesOrdered).
		Where("invoice_school_id = ? AND invoice_number = ?", schoolID, number).
		First(&inv).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return &inv, nil
}

type Defaulter struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	StudentID     uuid.UUID       `json:"student_id"`
	StudentName   string          `json:"student_name"`
	Status        string          `json:"status"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	DueAt         time.Time       `json:"due_at"`
	DaysOverdue   int             `json:"days_overdue"`
}

// DefaultersByClass lists open invoices of (term, class group) that are at
// least MinDaysOverdue days past due and owe at least MinAmountDue.
func (s *Service) DefaultersByClass(ctx context.Context, schoolID uuid.UUID, q dto.DefaultersQuery) ([]Defaulter, error) {
	if err := guard.Enforce(ctx, guard.OpDefaultersByClass, schoolID); err != nil {
		return nil, err
	}
	if q.TermID == uuid.Nil || q.ClassGroupID == uuid.Nil {
		return nil, apperr.Validation("term_id and class_group_id are required")
	}
	if q.MinDaysOverdue < 0 || q.MinAmountDue.IsNegative() {
		return nil, apperr.Validation("min_days_overdue and min_amount_due must not be negative")
	}

	now := s.now()
	cutoff := now.AddDate(0, 0, -q.MinDaysOverdue)
	tx := s.DB.WithContext(ctx).
		Where("invoice_school_id = ? AND invoice_term_id = ? AND invoice_class_group_id = ?", schoolID, q.TermID, q.ClassGroupID).
		Where("invoice_status <> ?", model.InvoiceStatusVoid).
		Where("invoice_amount_due > 0").
		Where("invoice_due_at <= ?", cutoff)
	if q.MinAmountDue.IsPositive() {
		tx = tx.Where("invoice_amount_due >= ?", q.MinAmountDue)
	}

	var rows []model.Invoice
	if err := tx.Order("invoice_due_at ASC, invoice_number ASC").Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}

	out := make([]Defaulter, 0, len(rows))
	for _, r := range rows {
		out = append(out, Defaulter{
			InvoiceID:     r.InvoiceID,
			InvoiceNumber: r.InvoiceNumber,
			StudentID:     r.InvoiceStudentID,
			StudentName:   r.InvoiceStudentName,
			Status:        string(r.InvoiceStatus),
			AmountDue:     r.InvoiceAmountDue,
			AmountPaid:    r.InvoiceAmountPaid,
			DueAt:         r.InvoiceDueAt,
			DaysOverdue:   DaysOverdue(r.InvoiceDueAt, now),
		})
	}
	return out, nil
}

// DaysOverdue counts whole days since dueAt; 0 when not yet due.
func DaysOverdue(dueAt, now time.Time) int {
	if !now.After(dueAt) {
		return 0
	}
	return int(now.Sub(dueAt).Hours() / 24)
}

/* =========================================================
   Worker scans (system-wide, no principal)
========================================================= */

// ListOverdue pages open invoices past due across all schools, keyset on invoice_id.
func (s *Service) ListOverdue(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]model.Invoice, error) {
	rows := make([]model.Invoice, 0, limit)
	q := s.DB.WithContext(ctx).
		Where("invoice_status IN ?", []model.InvoiceStatus{model.InvoiceStatusIssued, model.InvoiceStatusPartiallyPaid}).
		Where("invoice_amount_due > 0 AND invoice_due_at < ?", now)
	if after != uuid.Nil {
		q = q.Where("invoice_id > ?", after)
	}
	if err := q.Order("invoice_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return rows, nil
}

// MaxStaleRepublish caps how often the stale sweep re-emits invoice.generated
// for one invoice. Past it the message sits in the DLQ until an operator acts.
const MaxStaleRepublish = 3

// StaleUnmaterialized finds invoices whose generated event never got processed
// and that still have republishes left.
func (s *Service) StaleUnmaterialized(ctx context.Context, olderThan time.Time, limit int) ([]model.Invoice, error) {
	rows := make([]model.Invoice, 0)
	if err := s.DB.WithContext(ctx).
		Where("invoice_last_processed_at IS NULL AND invoice_status <> ? AND invoice_created_at < ?", model.InvoiceStatusVoid, olderThan).
		Where("invoice_republish_count < ?", MaxStaleRepublish).
		Order("invoice_created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return rows, nil
}

// Republish re-emits invoice.generated for invoices found by the stale sweep.
func (s *Service) Republish(ctx context.Context, rows []model.Invoice) int {
	n := 0
	for _, inv := range rows {
		ev, err := generatedEvent(inv, constants.ReasonGenerated)
		if err == nil {
			err = s.Publisher.Publish(ctx, ev)
		}
		if err != nil {
			log.Printf("[ERROR] republish invoice.generated %s: %v", inv.InvoiceID, err)
			continue
		}
		n++
		if err := s.DB.WithContext(ctx).Model(&model.Invoice{}).
			Where("invoice_id = ?", inv.InvoiceID).
			UpdateColumn("invoice_republish_count", gorm.Expr("invoice_republish_count + 1")).Error; err != nil {
			log.Printf("[ERROR] republish count %s: %v", inv.InvoiceID, err)
			continue
		}
		if inv.InvoiceRepublishCount+1 >= MaxStaleRepublish {
			log.Printf("[ALERT] invoice %s (school %s) still unmaterialized after %d republish(es); sweep gives up, check the invoicing DLQ",
				inv.InvoiceID, inv.InvoiceSchoolID, MaxStaleRepublish)
		}
	}
	return n
}
