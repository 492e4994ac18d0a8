package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	feeModel "schoolku_backend/internals/features/finance/fees/model"
	feeService "schoolku_backend/internals/features/finance/fees/service"
	"schoolku_backend/internals/features/finance/invoices/dto"
	"schoolku_backend/internals/features/finance/invoices/model"
	enrollModel "schoolku_backend/internals/features/school/enrollments/model"
	enrollService "schoolku_backend/internals/features/school/enrollments/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/dbseq"
	"schoolku_backend/internals/middlewares/guard"
)

var invoiceCounter = dbseq.Counter{
	Table:      "invoice_sequences",
	KeyColumns: []string{"invoice_sequence_school_id", "invoice_sequence_year_month"},
	SeqColumn:  "invoice_sequence_last_value",
}

// FormatInvoiceNumber → INV-202507-000042
func FormatInvoiceNumber(yearMonth string, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", yearMonth, seq)
}

type BatchError struct {
	StudentID uuid.UUID `json:"student_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

type BatchResult struct {
	CreatedCount int          `json:"created_count"`
	SkippedCount int          `json:"skipped_count"`
	FailedCount  int          `json:"failed_count"`
	InvoiceIDs   []uuid.UUID  `json:"invoice_ids"`
	Errors       []BatchError `json:"errors,omitempty"`
}

/* =========================================================
   Single invoice
========================================================= */

func (s *Service) CreateInvoice(ctx context.Context, schoolID uuid.UUID, req dto.CreateInvoiceRequest) (*model.Invoice, error) {
	if err := guard.Enforce(ctx, guard.OpCreateInvoice, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	if req.MinFirstPaymentAmount != nil && req.MinFirstPaymentAmount.IsNegative() {
		return nil, apperr.Validation("min_first_payment_amount must not be negative")
	}

	db := s.DB.WithContext(ctx)
	// class group dari enrollment aktif kalau tidak dikirim
	enr, err := enrollService.CurrentEnrollment(db, schoolID, req.StudentID, req.TermID)
	switch {
	case err == nil:
	case req.ClassGroupID != nil && errors.Is(err, apperr.ErrNotFound):
		enr = &enrollModel.Enrollment{EnrollmentSchoolID: schoolID, EnrollmentStudentID: req.StudentID, EnrollmentTermID: req.TermID}
	default:
		return nil, err
	}
	if req.ClassGroupID != nil {
		enr.EnrollmentClassGroupID = *req.ClassGroupID
	}

	sch, err := s.scheduleForTerm(db, schoolID, req.FeeScheduleID, req.TermID)
	if err != nil {
		return nil, err
	}
	if req.SessionID != nil {
		sch.FeeScheduleSessionID = *req.SessionID
	}

	key := model.IdempotencyKey(req.StudentID, req.TermID, enr.EnrollmentClassGroupID, req.FeeScheduleID)
	exists, err := invoiceExists(db, schoolID, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("invoice already exists for this student, term, class group and fee schedule")
	}

	pol, err := s.Fees.GetBillingPolicy(db, schoolID)
	if err != nil {
		return nil, err
	}

	inv, err := s.createOne(ctx, *enr, *sch, req.DueAt, pol.BillingPolicyCurrency, req.MinFirstPaymentAmount)
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditInvoiceCreated,
		EntityType: "invoice", EntityID: inv.InvoiceID.String(), Snapshot: dto.FromInvoiceModel(*inv),
	})
	s.publish(ctx, *inv, constants.ReasonGenerated)
	return inv, nil
}

/* =========================================================
   Batch per (term, class group)
========================================================= */

type GenerateClassInvoicesInput struct {
	SchoolID uuid.UUID
	dto.GenerateClassInvoicesRequest
}

// GenerateClassInvoices creates one invoice per enrollment. Every creation is
// committed on its own, so a crashed run can be repeated with SkipDuplicates.
func (s *Service) GenerateClassInvoices(ctx context.Context, in GenerateClassInvoicesInput) (BatchResult, error) {
	res := BatchResult{InvoiceIDs: make([]uuid.UUID, 0)}
	if err := guard.Enforce(ctx, guard.OpGenerateClassInvoices, in.SchoolID); err != nil {
		return res, err
	}
	if err := helper.Validate.Struct(in.GenerateClassInvoicesRequest); err != nil {
		return res, apperr.ValidationFields(helper.ValidationErrors(err))
	}

	db := s.DB.WithContext(ctx)
	sch, err := s.scheduleForTerm(db, in.SchoolID, in.FeeScheduleID, in.TermID)
	if err != nil {
		return res, err
	}
	pol, err := s.Fees.GetBillingPolicy(db, in.SchoolID)
	if err != nil {
		return res, err
	}

	batch := events.NewBatcher(s.Publisher)
	after := uuid.Nil

pages:
	for {
		page, err := enrollService.Page(db, in.SchoolID, in.TermID, in.ClassGroupID, after, enrollService.PageSize)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}

		for _, enr := range page {
			if in.Cap != nil && res.CreatedCount >= *in.Cap {
				break pages
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			key := model.IdempotencyKey(enr.EnrollmentStudentID, in.TermID, in.ClassGroupID, in.FeeScheduleID)
			exists, err := invoiceExists(db, in.SchoolID, key)
			if err != nil {
				return res, err
			}
			if exists {
				if in.SkipDuplicates {
					res.SkippedCount++
					continue
				}
				res.fail(enr.EnrollmentStudentID, apperr.Conflict("invoice already exists"))
				continue
			}

			inv, err := s.createOne(ctx, enr, *sch, in.DueAt, pol.BillingPolicyCurrency, nil)
			if err != nil {
				res.fail(enr.EnrollmentStudentID, err)
				continue
			}
			res.CreatedCount++
			res.InvoiceIDs = append(res.InvoiceIDs, inv.InvoiceID)
			s.Audit.Record(ctx, auditService.Entry{
				SchoolID: in.SchoolID, Action: constants.AuditInvoiceCreated,
				EntityType: "invoice", EntityID: inv.InvoiceID.String(),
				Snapshot: map[string]any{
					"invoice":         dto.FromInvoiceModel(*inv),
					"batch":           true,
					"fee_schedule_id": in.FeeScheduleID,
				},
			})

			ev, err := generatedEvent(*inv, constants.ReasonGenerated)
			if err == nil {
				err = batch.Add(ctx, ev)
			}
			if err != nil {
				log.Printf("[ERROR] batch publish invoice.generated: %v", err)
			}
		}

		after = page[len(page)-1].EnrollmentID
		if len(page) < enrollService.PageSize {
			break
		}
	}

	if err := batch.Flush(ctx); err != nil {
		log.Printf("[ERROR] batch publish invoice.generated (final flush): %v", err)
	}
	log.Printf("[INFO] generate invoices school=%s term=%s group=%s: created=%d skipped=%d failed=%d",
		in.SchoolID, in.TermID, in.ClassGroupID, res.CreatedCount, res.SkippedCount, res.FailedCount)
	return res, nil
}

// RequestClassInvoices queues a class-wide batch for the invoicing worker and
// returns the import.requested event id. The worker always skips duplicates.
func (s *Service) RequestClassInvoices(ctx context.Context, in GenerateClassInvoicesInput) (string, error) {
	if err := guard.Enforce(ctx, guard.OpGenerateClassInvoices, in.SchoolID); err != nil {
		return "", err
	}
	if err := helper.Validate.Struct(in.GenerateClassInvoicesRequest); err != nil {
		return "", apperr.ValidationFields(helper.ValidationErrors(err))
	}
	if _, err := s.scheduleForTerm(s.DB.WithContext(ctx), in.SchoolID, in.FeeScheduleID, in.TermID); err != nil {
		return "", err
	}

	ev, err := events.New(constants.SourceBilling, constants.EventImportRequested, events.ImportRequested{
		SchoolID:      in.SchoolID,
		TermID:        in.TermID,
		ClassGroupID:  in.ClassGroupID,
		FeeScheduleID: in.FeeScheduleID,
		DueAt:         in.DueAt.UTC(),
		Cap:           in.Cap,
		RequestedBy:   guard.FromContext(ctx).ActorID(),
	})
	if err != nil {
		return "", err
	}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		return "", fmt.Errorf("publish import.requested: %w", err)
	}
	log.Printf("[INFO] import requested school=%s term=%s group=%s event=%s", in.SchoolID, in.TermID, in.ClassGroupID, ev.ID)
	return ev.ID, nil
}

func (r *BatchResult) fail(studentID uuid.UUID, err error) {
	r.FailedCount++
	r.Errors = append(r.Errors, BatchError{StudentID: studentID, Kind: string(apperr.KindOf(err)), Message: err.Error()})
}

/* =========================================================
   Helpers
========================================================= */

func (s *Service) scheduleForTerm(db *gorm.DB, schoolID, scheduleID, termID uuid.UUID) (*feeModel.FeeSchedule, error) {
	sch, err := feeService.LoadSchedule(db, schoolID, scheduleID)
	if err != nil {
		return nil, err
	}
	if sch.FeeScheduleTermID != termID {
		return nil, apperr.Validation("fee schedule belongs to a different term")
	}
	return sch, nil
}

// invoiceExists is the pre-write check on the idempotency key index.
func invoiceExists(db *gorm.DB, schoolID uuid.UUID, key string) (bool, error) {
	var n int64
	if err := db.Model(&model.Invoice{}).
		Where("invoice_school_id = ? AND invoice_idempotency_key = ?", schoolID, key).
		Limit(1).Count(&n).Error; err != nil {
		return false, apperr.FromDB(err, "invoice")
	}
	return n > 0, nil
}

// createOne numbers and inserts a zeroed invoice and locks its schedule.
// Lines and subtotals are filled by the invoicing worker.
func (s *Service) createOne(ctx context.Context, enr enrollModel.Enrollment, sch feeModel.FeeSchedule, dueAt time.Time, currency string, minFirst *decimal.Decimal) (*model.Invoice, error) {
	now := s.now()
	inv := model.Invoice{
		InvoiceID:               uuid.New(),
		InvoiceSchoolID:         enr.EnrollmentSchoolID,
		InvoiceStudentID:        enr.EnrollmentStudentID,
		InvoiceTermID:           sch.FeeScheduleTermID,
		InvoiceSessionID:        sch.FeeScheduleSessionID,
		InvoiceClassGroupID:     enr.EnrollmentClassGroupID,
		InvoiceFeeScheduleID:    sch.FeeScheduleID,
		InvoiceStatus:           model.InvoiceStatusIssued,
		InvoiceRequiredSubtotal: decimal.Zero,
		InvoiceOptionalSubtotal: decimal.Zero,
		InvoiceDiscountTotal:    decimal.Zero,
		InvoicePenaltyTotal:     decimal.Zero,
		InvoiceAmountPaid:       decimal.Zero,
		InvoiceAmountDue:        decimal.Zero,
		InvoiceMinFirstPayment:  minFirst,
		InvoiceCurrency:         currency,
		InvoiceDueAt:            dueAt.UTC(),
		InvoiceIdempotencyKey:   model.IdempotencyKey(enr.EnrollmentStudentID, sch.FeeScheduleTermID, enr.EnrollmentClassGroupID, sch.FeeScheduleID),
		InvoiceBillToEmail:      enr.EnrollmentGuardianEmail,
		InvoiceStudentName:      enr.EnrollmentStudentName,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ym := now.Format("200601")
		seq, err := dbseq.Next(tx, invoiceCounter, inv.InvoiceSchoolID, ym)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = FormatInvoiceNumber(ym, seq)

		if err := tx.Omit(clause.Associations).Create(&inv).Error; err != nil {
			return apperr.FromDB(err, "invoice")
		}
		return feeService.LockSchedule(tx, inv.InvoiceSchoolID, sch.FeeScheduleID)
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
