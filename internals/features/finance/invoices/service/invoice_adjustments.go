package service

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/invoices/dto"
	"schoolku_backend/internals/features/finance/invoices/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

/* =========================================================
   Fee adjustments (append-only credit / debit)
========================================================= */

func (s *Service) CreateFeeAdjustment(ctx context.Context, schoolID, invoiceID uuid.UUID, req dto.CreateFeeAdjustmentRequest) (*model.FeeAdjustment, *model.Invoice, error) {
	if err := guard.Enforce(ctx, guard.OpCreateFeeAdjustment, schoolID); err != nil {
		return nil, nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	if !req.Amount.IsPositive() {
		return nil, nil, apperr.Validation("amount must be positive")
	}

	adj := model.FeeAdjustment{
		FeeAdjustmentID:         uuid.New(),
		FeeAdjustmentSchoolID:   schoolID,
		FeeAdjustmentInvoiceID:  invoiceID,
		FeeAdjustmentKind:       req.Kind,
		FeeAdjustmentAmount:     req.Amount.Round(2),
		FeeAdjustmentReason:     strings.TrimSpace(req.Reason),
		FeeAdjustmentCreatedBy:  guard.FromContext(ctx).ActorID(),
		FeeAdjustmentApprovedBy: req.ApprovedBy,
	}

	var inv *model.Invoice
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = loadInvoice(tx, schoolID, invoiceID)
		if err != nil {
			return apperr.FromDB(err, "invoice")
		}
		if inv.InvoiceStatus == model.InvoiceStatusVoid {
			return apperr.Conflict("invoice is void")
		}
		if err := tx.Create(&adj).Error; err != nil {
			return apperr.FromDB(err, "fee adjustment")
		}
		if err := recomputeTotals(tx, inv); err != nil {
			return err
		}
		now := s.now()
		inv.InvoiceLastProcessedAt = &now
		return saveTotals(tx, inv)
	})
	if err != nil {
		return nil, nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditFeeAdjustmentCreated,
		EntityType: "fee_adjustment", EntityID: adj.FeeAdjustmentID.String(),
		Snapshot: map[string]any{
			"adjustment":     adj,
			"invoice_id":     invoiceID,
			"discount_total": inv.InvoiceDiscountTotal,
			"penalty_total":  inv.InvoicePenaltyTotal,
			"amount_due":     inv.InvoiceAmountDue,
		},
	})
	s.publish(ctx, *inv, constants.ReasonAdjustment)
	return &adj, inv, nil
}

/* =========================================================
   Installment plans
========================================================= */

func (s *Service) CreateInstallmentPlan(ctx context.Context, schoolID, invoiceID uuid.UUID, req dto.CreateInstallmentPlanRequest) (*model.InstallmentPlan, error) {
	if err := guard.Enforce(ctx, guard.OpCreateInstallmentPlan, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}

	parts := append([]dto.InstallmentRequest(nil), req.Installments...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].DueAt.Before(parts[j].DueAt) })
	total := decimal.Zero
	for i, p := range parts {
		if !p.Amount.IsPositive() {
			return nil, apperr.Validation("installment amounts must be positive")
		}
		if i > 0 && !p.DueAt.After(parts[i-1].DueAt) {
			return nil, apperr.Validation("installment due dates must be distinct")
		}
		total = total.Add(p.Amount.Round(2))
	}

	plan := model.InstallmentPlan{
		InstallmentPlanID:        uuid.New(),
		InstallmentPlanSchoolID:  schoolID,
		InstallmentPlanInvoiceID: invoiceID,
		InstallmentPlanCreatedBy: guard.FromContext(ctx).ActorID(),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvoice(tx, schoolID, invoiceID)
		if err != nil {
			return apperr.FromDB(err, "invoice")
		}
		if inv.InvoiceStatus == model.InvoiceStatusVoid || inv.InvoiceStatus == model.InvoiceStatusPaid {
			return apperr.Conflict("invoice is not open for installments")
		}
		if !total.Equal(inv.InvoiceAmountDue) {
			return apperr.Validation("installments must add up to the amount due (" + inv.InvoiceAmountDue.StringFixed(2) + ")")
		}

		var n int64
		if err := tx.Model(&model.InstallmentPlan{}).
			Where("installment_plan_invoice_id = ?", invoiceID).Count(&n).Error; err != nil {
			return apperr.FromDB(err, "installment plan")
		}
		if n > 0 {
			return apperr.Conflict("invoice already has an installment plan")
		}

		if err := tx.Omit("Installments").Create(&plan).Error; err != nil {
			return apperr.FromDB(err, "installment plan")
		}
		for i, p := range parts {
			plan.Installments = append(plan.Installments, model.Installment{
				InstallmentID:       uuid.New(),
				InstallmentSchoolID: schoolID,
				InstallmentPlanID:   plan.InstallmentPlanID,
				InstallmentSequence: i + 1,
				InstallmentAmount:   p.Amount.Round(2),
				InstallmentDueAt:    p.DueAt.UTC(),
			})
		}
		return apperr.FromDB(tx.Create(&plan.Installments).Error, "installment")
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditInstallmentPlanCreated,
		EntityType: "installment_plan", EntityID: plan.InstallmentPlanID.String(), Snapshot: plan,
	})
	return &plan, nil
}

func (s *Service) InstallmentPlanByInvoice(ctx context.Context, schoolID, invoiceID uuid.UUID) (*model.InstallmentPlan, error) {
	if err := guard.Enforce(ctx, guard.OpInstallmentPlanByInvoice, schoolID); err != nil {
		return nil, err
	}
	var plan model.InstallmentPlan
	err := s.DB.WithContext(ctx).
		Preload("Installments", func(q *gorm.DB) *gorm.DB { return q.Order("installment_sequence ASC") }).
		Where("installment_plan_school_id = ? AND installment_plan_invoice_id = ?", schoolID, invoiceID).
		First(&plan).Error
	if err != nil {
		return nil, apperr.FromDB(err, "installment plan")
	}
	return &plan, nil
}
