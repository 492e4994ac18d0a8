package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AdjustmentKind string

const (
	AdjustmentCredit AdjustmentKind = "CREDIT" // diskon / beasiswa
	AdjustmentDebit  AdjustmentKind = "DEBIT"  // denda / penalti
)

// --- MODEL fee_adjustments (append-only) -------------------------------------
type FeeAdjustment struct {
	FeeAdjustmentID         uuid.UUID       `json:"fee_adjustment_id" gorm:"column:fee_adjustment_id;type:uuid;primaryKey"`
	FeeAdjustmentSchoolID   uuid.UUID       `json:"fee_adjustment_school_id" gorm:"column:fee_adjustment_school_id;type:uuid;not null"`
	FeeAdjustmentInvoiceID  uuid.UUID       `json:"fee_adjustment_invoice_id" gorm:"column:fee_adjustment_invoice_id;type:uuid;not null;index"`
	FeeAdjustmentKind       AdjustmentKind  `json:"fee_adjustment_kind" gorm:"column:fee_adjustment_kind;type:varchar(10);not null"`
	FeeAdjustmentAmount     decimal.Decimal `json:"fee_adjustment_amount" gorm:"column:fee_adjustment_amount;type:numeric(14,2);not null"`
	FeeAdjustmentReason     string          `json:"fee_adjustment_reason" gorm:"column:fee_adjustment_reason;type:text;not null"`
	FeeAdjustmentCreatedBy  *uuid.UUID      `json:"fee_adjustment_created_by,omitempty" gorm:"column:fee_adjustment_created_by;type:uuid"`
	FeeAdjustmentApprovedBy *uuid.UUID      `json:"fee_adjustment_approved_by,omitempty" gorm:"column:fee_adjustment_approved_by;type:uuid"`
	FeeAdjustmentCreatedAt  time.Time       `json:"fee_adjustment_created_at" gorm:"column:fee_adjustment_created_at;not null;autoCreateTime"`
}

func (FeeAdjustment) TableName() string { return "fee_adjustments" }

// --- MODEL installment_plans / installments ----------------------------------
type InstallmentPlan struct {
	InstallmentPlanID        uuid.UUID     `json:"installment_plan_id" gorm:"column:installment_plan_id;type:uuid;primaryKey"`
	InstallmentPlanSchoolID  uuid.UUID     `json:"installment_plan_school_id" gorm:"column:installment_plan_school_id;type:uuid;not null"`
	InstallmentPlanInvoiceID uuid.UUID     `json:"installment_plan_invoice_id" gorm:"column:installment_plan_invoice_id;type:uuid;not null;uniqueIndex"`
	InstallmentPlanCreatedBy *uuid.UUID    `json:"installment_plan_created_by,omitempty" gorm:"column:installment_plan_created_by;type:uuid"`
	InstallmentPlanCreatedAt time.Time     `json:"installment_plan_created_at" gorm:"column:installment_plan_created_at;not null;autoCreateTime"`
	Installments             []Installment `json:"installments" gorm:"foreignKey:InstallmentPlanID;references:InstallmentPlanID"`
}

func (InstallmentPlan) TableName() string { return "installment_plans" }

type Installment struct {
	InstallmentID       uuid.UUID       `json:"installment_id" gorm:"column:installment_id;type:uuid;primaryKey"`
	InstallmentSchoolID uuid.UUID       `json:"installment_school_id" gorm:"column:installment_school_id;type:uuid;not null"`
	InstallmentPlanID   uuid.UUID       `json:"installment_plan_id" gorm:"column:installment_plan_id;type:uuid;not null;uniqueIndex:uq_installments_plan_seq,priority:1"`
	InstallmentSequence int             `json:"installment_sequence" gorm:"column:installment_sequence;not null;uniqueIndex:uq_installments_plan_seq,priority:2"`
	InstallmentAmount   decimal.Decimal `json:"installment_amount" gorm:"column:installment_amount;type:numeric(14,2);not null"`
	InstallmentDueAt    time.Time       `json:"installment_due_at" gorm:"column:installment_due_at;not null"`
}

func (Installment) TableName() string { return "installments" }
