package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusIssued        InvoiceStatus = "ISSUED"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
)

// --- MODEL invoices ----------------------------------------------------------
// Satu invoice per (siswa, term, rombel, fee schedule): tuple ini adalah
// idempotency key untuk generate.
type Invoice struct {
	InvoiceID       uuid.UUID `json:"invoice_id" gorm:"column:invoice_id;type:uuid;primaryKey"`
	InvoiceSchoolID uuid.UUID `json:"invoice_school_id" gorm:"column:invoice_school_id;type:uuid;not null;uniqueIndex:uq_invoices_school_number,priority:1;index:idx_invoices_student_term,priority:1;index:idx_invoices_term_group,priority:1;index:idx_invoices_idem,priority:1"`
	InvoiceNumber   string    `json:"invoice_number" gorm:"column:invoice_number;type:varchar(40);not null;uniqueIndex:uq_invoices_school_number,priority:2"`

	InvoiceStudentID     uuid.UUID `json:"invoice_student_id" gorm:"column:invoice_student_id;type:uuid;not null;index:idx_invoices_student_term,priority:2"`
	InvoiceTermID        uuid.UUID `json:"invoice_term_id" gorm:"column:invoice_term_id;type:uuid;not null;index:idx_invoices_student_term,priority:3;index:idx_invoices_term_group,priority:2"`
	InvoiceSessionID     uuid.UUID `json:"invoice_session_id" gorm:"column:invoice_session_id;type:uuid;not null"`
	InvoiceClassGroupID  uuid.UUID `json:"invoice_class_group_id" gorm:"column:invoice_class_group_id;type:uuid;not null;index:idx_invoices_term_group,priority:3"`
	InvoiceFeeScheduleID uuid.UUID `json:"invoice_fee_schedule_id" gorm:"column:invoice_fee_schedule_id;type:uuid;not null"`

	InvoiceStatus InvoiceStatus `json:"invoice_status" gorm:"column:invoice_status;type:varchar(20);not null"`

	InvoiceRequiredSubtotal decimal.Decimal  `json:"invoice_required_subtotal" gorm:"column:invoice_required_subtotal;type:numeric(14,2);not null"`
	InvoiceOptionalSubtotal decimal.Decimal  `json:"invoice_optional_subtotal" gorm:"column:invoice_optional_subtotal;type:numeric(14,2);not null"`
	InvoiceDiscountTotal    decimal.Decimal  `json:"invoice_discount_total" gorm:"column:invoice_discount_total;type:numeric(14,2);not null"`
	InvoicePenaltyTotal     decimal.Decimal  `json:"invoice_penalty_total" gorm:"column:invoice_penalty_total;type:numeric(14,2);not null"`
	InvoiceAmountPaid       decimal.Decimal  `json:"invoice_amount_paid" gorm:"column:invoice_amount_paid;type:numeric(14,2);not null"`
	InvoiceAmountDue        decimal.Decimal  `json:"invoice_amount_due" gorm:"column:invoice_amount_due;type:numeric(14,2);not null"`
	InvoiceMinFirstPayment  *decimal.Decimal `json:"invoice_min_first_payment_amount,omitempty" gorm:"column:invoice_min_first_payment_amount;type:numeric(14,2)"`
	InvoiceCurrency         string           `json:"invoice_currency" gorm:"column:invoice_currency;type:varchar(3);not null"`

	InvoiceDueAt           time.Time  `json:"invoice_due_at" gorm:"column:invoice_due_at;not null"`
	InvoiceLastProcessedAt *time.Time `json:"invoice_last_processed_at,omitempty" gorm:"column:invoice_last_processed_at"`
	// berapa kali stale sweep sudah re-emit invoice.generated
	InvoiceRepublishCount int `json:"invoice_republish_count" gorm:"column:invoice_republish_count;not null;default:0"`

	// student|term|classGroup|feeSchedule; sengaja bukan unique index (lihat DESIGN.md)
	InvoiceIdempotencyKey string `json:"invoice_idempotency_key" gorm:"column:invoice_idempotency_key;type:varchar(160);not null;index:idx_invoices_idem,priority:2"`

	InvoiceBillToEmail *string `json:"invoice_bill_to_email,omitempty" gorm:"column:invoice_bill_to_email;type:varchar(160)"`
	InvoiceStudentName string  `json:"invoice_student_name" gorm:"column:invoice_student_name;type:varchar(160);not null;default:''"`

	InvoiceCreatedAt time.Time `json:"invoice_created_at" gorm:"column:invoice_created_at;not null;autoCreateTime"`
	InvoiceUpdatedAt time.Time `json:"invoice_updated_at" gorm:"column:invoice_updated_at;not null;autoUpdateTime"`

	Lines []InvoiceLine `json:"lines,omitempty" gorm:"foreignKey:InvoiceLineInvoiceID;references:InvoiceID"`
}

func (Invoice) TableName() string { return "invoices" }

// IdempotencyKey builds the natural key used to detect duplicate generation.
func IdempotencyKey(studentID, termID, classGroupID, scheduleID uuid.UUID) string {
	return strings.Join([]string{studentID.String(), termID.String(), classGroupID.String(), scheduleID.String()}, "|")
}

// Recompute applies amountDue = max(required + optional − discount + penalty − paid, 0)
// and derives the payment status. VOID is terminal.
func (inv *Invoice) Recompute() {
	gross := inv.InvoiceRequiredSubtotal.
		Add(inv.InvoiceOptionalSubtotal).
		Sub(inv.InvoiceDiscountTotal).
		Add(inv.InvoicePenaltyTotal).
		Sub(inv.InvoiceAmountPaid)
	if gross.IsNegative() {
		gross = decimal.Zero
	}
	inv.InvoiceAmountDue = gross

	if inv.InvoiceStatus == InvoiceStatusVoid {
		return
	}
	switch {
	case !inv.InvoiceAmountPaid.IsPositive():
		inv.InvoiceStatus = InvoiceStatusIssued
	case inv.InvoiceAmountDue.IsZero():
		inv.InvoiceStatus = InvoiceStatusPaid
	default:
		inv.InvoiceStatus = InvoiceStatusPartiallyPaid
	}
}

// --- MODEL invoice_lines -----------------------------------------------------
type InvoiceLine struct {
	InvoiceLineID        uuid.UUID `json:"invoice_line_id" gorm:"column:invoice_line_id;type:uuid;primaryKey"`
	InvoiceLineSchoolID  uuid.UUID `json:"invoice_line_school_id" gorm:"column:invoice_line_school_id;type:uuid;not null"`
	InvoiceLineInvoiceID uuid.UUID `json:"invoice_line_invoice_id" gorm:"column:invoice_line_invoice_id;type:uuid;not null;uniqueIndex:uq_invoice_lines_invoice_item,priority:1"`
	InvoiceLineFeeItemID uuid.UUID `json:"invoice_line_fee_item_id" gorm:"column:invoice_line_fee_item_id;type:uuid;not null;uniqueIndex:uq_invoice_lines_invoice_item,priority:2"`

	InvoiceLineName       string          `json:"invoice_line_name" gorm:"column:invoice_line_name;type:varchar(120);not null"`
	InvoiceLineIsOptional bool            `json:"invoice_line_is_optional" gorm:"column:invoice_line_is_optional;not null"`
	InvoiceLineIsSelected bool            `json:"invoice_line_is_selected" gorm:"column:invoice_line_is_selected;not null"`
	InvoiceLineAmount     decimal.Decimal `json:"invoice_line_amount" gorm:"column:invoice_line_amount;type:numeric(14,2);not null"`
	InvoiceLineSortOrder  int             `json:"invoice_line_sort_order" gorm:"column:invoice_line_sort_order;not null"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// --- MODEL invoice_sequences (penomoran INV-YYYYMM-NNNNNN per sekolah) -------
type InvoiceSequence struct {
	InvoiceSequenceSchoolID  uuid.UUID `gorm:"column:invoice_sequence_school_id;type:uuid;primaryKey"`
	InvoiceSequenceYearMonth string    `gorm:"column:invoice_sequence_year_month;type:varchar(6);primaryKey"`
	InvoiceSequenceLastValue int64     `gorm:"column:invoice_sequence_last_value;not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

// --- MODEL invoice_payment_applications --------------------------------------
// Replay guard: satu baris per payment transaction yang sudah dibukukan ke invoice.
type InvoicePaymentApplication struct {
	ApplicationTransactionID uuid.UUID       `json:"transaction_id" gorm:"column:application_transaction_id;type:uuid;primaryKey"`
	ApplicationSchoolID      uuid.UUID       `json:"school_id" gorm:"column:application_school_id;type:uuid;not null"`
	ApplicationInvoiceID     uuid.UUID       `json:"invoice_id" gorm:"column:application_invoice_id;type:uuid;not null;index"`
	ApplicationAmount        decimal.Decimal `json:"amount" gorm:"column:application_amount;type:numeric(14,2);not null"`
	ApplicationAppliedAt     time.Time       `json:"applied_at" gorm:"column:application_applied_at;not null;autoCreateTime"`
}

func (InvoicePaymentApplication) TableName() string { return "invoice_payment_applications" }
