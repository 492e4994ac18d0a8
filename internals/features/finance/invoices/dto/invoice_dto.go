package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schoolku_backend/internals/features/finance/invoices/model"
)

/* =========================================================
   Requests
========================================================= */

type CreateInvoiceRequest struct {
	StudentID     uuid.UUID  `json:"student_id" validate:"required"`
	TermID        uuid.UUID  `json:"term_id" validate:"required"`
	SessionID     *uuid.UUID `json:"session_id"`
	ClassGroupID  *uuid.UUID `json:"class_group_id"`
	FeeScheduleID uuid.UUID  `json:"fee_schedule_id" validate:"required"`
	DueAt         time.Time  `json:"due_at" validate:"required"`
	// override minimum pembayaran pertama untuk invoice ini saja
	MinFirstPaymentAmount *decimal.Decimal `json:"min_first_payment_amount"`
}

type GenerateClassInvoicesRequest struct {
	TermID         uuid.UUID `json:"term_id" validate:"required"`
	ClassGroupID   uuid.UUID `json:"class_group_id" validate:"required"`
	FeeScheduleID  uuid.UUID `json:"fee_schedule_id" validate:"required"`
	DueAt          time.Time `json:"due_at" validate:"required"`
	Cap            *int      `json:"cap" validate:"omitempty,gt=0"`
	SkipDuplicates bool      `json:"skip_duplicates"`
}

type SelectOptionalItemsRequest struct {
	SelectedLineIDs []uuid.UUID `json:"selected_line_ids"`
}

type CreateFeeAdjustmentRequest struct {
	Kind       model.AdjustmentKind `json:"kind" validate:"required,oneof=CREDIT DEBIT"`
	Amount     decimal.Decimal      `json:"amount"`
	Reason     string               `json:"reason" validate:"required,max=500"`
	ApprovedBy *uuid.UUID           `json:"approved_by"`
}

type InstallmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	DueAt  time.Time       `json:"due_at" validate:"required"`
}

type CreateInstallmentPlanRequest struct {
	Installments []InstallmentRequest `json:"installments" validate:"required,min=1,dive"`
}

type DefaultersQuery struct {
	TermID         uuid.UUID
	ClassGroupID   uuid.UUID
	MinDaysOverdue int
	MinAmountDue   decimal.Decimal
}

/* =========================================================
   Responses
========================================================= */

type InvoiceLineResponse struct {
	LineID     uuid.UUID       `json:"invoice_line_id"`
	FeeItemID  uuid.UUID       `json:"fee_item_id"`
	Name       string          `json:"name"`
	IsOptional bool            `json:"is_optional"`
	IsSelected bool            `json:"is_selected"`
	Amount     decimal.Decimal `json:"amount"`
}

type InvoiceResponse struct {
	InvoiceID        uuid.UUID             `json:"invoice_id"`
	Number           string                `json:"invoice_number"`
	SchoolID         uuid.UUID             `json:"school_id"`
	StudentID        uuid.UUID             `json:"student_id"`
	TermID           uuid.UUID             `json:"term_id"`
	ClassGroupID     uuid.UUID             `json:"class_group_id"`
	FeeScheduleID    uuid.UUID             `json:"fee_schedule_id"`
	Status           model.InvoiceStatus   `json:"status"`
	RequiredSubtotal decimal.Decimal       `json:"required_subtotal"`
	OptionalSubtotal decimal.Decimal       `json:"optional_subtotal"`
	DiscountTotal    decimal.Decimal       `json:"discount_total"`
	PenaltyTotal     decimal.Decimal       `json:"penalty_total"`
	AmountPaid       decimal.Decimal       `json:"amount_paid"`
	AmountDue        decimal.Decimal       `json:"amount_due"`
	Currency         string                `json:"currency"`
	DueAt            time.Time             `json:"due_at"`
	LastProcessedAt  *time.Time            `json:"last_processed_at,omitempty"`
	Lines            []InvoiceLineResponse `json:"lines,omitempty"`
}

func FromInvoiceModel(m model.Invoice) InvoiceResponse {
	out := InvoiceResponse{
		InvoiceID:        m.InvoiceID,
		Number:           m.InvoiceNumber,
		SchoolID:         m.InvoiceSchoolID,
		StudentID:        m.InvoiceStudentID,
		TermID:           m.InvoiceTermID,
		ClassGroupID:     m.InvoiceClassGroupID,
		FeeScheduleID:    m.InvoiceFeeScheduleID,
		Status:           m.InvoiceStatus,
		RequiredSubtotal: m.InvoiceRequiredSubtotal,
		OptionalSubtotal: m.InvoiceOptionalSubtotal,
		DiscountTotal:    m.InvoiceDiscountTotal,
		PenaltyTotal:     m.InvoicePenaltyTotal,
		AmountPaid:       m.InvoiceAmountPaid,
		AmountDue:        m.InvoiceAmountDue,
		Currency:         m.InvoiceCurrency,
		DueAt:            m.InvoiceDueAt,
		LastProcessedAt:  m.InvoiceLastProcessedAt,
	}
	for _, l := range m.Lines {
		out.Lines = append(out.Lines, InvoiceLineResponse{
			LineID:     l.InvoiceLineID,
			FeeItemID:  l.InvoiceLineFeeItemID,
			Name:       l.InvoiceLineName,
			IsOptional: l.InvoiceLineIsOptional,
			IsSelected: l.InvoiceLineIsSelected,
			Amount:     l.InvoiceLineAmount,
		})
	}
	return out
}

func FromInvoiceModels(rows []model.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromInvoiceModel(r))
	}
	return out
}
