package dto

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UpsertReleasePolicyRequest struct {
	IsEnabled             bool            `json:"is_enabled"`
	MinimumPaymentPercent decimal.Decimal `json:"minimum_payment_percent"`
	MessageToParent       *string         `json:"message_to_parent" validate:"omitempty,max=1000"`
}

type UpsertReportCardRequest struct {
	StudentID    uuid.UUID       `json:"student_id" validate:"required"`
	TermID       uuid.UUID       `json:"term_id" validate:"required"`
	ClassGroupID *uuid.UUID      `json:"class_group_id"`
	Summary      json.RawMessage `json:"summary" validate:"required"`
}

type PublishResultsRequest struct {
	TermID       uuid.UUID `json:"term_id" validate:"required"`
	ClassGroupID uuid.UUID `json:"class_group_id" validate:"required"`
}

type PublishResultsResponse struct {
	Published int `json:"published"`
	Events    int `json:"events"`
}

// GateFigures is the payload of a blocked read (audit snapshot + error details).
type GateFigures struct {
	StudentID             uuid.UUID       `json:"student_id"`
	TermID                uuid.UUID       `json:"term_id"`
	RequiredSubtotal      decimal.Decimal `json:"required_subtotal"`
	AmountPaid            decimal.Decimal `json:"amount_paid"`
	PercentPaid           decimal.Decimal `json:"percent_paid"`
	MinimumPaymentPercent decimal.Decimal `json:"minimum_payment_percent"`
}
