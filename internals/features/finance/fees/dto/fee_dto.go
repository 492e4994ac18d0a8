package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schoolku_backend/internals/features/finance/fees/model"
)

/* =========================================================
   Requests
========================================================= */

type UpsertFeeItemRequest struct {
	FeeItemID  *uuid.UUID `json:"fee_item_id"`
	Name       string     `json:"fee_item_name" validate:"required,max=120"`
	Category   string     `json:"fee_item_category" validate:"omitempty,max=60"`
	IsOptional bool       `json:"fee_item_is_optional"`
	IsActive   *bool      `json:"fee_item_is_active"`
}

type FeeScheduleLineRequest struct {
	FeeItemID          uuid.UUID       `json:"fee_item_id" validate:"required"`
	Amount             decimal.Decimal `json:"amount"`
	IsOptionalOverride *bool           `json:"is_optional_override"`
	SortOrder          int             `json:"sort_order" validate:"gte=0"`
	DueAt              *time.Time      `json:"due_at"`
}

type CreateFeeScheduleRequest struct {
	SessionID    uuid.UUID                `json:"session_id" validate:"required"`
	TermID       uuid.UUID                `json:"term_id" validate:"required"`
	ClassYearID  *uuid.UUID               `json:"class_year_id"`
	ClassGroupID *uuid.UUID               `json:"class_group_id"`
	Title        string                   `json:"title" validate:"required,max=160"`
	Lines        []FeeScheduleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type UpdateFeeScheduleRequest struct {
	Title *string                  `json:"title" validate:"omitempty,max=160"`
	Lines []FeeScheduleLineRequest `json:"lines" validate:"omitempty,min=1,dive"`
}

type UpsertBillingPolicyRequest struct {
	MinFirstPaymentPercent decimal.Decimal `json:"min_first_payment_percent"`
	Currency               string          `json:"currency" validate:"omitempty,len=3"`
}

/* =========================================================
   Responses
========================================================= */

type FeeScheduleLineResponse struct {
	LineID     uuid.UUID       `json:"fee_schedule_line_id"`
	FeeItemID  uuid.UUID       `json:"fee_item_id"`
	Amount     decimal.Decimal `json:"amount"`
	IsOptional *bool           `json:"is_optional_override,omitempty"`
	SortOrder  int             `json:"sort_order"`
	DueAt      *time.Time      `json:"due_at,omitempty"`
}

type FeeScheduleResponse struct {
	ScheduleID   uuid.UUID                 `json:"fee_schedule_id"`
	SchoolID     uuid.UUID                 `json:"school_id"`
	SessionID    uuid.UUID                 `json:"session_id"`
	TermID       uuid.UUID                 `json:"term_id"`
	ClassYearID  *uuid.UUID                `json:"class_year_id,omitempty"`
	ClassGroupID *uuid.UUID                `json:"class_group_id,omitempty"`
	Title        string                    `json:"title"`
	IsLocked     bool                      `json:"is_locked"`
	Lines        []FeeScheduleLineResponse `json:"lines"`
}

func FromScheduleModel(s model.FeeSchedule) FeeScheduleResponse {
	out := FeeScheduleResponse{
		ScheduleID:   s.FeeScheduleID,
		SchoolID:     s.FeeScheduleSchoolID,
		SessionID:    s.FeeScheduleSessionID,
		TermID:       s.FeeScheduleTermID,
		ClassYearID:  s.FeeScheduleClassYearID,
		ClassGroupID: s.FeeScheduleClassGroupID,
		Title:        s.FeeScheduleTitle,
		IsLocked:     s.FeeScheduleIsLocked,
		Lines:        make([]FeeScheduleLineResponse, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		out.Lines = append(out.Lines, FeeScheduleLineResponse{
			LineID:     l.FeeScheduleLineID,
			FeeItemID:  l.FeeScheduleLineFeeItemID,
			Amount:     l.FeeScheduleLineAmount,
			IsOptional: l.FeeScheduleLineIsOptionalOverride,
			SortOrder:  l.FeeScheduleLineSortOrder,
			DueAt:      l.FeeScheduleLineDueAt,
		})
	}
	return out
}
