package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- MODEL fee_schedules -----------------------------------------------------
// Scope: (session, term, class-year | class-group). Terkunci begitu ada invoice
// yang dibuat dari schedule ini.
type FeeSchedule struct {
	FeeScheduleID       uuid.UUID `json:"fee_schedule_id" gorm:"column:fee_schedule_id;type:uuid;primaryKey"`
	FeeScheduleSchoolID uuid.UUID `json:"fee_schedule_school_id" gorm:"column:fee_schedule_school_id;type:uuid;not null;index:idx_fee_schedules_scope,priority:1"`

	FeeScheduleSessionID    uuid.UUID  `json:"fee_schedule_session_id" gorm:"column:fee_schedule_session_id;type:uuid;not null"`
	FeeScheduleTermID       uuid.UUID  `json:"fee_schedule_term_id" gorm:"column:fee_schedule_term_id;type:uuid;not null;index:idx_fee_schedules_scope,priority:2"`
	FeeScheduleClassYearID  *uuid.UUID `json:"fee_schedule_class_year_id,omitempty" gorm:"column:fee_schedule_class_year_id;type:uuid"`
	FeeScheduleClassGroupID *uuid.UUID `json:"fee_schedule_class_group_id,omitempty" gorm:"column:fee_schedule_class_group_id;type:uuid;index:idx_fee_schedules_scope,priority:3"`

	FeeScheduleTitle    string `json:"fee_schedule_title" gorm:"column:fee_schedule_title;type:varchar(160);not null"`
	FeeScheduleIsLocked bool   `json:"fee_schedule_is_locked" gorm:"column:fee_schedule_is_locked;not null;default:false"`

	FeeScheduleCreatedAt time.Time `json:"fee_schedule_created_at" gorm:"column:fee_schedule_created_at;not null;autoCreateTime"`
	FeeScheduleUpdatedAt time.Time `json:"fee_schedule_updated_at" gorm:"column:fee_schedule_updated_at;not null;autoUpdateTime"`

	Lines []FeeScheduleLine `json:"lines,omitempty" gorm:"foreignKey:FeeScheduleLineScheduleID;references:FeeScheduleID"`
}

func (FeeSchedule) TableName() string { return "fee_schedules" }

// --- MODEL fee_schedule_lines ------------------------------------------------
type FeeScheduleLine struct {
	FeeScheduleLineID         uuid.UUID `json:"fee_schedule_line_id" gorm:"column:fee_schedule_line_id;type:uuid;primaryKey"`
	FeeScheduleLineSchoolID   uuid.UUID `json:"fee_schedule_line_school_id" gorm:"column:fee_schedule_line_school_id;type:uuid;not null"`
	FeeScheduleLineScheduleID uuid.UUID `json:"fee_schedule_line_schedule_id" gorm:"column:fee_schedule_line_schedule_id;type:uuid;not null;index"`
	FeeScheduleLineFeeItemID  uuid.UUID `json:"fee_schedule_line_fee_item_id" gorm:"column:fee_schedule_line_fee_item_id;type:uuid;not null;index"`

	FeeScheduleLineAmount             decimal.Decimal `json:"fee_schedule_line_amount" gorm:"column:fee_schedule_line_amount;type:numeric(14,2);not null"`
	FeeScheduleLineIsOptionalOverride *bool           `json:"fee_schedule_line_is_optional_override,omitempty" gorm:"column:fee_schedule_line_is_optional_override"`
	FeeScheduleLineSortOrder          int             `json:"fee_schedule_line_sort_order" gorm:"column:fee_schedule_line_sort_order;not null;default:0"`
	FeeScheduleLineDueAt              *time.Time      `json:"fee_schedule_line_due_at,omitempty" gorm:"column:fee_schedule_line_due_at"`
}

func (FeeScheduleLine) TableName() string { return "fee_schedule_lines" }

// EffectiveOptional: override pada line menang atas flag di fee item.
func (l FeeScheduleLine) EffectiveOptional(item FeeItem) bool {
	if l.FeeScheduleLineIsOptionalOverride != nil {
		return *l.FeeScheduleLineIsOptionalOverride
	}
	return item.FeeItemIsOptional
}
