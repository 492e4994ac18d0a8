package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- MODEL fee_items ---------------------------------------------------------
type FeeItem struct {
	FeeItemID       uuid.UUID `json:"fee_item_id" gorm:"column:fee_item_id;type:uuid;primaryKey"`
	FeeItemSchoolID uuid.UUID `json:"fee_item_school_id" gorm:"column:fee_item_school_id;type:uuid;not null;index:idx_fee_items_school_active,priority:1"`

	FeeItemName     string `json:"fee_item_name" gorm:"column:fee_item_name;type:varchar(120);not null"`
	FeeItemCategory string `json:"fee_item_category" gorm:"column:fee_item_category;type:varchar(60);not null;default:'TUITION'"`

	FeeItemIsOptional bool `json:"fee_item_is_optional" gorm:"column:fee_item_is_optional;not null;default:false"`
	FeeItemIsActive   bool `json:"fee_item_is_active" gorm:"column:fee_item_is_active;not null;index:idx_fee_items_school_active,priority:2"`

	FeeItemCreatedAt time.Time      `json:"fee_item_created_at" gorm:"column:fee_item_created_at;not null;autoCreateTime"`
	FeeItemUpdatedAt time.Time      `json:"fee_item_updated_at" gorm:"column:fee_item_updated_at;not null;autoUpdateTime"`
	FeeItemDeletedAt gorm.DeletedAt `json:"fee_item_deleted_at,omitempty" gorm:"column:fee_item_deleted_at;index"`
}

func (FeeItem) TableName() string { return "fee_items" }
