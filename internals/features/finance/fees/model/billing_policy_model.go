package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- MODEL billing_policies (satu baris per sekolah) -------------------------
type BillingPolicy struct {
	BillingPolicySchoolID               uuid.UUID       `json:"billing_policy_school_id" gorm:"column:billing_policy_school_id;type:uuid;primaryKey"`
	BillingPolicyMinFirstPaymentPercent decimal.Decimal `json:"billing_policy_min_first_payment_percent" gorm:"column:billing_policy_min_first_payment_percent;type:numeric(5,2);not null"`
	BillingPolicyCurrency               string          `json:"billing_policy_currency" gorm:"column:billing_policy_currency;type:varchar(3);not null"`
	BillingPolicyUpdatedAt              time.Time       `json:"billing_policy_updated_at" gorm:"column:billing_policy_updated_at;not null;autoUpdateTime"`
}

func (BillingPolicy) TableName() string { return "billing_policies" }
