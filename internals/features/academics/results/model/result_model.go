package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const DefaultBlockedMessage = "Results are withheld until the required school fees are paid. Please contact the school bursar."

// --- MODEL result_release_policies (satu baris per sekolah; tidak ada = gate off) ---
type ResultReleasePolicy struct {
	ResultReleasePolicySchoolID              uuid.UUID       `json:"result_release_policy_school_id" gorm:"column:result_release_policy_school_id;type:uuid;primaryKey"`
	ResultReleasePolicyIsEnabled             bool            `json:"result_release_policy_is_enabled" gorm:"column:result_release_policy_is_enabled;not null"`
	ResultReleasePolicyMinimumPaymentPercent decimal.Decimal `json:"result_release_policy_minimum_payment_percent" gorm:"column:result_release_policy_minimum_payment_percent;type:numeric(5,2);not null"`
	ResultReleasePolicyMessageToParent       *string         `json:"result_release_policy_message_to_parent,omitempty" gorm:"column:result_release_policy_message_to_parent;type:text"`
	ResultReleasePolicyUpdatedAt             time.Time       `json:"result_release_policy_updated_at" gorm:"column:result_release_policy_updated_at;not null;autoUpdateTime"`
}

func (ResultReleasePolicy) TableName() string { return "result_release_policies" }

func (p ResultReleasePolicy) Message() string {
	if p.ResultReleasePolicyMessageToParent != nil && *p.ResultReleasePolicyMessageToParent != "" {
		return *p.ResultReleasePolicyMessageToParent
	}
	return DefaultBlockedMessage
}

// --- MODEL report_cards ---
type ReportCard struct {
	ReportCardID           uuid.UUID      `json:"report_card_id" gorm:"column:report_card_id;type:uuid;primaryKey"`
	ReportCardSchoolID     uuid.UUID      `json:"report_card_school_id" gorm:"column:report_card_school_id;type:uuid;not null;uniqueIndex:uq_report_cards_student_term,priority:1;index:idx_report_cards_term_class,priority:1"`
	ReportCardStudentID    uuid.UUID      `json:"report_card_student_id" gorm:"column:report_card_student_id;type:uuid;not null;uniqueIndex:uq_report_cards_student_term,priority:2"`
	ReportCardTermID       uuid.UUID      `json:"report_card_term_id" gorm:"column:report_card_term_id;type:uuid;not null;uniqueIndex:uq_report_cards_student_term,priority:3;index:idx_report_cards_term_class,priority:2"`
	ReportCardClassGroupID *uuid.UUID     `json:"report_card_class_group_id,omitempty" gorm:"column:report_card_class_group_id;type:uuid;index:idx_report_cards_term_class,priority:3"`
	ReportCardSummary      datatypes.JSON `json:"report_card_summary" gorm:"column:report_card_summary"`
	ReportCardIsPublished  bool           `json:"report_card_is_published" gorm:"column:report_card_is_published;not null"`
	ReportCardPublishedAt  *time.Time     `json:"report_card_published_at,omitempty" gorm:"column:report_card_published_at"`
	ReportCardCreatedAt    time.Time      `json:"report_card_created_at" gorm:"column:report_card_created_at;not null;autoCreateTime"`
	ReportCardUpdatedAt    time.Time      `json:"report_card_updated_at" gorm:"column:report_card_updated_at;not null;autoUpdateTime"`
}

func (ReportCard) TableName() string { return "report_cards" }
