package model

import (
	"time"

	"github.com/google/uuid"
)

// --- MODEL notification_logs -------------------------------------------------
// Replay guard messaging worker: satu baris per (sekolah, event, channel).
type NotificationLog struct {
	NotificationLogSchoolID  uuid.UUID `json:"notification_log_school_id" gorm:"column:notification_log_school_id;type:uuid;primaryKey"`
	NotificationLogEventID   string    `json:"notification_log_event_id" gorm:"column:notification_log_event_id;type:varchar(64);primaryKey"`
	NotificationLogChannel   string    `json:"notification_log_channel" gorm:"column:notification_log_channel;type:varchar(20);primaryKey"`
	NotificationLogKind      string    `json:"notification_log_kind" gorm:"column:notification_log_kind;type:varchar(40);not null"`
	NotificationLogRecipient string    `json:"notification_log_recipient" gorm:"column:notification_log_recipient;type:varchar(160);not null"`
	NotificationLogSentAt    time.Time `json:"notification_log_sent_at" gorm:"column:notification_log_sent_at;not null;autoCreateTime"`
}

func (NotificationLog) TableName() string { return "notification_logs" }
