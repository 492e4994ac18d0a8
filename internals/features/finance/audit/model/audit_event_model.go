package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/*
audit_events = jejak append-only setiap mutasi privileged.
Tidak ada API update/delete; entity_id hanya back-reference (lookup, bukan FK).
*/
type AuditEvent struct {
	AuditEventID          uuid.UUID      `json:"audit_event_id" gorm:"column:audit_event_id;type:uuid;primaryKey"`
	AuditEventSchoolID    uuid.UUID      `json:"audit_event_school_id" gorm:"column:audit_event_school_id;type:uuid;not null;index:idx_audit_events_school_entity,priority:1;index:idx_audit_events_school_action,priority:1"`
	AuditEventActorUserID *uuid.UUID     `json:"audit_event_actor_user_id,omitempty" gorm:"column:audit_event_actor_user_id;type:uuid"`
	AuditEventAction      string         `json:"audit_event_action" gorm:"column:audit_event_action;type:varchar(60);not null;index:idx_audit_events_school_action,priority:2"`
	AuditEventEntityType  string         `json:"audit_event_entity_type" gorm:"column:audit_event_entity_type;type:varchar(60);not null"`
	AuditEventEntityID    string         `json:"audit_event_entity_id" gorm:"column:audit_event_entity_id;type:varchar(80);not null;index:idx_audit_events_school_entity,priority:2"`
	AuditEventSnapshot    datatypes.JSON `json:"audit_event_snapshot" gorm:"column:audit_event_snapshot"`
	AuditEventCreatedAt   time.Time      `json:"audit_event_created_at" gorm:"column:audit_event_created_at;not null;autoCreateTime"`
}

func (AuditEvent) TableName() string { return "audit_events" }
