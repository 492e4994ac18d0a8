package service

import (
	"context"
	"log"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"schoolku_backend/internals/features/finance/audit/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

// Entry is one audit record. EntityID is the id produced by the primary write.
type Entry struct {
	SchoolID   uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Snapshot   any
}

// Writer appends audit events. Record runs after the primary write has been
// committed and never fails the caller: a lost audit row is logged only.
type Writer struct {
	DB *gorm.DB
}

func NewWriter(db *gorm.DB) *Writer { return &Writer{DB: db} }

func (w *Writer) Record(ctx context.Context, e Entry) {
	if w == nil || w.DB == nil {
		return
	}
	raw, err := sonic.Marshal(e.Snapshot)
	if err != nil {
		log.Printf("[WARN] audit %s %s/%s: snapshot encode: %v", e.Action, e.EntityType, e.EntityID, err)
		raw = []byte("{}")
	}

	row := model.AuditEvent{
		AuditEventID:          uuid.New(),
		AuditEventSchoolID:    e.SchoolID,
		AuditEventActorUserID: guard.FromContext(ctx).ActorID(),
		AuditEventAction:      e.Action,
		AuditEventEntityType:  e.EntityType,
		AuditEventEntityID:    e.EntityID,
		AuditEventSnapshot:    datatypes.JSON(raw),
	}
	if err := w.DB.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("[WARN] audit %s %s/%s not recorded: %v", e.Action, e.EntityType, e.EntityID, err)
	}
}

type ListFilter struct {
	Action   string
	EntityID string
}

func (w *Writer) List(ctx context.Context, schoolID uuid.UUID, f ListFilter, p helper.Paging) ([]model.AuditEvent, int64, error) {
	if err := guard.Enforce(ctx, guard.OpListAuditEvents, schoolID); err != nil {
		return nil, 0, err
	}
	q := w.DB.WithContext(ctx).Model(&model.AuditEvent{}).Where("audit_event_school_id = ?", schoolID)
	if f.Action != "" {
		q = q.Where("audit_event_action = ?", f.Action)
	}
	if f.EntityID != "" {
		q = q.Where("audit_event_entity_id = ?", f.EntityID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "audit event")
	}
	rows := make([]model.AuditEvent, 0)
	if err := q.Order("audit_event_created_at DESC").Offset(p.Offset).Limit(p.Limit).Find(&rows).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "audit event")
	}
	return rows, total, nil
}
