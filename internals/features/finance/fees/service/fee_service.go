package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/fees/dto"
	"schoolku_backend/internals/features/finance/fees/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

// PolicyDefaults apply when a school has no billing_policies row.
type PolicyDefaults struct {
	MinFirstPaymentPercent decimal.Decimal
	Currency               string
}

var DefaultPolicy = PolicyDefaults{MinFirstPaymentPercent: decimal.NewFromInt(30), Currency: "IDR"}

type Service struct {
	DB       *gorm.DB
	Audit    *auditService.Writer
	Defaults PolicyDefaults
}

func New(db *gorm.DB, audit *auditService.Writer, defaults PolicyDefaults) *Service {
	if defaults.Currency == "" {
		defaults.Currency = DefaultPolicy.Currency
	}
	if defaults.MinFirstPaymentPercent.IsZero() {
		defaults.MinFirstPaymentPercent = DefaultPolicy.MinFirstPaymentPercent
	}
	return &Service{DB: db, Audit: audit, Defaults: defaults}
}

/* =========================================================
   Fee items
========================================================= */

func (s *Service) UpsertFeeItem(ctx context.Context, schoolID uuid.UUID, req dto.UpsertFeeItemRequest) (*model.FeeItem, error) {
	if err := guard.Enforce(ctx, guard.OpUpsertFeeItem, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}

	var item model.FeeItem
	if req.FeeItemID != nil {
		if err := s.DB.WithContext(ctx).
			Where("fee_item_school_id = ? AND fee_item_id = ?", schoolID, *req.FeeItemID).
			First(&item).Error; err != nil {
			return nil, apperr.FromDB(err, "fee item")
		}
	} else {
		item = model.FeeItem{FeeItemID: uuid.New(), FeeItemSchoolID: schoolID, FeeItemIsActive: true}
	}

	item.FeeItemName = strings.TrimSpace(req.Name)
	item.FeeItemCategory = strings.ToUpper(strings.TrimSpace(req.Category))
	if item.FeeItemCategory == "" {
		item.FeeItemCategory = "TUITION"
	}
	item.FeeItemIsOptional = req.IsOptional
	if req.IsActive != nil {
		item.FeeItemIsActive = *req.IsActive
	}

	q := s.DB.WithContext(ctx)
	var err error
	if req.FeeItemID == nil {
		err = q.Create(&item).Error
	} else {
		// Save mengirim semua kolom, termasuk bool false
		err = q.Save(&item).Error
	}
	if err != nil {
		return nil, apperr.FromDB(err, "fee item")
	}
	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditFeeItemUpserted,
		EntityType: "fee_item", EntityID: item.FeeItemID.String(), Snapshot: item,
	})
	return &item, nil
}

// DeleteFeeItem soft-deletes; items referenced by any schedule line are kept.
func (s *Service) DeleteFeeItem(ctx context.Context, schoolID, itemID uuid.UUID) error {
	if err := guard.Enforce(ctx, guard.OpDeleteFeeItem, schoolID); err != nil {
		return err
	}
	var refs int64
	if err := s.DB.WithContext(ctx).Model(&model.FeeScheduleLine{}).
		Where("fee_schedule_line_school_id = ? AND fee_schedule_line_fee_item_id = ?", schoolID, itemID).
		Count(&refs).Error; err != nil {
		return apperr.FromDB(err, "fee item")
	}
	if refs > 0 {
		return apperr.Conflict("fee item is referenced by a fee schedule")
	}

	res := s.DB.WithContext(ctx).
		Where("fee_item_school_id = ? AND fee_item_id = ?", schoolID, itemID).
		Delete(&model.FeeItem{})
	if res.Error != nil {
		return apperr.FromDB(res.Error, "fee item")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("fee item")
	}
	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditFeeItemDeleted,
		EntityType: "fee_item", EntityID: itemID.String(), Snapshot: map[string]any{"fee_item_id": itemID},
	})
	return nil
}

func (s *Service) ListFeeItems(ctx context.Context, schoolID uuid.UUID, activeOnly bool, p helper.Paging) ([]model.FeeItem, int64, error) {
	if err := guard.Enforce(ctx, guard.OpListFeeItems, schoolID); err != nil {
		return nil, 0, err
	}
	q := s.DB.WithContext(ctx).Model(&model.FeeItem{}).Where("fee_item_school_id = ?", schoolID)
	if activeOnly {
		q = q.Where("fee_item_is_active = ?", true)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "fee item")
	}
	items := make([]model.FeeItem, 0)
	if err := q.Order("fee_item_name ASC").Offset(p.Offset).Limit(p.Limit).Find(&items).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "fee item")
	}
	return items, total, nil
}

/* =========================================================
   Fee schedules
========================================================= */

func (s *Service) CreateFeeSchedule(ctx context.Context, schoolID uuid.UUID, req dto.CreateFeeScheduleRequest) (*model.FeeSchedule, error) {
	if err := guard.Enforce(ctx, guard.OpCreateFeeSchedule, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	if req.ClassYearID == nil && req.ClassGroupID == nil {
		return nil, apperr.Validation("class_year_id or class_group_id is required")
	}

	sch := model.FeeSchedule{
		FeeScheduleID:           uuid.New(),
		FeeScheduleSchoolID:     schoolID,
		FeeScheduleSessionID:    req.SessionID,
		FeeScheduleTermID:       req.TermID,
		FeeScheduleClassYearID:  req.ClassYearID,
		FeeScheduleClassGroupID: req.ClassGroupID,
		FeeScheduleTitle:        strings.TrimSpace(req.Title),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines, err := buildLines(tx, schoolID, sch.FeeScheduleID, req.Lines)
		if err != nil {
			return err
		}
		if err := tx.Omit("Lines").Create(&sch).Error; err != nil {
			return apperr.FromDB(err, "fee schedule")
		}
		if err := tx.Create(&lines).Error; err != nil {
			return apperr.FromDB(err, "fee schedule line")
		}
		sch.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditFeeScheduleCreated,
		EntityType: "fee_schedule", EntityID: sch.FeeScheduleID.String(), Snapshot: dto.FromScheduleModel(sch),
	})
	return &sch, nil
}

// UpdateFeeSchedule replaces title and lines; locked schedules are immutable.
func (s *Service) UpdateFeeSchedule(ctx context.Context, schoolID, scheduleID uuid.UUID, req dto.UpdateFeeScheduleRequest) (*model.FeeSchedule, error) {
	if err := guard.Enforce(ctx, guard.OpUpdateFeeSchedule, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}

	var sch model.FeeSchedule
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fee_schedule_school_id = ? AND fee_schedule_id = ?", schoolID, scheduleID).
			First(&sch).Error; err != nil {
			return apperr.FromDB(err, "fee schedule")
		}
		if sch.FeeScheduleIsLocked {
			return apperr.Conflict("fee schedule is locked: invoices were generated from it")
		}

		if req.Title != nil {
			sch.FeeScheduleTitle = strings.TrimSpace(*req.Title)
		}
		// guard di WHERE: schedule bisa terkunci oleh generator di antara read & write
		res := tx.Model(&model.FeeSchedule{}).
			Where("fee_schedule_id = ? AND fee_schedule_is_locked = ?", scheduleID, false).
			Update("fee_schedule_title", sch.FeeScheduleTitle)
		if res.Error != nil {
			return apperr.FromDB(res.Error, "fee schedule")
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("fee schedule is locked: invoices were generated from it")
		}

		if len(req.Lines) > 0 {
			lines, err := buildLines(tx, schoolID, scheduleID, req.Lines)
			if err != nil {
				return err
			}
			if err := tx.Where("fee_schedule_line_schedule_id = ?", scheduleID).
				Delete(&model.FeeScheduleLine{}).Error; err != nil {
				return apperr.FromDB(err, "fee schedule line")
			}
			if err := tx.Create(&lines).Error; err != nil {
				return apperr.FromDB(err, "fee schedule line")
			}
		}
		return tx.Where("fee_schedule_line_schedule_id = ?", scheduleID).
			Order("fee_schedule_line_sort_order ASC").Find(&sch.Lines).Error
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditFeeScheduleUpdated,
		EntityType: "fee_schedule", EntityID: scheduleID.String(), Snapshot: dto.FromScheduleModel(sch),
	})
	return &sch, nil
}

func (s *Service) GetSchedule(ctx context.Context, schoolID, scheduleID uuid.UUID) (*model.FeeSchedule, error) {
	if err := guard.Enforce(ctx, guard.OpGetFeeSchedule, schoolID); err != nil {
		return nil, err
	}
	return LoadSchedule(s.DB.WithContext(ctx), schoolID, scheduleID)
}

// LoadSchedule reads a schedule with its lines ordered by sort_order. Callers
// enforce their own operation policy.
func LoadSchedule(db *gorm.DB, schoolID, scheduleID uuid.UUID) (*model.FeeSchedule, error) {
	var sch model.FeeSchedule
	err := db.
		Preload("Lines", func(q *gorm.DB) *gorm.DB {
			return q.Order("fee_schedule_line_sort_order ASC")
		}).
		Where("fee_schedule_school_id = ? AND fee_schedule_id = ?", schoolID, scheduleID).
		First(&sch).Error
	if err != nil {
		return nil, apperr.FromDB(err, "fee schedule")
	}
	return &sch, nil
}

// LockSchedule marks a schedule immutable; idempotent.
func LockSchedule(tx *gorm.DB, schoolID, scheduleID uuid.UUID) error {
	return tx.Model(&model.FeeSchedule{}).
		Where("fee_schedule_school_id = ? AND fee_schedule_id = ? AND fee_schedule_is_locked = ?", schoolID, scheduleID, false).
		Update("fee_schedule_is_locked", true).Error
}

// ItemsByID loads fee items (including soft-deleted ones still on old schedules).
func ItemsByID(db *gorm.DB, schoolID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.FeeItem, error) {
	out := make(map[uuid.UUID]model.FeeItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []model.FeeItem
	if err := db.Unscoped().
		Where("fee_item_school_id = ? AND fee_item_id IN ?", schoolID, ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.FeeItemID] = it
	}
	return out, nil
}

func buildLines(tx *gorm.DB, schoolID, scheduleID uuid.UUID, in []dto.FeeScheduleLineRequest) ([]model.FeeScheduleLine, error) {
	ids := make([]uuid.UUID, 0, len(in))
	seen := map[uuid.UUID]bool{}
	for _, l := range in {
		if seen[l.FeeItemID] {
			return nil, apperr.Validation("fee item " + l.FeeItemID.String() + " appears twice in schedule")
		}
		seen[l.FeeItemID] = true
		if l.Amount.IsNegative() {
			return nil, apperr.Validation("line amount must not be negative")
		}
		ids = append(ids, l.FeeItemID)
	}

	var found int64
	if err := tx.Model(&model.FeeItem{}).
		Where("fee_item_school_id = ? AND fee_item_id IN ?", schoolID, ids).
		Count(&found).Error; err != nil {
		return nil, apperr.FromDB(err, "fee item")
	}
	if int(found) != len(ids) {
		return nil, apperr.Validation("schedule references unknown fee items")
	}

	lines := make([]model.FeeScheduleLine, 0, len(in))
	for _, l := range in {
		lines = append(lines, model.FeeScheduleLine{
			FeeScheduleLineID:                 uuid.New(),
			FeeScheduleLineSchoolID:           schoolID,
			FeeScheduleLineScheduleID:         scheduleID,
			FeeScheduleLineFeeItemID:          l.FeeItemID,
			FeeScheduleLineAmount:             l.Amount.Round(2),
			FeeScheduleLineIsOptionalOverride: l.IsOptionalOverride,
			FeeScheduleLineSortOrder:          l.SortOrder,
			FeeScheduleLineDueAt:              l.DueAt,
		})
	}
	return lines, nil
}

/* =========================================================
   Billing policy
========================================================= */

// GetBillingPolicy returns the stored policy or the configured defaults.
func (s *Service) GetBillingPolicy(db *gorm.DB, schoolID uuid.UUID) (model.BillingPolicy, error) {
	var pol model.BillingPolicy
	err := db.Where("billing_policy_school_id = ?", schoolID).First(&pol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.BillingPolicy{
			BillingPolicySchoolID:               schoolID,
			BillingPolicyMinFirstPaymentPercent: s.Defaults.MinFirstPaymentPercent,
			BillingPolicyCurrency:               s.Defaults.Currency,
		}, nil
	}
	if err != nil {
		return pol, apperr.FromDB(err, "billing policy")
	}
	return pol, nil
}

func (s *Service) UpsertBillingPolicy(ctx context.Context, schoolID uuid.UUID, req dto.UpsertBillingPolicyRequest) (*model.BillingPolicy, error) {
	if err := guard.Enforce(ctx, guard.OpUpsertBillingPolicy, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	if !helper.ValidPercent(req.MinFirstPaymentPercent) {
		return nil, apperr.Validation("min_first_payment_percent must be between 0 and 100")
	}
	cur := strings.ToUpper(strings.TrimSpace(req.Currency))
	if cur == "" {
		cur = s.Defaults.Currency
	}

	pol := model.BillingPolicy{
		BillingPolicySchoolID:               schoolID,
		BillingPolicyMinFirstPaymentPercent: req.MinFirstPaymentPercent,
		BillingPolicyCurrency:               cur,
	}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "billing_policy_school_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"billing_policy_min_first_payment_percent", "billing_policy_currency", "billing_policy_updated_at"}),
	}).Create(&pol).Error; err != nil {
		return nil, apperr.FromDB(err, "billing policy")
	}
	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditBillingPolicyUpdated,
		EntityType: "billing_policy", EntityID: schoolID.String(), Snapshot: pol,
	})
	return &pol, nil
}
