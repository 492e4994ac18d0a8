package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	"schoolku_backend/internals/features/academics/results/dto"
	"schoolku_backend/internals/features/academics/results/model"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

func (s *Service) UpsertReleasePolicy(ctx context.Context, schoolID uuid.UUID, req dto.UpsertReleasePolicyRequest) (*model.ResultReleasePolicy, error) {
	if err := guard.Enforce(ctx, guard.OpUpsertReleasePolicy, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	if !helper.ValidPercent(req.MinimumPaymentPercent) {
		return nil, apperr.Validation("minimum_payment_percent must be between 0 and 100")
	}

	p := model.ResultReleasePolicy{
		ResultReleasePolicySchoolID:              schoolID,
		ResultReleasePolicyIsEnabled:             req.IsEnabled,
		ResultReleasePolicyMinimumPaymentPercent: req.MinimumPaymentPercent,
		ResultReleasePolicyMessageToParent:       req.MessageToParent,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "result_release_policy_school_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"result_release_policy_is_enabled",
			"result_release_policy_minimum_payment_percent",
			"result_release_policy_message_to_parent",
			"result_release_policy_updated_at",
		}),
	}).Create(&p).Error
	if err != nil {
		return nil, apperr.FromDB(err, "result release policy")
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditReleasePolicyUpdated,
		EntityType: "result_release_policy", EntityID: schoolID.String(),
		Snapshot: p,
	})
	return &p, nil
}

// UpsertReportCard writes the draft card of (student, term). Publishing is a
// separate step.
func (s *Service) UpsertReportCard(ctx context.Context, schoolID uuid.UUID, req dto.UpsertReportCardRequest) (*model.ReportCard, error) {
	if err := guard.Enforce(ctx, guard.OpUpsertReportCard, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}

	var out model.ReportCard
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_card_school_id = ? AND report_card_student_id = ? AND report_card_term_id = ?",
			schoolID, req.StudentID, req.TermID).Limit(1).Find(&out).Error; err != nil {
			return apperr.FromDB(err, "report card")
		}
		if out.ReportCardID == uuid.Nil {
			out = model.ReportCard{
				ReportCardID:           uuid.New(),
				ReportCardSchoolID:     schoolID,
				ReportCardStudentID:    req.StudentID,
				ReportCardTermID:       req.TermID,
				ReportCardClassGroupID: req.ClassGroupID,
				ReportCardSummary:      datatypes.JSON(req.Summary),
			}
			return apperr.FromDB(tx.Create(&out).Error, "report card")
		}
		out.ReportCardSummary = datatypes.JSON(req.Summary)
		if req.ClassGroupID != nil {
			out.ReportCardClassGroupID = req.ClassGroupID
		}
		return apperr.FromDB(tx.Model(&out).Updates(map[string]any{
			"report_card_summary":        out.ReportCardSummary,
			"report_card_class_group_id": out.ReportCardClassGroupID,
		}).Error, "report card")
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditReportCardUpserted,
		EntityType: "report_card", EntityID: out.ReportCardID.String(),
		Snapshot: out,
	})
	return &out, nil
}

// PublishResults flips the class's unpublished cards to published and emits
// result.ready per student. Already published cards are left alone.
func (s *Service) PublishResults(ctx context.Context, schoolID uuid.UUID, req dto.PublishResultsRequest) (*dto.PublishResultsResponse, error) {
	if err := guard.Enforce(ctx, guard.OpPublishResults, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	now := time.Now().UTC()

	var cards []model.ReportCard
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_card_school_id = ? AND report_card_term_id = ? AND report_card_class_group_id = ? AND report_card_is_published = ?",
			schoolID, req.TermID, req.ClassGroupID, false).
			Find(&cards).Error; err != nil {
			return apperr.FromDB(err, "report card")
		}
		if len(cards) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, len(cards))
		for i, c := range cards {
			ids[i] = c.ReportCardID
		}
		return apperr.FromDB(tx.Model(&model.ReportCard{}).
			Where("report_card_id IN ?", ids).
			Updates(map[string]any{
				"report_card_is_published": true,
				"report_card_published_at": now,
			}).Error, "report card")
	})
	if err != nil {
		return nil, err
	}

	out := &dto.PublishResultsResponse{Published: len(cards)}
	if len(cards) == 0 {
		return out, nil
	}

	batch := events.NewBatcher(s.Publisher)
	for _, c := range cards {
		ev, err := events.New(constants.SourceAcademics, constants.EventResultReady, events.ResultReady{
			SchoolID: schoolID, StudentID: c.ReportCardStudentID, TermID: c.ReportCardTermID,
		})
		if err == nil {
			err = batch.Add(ctx, ev)
		}
		if err != nil {
			log.Printf("[ERROR] publish result.ready student=%s: %v", c.ReportCardStudentID, err)
		}
	}
	if err := batch.Flush(ctx); err != nil {
		log.Printf("[ERROR] flush result.ready: %v", err)
	}
	out.Events = batch.Published()

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditResultsPublished,
		EntityType: "class_group_term", EntityID: req.ClassGroupID.String() + "|" + req.TermID.String(),
		Snapshot: out,
	})
	return out, nil
}
