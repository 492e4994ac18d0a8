package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	"schoolku_backend/internals/features/academics/results/dto"
	"schoolku_backend/internals/features/academics/results/model"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/pipeline"
	"schoolku_backend/internals/middlewares/guard"
)

type Service struct {
	DB        *gorm.DB
	Audit     *auditService.Writer
	Publisher events.Publisher

	gate *pipeline.Pipeline[gateRequest]
}

func New(db *gorm.DB, audit *auditService.Writer, pub events.Publisher) *Service {
	s := &Service{DB: db, Audit: audit, Publisher: pub}
	s.gate = pipeline.New(
		pipeline.Step[gateRequest]{Name: "loadPolicy", Run: s.loadPolicy},
		pipeline.Step[gateRequest]{Name: "loadInvoices", Run: s.loadInvoices},
		pipeline.Step[gateRequest]{Name: "evaluateGate", Run: s.evaluateGate},
		pipeline.Step[gateRequest]{Name: "loadReportCards", Run: s.loadReportCards},
	)
	return s
}

// gateRequest dibawa lewat setiap step; tiap step hanya mengisi field-nya sendiri.
type gateRequest struct {
	SchoolID  uuid.UUID
	StudentID uuid.UUID
	TermID    uuid.UUID

	Policy  *model.ResultReleasePolicy // nil → gate off
	Figures dto.GateFigures
	Cards   []model.ReportCard
}

// ReportCardsByStudentTerm returns the published report cards of a student,
// provided the release gate lets the term's fees through.
func (s *Service) ReportCardsByStudentTerm(ctx context.Context, schoolID, studentID, termID uuid.UUID) ([]model.ReportCard, error) {
	if err := guard.Enforce(ctx, guard.OpReportCardsByStudentTerm, schoolID); err != nil {
		return nil, err
	}
	rc := &gateRequest{SchoolID: schoolID, StudentID: studentID, TermID: termID}
	if err := s.gate.Run(ctx, rc); err != nil {
		return nil, err
	}
	return rc.Cards, nil
}

// GateSteps exposes the step order for diagnostics.
func (s *Service) GateSteps() []string { return s.gate.Steps() }

func (s *Service) loadPolicy(ctx context.Context, rc *gateRequest) error {
	var p model.ResultReleasePolicy
	err := s.DB.WithContext(ctx).
		Where("result_release_policy_school_id = ?", rc.SchoolID).
		Limit(1).Find(&p).Error
	if err != nil {
		return apperr.FromDB(err, "result release policy")
	}
	if p.ResultReleasePolicySchoolID != uuid.Nil {
		rc.Policy = &p
	}
	return nil
}

func (s *Service) loadInvoices(ctx context.Context, rc *gateRequest) error {
	rc.Figures = dto.GateFigures{StudentID: rc.StudentID, TermID: rc.TermID}
	if rc.Policy == nil || !rc.Policy.ResultReleasePolicyIsEnabled {
		return nil
	}
	var sums struct {
		Required decimal.Decimal
		Paid     decimal.Decimal
	}
	err := s.DB.WithContext(ctx).Model(&invModel.Invoice{}).
		Select("COALESCE(SUM(invoice_required_subtotal), 0) AS required, COALESCE(SUM(invoice_amount_paid), 0) AS paid").
		Where("invoice_school_id = ? AND invoice_student_id = ? AND invoice_term_id = ? AND invoice_status <> ?",
			rc.SchoolID, rc.StudentID, rc.TermID, invModel.InvoiceStatusVoid).
		Scan(&sums).Error
	if err != nil {
		return apperr.FromDB(err, "invoice")
	}
	rc.Figures.RequiredSubtotal = sums.Required
	rc.Figures.AmountPaid = sums.Paid
	return nil
}

func (s *Service) evaluateGate(ctx context.Context, rc *gateRequest) error {
	if rc.Policy == nil || !rc.Policy.ResultReleasePolicyIsEnabled {
		return nil
	}
	if !rc.Figures.RequiredSubtotal.IsPositive() {
		return nil
	}
	rc.Figures.MinimumPaymentPercent = rc.Policy.ResultReleasePolicyMinimumPaymentPercent
	rc.Figures.PercentPaid = helper.Ratio(rc.Figures.AmountPaid, rc.Figures.RequiredSubtotal)
	if rc.Figures.PercentPaid.GreaterThanOrEqual(rc.Figures.MinimumPaymentPercent) {
		return nil
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: rc.SchoolID, Action: constants.AuditResultViewBlocked,
		EntityType: "student_term", EntityID: rc.StudentID.String() + "|" + rc.TermID.String(),
		Snapshot: rc.Figures,
	})
	return apperr.ResultBlocked(rc.Policy.Message(), rc.Figures)
}

func (s *Service) loadReportCards(ctx context.Context, rc *gateRequest) error {
	rc.Cards = make([]model.ReportCard, 0)
	err := s.DB.WithContext(ctx).
		Where("report_card_school_id = ? AND report_card_student_id = ? AND report_card_term_id = ? AND report_card_is_published = ?",
			rc.SchoolID, rc.StudentID, rc.TermID, true).
		Order("report_card_created_at ASC").
		Find(&rc.Cards).Error
	return apperr.FromDB(err, "report card")
}
