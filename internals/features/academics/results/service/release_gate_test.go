package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/databases/dbtest"
	"schoolku_backend/internals/events"
	"schoolku_backend/internals/features/academics/results/dto"
	"schoolku_backend/internals/features/academics/results/model"
	auditModel "schoolku_backend/internals/features/finance/audit/model"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/pipeline"
	"schoolku_backend/internals/middlewares/guard"
)

type gateFixture struct {
	db      *gorm.DB
	svc     *Service
	rec     *events.Recorder
	school  uuid.UUID
	student uuid.UUID
	term    uuid.UUID
	group   uuid.UUID
}

func newGateFixture(t *testing.T) *gateFixture {
	db := dbtest.Open(t)
	rec := &events.Recorder{}
	return &gateFixture{
		db: db, svc: New(db, auditService.NewWriter(db), rec), rec: rec,
		school: uuid.New(), student: uuid.New(), term: uuid.New(), group: uuid.New(),
	}
}

func (f *gateFixture) ctx(roles ...string) context.Context {
	s := f.school
	u := uuid.New()
	return guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &s, UserID: &u, Roles: roles})
}

func (f *gateFixture) seedInvoice(t *testing.T, required, paid string) invModel.Invoice {
	t.Helper()
	inv := invModel.Invoice{
		InvoiceID: uuid.New(), InvoiceSchoolID: f.school, InvoiceNumber: "INV-202607-" + uuid.NewString()[:6],
		InvoiceStudentID: f.student, InvoiceTermID: f.term, InvoiceSessionID: uuid.New(),
		InvoiceClassGroupID: f.group, InvoiceFeeScheduleID: uuid.New(),
		InvoiceStatus:           invModel.InvoiceStatusIssued,
		InvoiceRequiredSubtotal: decimal.RequireFromString(required),
		InvoiceAmountPaid:       decimal.RequireFromString(paid),
		InvoiceCurrency:         "IDR",
		InvoiceDueAt:            time.Now().UTC(),
		InvoiceIdempotencyKey:   uuid.NewString(),
	}
	inv.Recompute()
	require.NoError(t, f.db.Create(&inv).Error)
	return inv
}

func (f *gateFixture) publishedCard(t *testing.T) {
	t.Helper()
	_, err := f.svc.UpsertReportCard(f.ctx(constants.RoleTeacher), f.school, dto.UpsertReportCardRequest{
		StudentID: f.student, TermID: f.term, ClassGroupID: &f.group,
		Summary: []byte(`{"average":88.5,"rank":3}`),
	})
	require.NoError(t, err)
	_, err = f.svc.PublishResults(f.ctx(constants.RoleTeacher), f.school, dto.PublishResultsRequest{TermID: f.term, ClassGroupID: f.group})
	require.NoError(t, err)
}

func TestGateStepOrder(t *testing.T) {
	f := newGateFixture(t)
	assert.Equal(t, []string{"loadPolicy", "loadInvoices", "evaluateGate", "loadReportCards"}, f.svc.GateSteps())
}

func TestGateBlocksUntilThresholdPaid(t *testing.T) {
	f := newGateFixture(t)
	f.publishedCard(t)
	_, err := f.svc.UpsertReleasePolicy(f.ctx(constants.RoleAdmin), f.school, dto.UpsertReleasePolicyRequest{
		IsEnabled: true, MinimumPaymentPercent: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	inv := f.seedInvoice(t, "10000", "4000")
	parent := f.ctx(constants.RoleParent)

	cards, err := f.svc.ReportCardsByStudentTerm(parent, f.school, f.student, f.term)
	require.Error(t, err)
	assert.Nil(t, cards)
	assert.True(t, errors.Is(err, apperr.ErrResultBlocked))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, model.DefaultBlockedMessage, ae.Message)
	var se *pipeline.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "evaluateGate", se.Step)

	var blocked auditModel.AuditEvent
	require.NoError(t, f.db.Where("audit_event_action = ?", constants.AuditResultViewBlocked).First(&blocked).Error)
	var figures dto.GateFigures
	require.NoError(t, sonic.Unmarshal(blocked.AuditEventSnapshot, &figures))
	assert.True(t, figures.PercentPaid.Equal(decimal.NewFromInt(40)), figures.PercentPaid.String())
	assert.True(t, figures.RequiredSubtotal.Equal(decimal.NewFromInt(10000)))

	require.NoError(t, f.db.Model(&inv).Update("invoice_amount_paid", decimal.NewFromInt(5000)).Error)
	cards, err = f.svc.ReportCardsByStudentTerm(parent, f.school, f.student, f.term)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.True(t, cards[0].ReportCardIsPublished)
}

func TestGateUsesPolicyMessage(t *testing.T) {
	f := newGateFixture(t)
	msg := "Silakan lunasi SPP semester ini."
	_, err := f.svc.UpsertReleasePolicy(f.ctx(constants.RoleBursar), f.school, dto.UpsertReleasePolicyRequest{
		IsEnabled: true, MinimumPaymentPercent: decimal.NewFromInt(100), MessageToParent: &msg,
	})
	require.NoError(t, err)
	f.seedInvoice(t, "10000", "0")

	_, err = f.svc.ReportCardsByStudentTerm(f.ctx(constants.RoleStudent), f.school, f.student, f.term)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindResultBlocked, ae.Kind)
	assert.Equal(t, msg, ae.Message)
}

func TestGateOpenWithoutPolicyOrWhenDisabled(t *testing.T) {
	f := newGateFixture(t)
	f.publishedCard(t)
	f.seedInvoice(t, "10000", "0")

	cards, err := f.svc.ReportCardsByStudentTerm(f.ctx(constants.RoleParent), f.school, f.student, f.term)
	require.NoError(t, err)
	assert.Len(t, cards, 1)

	_, err = f.svc.UpsertReleasePolicy(f.ctx(constants.RoleAdmin), f.school, dto.UpsertReleasePolicyRequest{
		IsEnabled: false, MinimumPaymentPercent: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	cards, err = f.svc.ReportCardsByStudentTerm(f.ctx(constants.RoleParent), f.school, f.student, f.term)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestGateIgnoresZeroRequiredSubtotal(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.svc.UpsertReleasePolicy(f.ctx(constants.RoleAdmin), f.school, dto.UpsertReleasePolicyRequest{
		IsEnabled: true, MinimumPaymentPercent: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	cards, err := f.svc.ReportCardsByStudentTerm(f.ctx(constants.RoleParent), f.school, f.student, f.term)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestGateGuardRunsFirst(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.svc.ReportCardsByStudentTerm(f.ctx(constants.RoleBursar), f.school, f.student, f.term)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.ReportCardsByStudentTerm(f.ctx(constants.RoleParent), uuid.New(), f.student, f.term)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestPublishResultsEmitsOncePerCard(t *testing.T) {
	f := newGateFixture(t)
	teacher := f.ctx(constants.RoleTeacher)
	for i := 0; i < 3; i++ {
		_, err := f.svc.UpsertReportCard(teacher, f.school, dto.UpsertReportCardRequest{
			StudentID: uuid.New(), TermID: f.term, ClassGroupID: &f.group, Summary: []byte(`{}`),
		})
		require.NoError(t, err)
	}

	var audits int64
	require.NoError(t, f.db.Model(&auditModel.AuditEvent{}).
		Where("audit_event_action = ?", constants.AuditReportCardUpserted).Count(&audits).Error)
	assert.EqualValues(t, 3, audits)

	res, err := f.svc.PublishResults(teacher, f.school, dto.PublishResultsRequest{TermID: f.term, ClassGroupID: f.group})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Published)
	assert.Equal(t, 3, res.Events)
	assert.Len(t, f.rec.OfType(constants.EventResultReady), 3)

	res, err = f.svc.PublishResults(teacher, f.school, dto.PublishResultsRequest{TermID: f.term, ClassGroupID: f.group})
	require.NoError(t, err)
	assert.Zero(t, res.Published)
	assert.Len(t, f.rec.OfType(constants.EventResultReady), 3)
}

func TestUpsertReleasePolicyValidatesPercent(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.svc.UpsertReleasePolicy(f.ctx(constants.RoleAdmin), f.school, dto.UpsertReleasePolicyRequest{
		IsEnabled: true, MinimumPaymentPercent: decimal.NewFromInt(101),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
