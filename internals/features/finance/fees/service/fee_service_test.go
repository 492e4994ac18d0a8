package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/databases/dbtest"
	auditModel "schoolku_backend/internals/features/finance/audit/model"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/fees/dto"
	"schoolku_backend/internals/features/finance/fees/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

type feeFixture struct {
	db     *gorm.DB
	svc    *Service
	school uuid.UUID
}

func newFeeFixture(t *testing.T) *feeFixture {
	t.Helper()
	db := dbtest.Open(t)
	return &feeFixture{db: db, svc: New(db, auditService.NewWriter(db), PolicyDefaults{}), school: uuid.New()}
}

func (f *feeFixture) as(roles ...string) context.Context {
	s := f.school
	u := uuid.New()
	return guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &s, UserID: &u, Roles: roles})
}

func (f *feeFixture) item(t *testing.T, name string, optional bool) model.FeeItem {
	t.Helper()
	it, err := f.svc.UpsertFeeItem(f.as(constants.RoleAdmin), f.school, dto.UpsertFeeItemRequest{Name: name, IsOptional: optional})
	require.NoError(t, err)
	return *it
}

func (f *feeFixture) scheduleReq(lines ...dto.FeeScheduleLineRequest) dto.CreateFeeScheduleRequest {
	group := uuid.New()
	return dto.CreateFeeScheduleRequest{
		SessionID:    uuid.New(),
		TermID:       uuid.New(),
		ClassGroupID: &group,
		Title:        "Semester Ganjil",
		Lines:        lines,
	}
}

func (f *feeFixture) audits(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&auditModel.AuditEvent{}).Where("audit_event_action = ?", action).Count(&n).Error)
	return n
}

func TestNewFallsBackToDefaultPolicy(t *testing.T) {
	f := newFeeFixture(t)
	assert.True(t, f.svc.Defaults.MinFirstPaymentPercent.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "IDR", f.svc.Defaults.Currency)

	pol, err := f.svc.GetBillingPolicy(f.db, f.school)
	require.NoError(t, err)
	assert.True(t, pol.BillingPolicyMinFirstPaymentPercent.Equal(decimal.NewFromInt(30)))
}

func TestUpsertFeeItemDefaultsAndUpdate(t *testing.T) {
	f := newFeeFixture(t)
	it := f.item(t, "  SPP  ", false)
	assert.Equal(t, "SPP", it.FeeItemName)
	assert.Equal(t, "TUITION", it.FeeItemCategory)
	assert.True(t, it.FeeItemIsActive)

	inactive := false
	upd, err := f.svc.UpsertFeeItem(f.as(constants.RoleBursar), f.school, dto.UpsertFeeItemRequest{
		FeeItemID: &it.FeeItemID, Name: "SPP Bulanan", Category: "spp", IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "SPP", upd.FeeItemCategory)
	assert.False(t, upd.FeeItemIsActive)
	assert.EqualValues(t, 2, f.audits(t, constants.AuditFeeItemUpserted))

	all, total, err := f.svc.ListFeeItems(f.as(constants.RoleParent), f.school, false, helper.NewPaging(1, 10, 10, 100))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, all, 1)

	active, _, err := f.svc.ListFeeItems(f.as(constants.RoleParent), f.school, true, helper.NewPaging(1, 10, 10, 100))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpsertFeeItemRejections(t *testing.T) {
	f := newFeeFixture(t)

	_, err := f.svc.UpsertFeeItem(f.as(constants.RoleParent), f.school, dto.UpsertFeeItemRequest{Name: "SPP"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.UpsertFeeItem(f.as(constants.RoleAdmin), f.school, dto.UpsertFeeItemRequest{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	missing := uuid.New()
	_, err = f.svc.UpsertFeeItem(f.as(constants.RoleAdmin), f.school, dto.UpsertFeeItemRequest{FeeItemID: &missing, Name: "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateFeeScheduleOrdersLines(t *testing.T) {
	f := newFeeFixture(t)
	spp := f.item(t, "SPP", false)
	bus := f.item(t, "Bus", true)

	sch, err := f.svc.CreateFeeSchedule(f.as(constants.RoleAdmin), f.school, f.scheduleReq(
		dto.FeeScheduleLineRequest{FeeItemID: bus.FeeItemID, Amount: decimal.RequireFromString("150000.005"), SortOrder: 2},
		dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(500000), SortOrder: 1},
	))
	require.NoError(t, err)
	assert.False(t, sch.FeeScheduleIsLocked)

	got, err := f.svc.GetSchedule(f.as(constants.RoleParent), f.school, sch.FeeScheduleID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, spp.FeeItemID, got.Lines[0].FeeScheduleLineFeeItemID)
	assert.Equal(t, "150000.01", got.Lines[1].FeeScheduleLineAmount.StringFixed(2))
	assert.EqualValues(t, 1, f.audits(t, constants.AuditFeeScheduleCreated))
}

func TestCreateFeeScheduleValidation(t *testing.T) {
	f := newFeeFixture(t)
	spp := f.item(t, "SPP", false)
	ctx := f.as(constants.RoleAdmin)

	req := f.scheduleReq(dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(1)})
	req.ClassGroupID = nil
	_, err := f.svc.CreateFeeSchedule(ctx, f.school, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "scope wajib")

	_, err = f.svc.CreateFeeSchedule(ctx, f.school, f.scheduleReq(
		dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(1)},
		dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(2)},
	))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "item dobel")

	_, err = f.svc.CreateFeeSchedule(ctx, f.school, f.scheduleReq(
		dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(-1)},
	))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "nominal negatif")

	_, err = f.svc.CreateFeeSchedule(ctx, f.school, f.scheduleReq(
		dto.FeeScheduleLineRequest{FeeItemID: uuid.New(), Amount: decimal.NewFromInt(1)},
	))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "item sekolah lain / tidak ada")

	var n int64
	require.NoError(t, f.db.Model(&model.FeeSchedule{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpdateFeeScheduleReplacesLinesUntilLocked(t *testing.T) {
	f := newFeeFixture(t)
	spp := f.item(t, "SPP", false)
	bus := f.item(t, "Bus", true)
	ctx := f.as(constants.RoleAdmin)

	sch, err := f.svc.CreateFeeSchedule(ctx, f.school, f.scheduleReq(
		dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(100)},
	))
	require.NoError(t, err)

	title := "Semester Genap"
	upd, err := f.svc.UpdateFeeSchedule(ctx, f.school, sch.FeeScheduleID, dto.UpdateFeeScheduleRequest{
		Title: &title,
		Lines: []dto.FeeScheduleLineRequest{
			{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(120)},
			{FeeItemID: bus.FeeItemID, Amount: decimal.NewFromInt(30), SortOrder: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, title, upd.FeeScheduleTitle)
	assert.Len(t, upd.Lines, 2)

	require.NoError(t, LockSchedule(f.db, f.school, sch.FeeScheduleID))
	_, err = f.svc.UpdateFeeSchedule(ctx, f.school, sch.FeeScheduleID, dto.UpdateFeeScheduleRequest{Title: &title})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDeleteFeeItem(t *testing.T) {
	f := newFeeFixture(t)
	ctx := f.as(constants.RoleAdmin)
	spp := f.item(t, "SPP", false)
	loose := f.item(t, "Kaos", true)

	_, err := f.svc.CreateFeeSchedule(ctx, f.school, f.scheduleReq(
		dto.FeeScheduleLineRequest{FeeItemID: spp.FeeItemID, Amount: decimal.NewFromInt(100)},
	))
	require.NoError(t, err)

	assert.Equal(t, apperr.KindConflict, apperr.KindOf(f.svc.DeleteFeeItem(ctx, f.school, spp.FeeItemID)))
	require.NoError(t, f.svc.DeleteFeeItem(ctx, f.school, loose.FeeItemID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(f.svc.DeleteFeeItem(ctx, f.school, loose.FeeItemID)))

	// soft-deleted tetap terbaca oleh ItemsByID
	byID, err := ItemsByID(f.db, f.school, []uuid.UUID{loose.FeeItemID})
	require.NoError(t, err)
	assert.Contains(t, byID, loose.FeeItemID)
}

func TestUpsertBillingPolicy(t *testing.T) {
	f := newFeeFixture(t)
	ctx := f.as(constants.RoleAdmin)

	_, err := f.svc.UpsertBillingPolicy(ctx, f.school, dto.UpsertBillingPolicyRequest{MinFirstPaymentPercent: decimal.NewFromInt(101)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.UpsertBillingPolicy(ctx, f.school, dto.UpsertBillingPolicyRequest{MinFirstPaymentPercent: decimal.NewFromInt(50), Currency: "usd"})
	require.NoError(t, err)
	_, err = f.svc.UpsertBillingPolicy(ctx, f.school, dto.UpsertBillingPolicyRequest{MinFirstPaymentPercent: decimal.NewFromInt(40)})
	require.NoError(t, err)

	pol, err := f.svc.GetBillingPolicy(f.db, f.school)
	require.NoError(t, err)
	assert.True(t, pol.BillingPolicyMinFirstPaymentPercent.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "IDR", pol.BillingPolicyCurrency, "currency kosong kembali ke default")

	var n int64
	require.NoError(t, f.db.Model(&model.BillingPolicy{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
