package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/databases/dbtest"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

func TestRecordAndList(t *testing.T) {
	db := dbtest.Open(t)
	w := NewWriter(db)
	school, other := uuid.New(), uuid.New()
	actor := uuid.New()
	ctx := guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &school, UserID: &actor, Roles: []string{constants.RoleAdmin}})

	w.Record(ctx, Entry{SchoolID: school, Action: constants.AuditInvoiceCreated, EntityType: "invoice", EntityID: "a", Snapshot: map[string]any{"n": 1}})
	w.Record(ctx, Entry{SchoolID: school, Action: constants.AuditInvoiceCreated, EntityType: "invoice", EntityID: "b"})
	w.Record(ctx, Entry{SchoolID: school, Action: constants.AuditFeeItemDeleted, EntityType: "fee_item", EntityID: "a"})
	w.Record(guard.AsSystem(context.Background(), other), Entry{SchoolID: other, Action: constants.AuditInvoiceCreated, EntityType: "invoice", EntityID: "c"})

	p := helper.NewPaging(1, 50, 50, 200)
	rows, total, err := w.List(ctx, school, ListFilter{}, p)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 3)
	require.NotNil(t, rows[0].AuditEventActorUserID)
	assert.Equal(t, actor, *rows[0].AuditEventActorUserID)

	_, total, err = w.List(ctx, school, ListFilter{Action: constants.AuditInvoiceCreated}, p)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, total, err = w.List(ctx, school, ListFilter{EntityID: "a"}, p)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestListIsAdminOnly(t *testing.T) {
	w := NewWriter(dbtest.Open(t))
	school := uuid.New()
	ctx := guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &school, Roles: []string{constants.RoleBursar}})

	_, _, err := w.List(ctx, school, ListFilter{}, helper.NewPaging(1, 10, 10, 10))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	assert.NotPanics(t, func() {
		w.Record(context.Background(), Entry{Action: "X"})
	})
}
