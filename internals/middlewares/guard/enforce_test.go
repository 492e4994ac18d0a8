package guard

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolku_backend/internals/helpers/apperr"
)

func principal(school uuid.UUID, roles ...string) Principal {
	s := school
	u := uuid.New()
	return Principal{SchoolID: &s, UserID: &u, Roles: roles}
}

func TestEnforce(t *testing.T) {
	schoolA := uuid.New()
	schoolB := uuid.New()

	cases := []struct {
		name    string
		p       *Principal
		op      Op
		school  uuid.UUID
		allowed bool
	}{
		{"bursar creates invoice", ptr(principal(schoolA, "bursar")), OpCreateInvoice, schoolA, true},
		{"legacy bendahara maps to bursar", ptr(principal(schoolA, "bendahara")), OpCreateInvoice, schoolA, true},
		{"tenant mismatch", ptr(principal(schoolA, "admin")), OpCreateInvoice, schoolB, false},
		{"parent cannot review proofs", ptr(principal(schoolA, "parent")), OpReviewManualPaymentProof, schoolA, false},
		{"parent creates payment intent", ptr(principal(schoolA, "parent")), OpCreatePaymentIntent, schoolA, true},
		{"anonymous mutation rejected", nil, OpCreatePaymentIntent, schoolA, false},
		{"anonymous public receipt read", nil, OpReceiptByNumber, schoolA, true},
		{"public read still tenant bound", ptr(principal(schoolA, "parent")), OpReceiptByNumber, schoolB, false},
		{"anonymous role-gated read rejected", nil, OpInvoicesByStudent, schoolA, false},
		{"teacher reads report cards", ptr(principal(schoolA, "teacher")), OpReportCardsByStudentTerm, schoolA, true},
		{"teacher cannot read defaulters", ptr(principal(schoolA, "teacher")), OpDefaultersByClass, schoolA, false},
		{"system attaches receipt url", ptr(System(schoolA)), OpAttachReceiptURL, schoolA, true},
		{"system scoped to one tenant", ptr(System(schoolA)), OpApplyConfirmedPayment, schoolB, false},
		{"admin cannot apply payments directly", ptr(principal(schoolA, "admin")), OpApplyConfirmedPayment, schoolA, false},
		{"unknown op fails closed", ptr(principal(schoolA, "admin")), Op("dropEverything"), schoolA, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.p != nil {
				ctx = WithPrincipal(ctx, *tc.p)
			}
			err := Enforce(ctx, tc.op, tc.school)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestEveryOperationHasRolesOrIsPublicRead(t *testing.T) {
	for op, pol := range Policies {
		if pol.Mutation {
			assert.NotEmpty(t, pol.Roles, "mutation %s must be role gated", op)
		}
	}
}

func TestRequireMiddleware(t *testing.T) {
	school := uuid.New()
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-Role") != "" {
			c.SetUserContext(WithPrincipal(c.UserContext(), principal(school, c.Get("X-Role"))))
		}
		return c.Next()
	})
	app.Post("/:school_id/invoices", Require(OpCreateInvoice), func(c *fiber.Ctx) error {
		assert.Equal(t, school, SchoolID(c))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest("POST", "/"+school.String()+"/invoices", nil)
	req.Header.Set("X-Role", "bursar")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest("POST", "/"+school.String()+"/invoices", nil)
	req.Header.Set("X-Role", "student")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("POST", "/"+uuid.NewString()+"/invoices", nil)
	req.Header.Set("X-Role", "bursar")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func ptr[T any](v T) *T { return &v }
