package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/databases/dbtest"
	"schoolku_backend/internals/events"
	auditModel "schoolku_backend/internals/features/finance/audit/model"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	feeService "schoolku_backend/internals/features/finance/fees/service"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/features/finance/payments/dto"
	"schoolku_backend/internals/features/finance/payments/model"
	receiptModel "schoolku_backend/internals/features/finance/receipts/model"
	receiptService "schoolku_backend/internals/features/finance/receipts/service"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

type fixture struct {
	db     *gorm.DB
	svc    *Service
	rec    *events.Recorder
	school uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	audit := auditService.NewWriter(db)
	rec := &events.Recorder{}
	fees := feeService.New(db, audit, feeService.DefaultPolicy)
	return &fixture{db: db, svc: New(db, audit, rec, fees), rec: rec, school: uuid.New()}
}

func (f *fixture) ctx(roles ...string) context.Context {
	s := f.school
	u := uuid.New()
	return guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &s, UserID: &u, Roles: roles})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) seedInvoice(t *testing.T, required string) invModel.Invoice {
	t.Helper()
	inv := invModel.Invoice{
		InvoiceID:               uuid.New(),
		InvoiceSchoolID:         f.school,
		InvoiceNumber:           "INV-202607-" + uuid.NewString()[:6],
		InvoiceStudentID:        uuid.New(),
		InvoiceTermID:           uuid.New(),
		InvoiceSessionID:        uuid.New(),
		InvoiceClassGroupID:     uuid.New(),
		InvoiceFeeScheduleID:    uuid.New(),
		InvoiceStatus:           invModel.InvoiceStatusIssued,
		InvoiceRequiredSubtotal: dec(required),
		InvoiceCurrency:         "IDR",
		InvoiceDueAt:            time.Now().UTC().Add(30 * 24 * time.Hour),
		InvoiceStudentName:      "Siswa Uji",
	}
	inv.InvoiceIdempotencyKey = invModel.IdempotencyKey(inv.InvoiceStudentID, inv.InvoiceTermID, inv.InvoiceClassGroupID, inv.InvoiceFeeScheduleID)
	inv.Recompute()
	require.NoError(t, f.db.Create(&inv).Error)
	return inv
}

func (f *fixture) submit(t *testing.T, inv invModel.Invoice, amount string) *dto.ManualProofResponse {
	t.Helper()
	out, err := f.svc.SubmitManualPaymentProof(f.ctx(constants.RoleParent), f.school, dto.SubmitManualPaymentProofRequest{
		InvoiceID: inv.InvoiceID,
		Amount:    dec(amount),
		FileURL:   "https://files.test/evidence/bukti.webp",
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) receiptSeq(t *testing.T) int64 {
	t.Helper()
	n, err := receiptService.Peek(f.db, f.school)
	require.NoError(t, err)
	return n
}

func countRows(t *testing.T, db *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

/* ===================== intents ===================== */

func TestCreatePaymentIntentMinFirstThreshold(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	ctx := f.ctx(constants.RoleParent)

	_, err := f.svc.CreatePaymentIntent(ctx, f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("2999.99"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMinFirstPayment))
	assert.Zero(t, countRows(t, f.db, &model.PaymentIntent{}), "rejected intent must not be stored")

	res, err := f.svc.CreatePaymentIntent(ctx, f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("3000"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntentInitiated, res.Intent.PaymentIntentStatus)
	assert.True(t, res.Intent.PaymentIntentAmount.Equal(dec("3000")))
}

func TestCreatePaymentIntentMinFirstIsNotRoundedDown(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "1000.01")
	ctx := f.ctx(constants.RoleParent)

	// 30% dari 1000.01 = 300.003; 300.00 masih kurang
	_, err := f.svc.CreatePaymentIntent(ctx, f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("300.00"),
	})
	assert.Equal(t, apperr.KindMinFirstPayment, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "300.01")
	assert.Zero(t, countRows(t, f.db, &model.PaymentIntent{}))

	_, err = f.svc.CreatePaymentIntent(ctx, f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("300.01"),
	})
	require.NoError(t, err)
}

func TestCreatePaymentIntentUsesInvoiceOverride(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	override := dec("5000")
	require.NoError(t, f.db.Model(&inv).Update("invoice_min_first_payment_amount", override).Error)

	_, err := f.svc.CreatePaymentIntent(f.ctx(constants.RoleParent), f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("4000"),
	})
	assert.Equal(t, apperr.KindMinFirstPayment, apperr.KindOf(err))
}

type fakeGateway struct {
	name string
	err  error
}

func (g fakeGateway) Name() string { return g.name }

func (g fakeGateway) Checkout(_ context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if g.err != nil {
		return CheckoutResult{}, g.err
	}
	return CheckoutResult{ExternalRef: req.IntentID.String(), RedirectURL: "https://pay.test/" + req.IntentID.String()}, nil
}

func TestCreatePaymentIntentGatewayOutcome(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	ctx := f.ctx(constants.RoleParent)

	f.svc.WithGateway(fakeGateway{name: model.ProviderMidtrans})
	res, err := f.svc.CreatePaymentIntent(ctx, f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderMidtrans, Amount: dec("5000"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntentRedirected, res.Intent.PaymentIntentStatus)
	assert.NotEmpty(t, res.CheckoutURL)

	f.svc.WithGateway(fakeGateway{name: model.ProviderStripe, err: errors.New("card network down")})
	res, err = f.svc.CreatePaymentIntent(ctx, f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderStripe, Amount: dec("5000"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntentInitiated, res.Intent.PaymentIntentStatus)
	assert.Contains(t, res.GatewayError, "card network down")

	var stored model.PaymentIntent
	require.NoError(t, f.db.First(&stored, "payment_intent_id = ?", res.Intent.PaymentIntentID).Error)
	assert.Equal(t, model.IntentInitiated, stored.PaymentIntentStatus)
}

func TestCreatePaymentIntentMidtransNeedsWholeRupiah(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	mt := NewMidtransGateway("SB-Mid-server-test", false)
	f.svc.WithGateway(mt)

	_, err := f.svc.CreatePaymentIntent(f.ctx(constants.RoleParent), f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderMidtrans, Amount: dec("5000.50"),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, countRows(t, f.db, &model.PaymentIntent{}), "intent must not differ from the charged amount")

	assert.NoError(t, mt.CheckAmount(dec("5000")))
	assert.NoError(t, mt.CheckAmount(dec("5000.00")))
	assert.Error(t, mt.CheckAmount(dec("0.5")))
}

func TestCreatePaymentIntentGuard(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.school, dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("5000"),
	})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.CreatePaymentIntent(f.ctx(constants.RoleParent), uuid.New(), dto.CreatePaymentIntentRequest{
		InvoiceID: inv.InvoiceID, Provider: model.ProviderManual, Amount: dec("5000"),
	})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

/* ===================== manual proofs ===================== */

func TestSubmitManualPaymentProofCreatesPendingTransaction(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")

	out := f.submit(t, inv, "3000")
	assert.Equal(t, model.TransactionPending, out.Transaction.PaymentTransactionStatus)
	assert.Equal(t, model.MethodManual, out.Transaction.PaymentTransactionMethod)
	assert.Equal(t, ManualReference(out.Transaction.PaymentTransactionID), out.Transaction.PaymentTransactionReference)
	assert.Equal(t, model.ProofSubmitted, out.Proof.ManualPaymentProofStatus)
	assert.Equal(t, out.Transaction.PaymentTransactionID, out.Proof.ManualPaymentProofTransactionID)
	assert.Nil(t, out.Transaction.PaymentTransactionReceiptNo)

	var audits int64
	require.NoError(t, f.db.Model(&auditModel.AuditEvent{}).
		Where("audit_event_action = ?", constants.AuditManualPaymentSubmitted).Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestSubmitManualPaymentProofBelowThresholdCreatesNothing(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")

	_, err := f.svc.SubmitManualPaymentProof(f.ctx(constants.RoleParent), f.school, dto.SubmitManualPaymentProofRequest{
		InvoiceID: inv.InvoiceID, Amount: dec("1000"), FileURL: "https://files.test/x.webp",
	})
	assert.Equal(t, apperr.KindMinFirstPayment, apperr.KindOf(err))
	assert.Zero(t, countRows(t, f.db, &model.PaymentTransaction{}))
	assert.Zero(t, countRows(t, f.db, &model.ManualPaymentProof{}))
}

func TestReviewApproveIssuesReceiptOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	sub := f.submit(t, inv, "5000")
	staff := f.ctx(constants.RoleBursar)

	res, err := f.svc.ReviewManualPaymentProof(staff, f.school, sub.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofApproved})
	require.NoError(t, err)
	assert.Equal(t, "RCPT-1", res.ReceiptNo)
	assert.Equal(t, model.TransactionConfirmed, res.Transaction.PaymentTransactionStatus)
	assert.Equal(t, model.ProofApproved, res.Proof.ManualPaymentProofStatus)

	confirmed := f.rec.OfType(constants.EventPaymentConfirmed)
	require.Len(t, confirmed, 1)
	var detail events.PaymentConfirmed
	require.NoError(t, confirmed[0].Decode(&detail))
	assert.Equal(t, model.ProviderManual, detail.Provider)
	assert.Equal(t, "RCPT-1", detail.ReceiptNo)
	assert.Equal(t, inv.InvoiceID, detail.InvoiceID)
	assert.True(t, detail.Amount.Equal(dec("5000")))

	// keputusan final; review ulang tidak boleh mengalokasikan nomor baru
	_, err = f.svc.ReviewManualPaymentProof(staff, f.school, sub.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofApproved})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = f.svc.ReviewManualPaymentProof(staff, f.school, sub.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofRejected})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.EqualValues(t, 1, f.receiptSeq(t))
	var txn model.PaymentTransaction
	require.NoError(t, f.db.First(&txn, "payment_transaction_id = ?", sub.Transaction.PaymentTransactionID).Error)
	require.NotNil(t, txn.PaymentTransactionReceiptNo)
	assert.Equal(t, "RCPT-1", *txn.PaymentTransactionReceiptNo)
	assert.Len(t, f.rec.OfType(constants.EventPaymentConfirmed), 1)
}

func TestReviewRejectDoesNotTouchCounter(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	sub := f.submit(t, inv, "5000")

	res, err := f.svc.ReviewManualPaymentProof(f.ctx(constants.RoleAdmin), f.school, sub.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofRejected})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionReversed, res.Transaction.PaymentTransactionStatus)
	assert.Empty(t, res.ReceiptNo)
	assert.Nil(t, res.Transaction.PaymentTransactionReceiptNo)

	assert.Zero(t, f.receiptSeq(t))
	assert.Zero(t, countRows(t, f.db, &receiptModel.Receipt{}))
	assert.Empty(t, f.rec.OfType(constants.EventPaymentConfirmed))
}

func TestReviewRequiresBillingStaff(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	sub := f.submit(t, inv, "5000")

	_, err := f.svc.ReviewManualPaymentProof(f.ctx(constants.RoleParent), f.school, sub.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofApproved})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Zero(t, f.receiptSeq(t))
}

func TestConcurrentApprovalsGetContiguousReceipts(t *testing.T) {
	const n = 8
	f := newFixture(t)

	proofs := make([]uuid.UUID, n)
	for i := range proofs {
		inv := f.seedInvoice(t, "10000")
		proofs[i] = f.submit(t, inv, "3000").Proof.ManualPaymentProofID
	}

	got := make([]string, n)
	var g errgroup.Group
	for i, id := range proofs {
		i, id := i, id
		g.Go(func() error {
			res, err := f.svc.ReviewManualPaymentProof(f.ctx(constants.RoleBursar), f.school, id,
				dto.ReviewManualPaymentProofRequest{Status: model.ProofApproved})
			if err != nil {
				return err
			}
			got[i] = res.ReceiptNo
			return nil
		})
	}
	require.NoError(t, g.Wait())

	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("RCPT-%d", i+1)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
	assert.EqualValues(t, n, f.receiptSeq(t))
}

func TestReceiptCounterIsPerSchool(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10000")
	sub := f.submit(t, inv, "5000")
	_, err := f.svc.ReviewManualPaymentProof(f.ctx(constants.RoleBursar), f.school, sub.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofApproved})
	require.NoError(t, err)

	other := &fixture{db: f.db, svc: f.svc, rec: f.rec, school: uuid.New()}
	inv2 := other.seedInvoice(t, "10000")
	sub2 := other.submit(t, inv2, "5000")
	res, err := f.svc.ReviewManualPaymentProof(other.ctx(constants.RoleBursar), other.school, sub2.Proof.ManualPaymentProofID,
		dto.ReviewManualPaymentProofRequest{Status: model.ProofApproved})
	require.NoError(t, err)
	assert.Equal(t, "RCPT-1", res.ReceiptNo)
}
