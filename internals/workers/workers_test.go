package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/databases/dbtest"
	"schoolku_backend/internals/events"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	feeDTO "schoolku_backend/internals/features/finance/fees/dto"
	feeService "schoolku_backend/internals/features/finance/fees/service"
	invDTO "schoolku_backend/internals/features/finance/invoices/dto"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	invService "schoolku_backend/internals/features/finance/invoices/service"
	receiptModel "schoolku_backend/internals/features/finance/receipts/model"
	receiptService "schoolku_backend/internals/features/finance/receipts/service"
	enrollModel "schoolku_backend/internals/features/school/enrollments/model"
	"schoolku_backend/internals/helpers/oss"
	"schoolku_backend/internals/middlewares/guard"
	"schoolku_backend/internals/workers/model"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Message
	fail int
}

func (f *fakeNotifier) Channel() string { return "email" }

func (f *fakeNotifier) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	db       *gorm.DB
	rec      *events.Recorder
	invoices *invService.Service
	receipts *receiptService.Service
	school   uuid.UUID
	term     uuid.UUID
	group    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	audit := auditService.NewWriter(db)
	rec := &events.Recorder{}
	fees := feeService.New(db, audit, feeService.DefaultPolicy)
	return &fixture{
		db: db, rec: rec,
		invoices: invService.New(db, audit, rec, fees),
		receipts: receiptService.New(db, audit),
		school:   uuid.New(), term: uuid.New(), group: uuid.New(),
	}
}

// invoice creates one unmaterialized invoice for a fresh student billed to
// wali@example.com with a single required line of 2000.
func (f *fixture) invoice(t *testing.T) invModel.Invoice {
	t.Helper()
	s := f.school
	u := uuid.New()
	ctx := guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &s, UserID: &u, Roles: []string{constants.RoleBursar}})

	fees := feeService.New(f.db, auditService.NewWriter(f.db), feeService.DefaultPolicy)
	item, err := fees.UpsertFeeItem(ctx, f.school, feeDTO.UpsertFeeItemRequest{Name: "SPP"})
	require.NoError(t, err)
	sch, err := fees.CreateFeeSchedule(ctx, f.school, feeDTO.CreateFeeScheduleRequest{
		SessionID: uuid.New(), TermID: f.term, ClassGroupID: &f.group, Title: "SPP",
		Lines: []feeDTO.FeeScheduleLineRequest{{FeeItemID: item.FeeItemID, Amount: decimal.NewFromInt(2000)}},
	})
	require.NoError(t, err)

	mail := "wali@example.com"
	enr := enrollModel.Enrollment{
		EnrollmentID: uuid.New(), EnrollmentSchoolID: f.school, EnrollmentStudentID: uuid.New(),
		EnrollmentTermID: f.term, EnrollmentClassGroupID: f.group, EnrollmentIsCurrent: true,
		EnrollmentGuardianEmail: &mail, EnrollmentStudentName: "Aisyah",
	}
	require.NoError(t, f.db.Create(&enr).Error)

	inv, err := f.invoices.CreateInvoice(ctx, f.school, invDTO.CreateInvoiceRequest{
		StudentID: enr.EnrollmentStudentID, TermID: f.term, FeeScheduleID: sch.FeeScheduleID,
		DueAt: time.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return *inv
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) invModel.Invoice {
	t.Helper()
	var inv invModel.Invoice
	require.NoError(t, f.db.First(&inv, "invoice_id = ?", id).Error)
	return inv
}

func (f *fixture) confirmedEvent(t *testing.T, inv invModel.Invoice, amount int64, receiptNo string) (events.Event, events.PaymentConfirmed) {
	t.Helper()
	d := events.PaymentConfirmed{
		SchoolID: f.school, InvoiceID: inv.InvoiceID, TransactionID: uuid.New(),
		Amount: decimal.NewFromInt(amount), Currency: "IDR", ReceiptNo: receiptNo, Provider: "manual",
	}
	ev, err := events.New(constants.SourcePayments, constants.EventPaymentConfirmed, d)
	require.NoError(t, err)
	return ev, d
}

/* ===================== invoicing ===================== */

func TestInvoicingMaterializesAndAppliesOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	w := &Invoicing{Invoices: f.invoices}

	gen := f.rec.OfType(constants.EventInvoiceGenerated)
	require.Len(t, gen, 1)
	require.NoError(t, w.Handle(context.Background(), gen[0]))
	require.NoError(t, w.Handle(context.Background(), gen[0]))

	got := f.reload(t, inv.InvoiceID)
	assert.True(t, got.InvoiceRequiredSubtotal.Equal(decimal.NewFromInt(2000)))
	var lines int64
	require.NoError(t, f.db.Model(&invModel.InvoiceLine{}).Where("invoice_line_invoice_id = ?", inv.InvoiceID).Count(&lines).Error)
	assert.EqualValues(t, 1, lines)

	ev, _ := f.confirmedEvent(t, inv, 2000, "RCPT-1")
	require.NoError(t, w.Handle(context.Background(), ev))
	require.NoError(t, w.Handle(context.Background(), ev))

	got = f.reload(t, inv.InvoiceID)
	assert.Equal(t, invModel.InvoiceStatusPaid, got.InvoiceStatus)
	assert.True(t, got.InvoiceAmountPaid.Equal(decimal.NewFromInt(2000)))
}

func TestInvoicingRunsQueuedImportOnce(t *testing.T) {
	f := newFixture(t)
	s := f.school
	u := uuid.New()
	staff := guard.WithPrincipal(context.Background(), guard.Principal{SchoolID: &s, UserID: &u, Roles: []string{constants.RoleAdmin}})

	fees := feeService.New(f.db, auditService.NewWriter(f.db), feeService.DefaultPolicy)
	item, err := fees.UpsertFeeItem(staff, f.school, feeDTO.UpsertFeeItemRequest{Name: "SPP"})
	require.NoError(t, err)
	sch, err := fees.CreateFeeSchedule(staff, f.school, feeDTO.CreateFeeScheduleRequest{
		SessionID: uuid.New(), TermID: f.term, ClassGroupID: &f.group, Title: "SPP",
		Lines: []feeDTO.FeeScheduleLineRequest{{FeeItemID: item.FeeItemID, Amount: decimal.NewFromInt(2000)}},
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&enrollModel.Enrollment{
			EnrollmentID: uuid.New(), EnrollmentSchoolID: f.school, EnrollmentStudentID: uuid.New(),
			EnrollmentTermID: f.term, EnrollmentClassGroupID: f.group, EnrollmentIsCurrent: true,
			EnrollmentStudentName: "Siswa",
		}).Error)
	}

	_, err = f.invoices.RequestClassInvoices(staff, invService.GenerateClassInvoicesInput{
		SchoolID: f.school,
		GenerateClassInvoicesRequest: invDTO.GenerateClassInvoicesRequest{
			TermID: f.term, ClassGroupID: f.group, FeeScheduleID: sch.FeeScheduleID,
			DueAt: time.Now().Add(14 * 24 * time.Hour),
		},
	})
	require.NoError(t, err)
	queued := f.rec.OfType(constants.EventImportRequested)
	require.Len(t, queued, 1)
	assert.Equal(t, []string{constants.QueueInvoicing}, events.Targets(events.DefaultRules, constants.EventImportRequested))

	w := &Invoicing{Invoices: f.invoices}
	require.NoError(t, w.Handle(context.Background(), queued[0]))
	require.NoError(t, w.Handle(context.Background(), queued[0]))

	var n int64
	require.NoError(t, f.db.Model(&invModel.Invoice{}).Where("invoice_school_id = ?", f.school).Count(&n).Error)
	assert.EqualValues(t, 3, n)
	assert.Len(t, f.rec.OfType(constants.EventInvoiceGenerated), 3)
}

/* ===================== messaging ===================== */

func TestMessagingSendsOncePerEvent(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	n := &fakeNotifier{}
	w := &Messaging{DB: f.db, Notifier: n}

	ev, _ := f.confirmedEvent(t, inv, 1000, "RCPT-7")
	require.NoError(t, w.Handle(context.Background(), ev))
	require.NoError(t, w.Handle(context.Background(), ev))

	require.Equal(t, 1, n.count())
	assert.Equal(t, "wali@example.com", n.sent[0].To)
	assert.Contains(t, n.sent[0].HTML, "RCPT-7")

	var logs int64
	require.NoError(t, f.db.Model(&model.NotificationLog{}).Count(&logs).Error)
	assert.EqualValues(t, 1, logs)
}

func TestMessagingReleasesClaimWhenSendFails(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	n := &fakeNotifier{fail: 1}
	w := &Messaging{DB: f.db, Notifier: n}

	ev, _ := f.confirmedEvent(t, inv, 1000, "RCPT-1")
	require.Error(t, w.Handle(context.Background(), ev))

	var logs int64
	require.NoError(t, f.db.Model(&model.NotificationLog{}).Count(&logs).Error)
	assert.Zero(t, logs)

	require.NoError(t, w.Handle(context.Background(), ev))
	assert.Equal(t, 1, n.count())
}

func TestMessagingSkipsSelectionUpdates(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	n := &fakeNotifier{}
	w := &Messaging{DB: f.db, Notifier: n}

	ev, err := events.New(constants.SourceBilling, constants.EventInvoiceGenerated, events.InvoiceGenerated{
		SchoolID: f.school, InvoiceID: inv.InvoiceID, StudentID: inv.InvoiceStudentID, Reason: constants.ReasonSelectionUpdate,
	})
	require.NoError(t, err)
	require.NoError(t, w.Handle(context.Background(), ev))
	assert.Zero(t, n.count())

	require.NoError(t, w.Handle(context.Background(), f.rec.OfType(constants.EventInvoiceGenerated)[0]))
	assert.Equal(t, 1, n.count())
	assert.Contains(t, n.sent[0].HTML, inv.InvoiceNumber)
}

/* ===================== receipts ===================== */

func TestReceiptsRenderUploadAndSkipWhenDone(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	ev, d := f.confirmedEvent(t, inv, 1500, "RCPT-1")
	require.NoError(t, f.db.Create(&receiptModel.Receipt{
		ReceiptSchoolID: f.school, ReceiptNo: "RCPT-1", ReceiptInvoiceID: inv.InvoiceID,
		ReceiptTransactionID: d.TransactionID, ReceiptAmount: d.Amount, ReceiptCurrency: "IDR",
		ReceiptIssuedAt: time.Now().UTC(),
	}).Error)

	store := oss.NewMemoryStore("https://files.example.com")
	w := &Receipts{DB: f.db, Receipts: f.receipts, Renderer: receiptService.HTMLRenderer{}, Store: store}

	require.NoError(t, w.Handle(context.Background(), ev))
	require.NoError(t, w.Handle(context.Background(), ev))
	assert.Equal(t, 1, store.Puts())

	key := "receipts/" + f.school.String() + "/RCPT-1.html"
	body, ok := store.Get(key)
	require.True(t, ok)
	assert.Contains(t, string(body), inv.InvoiceNumber)
	assert.Contains(t, string(body), "1500.00")

	var rc receiptModel.Receipt
	require.NoError(t, f.db.First(&rc, "receipt_school_id = ? AND receipt_no = ?", f.school, "RCPT-1").Error)
	require.NotNil(t, rc.ReceiptDocumentURL)
	assert.Equal(t, "https://files.example.com/"+key, *rc.ReceiptDocumentURL)
}

/* ===================== scanner ===================== */

func TestScanOverduePublishesStableIDs(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	w := &Invoicing{Invoices: f.invoices}
	require.NoError(t, w.Handle(context.Background(), f.rec.OfType(constants.EventInvoiceGenerated)[0]))
	require.NoError(t, f.db.Model(&invModel.Invoice{}).Where("invoice_id = ?", inv.InvoiceID).
		Update("invoice_due_at", time.Now().UTC().AddDate(0, 0, -3)).Error)

	now := time.Now().UTC()
	sc := &Scanner{Invoices: f.invoices, Publisher: f.rec, Now: func() time.Time { return now }}
	n, err := sc.ScanOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = sc.ScanOverdue(context.Background())
	require.NoError(t, err)

	got := f.rec.OfType(constants.EventInvoiceOverdue)
	require.Len(t, got, 2)
	assert.Equal(t, got[0].ID, got[1].ID)
	assert.Equal(t, OverdueEventID(inv.InvoiceID, now), got[0].ID)

	var d events.InvoiceOverdue
	require.NoError(t, got[0].Decode(&d))
	assert.True(t, d.AmountDue.Equal(decimal.NewFromInt(2000)))
	assert.GreaterOrEqual(t, d.DaysOverdue, 2)
}

func TestSweepStaleRepublishesUnmaterialized(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	sc := &Scanner{Invoices: f.invoices, Publisher: f.rec, Now: func() time.Time { return time.Now().Add(time.Hour) }}

	n, err := sc.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	gen := f.rec.OfType(constants.EventInvoiceGenerated)
	require.Len(t, gen, 2)

	var d events.InvoiceGenerated
	require.NoError(t, gen[1].Decode(&d))
	assert.Equal(t, inv.InvoiceID, d.InvoiceID)

	for i := 1; i < invService.MaxStaleRepublish; i++ {
		_, err = sc.SweepStale(context.Background())
		require.NoError(t, err)
	}
	n, err = sc.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.rec.OfType(constants.EventInvoiceGenerated), 1+invService.MaxStaleRepublish)
}

/* ===================== end to end over the memory broker ===================== */

func TestRunRoutesPaymentToEveryWorker(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t)
	require.NoError(t, (&Invoicing{Invoices: f.invoices}).Handle(context.Background(), f.rec.OfType(constants.EventInvoiceGenerated)[0]))

	ev, d := f.confirmedEvent(t, inv, 2000, "RCPT-1")
	require.NoError(t, f.db.Create(&receiptModel.Receipt{
		ReceiptSchoolID: f.school, ReceiptNo: "RCPT-1", ReceiptInvoiceID: inv.InvoiceID,
		ReceiptTransactionID: d.TransactionID, ReceiptAmount: d.Amount, ReceiptCurrency: "IDR",
		ReceiptIssuedAt: time.Now().UTC(),
	}).Error)

	broker := events.NewMemoryBroker()
	n := &fakeNotifier{}
	store := oss.NewMemoryStore("https://files.example.com")
	set := Set{
		Messaging: &Messaging{DB: f.db, Notifier: n},
		Invoicing: &Invoicing{Invoices: f.invoices},
		Receipts:  &Receipts{DB: f.db, Receipts: f.receipts, Renderer: receiptService.HTMLRenderer{}, Store: store},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, broker, events.DefaultQueues(), set) }()

	require.NoError(t, events.NewRouter(broker, events.DefaultRules).Publish(context.Background(), ev))

	require.Eventually(t, func() bool {
		var got invModel.Invoice
		if err := f.db.First(&got, "invoice_id = ?", inv.InvoiceID).Error; err != nil {
			return false
		}
		return n.count() == 1 && store.Puts() == 1 && got.InvoiceStatus == invModel.InvoiceStatusPaid
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestRunNeedsAtLeastOneHandler(t *testing.T) {
	err := Run(context.Background(), events.NewMemoryBroker(), events.DefaultQueues(), Set{})
	assert.Error(t, err)
}
