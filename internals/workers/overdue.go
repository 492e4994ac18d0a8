package workers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	invService "schoolku_backend/internals/features/finance/invoices/service"
)

const (
	overduePage      = 200
	staleAfter       = 15 * time.Minute
	staleSweepLimit  = 500
	defaultSweepCron = "*/10 * * * *"
)

// Scanner publishes invoice.overdue reminders and re-emits invoice.generated
// for invoices the invoicing worker never materialized.
type Scanner struct {
	Invoices  *invService.Service
	Publisher events.Publisher
	Now       func() time.Time
}

func (s *Scanner) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// OverdueEventID is stable per invoice and day, so a re-run of the same
// day's scan is deduped by the messaging worker.
func OverdueEventID(invoiceID uuid.UUID, day time.Time) string {
	return "overdue:" + invoiceID.String() + ":" + day.UTC().Format("20060102")
}

// ScanOverdue pages every open invoice past due and publishes one reminder each.
func (s *Scanner) ScanOverdue(ctx context.Context) (int, error) {
	now := s.now()
	batch := events.NewBatcher(s.Publisher)
	after := uuid.Nil
	for {
		rows, err := s.Invoices.ListOverdue(ctx, now, after, overduePage)
		if err != nil {
			return batch.Published(), err
		}
		for _, inv := range rows {
			ev, err := events.NewWithID(OverdueEventID(inv.InvoiceID, now), constants.SourceBilling, constants.EventInvoiceOverdue, events.InvoiceOverdue{
				SchoolID:    inv.InvoiceSchoolID,
				InvoiceID:   inv.InvoiceID,
				StudentID:   inv.InvoiceStudentID,
				AmountDue:   inv.InvoiceAmountDue,
				DueAt:       inv.InvoiceDueAt,
				DaysOverdue: invService.DaysOverdue(inv.InvoiceDueAt, now),
			})
			if err != nil {
				return batch.Published(), err
			}
			if err := batch.Add(ctx, ev); err != nil {
				return batch.Published(), err
			}
		}
		if len(rows) < overduePage {
			break
		}
		after = rows[len(rows)-1].InvoiceID
	}
	if err := batch.Flush(ctx); err != nil {
		return batch.Published(), err
	}
	log.Printf("[INFO] overdue scan: %d reminder(s) published", batch.Published())
	return batch.Published(), nil
}

// SweepStale republishes invoice.generated for invoices still unmaterialized
// after staleAfter.
func (s *Scanner) SweepStale(ctx context.Context) (int, error) {
	rows, err := s.Invoices.StaleUnmaterialized(ctx, s.now().Add(-staleAfter), staleSweepLimit)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n := s.Invoices.Republish(ctx, rows)
	log.Printf("[WARN] stale sweep: republished %d/%d unmaterialized invoice(s)", n, len(rows))
	return n, nil
}

// Schedule registers both jobs on a cron that skips a tick while the
// previous run is still going. The caller starts and stops the cron.
func (s *Scanner) Schedule(overdueSpec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(overdueSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.ScanOverdue(ctx); err != nil {
			log.Printf("[ERROR] overdue scan: %v", err)
		}
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(defaultSweepCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.SweepStale(ctx); err != nil {
			log.Printf("[ERROR] stale sweep: %v", err)
		}
	}); err != nil {
		return nil, err
	}
	log.Printf("[INFO] scanner scheduled overdue=%q sweep=%q", overdueSpec, defaultSweepCron)
	return c, nil
}
