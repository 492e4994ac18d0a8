package workers

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	invDTO "schoolku_backend/internals/features/finance/invoices/dto"
	invService "schoolku_backend/internals/features/finance/invoices/service"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

// Invoicing materializes invoice lines, books confirmed payments and runs
// queued class imports. All paths are replay safe: lines insert with ON
// CONFLICT DO NOTHING, each transaction is applied at most once and imports
// skip students that already have an invoice.
type Invoicing struct {
	Invoices *invService.Service
}

func (w *Invoicing) Handle(ctx context.Context, ev events.Event) error {
	switch ev.DetailType {
	case constants.EventInvoiceGenerated:
		var d events.InvoiceGenerated
		if err := ev.Decode(&d); err != nil {
			return apperr.Validation(err.Error())
		}
		if d.Reason != constants.ReasonGenerated {
			// totals sudah dihitung ulang oleh operasi asal
			return nil
		}
		return w.Invoices.MaterializeLines(guard.AsSystem(ctx, d.SchoolID), d.SchoolID, d.InvoiceID)

	case constants.EventPaymentConfirmed:
		var d events.PaymentConfirmed
		if err := ev.Decode(&d); err != nil {
			return apperr.Validation(err.Error())
		}
		if d.SchoolID == uuid.Nil {
			return apperr.Validation("payment.confirmed without schoolId")
		}
		return w.Invoices.ApplyConfirmedPayment(guard.AsSystem(ctx, d.SchoolID), d)

	case constants.EventImportRequested:
		var d events.ImportRequested
		if err := ev.Decode(&d); err != nil {
			return apperr.Validation(err.Error())
		}
		if d.SchoolID == uuid.Nil {
			return apperr.Validation("import.requested without schoolId")
		}
		res, err := w.Invoices.GenerateClassInvoices(guard.AsSystem(ctx, d.SchoolID), invService.GenerateClassInvoicesInput{
			SchoolID: d.SchoolID,
			GenerateClassInvoicesRequest: invDTO.GenerateClassInvoicesRequest{
				TermID:         d.TermID,
				ClassGroupID:   d.ClassGroupID,
				FeeScheduleID:  d.FeeScheduleID,
				DueAt:          d.DueAt,
				Cap:            d.Cap,
				SkipDuplicates: true,
			},
		})
		if err != nil {
			return err
		}
		// siswa yang gagal diulang lewat retry; yang sudah dibuat dilewati
		if res.FailedCount > 0 {
			return fmt.Errorf("import %s: %d of %d enrollments failed", ev.ID, res.FailedCount, res.FailedCount+res.CreatedCount+res.SkippedCount)
		}
		return nil

	default:
		log.Printf("[WARN] invoicing: unexpected %s (%s)", ev.DetailType, ev.ID)
		return nil
	}
}
