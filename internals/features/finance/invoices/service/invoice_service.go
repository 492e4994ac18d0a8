package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	feeService "schoolku_backend/internals/features/finance/fees/service"
	"schoolku_backend/internals/features/finance/invoices/model"
)

type Service struct {
	DB        *gorm.DB
	Audit     *auditService.Writer
	Publisher events.Publisher
	Fees      *feeService.Service
	Now       func() time.Time
}

func New(db *gorm.DB, audit *auditService.Writer, pub events.Publisher, fees *feeService.Service) *Service {
	return &Service{DB: db, Audit: audit, Publisher: pub, Fees: fees, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func generatedEvent(inv model.Invoice, reason string) (events.Event, error) {
	return events.New(constants.SourceBilling, constants.EventInvoiceGenerated, events.InvoiceGenerated{
		SchoolID:  inv.InvoiceSchoolID,
		InvoiceID: inv.InvoiceID,
		StudentID: inv.InvoiceStudentID,
		TermID:    inv.InvoiceTermID,
		Reason:    reason,
	})
}

// publish sends invoice.generated after the state change committed. A failed
// publish is logged only: the stale-invoice sweep re-emits unmaterialized invoices.
func (s *Service) publish(ctx context.Context, inv model.Invoice, reason string) {
	ev, err := generatedEvent(inv, reason)
	if err == nil {
		err = s.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		log.Printf("[ERROR] publish invoice.generated %s (%s): %v", inv.InvoiceID, reason, err)
	}
}

// loadInvoice reads one invoice of the tenant (no lines).
func loadInvoice(db *gorm.DB, schoolID, invoiceID uuid.UUID) (*model.Invoice, error) {
	var inv model.Invoice
	if err := db.Where("invoice_school_id = ? AND invoice_id = ?", schoolID, invoiceID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}
