package workers

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	receiptService "schoolku_backend/internals/features/finance/receipts/service"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/oss"
	"schoolku_backend/internals/middlewares/guard"
)

// Receipts renders the receipt of a confirmed payment, uploads it under a
// deterministic key and records the URL. A receipt that already has a
// document is skipped.
type Receipts struct {
	DB       *gorm.DB
	Receipts *receiptService.Service
	Renderer receiptService.Renderer
	Store    oss.DocumentStore
}

func (w *Receipts) Handle(ctx context.Context, ev events.Event) error {
	if ev.DetailType != constants.EventPaymentConfirmed {
		log.Printf("[WARN] receipts: unexpected %s (%s)", ev.DetailType, ev.ID)
		return nil
	}
	var d events.PaymentConfirmed
	if err := ev.Decode(&d); err != nil {
		return apperr.Validation(err.Error())
	}

	rc, err := w.Receipts.ForTransaction(ctx, d.SchoolID, d.TransactionID)
	if err != nil {
		return err
	}
	if rc.ReceiptDocumentURL != nil && *rc.ReceiptDocumentURL != "" {
		log.Printf("[INFO] receipts: %s already rendered", rc.ReceiptNo)
		return nil
	}

	var inv invModel.Invoice
	if err := w.DB.WithContext(ctx).
		Where("invoice_school_id = ? AND invoice_id = ?", rc.ReceiptSchoolID, rc.ReceiptInvoiceID).
		First(&inv).Error; err != nil {
		return apperr.FromDB(err, "invoice")
	}

	doc, err := w.Renderer.Render(ctx, receiptService.NewReceiptView(*rc, inv.InvoiceNumber, inv.InvoiceStudentName, d.Provider))
	if err != nil {
		return fmt.Errorf("render %s: %w", rc.ReceiptNo, err)
	}
	url, err := w.Store.Put(ctx, receiptService.ObjectKey(*rc, doc.Ext), doc.Body, doc.ContentType)
	if err != nil {
		return fmt.Errorf("upload %s: %w", rc.ReceiptNo, err)
	}
	_, err = w.Receipts.AttachReceiptURL(guard.AsSystem(ctx, rc.ReceiptSchoolID), rc.ReceiptSchoolID, rc.ReceiptNo, url)
	return err
}
