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
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/features/finance/payments/model"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/oss"
	"schoolku_backend/internals/middlewares/guard"
)

type Service struct {
	DB        *gorm.DB
	Audit     *auditService.Writer
	Publisher events.Publisher
	Fees      *feeService.Service
	Gateways  map[string]Gateway
	Store     oss.DocumentStore

	MidtransServerKey   string
	StripeWebhookSecret string

	Now func() time.Time
}

func New(db *gorm.DB, audit *auditService.Writer, pub events.Publisher, fees *feeService.Service) *Service {
	return &Service{
		DB:        db,
		Audit:     audit,
		Publisher: pub,
		Fees:      fees,
		Gateways:  map[string]Gateway{},
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithGateway registers a checkout provider under its Name().
func (s *Service) WithGateway(g Gateway) *Service {
	s.Gateways[g.Name()] = g
	return s
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func loadInvoice(db *gorm.DB, schoolID, invoiceID uuid.UUID) (*invModel.Invoice, error) {
	var inv invModel.Invoice
	if err := db.Where("invoice_school_id = ? AND invoice_id = ?", schoolID, invoiceID).First(&inv).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return &inv, nil
}

// publishConfirmed emits payment.confirmed after commit; failures are logged.
func (s *Service) publishConfirmed(ctx context.Context, txn model.PaymentTransaction, provider string) {
	receiptNo := ""
	if txn.PaymentTransactionReceiptNo != nil {
		receiptNo = *txn.PaymentTransactionReceiptNo
	}
	ev, err := events.New(constants.SourcePayments, constants.EventPaymentConfirmed, events.PaymentConfirmed{
		SchoolID:      txn.PaymentTransactionSchoolID,
		InvoiceID:     txn.PaymentTransactionInvoiceID,
		TransactionID: txn.PaymentTransactionID,
		Amount:        txn.PaymentTransactionAmount,
		Currency:      txn.PaymentTransactionCurrency,
		ReceiptNo:     receiptNo,
		Provider:      provider,
	})
	if err == nil {
		err = s.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		log.Printf("[ERROR] publish payment.confirmed txn=%s: %v", txn.PaymentTransactionID, err)
	}
}

/* =========================================================
   Queries
========================================================= */

func (s *Service) PaymentsByInvoice(ctx context.Context, schoolID, invoiceID uuid.UUID) ([]model.PaymentTransaction, error) {
	if err := guard.Enforce(ctx, guard.OpPaymentsByInvoice, schoolID); err != nil {
		return nil, err
	}
	rows := make([]model.PaymentTransaction, 0)
	if err := s.DB.WithContext(ctx).
		Where("payment_transaction_school_id = ? AND payment_transaction_invoice_id = ?", schoolID, invoiceID).
		Order("payment_transaction_created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "payment transaction")
	}
	return rows, nil
}

func (s *Service) ListManualPaymentProofs(ctx context.Context, schoolID uuid.UUID, status model.ProofStatus) ([]model.ManualPaymentProof, error) {
	if err := guard.Enforce(ctx, guard.OpListManualPaymentProofs, schoolID); err != nil {
		return nil, err
	}
	q := s.DB.WithContext(ctx).Where("manual_payment_proof_school_id = ?", schoolID)
	if status != "" {
		q = q.Where("manual_payment_proof_status = ?", status)
	}
	rows := make([]model.ManualPaymentProof, 0)
	if err := q.Order("manual_payment_proof_created_at ASC").Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "manual payment proof")
	}
	return rows, nil
}
