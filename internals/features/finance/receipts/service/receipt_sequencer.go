package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/receipts/model"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/dbseq"
	"schoolku_backend/internals/middlewares/guard"
)

const ReceiptPrefix = "RCPT-"

var receiptCounter = dbseq.Counter{
	Table:      "receipt_counters",
	KeyColumns: []string{"receipt_counter_school_id"},
	SeqColumn:  "receipt_counter_last_seq",
}

func FormatReceiptNo(seq int64) string { return fmt.Sprintf("%s%d", ReceiptPrefix, seq) }

// Next atomically advances the school's counter. Call it only on approval paths.
func Next(tx *gorm.DB, schoolID uuid.UUID) (int64, error) {
	return dbseq.Next(tx, receiptCounter, schoolID)
}

// Peek is the read-only counterpart of Next.
func Peek(db *gorm.DB, schoolID uuid.UUID) (int64, error) {
	return dbseq.Peek(db, receiptCounter, schoolID)
}

// IssueInput is what a confirmed transaction contributes to its receipt.
type IssueInput struct {
	SchoolID      uuid.UUID
	InvoiceID     uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	// Existing is the transaction's current receipt_no; set means already issued.
	Existing *string
	IssuedAt time.Time
}

// Issue returns the receipt number of a confirmed transaction, allocating one
// only the first time. Must run inside the confirming tx.
func Issue(tx *gorm.DB, in IssueInput) (string, error) {
	if in.Existing != nil && *in.Existing != "" {
		return *in.Existing, nil
	}

	var prev model.Receipt
	err := tx.Where("receipt_school_id = ? AND receipt_transaction_id = ?", in.SchoolID, in.TransactionID).
		Limit(1).Find(&prev).Error
	if err != nil {
		return "", apperr.FromDB(err, "receipt")
	}
	if prev.ReceiptNo != "" {
		return prev.ReceiptNo, nil
	}

	seq, err := Next(tx, in.SchoolID)
	if err != nil {
		return "", err
	}
	if in.IssuedAt.IsZero() {
		in.IssuedAt = time.Now().UTC()
	}
	rc := model.Receipt{
		ReceiptSchoolID:      in.SchoolID,
		ReceiptNo:            FormatReceiptNo(seq),
		ReceiptInvoiceID:     in.InvoiceID,
		ReceiptTransactionID: in.TransactionID,
		ReceiptAmount:        in.Amount,
		ReceiptCurrency:      in.Currency,
		ReceiptIssuedAt:      in.IssuedAt,
	}
	if err := tx.Create(&rc).Error; err != nil {
		return "", apperr.FromDB(err, "receipt")
	}
	return rc.ReceiptNo, nil
}

/* =========================================================
   Service (guarded surface)
========================================================= */

type Service struct {
	DB    *gorm.DB
	Audit *auditService.Writer
}

func New(db *gorm.DB, audit *auditService.Writer) *Service {
	return &Service{DB: db, Audit: audit}
}

func normalizeNo(no string) string { return strings.ToUpper(strings.TrimSpace(no)) }

func (s *Service) ReceiptByNumber(ctx context.Context, schoolID uuid.UUID, receiptNo string) (*model.Receipt, error) {
	if err := guard.Enforce(ctx, guard.OpReceiptByNumber, schoolID); err != nil {
		return nil, err
	}
	return s.find(ctx, schoolID, receiptNo)
}

func (s *Service) find(ctx context.Context, schoolID uuid.UUID, receiptNo string) (*model.Receipt, error) {
	receiptNo = normalizeNo(receiptNo)
	if !strings.HasPrefix(receiptNo, ReceiptPrefix) {
		return nil, apperr.Validation("receipt number must start with " + ReceiptPrefix)
	}
	var rc model.Receipt
	if err := s.DB.WithContext(ctx).
		Where("receipt_school_id = ? AND receipt_no = ?", schoolID, receiptNo).
		First(&rc).Error; err != nil {
		return nil, apperr.FromDB(err, "receipt")
	}
	return &rc, nil
}

// AttachReceiptURL records where the rendered document lives. Writing the same
// URL again is a no-op.
func (s *Service) AttachReceiptURL(ctx context.Context, schoolID uuid.UUID, receiptNo, url string) (*model.Receipt, error) {
	if err := guard.Enforce(ctx, guard.OpAttachReceiptURL, schoolID); err != nil {
		return nil, err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperr.Validation("url is required")
	}
	rc, err := s.find(ctx, schoolID, receiptNo)
	if err != nil {
		return nil, err
	}
	if rc.ReceiptDocumentURL != nil && *rc.ReceiptDocumentURL == url {
		return rc, nil
	}

	if err := s.DB.WithContext(ctx).Model(&model.Receipt{}).
		Where("receipt_school_id = ? AND receipt_no = ?", schoolID, rc.ReceiptNo).
		Update("receipt_document_url", url).Error; err != nil {
		return nil, apperr.FromDB(err, "receipt")
	}
	rc.ReceiptDocumentURL = &url

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditReceiptURLAttached,
		EntityType: "receipt", EntityID: rc.ReceiptNo,
		Snapshot: map[string]any{"receipt_no": rc.ReceiptNo, "url": url},
	})
	return rc, nil
}

type SequenceStatus struct {
	SchoolID uuid.UUID `json:"school_id"`
	LastSeq  int64     `json:"last_seq"`
	LastNo   string    `json:"last_receipt_no,omitempty"`
}

// ReceiptSequence reports the counter without advancing it.
func (s *Service) ReceiptSequence(ctx context.Context, schoolID uuid.UUID) (SequenceStatus, error) {
	out := SequenceStatus{SchoolID: schoolID}
	if err := guard.Enforce(ctx, guard.OpReceiptSequence, schoolID); err != nil {
		return out, err
	}
	seq, err := Peek(s.DB.WithContext(ctx), schoolID)
	if err != nil {
		return out, err
	}
	out.LastSeq = seq
	if seq > 0 {
		out.LastNo = FormatReceiptNo(seq)
	}
	return out, nil
}

// ForTransaction is used by the receipts worker; no principal needed.
func (s *Service) ForTransaction(ctx context.Context, schoolID, transactionID uuid.UUID) (*model.Receipt, error) {
	var rc model.Receipt
	if err := s.DB.WithContext(ctx).
		Where("receipt_school_id = ? AND receipt_transaction_id = ?", schoolID, transactionID).
		First(&rc).Error; err != nil {
		return nil, apperr.FromDB(err, "receipt")
	}
	return &rc, nil
}
