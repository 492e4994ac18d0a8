package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- MODEL receipt_counters --------------------------------------------------
// Satu baris per sekolah; satu-satunya titik contention penomoran kuitansi.
type ReceiptCounter struct {
	ReceiptCounterSchoolID uuid.UUID `gorm:"column:receipt_counter_school_id;type:uuid;primaryKey"`
	ReceiptCounterLastSeq  int64     `gorm:"column:receipt_counter_last_seq;not null"`
}

func (ReceiptCounter) TableName() string { return "receipt_counters" }

// --- MODEL receipts ----------------------------------------------------------
type Receipt struct {
	ReceiptSchoolID      uuid.UUID       `json:"receipt_school_id" gorm:"column:receipt_school_id;type:uuid;primaryKey"`
	ReceiptNo            string          `json:"receipt_no" gorm:"column:receipt_no;type:varchar(40);primaryKey"`
	ReceiptInvoiceID     uuid.UUID       `json:"receipt_invoice_id" gorm:"column:receipt_invoice_id;type:uuid;not null;index"`
	ReceiptTransactionID uuid.UUID       `json:"receipt_transaction_id" gorm:"column:receipt_transaction_id;type:uuid;not null;uniqueIndex"`
	ReceiptAmount        decimal.Decimal `json:"receipt_amount" gorm:"column:receipt_amount;type:numeric(14,2);not null"`
	ReceiptCurrency      string          `json:"receipt_currency" gorm:"column:receipt_currency;type:varchar(3);not null"`
	ReceiptIssuedAt      time.Time       `json:"receipt_issued_at" gorm:"column:receipt_issued_at;not null"`
	ReceiptDocumentURL   *string         `json:"receipt_document_url,omitempty" gorm:"column:receipt_document_url;type:text"`
}

func (Receipt) TableName() string { return "receipts" }
