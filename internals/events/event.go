// Package events carries domain events from the billing core to the queue
// workers: the envelope, publishers (Kafka or in-process), named routing
// rules, queue brokers (RabbitMQ or memory) and the retrying consumer.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var codec = sonic.ConfigStd

type Event struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	DetailType string          `json:"detailType"`
	Detail     json.RawMessage `json:"detail"`
	Time       time.Time       `json:"time"`
}

func New(source, detailType string, detail any) (Event, error) {
	return NewWithID(uuid.NewString(), source, detailType, detail)
}

// NewWithID builds an event with a caller-chosen id, for producers that need
// the same logical event to dedupe downstream (e.g. one reminder per day).
func NewWithID(id, source, detailType string, detail any) (Event, error) {
	raw, err := codec.Marshal(detail)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s detail: %w", detailType, err)
	}
	return Event{
		ID:         id,
		Source:     source,
		DetailType: detailType,
		Detail:     json.RawMessage(raw),
		Time:       time.Now().UTC(),
	}, nil
}

func (e Event) Decode(v any) error {
	if err := codec.Unmarshal(e.Detail, v); err != nil {
		return fmt.Errorf("decode %s detail: %w", e.DetailType, err)
	}
	return nil
}

// SchoolID reads detail.schoolId; used as the partition key.
func (e Event) SchoolID() string {
	var d struct {
		SchoolID string `json:"schoolId"`
	}
	_ = codec.Unmarshal(e.Detail, &d)
	return d.SchoolID
}

func Marshal(e Event) ([]byte, error) { return codec.Marshal(e) }

func Unmarshal(b []byte) (Event, error) {
	var e Event
	if err := codec.Unmarshal(b, &e); err != nil {
		return e, err
	}
	if e.ID == "" || e.DetailType == "" {
		return e, fmt.Errorf("event missing id or detailType")
	}
	return e, nil
}

/* =========================================================
   Detail payloads
========================================================= */

type InvoiceGenerated struct {
	SchoolID  uuid.UUID `json:"schoolId"`
	InvoiceID uuid.UUID `json:"invoiceId"`
	StudentID uuid.UUID `json:"studentId"`
	TermID    uuid.UUID `json:"termId"`
	Reason    string    `json:"reason"`
}

type PaymentConfirmed struct {
	SchoolID      uuid.UUID       `json:"schoolId"`
	InvoiceID     uuid.UUID       `json:"invoiceId"`
	TransactionID uuid.UUID       `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ReceiptNo     string          `json:"receiptNo"`
	Provider      string          `json:"provider"`
}

// ImportRequested asks the invoicing worker to run a class-wide invoice batch.
type ImportRequested struct {
	SchoolID      uuid.UUID  `json:"schoolId"`
	TermID        uuid.UUID  `json:"termId"`
	ClassGroupID  uuid.UUID  `json:"classGroupId"`
	FeeScheduleID uuid.UUID  `json:"feeScheduleId"`
	DueAt         time.Time  `json:"dueAt"`
	Cap           *int       `json:"cap,omitempty"`
	RequestedBy   *uuid.UUID `json:"requestedBy,omitempty"`
}

type ResultReady struct {
	SchoolID  uuid.UUID `json:"schoolId"`
	StudentID uuid.UUID `json:"studentId"`
	TermID    uuid.UUID `json:"termId"`
}

type InvoiceOverdue struct {
	SchoolID    uuid.UUID       `json:"schoolId"`
	InvoiceID   uuid.UUID       `json:"invoiceId"`
	StudentID   uuid.UUID       `json:"studentId"`
	AmountDue   decimal.Decimal `json:"amountDue"`
	DueAt       time.Time       `json:"dueAt"`
	DaysOverdue int             `json:"daysOverdue"`
}
