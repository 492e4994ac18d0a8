package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

/* ===================== Enums ===================== */

const (
	ProviderManual   = "manual"
	ProviderMidtrans = "midtrans"
	ProviderStripe   = "stripe"
)

type IntentStatus string

const (
	IntentInitiated  IntentStatus = "INITIATED"
	IntentRedirected IntentStatus = "REDIRECTED"
	IntentSucceeded  IntentStatus = "SUCCEEDED"
	IntentFailed     IntentStatus = "FAILED"
)

type TransactionMethod string

const (
	MethodManual   TransactionMethod = "MANUAL"
	MethodMidtrans TransactionMethod = ProviderMidtrans
	MethodStripe   TransactionMethod = ProviderStripe
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionConfirmed TransactionStatus = "CONFIRMED"
	TransactionReversed  TransactionStatus = "REVERSED"
)

type ProofStatus string

const (
	ProofSubmitted ProofStatus = "SUBMITTED"
	ProofApproved  ProofStatus = "APPROVED"
	ProofRejected  ProofStatus = "REJECTED"
)

type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventFailed    GatewayEventStatus = "failed"
)

/* ===================== payment_intents ===================== */

type PaymentIntent struct {
	PaymentIntentID          uuid.UUID       `json:"payment_intent_id" gorm:"column:payment_intent_id;type:uuid;primaryKey"`
	PaymentIntentSchoolID    uuid.UUID       `json:"payment_intent_school_id" gorm:"column:payment_intent_school_id;type:uuid;not null;index:idx_payment_intents_invoice,priority:1"`
	PaymentIntentInvoiceID   uuid.UUID       `json:"payment_intent_invoice_id" gorm:"column:payment_intent_invoice_id;type:uuid;not null;index:idx_payment_intents_invoice,priority:2"`
	PaymentIntentPayerUserID *uuid.UUID      `json:"payment_intent_payer_user_id,omitempty" gorm:"column:payment_intent_payer_user_id;type:uuid"`
	PaymentIntentProvider    string          `json:"payment_intent_provider" gorm:"column:payment_intent_provider;type:varchar(20);not null"`
	PaymentIntentAmount      decimal.Decimal `json:"payment_intent_amount" gorm:"column:payment_intent_amount;type:numeric(14,2);not null"`
	PaymentIntentCurrency    string          `json:"payment_intent_currency" gorm:"column:payment_intent_currency;type:varchar(3);not null"`
	PaymentIntentStatus      IntentStatus    `json:"payment_intent_status" gorm:"column:payment_intent_status;type:varchar(20);not null"`
	PaymentIntentExternalRef *string         `json:"payment_intent_external_ref,omitempty" gorm:"column:payment_intent_external_ref;type:varchar(120);index"`
	PaymentIntentCheckoutURL *string         `json:"payment_intent_checkout_url,omitempty" gorm:"column:payment_intent_checkout_url;type:text"`
	PaymentIntentCreatedAt   time.Time       `json:"payment_intent_created_at" gorm:"column:payment_intent_created_at;not null;autoCreateTime"`
	PaymentIntentUpdatedAt   time.Time       `json:"payment_intent_updated_at" gorm:"column:payment_intent_updated_at;not null;autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

/* ===================== payment_transactions ===================== */

type PaymentTransaction struct {
	PaymentTransactionID          uuid.UUID         `json:"payment_transaction_id" gorm:"column:payment_transaction_id;type:uuid;primaryKey"`
	PaymentTransactionSchoolID    uuid.UUID         `json:"payment_transaction_school_id" gorm:"column:payment_transaction_school_id;type:uuid;not null;uniqueIndex:uq_payment_transactions_reference,priority:1;index:idx_payment_transactions_invoice,priority:1"`
	PaymentTransactionInvoiceID   uuid.UUID         `json:"payment_transaction_invoice_id" gorm:"column:payment_transaction_invoice_id;type:uuid;not null;index:idx_payment_transactions_invoice,priority:2"`
	PaymentTransactionIntentID    *uuid.UUID        `json:"payment_transaction_intent_id,omitempty" gorm:"column:payment_transaction_intent_id;type:uuid"`
	PaymentTransactionMethod      TransactionMethod `json:"payment_transaction_method" gorm:"column:payment_transaction_method;type:varchar(20);not null"`
	PaymentTransactionStatus      TransactionStatus `json:"payment_transaction_status" gorm:"column:payment_transaction_status;type:varchar(20);not null"`
	PaymentTransactionAmount      decimal.Decimal   `json:"payment_transaction_amount" gorm:"column:payment_transaction_amount;type:numeric(14,2);not null"`
	PaymentTransactionCurrency    string            `json:"payment_transaction_currency" gorm:"column:payment_transaction_currency;type:varchar(3);not null"`
	PaymentTransactionReference   string            `json:"payment_transaction_reference" gorm:"column:payment_transaction_reference;type:varchar(120);not null;uniqueIndex:uq_payment_transactions_reference,priority:2"`
	PaymentTransactionReceiptNo   *string           `json:"payment_transaction_receipt_no,omitempty" gorm:"column:payment_transaction_receipt_no;type:varchar(40)"`
	PaymentTransactionConfirmedAt *time.Time        `json:"payment_transaction_confirmed_at,omitempty" gorm:"column:payment_transaction_confirmed_at"`
	PaymentTransactionReversedAt  *time.Time        `json:"payment_transaction_reversed_at,omitempty" gorm:"column:payment_transaction_reversed_at"`
	PaymentTransactionCreatedAt   time.Time         `json:"payment_transaction_created_at" gorm:"column:payment_transaction_created_at;not null;autoCreateTime"`
	PaymentTransactionUpdatedAt   time.Time         `json:"payment_transaction_updated_at" gorm:"column:payment_transaction_updated_at;not null;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

/* ===================== manual_payment_proofs ===================== */

type ManualPaymentProof struct {
	ManualPaymentProofID            uuid.UUID   `json:"manual_payment_proof_id" gorm:"column:manual_payment_proof_id;type:uuid;primaryKey"`
	ManualPaymentProofSchoolID      uuid.UUID   `json:"manual_payment_proof_school_id" gorm:"column:manual_payment_proof_school_id;type:uuid;not null;index:idx_manual_proofs_status,priority:1"`
	ManualPaymentProofTransactionID uuid.UUID   `json:"manual_payment_proof_transaction_id" gorm:"column:manual_payment_proof_transaction_id;type:uuid;not null;uniqueIndex"`
	ManualPaymentProofInvoiceID     uuid.UUID   `json:"manual_payment_proof_invoice_id" gorm:"column:manual_payment_proof_invoice_id;type:uuid;not null;index"`
	ManualPaymentProofFileURL       string      `json:"manual_payment_proof_file_url" gorm:"column:manual_payment_proof_file_url;type:text;not null"`
	ManualPaymentProofSubmittedBy   *uuid.UUID  `json:"manual_payment_proof_submitted_by,omitempty" gorm:"column:manual_payment_proof_submitted_by;type:uuid"`
	ManualPaymentProofStatus        ProofStatus `json:"manual_payment_proof_status" gorm:"column:manual_payment_proof_status;type:varchar(20);not null;index:idx_manual_proofs_status,priority:2"`
	ManualPaymentProofReviewedBy    *uuid.UUID  `json:"manual_payment_proof_reviewed_by,omitempty" gorm:"column:manual_payment_proof_reviewed_by;type:uuid"`
	ManualPaymentProofReviewedAt    *time.Time  `json:"manual_payment_proof_reviewed_at,omitempty" gorm:"column:manual_payment_proof_reviewed_at"`
	ManualPaymentProofNotes         *string     `json:"manual_payment_proof_notes,omitempty" gorm:"column:manual_payment_proof_notes;type:text"`
	ManualPaymentProofCreatedAt     time.Time   `json:"manual_payment_proof_created_at" gorm:"column:manual_payment_proof_created_at;not null;autoCreateTime"`
}

func (ManualPaymentProof) TableName() string { return "manual_payment_proofs" }

/* ===================== payment_gateway_events ===================== */
/*
  Log webhook / callback gateway. Satu baris per (provider, external_id, event_type):
  notifikasi ulang dari gateway jatuh ke unique index dan di-ack tanpa efek.
*/

type GatewayEvent struct {
	GatewayEventID          uuid.UUID          `json:"gateway_event_id" gorm:"column:gateway_event_id;type:uuid;primaryKey"`
	GatewayEventSchoolID    *uuid.UUID         `json:"gateway_event_school_id,omitempty" gorm:"column:gateway_event_school_id;type:uuid"`
	GatewayEventProvider    string             `json:"gateway_event_provider" gorm:"column:gateway_event_provider;type:varchar(20);not null;uniqueIndex:uq_gateway_events_dedupe,priority:1"`
	GatewayEventExternalID  string             `json:"gateway_event_external_id" gorm:"column:gateway_event_external_id;type:varchar(160);not null;uniqueIndex:uq_gateway_events_dedupe,priority:2"`
	GatewayEventType        string             `json:"gateway_event_type" gorm:"column:gateway_event_type;type:varchar(80);not null;uniqueIndex:uq_gateway_events_dedupe,priority:3"`
	GatewayEventStatus      GatewayEventStatus `json:"gateway_event_status" gorm:"column:gateway_event_status;type:varchar(20);not null"`
	GatewayEventPayload     datatypes.JSON     `json:"gateway_event_payload" gorm:"column:gateway_event_payload"`
	GatewayEventError       *string            `json:"gateway_event_error,omitempty" gorm:"column:gateway_event_error;type:text"`
	GatewayEventReceivedAt  time.Time          `json:"gateway_event_received_at" gorm:"column:gateway_event_received_at;not null"`
	GatewayEventProcessedAt *time.Time         `json:"gateway_event_processed_at,omitempty" gorm:"column:gateway_event_processed_at"`
}

func (GatewayEvent) TableName() string { return "payment_gateway_events" }
