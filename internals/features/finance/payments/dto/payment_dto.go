package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schoolku_backend/internals/features/finance/payments/model"
)

type CreatePaymentIntentRequest struct {
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Provider  string          `json:"provider" validate:"required,oneof=manual midtrans stripe"`
	Amount    decimal.Decimal `json:"amount"`
}

type SubmitManualPaymentProofRequest struct {
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	FileURL   string          `json:"file_url" validate:"omitempty,url"`
}

type ReviewManualPaymentProofRequest struct {
	Status model.ProofStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Notes  *string           `json:"notes" validate:"omitempty,max=1000"`
}

type IntentResponse struct {
	Intent      model.PaymentIntent `json:"intent"`
	CheckoutURL string              `json:"checkout_url,omitempty"`
	// diisi kalau gateway gagal; intent tetap INITIATED
	GatewayError string `json:"gateway_error,omitempty"`
}

type ManualProofResponse struct {
	Transaction model.PaymentTransaction `json:"transaction"`
	Proof       model.ManualPaymentProof `json:"proof"`
}

type ReviewResponse struct {
	Proof       model.ManualPaymentProof `json:"proof"`
	Transaction model.PaymentTransaction `json:"transaction"`
	ReceiptNo   string                   `json:"receipt_no,omitempty"`
}

type WebhookResult struct {
	Status        string     `json:"status"` // processed | duplicate | ignored
	Provider      string     `json:"provider"`
	ExternalID    string     `json:"external_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	ReceiptNo     string     `json:"receipt_no,omitempty"`
}
