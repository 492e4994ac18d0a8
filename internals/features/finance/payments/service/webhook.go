package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/payments/dto"
	"schoolku_backend/internals/features/finance/payments/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
)

type gatewayOutcome int

const (
	outcomeIgnored gatewayOutcome = iota
	outcomePending
	outcomeConfirmed
	outcomeReversed
)

// gatewayNotice is a verified notification normalized across providers.
type gatewayNotice struct {
	Provider   string
	ExternalID string // dedupe key bersama EventType
	EventType  string
	IntentID   *uuid.UUID
	// ExternalRef dipakai kalau IntentID tidak ada di payload
	ExternalRef string
	Reference   string
	Amount      decimal.Decimal
	Outcome     gatewayOutcome
	Payload     []byte
}

/* =========================================================
   Midtrans
========================================================= */

type midtransNotification struct {
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// MidtransSignature = SHA512(order_id + status_code + gross_amount + server_key).
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func midtransOutcome(status, fraud string) gatewayOutcome {
	switch strings.ToLower(status) {
	case "settlement":
		return outcomeConfirmed
	case "capture":
		if fraud == "" || strings.EqualFold(fraud, "accept") {
			return outcomeConfirmed
		}
		if strings.EqualFold(fraud, "deny") {
			return outcomeReversed
		}
		return outcomePending
	case "pending", "authorize":
		return outcomePending
	case "deny", "cancel", "expire", "failure":
		return outcomeReversed
	}
	// refund / partial_refund / chargeback ditangani di luar engine ini
	return outcomeIgnored
}

// HandleMidtransNotification verifies and applies one HTTP notification.
func (s *Service) HandleMidtransNotification(ctx context.Context, payload []byte) (*dto.WebhookResult, error) {
	if s.MidtransServerKey == "" {
		return nil, apperr.Validation("midtrans is not configured")
	}
	var n midtransNotification
	if err := sonic.Unmarshal(payload, &n); err != nil {
		return nil, apperr.Validation("invalid payload: " + err.Error())
	}
	if n.OrderID == "" || n.SignatureKey == "" {
		return nil, apperr.Validation("order_id and signature_key are required")
	}
	want := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, s.MidtransServerKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return nil, apperr.Unauthorized("invalid signature")
	}

	notice := gatewayNotice{
		Provider:    model.ProviderMidtrans,
		ExternalID:  n.OrderID,
		EventType:   strings.ToLower(n.TransactionStatus),
		ExternalRef: n.OrderID,
		Reference:   n.OrderID,
		Outcome:     midtransOutcome(n.TransactionStatus, n.FraudStatus),
		Payload:     payload,
	}
	if id, err := uuid.Parse(n.OrderID); err == nil {
		notice.IntentID = &id
	}
	if amt, err := decimal.NewFromString(n.GrossAmount); err == nil {
		notice.Amount = amt
	}
	return s.applyGatewayNotice(ctx, notice)
}

/* =========================================================
   Stripe
========================================================= */

// HandleStripeWebhook verifies the Stripe-Signature header and applies
// payment_intent events.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) (*dto.WebhookResult, error) {
	if s.StripeWebhookSecret == "" {
		return nil, apperr.Validation("stripe webhook is not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperr.Unauthorized("invalid stripe signature: " + err.Error())
	}

	notice := gatewayNotice{
		Provider:   model.ProviderStripe,
		ExternalID: ev.ID,
		EventType:  string(ev.Type),
		Payload:    payload,
	}
	switch string(ev.Type) {
	case "payment_intent.succeeded":
		notice.Outcome = outcomeConfirmed
	case "payment_intent.payment_failed", "payment_intent.canceled":
		notice.Outcome = outcomeReversed
	case "payment_intent.processing":
		notice.Outcome = outcomePending
	default:
		notice.Outcome = outcomeIgnored
	}

	if ev.Data != nil && strings.HasPrefix(notice.EventType, "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := sonic.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, apperr.Validation("invalid payment_intent object: " + err.Error())
		}
		notice.ExternalRef = pi.ID
		notice.Reference = pi.ID
		notice.Amount = helper.FromMinorUnits(pi.Amount, string(pi.Currency))
		if id, err := uuid.Parse(pi.Metadata["intent_id"]); err == nil {
			notice.IntentID = &id
		}
	}
	return s.applyGatewayNotice(ctx, notice)
}

/* =========================================================
   Shared flow
========================================================= */

func (s *Service) applyGatewayNotice(ctx context.Context, n gatewayNotice) (*dto.WebhookResult, error) {
	res := &dto.WebhookResult{Provider: n.Provider, ExternalID: n.ExternalID}

	fresh, err := s.claimGatewayEvent(ctx, n)
	if err != nil {
		return nil, err
	}
	if !fresh {
		res.Status = WebhookDuplicate
		return res, nil
	}

	if n.Outcome == outcomeIgnored || n.Reference == "" {
		s.finishGatewayEvent(ctx, n, model.GatewayEventIgnored, nil, "")
		res.Status = WebhookIgnored
		return res, nil
	}

	intent, err := s.resolveIntent(ctx, n)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// balas 200 supaya gateway tidak retry terus
			s.finishGatewayEvent(ctx, n, model.GatewayEventIgnored, nil, "intent not found")
			log.Printf("[WARN] %s notification %s: intent not found", n.Provider, n.ExternalID)
			res.Status = WebhookIgnored
			return res, nil
		}
		s.finishGatewayEvent(ctx, n, model.GatewayEventFailed, nil, err.Error())
		return nil, err
	}
	schoolID := intent.PaymentIntentSchoolID

	sysCtx := guard.AsSystem(ctx, schoolID)
	if err := guard.Enforce(sysCtx, guard.OpConfirmGatewayPayment, schoolID); err != nil {
		s.finishGatewayEvent(ctx, n, model.GatewayEventFailed, &schoolID, err.Error())
		return nil, err
	}

	now := s.now()
	var txn model.PaymentTransaction
	changed := false
	err = s.DB.WithContext(sysCtx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("payment_transaction_school_id = ? AND payment_transaction_reference = ?", schoolID, n.Reference).
			Limit(1).Find(&txn).Error; err != nil {
			return apperr.FromDB(err, "payment transaction")
		}
		if txn.PaymentTransactionID == uuid.Nil {
			amount := n.Amount
			if !amount.IsPositive() {
				amount = intent.PaymentIntentAmount
			}
			intentID := intent.PaymentIntentID
			txn = model.PaymentTransaction{
				PaymentTransactionID:        uuid.New(),
				PaymentTransactionSchoolID:  schoolID,
				PaymentTransactionInvoiceID: intent.PaymentIntentInvoiceID,
				PaymentTransactionIntentID:  &intentID,
				PaymentTransactionMethod:    model.TransactionMethod(n.Provider),
				PaymentTransactionStatus:    model.TransactionPending,
				PaymentTransactionAmount:    amount.Round(2),
				PaymentTransactionCurrency:  intent.PaymentIntentCurrency,
				PaymentTransactionReference: n.Reference,
			}
			if err := tx.Create(&txn).Error; err != nil {
				return apperr.FromDB(err, "payment transaction")
			}
		}

		// status akhir tidak pernah berubah lagi
		if txn.PaymentTransactionStatus != model.TransactionPending {
			return nil
		}

		switch n.Outcome {
		case outcomeConfirmed:
			if err := confirmTransaction(tx, &txn, now); err != nil {
				return err
			}
			changed = true
			return setIntentStatus(tx, intent.PaymentIntentID, model.IntentSucceeded)
		case outcomeReversed:
			if err := reverseTransaction(tx, &txn, now); err != nil {
				return err
			}
			changed = true
			return setIntentStatus(tx, intent.PaymentIntentID, model.IntentFailed)
		}
		return nil
	})
	if err != nil {
		s.finishGatewayEvent(ctx, n, model.GatewayEventFailed, &schoolID, err.Error())
		return nil, err
	}
	s.finishGatewayEvent(ctx, n, model.GatewayEventProcessed, &schoolID, "")

	res.Status = WebhookProcessed
	res.TransactionID = &txn.PaymentTransactionID
	if txn.PaymentTransactionReceiptNo != nil {
		res.ReceiptNo = *txn.PaymentTransactionReceiptNo
	}
	if !changed {
		return res, nil
	}

	action := constants.AuditGatewayPaymentReversed
	if txn.PaymentTransactionStatus == model.TransactionConfirmed {
		action = constants.AuditGatewayPaymentConfirmed
	}
	s.Audit.Record(sysCtx, auditService.Entry{
		SchoolID: schoolID, Action: action,
		EntityType: "payment_transaction", EntityID: txn.PaymentTransactionID.String(),
		Snapshot: txn,
	})
	if txn.PaymentTransactionStatus == model.TransactionConfirmed {
		s.publishConfirmed(sysCtx, txn, n.Provider)
	}
	return res, nil
}

// claimGatewayEvent inserts the dedupe row. A replay of a processed event
// returns false; a replay of a failed one is reclaimed and retried.
func (s *Service) claimGatewayEvent(ctx context.Context, n gatewayNotice) (bool, error) {
	ev := model.GatewayEvent{
		GatewayEventID:         uuid.New(),
		GatewayEventProvider:   n.Provider,
		GatewayEventExternalID: n.ExternalID,
		GatewayEventType:       n.EventType,
		GatewayEventStatus:     model.GatewayEventReceived,
		GatewayEventPayload:    datatypes.JSON(n.Payload),
		GatewayEventReceivedAt: s.now(),
	}
	db := s.DB.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ev)
	if res.Error != nil {
		return false, apperr.FromDB(res.Error, "gateway event")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = db.Model(&model.GatewayEvent{}).
		Where("gateway_event_provider = ? AND gateway_event_external_id = ? AND gateway_event_type = ? AND gateway_event_status = ?",
			n.Provider, n.ExternalID, n.EventType, model.GatewayEventFailed).
		Updates(map[string]any{
			"gateway_event_status":  model.GatewayEventReceived,
			"gateway_event_payload": datatypes.JSON(n.Payload),
			"gateway_event_error":   nil,
		})
	if res.Error != nil {
		return false, apperr.FromDB(res.Error, "gateway event")
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) finishGatewayEvent(ctx context.Context, n gatewayNotice, status model.GatewayEventStatus, schoolID *uuid.UUID, errMsg string) {
	now := s.now()
	upd := map[string]any{
		"gateway_event_status":       status,
		"gateway_event_processed_at": now,
	}
	if schoolID != nil {
		upd["gateway_event_school_id"] = *schoolID
	}
	if errMsg != "" {
		upd["gateway_event_error"] = errMsg
	}
	err := s.DB.WithContext(ctx).Model(&model.GatewayEvent{}).
		Where("gateway_event_provider = ? AND gateway_event_external_id = ? AND gateway_event_type = ?",
			n.Provider, n.ExternalID, n.EventType).
		Updates(upd).Error
	if err != nil {
		log.Printf("[ERROR] mark gateway event %s/%s %s: %v", n.Provider, n.ExternalID, status, err)
	}
}

func (s *Service) resolveIntent(ctx context.Context, n gatewayNotice) (*model.PaymentIntent, error) {
	q := s.DB.WithContext(ctx).Where("payment_intent_provider = ?", n.Provider)
	if n.IntentID != nil {
		q = q.Where("payment_intent_id = ?", *n.IntentID)
	} else {
		q = q.Where("payment_intent_external_ref = ?", n.ExternalRef)
	}
	var it model.PaymentIntent
	if err := q.First(&it).Error; err != nil {
		return nil, apperr.FromDB(err, "payment intent")
	}
	return &it, nil
}

func setIntentStatus(tx *gorm.DB, intentID uuid.UUID, st model.IntentStatus) error {
	err := tx.Model(&model.PaymentIntent{}).
		Where("payment_intent_id = ?", intentID).
		Update("payment_intent_status", st).Error
	return apperr.FromDB(err, "payment intent")
}
