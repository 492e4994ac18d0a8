package service

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	"schoolku_backend/internals/features/finance/payments/dto"
	"schoolku_backend/internals/features/finance/payments/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/middlewares/guard"
)

// MinFirstAmount is the invoice override, else requiredSubtotal × percent / 100
// rounded for display. The check itself uses BelowMinFirst.
func MinFirstAmount(inv invModel.Invoice, percent decimal.Decimal) decimal.Decimal {
	if inv.InvoiceMinFirstPayment != nil {
		return *inv.InvoiceMinFirstPayment
	}
	return helper.PercentOf(inv.InvoiceRequiredSubtotal, percent)
}

// BelowMinFirst reports whether total stays under the minimum first payment,
// comparing against the exact (unrounded) percentage threshold.
func BelowMinFirst(inv invModel.Invoice, percent, total decimal.Decimal) bool {
	if inv.InvoiceMinFirstPayment != nil {
		return total.LessThan(*inv.InvoiceMinFirstPayment)
	}
	return helper.BelowPercentOf(total, inv.InvoiceRequiredSubtotal, percent)
}

// checkPayable runs the rules shared by intents and manual proofs.
func (s *Service) checkPayable(db *gorm.DB, inv *invModel.Invoice, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if inv.InvoiceStatus == invModel.InvoiceStatusVoid {
		return apperr.Conflict("invoice is void")
	}
	if inv.InvoiceStatus == invModel.InvoiceStatusPaid {
		return apperr.Conflict("invoice is already paid")
	}

	pol, err := s.Fees.GetBillingPolicy(db, inv.InvoiceSchoolID)
	if err != nil {
		return err
	}
	percent := pol.BillingPolicyMinFirstPaymentPercent
	if BelowMinFirst(*inv, percent, inv.InvoiceAmountPaid.Add(amount)) {
		minFirst := MinFirstAmount(*inv, percent)
		return apperr.MinFirstPayment(
			"first payment must be at least "+inv.InvoiceCurrency+" "+minFirst.StringFixed(2),
			map[string]any{
				"min_first_amount": minFirst,
				"amount_paid":      inv.InvoiceAmountPaid,
				"proposed_amount":  amount,
			},
		)
	}
	return nil
}

// CreatePaymentIntent validates the minimum-first-payment rule and records the
// attempt. Gateway checkout runs after the intent exists; a gateway failure
// leaves it INITIATED.
func (s *Service) CreatePaymentIntent(ctx context.Context, schoolID uuid.UUID, req dto.CreatePaymentIntentRequest) (*dto.IntentResponse, error) {
	if err := guard.Enforce(ctx, guard.OpCreatePaymentIntent, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	amount := req.Amount.Round(2)

	var gw Gateway
	if req.Provider != model.ProviderManual {
		var ok bool
		if gw, ok = s.Gateways[req.Provider]; !ok {
			return nil, apperr.Validation("payment provider " + req.Provider + " is not enabled")
		}
		if ac, ok := gw.(amountChecker); ok {
			if err := ac.CheckAmount(amount); err != nil {
				return nil, err
			}
		}
	}

	db := s.DB.WithContext(ctx)
	inv, err := loadInvoice(db, schoolID, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPayable(db, inv, amount); err != nil {
		return nil, err
	}

	intent := model.PaymentIntent{
		PaymentIntentID:          uuid.New(),
		PaymentIntentSchoolID:    schoolID,
		PaymentIntentInvoiceID:   inv.InvoiceID,
		PaymentIntentPayerUserID: guard.FromContext(ctx).ActorID(),
		PaymentIntentProvider:    req.Provider,
		PaymentIntentAmount:      amount,
		PaymentIntentCurrency:    inv.InvoiceCurrency,
		PaymentIntentStatus:      model.IntentInitiated,
	}
	if err := db.Create(&intent).Error; err != nil {
		return nil, apperr.FromDB(err, "payment intent")
	}
	out := &dto.IntentResponse{}

	if gw != nil {
		res, err := gw.Checkout(ctx, CheckoutRequest{
			IntentID:      intent.PaymentIntentID,
			SchoolID:      schoolID,
			InvoiceID:     inv.InvoiceID,
			InvoiceNumber: inv.InvoiceNumber,
			Amount:        amount,
			Currency:      inv.InvoiceCurrency,
			StudentName:   inv.InvoiceStudentName,
			Email:         inv.InvoiceBillToEmail,
		})
		if err != nil {
			log.Printf("[ERROR] %s checkout intent=%s: %v", req.Provider, intent.PaymentIntentID, err)
			out.GatewayError = err.Error()
		} else {
			intent.PaymentIntentStatus = model.IntentRedirected
			intent.PaymentIntentExternalRef = &res.ExternalRef
			if res.RedirectURL != "" {
				intent.PaymentIntentCheckoutURL = &res.RedirectURL
				out.CheckoutURL = res.RedirectURL
			}
			if err := db.Model(&intent).Select(
				"payment_intent_status", "payment_intent_external_ref", "payment_intent_checkout_url", "payment_intent_updated_at",
			).Updates(&intent).Error; err != nil {
				return nil, apperr.FromDB(err, "payment intent")
			}
		}
	}
	out.Intent = intent

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditPaymentIntentCreated,
		EntityType: "payment_intent", EntityID: intent.PaymentIntentID.String(), Snapshot: intent,
	})
	return out, nil
}
