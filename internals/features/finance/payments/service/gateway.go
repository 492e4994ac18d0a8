package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"schoolku_backend/internals/features/finance/payments/model"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
)

type CheckoutRequest struct {
	IntentID      uuid.UUID
	SchoolID      uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceNumber string
	Amount        decimal.Decimal
	Currency      string
	StudentName   string
	Email         *string
}

type CheckoutResult struct {
	// ExternalRef: Midtrans order id / Stripe PaymentIntent id
	ExternalRef string
	// RedirectURL: Snap redirect, or the Stripe client secret for the frontend
	RedirectURL string
}

// Gateway opens a hosted checkout for an intent.
type Gateway interface {
	Name() string
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
}

// amountChecker is implemented by gateways that charge in a coarser unit than
// the invoice currency. The intent must hold exactly what will be charged.
type amountChecker interface {
	CheckAmount(amount decimal.Decimal) error
}

/* =========================================================
   Midtrans Snap
========================================================= */

type MidtransGateway struct {
	client snap.Client
}

// NewMidtransGateway: useProduction=false → Sandbox.
func NewMidtransGateway(serverKey string, useProduction bool) *MidtransGateway {
	g := &MidtransGateway{}
	if useProduction {
		g.client.New(serverKey, midtrans.Production)
	} else {
		g.client.New(serverKey, midtrans.Sandbox)
	}
	return g
}

func (g *MidtransGateway) Name() string { return model.ProviderMidtrans }

// CheckAmount: Midtrans hanya menerima rupiah bulat.
func (g *MidtransGateway) CheckAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(0)) {
		return apperr.Validation("midtrans charges whole rupiah; amount must not have decimals")
	}
	return nil
}

func (g *MidtransGateway) Checkout(_ context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if err := g.CheckAmount(req.Amount); err != nil {
		return CheckoutResult{}, err
	}
	gross := req.Amount.IntPart()
	if gross <= 0 {
		return CheckoutResult{}, errors.New("invalid gross amount")
	}
	orderID := req.IntentID.String()

	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       req.InvoiceNumber,
			Price:    gross,
			Qty:      1,
			Name:     truncate("Invoice "+req.InvoiceNumber, 50),
			Category: "SCHOOL_FEE",
		}},
		CustomField1: req.SchoolID.String(),
		CustomField2: req.InvoiceID.String(),
	}
	if req.Email != nil || req.StudentName != "" {
		cd := &midtrans.CustomerDetails{FName: truncate(req.StudentName, 50)}
		if req.Email != nil {
			cd.Email = *req.Email
		}
		sr.CustomerDetail = cd
	}

	resp, merr := g.client.CreateTransaction(sr)
	if merr != nil {
		return CheckoutResult{}, fmt.Errorf("midtrans snap: %s", merr.GetMessage())
	}
	return CheckoutResult{ExternalRef: orderID, RedirectURL: resp.RedirectURL}, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

/* =========================================================
   Stripe PaymentIntents
========================================================= */

type StripeGateway struct {
	client *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{client: sc}
}

func (g *StripeGateway) Name() string { return model.ProviderStripe }

func (g *StripeGateway) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	minor := helper.ToMinorUnits(req.Amount, req.Currency)
	if minor <= 0 {
		return CheckoutResult{}, errors.New("invalid amount")
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(minor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String("Invoice " + req.InvoiceNumber),
	}
	params.Metadata = map[string]string{
		"school_id":  req.SchoolID.String(),
		"invoice_id": req.InvoiceID.String(),
		"intent_id":  req.IntentID.String(),
	}
	// retry aman: Stripe mengembalikan PaymentIntent yang sama
	params.IdempotencyKey = stripe.String(req.IntentID.String())
	params.Context = ctx

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return CheckoutResult{}, mapStripeError(err)
	}
	return CheckoutResult{ExternalRef: pi.ID, RedirectURL: pi.ClientSecret}, nil
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("stripe unavailable: %s", se.Msg)
		}
		return fmt.Errorf("stripe: %s (%s)", se.Msg, se.Code)
	}
	return fmt.Errorf("stripe: %w", err)
}
