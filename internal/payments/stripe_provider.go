package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ProviderStripe is the registration key for the Stripe gateway.
const ProviderStripe = "stripe"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// stripeIntentFinder resolves the payment intent carrying the given reference in its metadata.
type stripeIntentFinder func(ctx context.Context, account, reference string) (*stripe.PaymentIntent, error)

type stripeClients struct {
	sessions stripeSessionAPI
	find     stripeIntentFinder
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey     string
	AccountID  string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     StripeLogger
	Clock      func() time.Time
	Clients    *stripeClients
}

// StripeProvider implements the Provider interface using Stripe Checkout.
type StripeProvider struct {
	api        stripeClients
	account    string
	successURL string
	cancelURL  string
	clock      func() time.Time
	logger     StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			find: func(ctx context.Context, account, reference string) (*stripe.PaymentIntent, error) {
				params := &stripe.PaymentIntentSearchParams{}
				params.Query = fmt.Sprintf("metadata['reference']:'%s'", strings.ReplaceAll(reference, "'", "\\'"))
				params.Context = ctx
				if account != "" {
					params.SetStripeAccount(account)
				}
				iter := sc.PaymentIntents.Search(params)
				if iter.Next() {
					return iter.PaymentIntent(), nil
				}
				if err := iter.Err(); err != nil {
					return nil, err
				}
				return nil, nil
			},
		}
	}
	if clients.sessions == nil || clients.find == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:        clients,
		account:    strings.TrimSpace(cfg.AccountID),
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// InitializePayment creates a Stripe Checkout session whose payment intent carries the reference.
func (p *StripeProvider) InitializePayment(ctx context.Context, req InitializeRequest) (Checkout, error) {
	if p == nil {
		return Checkout{}, errors.New("stripe: provider is nil")
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return Checkout{}, errors.New("stripe: reference is required")
	}
	if req.Amount <= 0 {
		return Checkout{}, errors.New("stripe: amount must be positive")
	}

	successURL := defaultString(req.CallbackURL, p.successURL)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		ClientReferenceID: stripe.String(reference),
	}
	if cancel := defaultString(p.cancelURL, successURL); cancel != "" {
		params.CancelURL = stripe.String(cancel)
	}
	params.Context = ctx
	params.SetIdempotencyKey("init-" + reference)
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(req.Currency)),
			UnitAmount: stripe.Int64(req.Amount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String("Order " + reference),
			},
		},
	}}

	// Stripe metadata values are flat strings, so only scalar hints are forwarded. The checkout
	// snapshot stays on the pending transaction.
	metadata := map[string]string{"reference": reference}
	for k, v := range req.Metadata {
		if s, ok := v.(string); ok && k != "reference" {
			metadata[k] = s
		}
	}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: stripe: create checkout session: %v", ErrGateway, err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"reference": reference,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return Checkout{
		Provider:         ProviderStripe,
		Reference:        reference,
		AuthorizationURL: session.URL,
		AccessCode:       session.ID,
		Raw: map[string]any{
			"session_id": session.ID,
			"expires_at": expiresAt,
		},
	}, nil
}

// VerifyPayment finds the payment intent tagged with reference.
func (p *StripeProvider) VerifyPayment(ctx context.Context, reference string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return PaymentDetails{}, errors.New("stripe: reference is required")
	}
	intent, err := p.api.find(ctx, p.account, reference)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: stripe: search payment intent: %v", ErrGateway, err)
	}
	if intent == nil {
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
	}
	details := stripePaymentDetails(intent)
	details.Reference = reference
	return details, nil
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	var paidAt *time.Time
	email := ""
	if charge := intent.LatestCharge; charge != nil {
		if charge.Paid || charge.Captured {
			t := time.Unix(charge.Created, 0).UTC()
			paidAt = &t
		}
		if charge.AmountRefunded >= charge.Amount && charge.Amount > 0 {
			status = StatusRefunded
		}
		if charge.BillingDetails != nil {
			email = charge.BillingDetails.Email
		}
	}
	if email == "" {
		email = intent.ReceiptEmail
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	metadata := make(map[string]any, len(intent.Metadata))
	for k, v := range intent.Metadata {
		metadata[k] = v
	}

	return PaymentDetails{
		Provider:      ProviderStripe,
		Reference:     intent.Metadata["reference"],
		Status:        status,
		Amount:        intent.Amount,
		Currency:      currency,
		Channel:       "card",
		CustomerEmail: email,
		PaidAt:        paidAt,
		Metadata:      metadata,
		Raw: map[string]any{
			"payment_intent": intent.ID,
			"status":         string(intent.Status),
		},
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
