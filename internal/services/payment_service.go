package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/payments"
	"github.com/hogtech/orderflow/internal/repositories"
)

const paymentReferencePrefix = "TXN-"

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Gateway         PaymentGateway
	Transactions    repositories.TransactionRepository
	Orders          repositories.OrderRepository
	Discounts       repositories.DiscountRepository
	Settings        SettingsProvider
	Reconciler      *webhookReconciler
	DiscountPolicy  DiscountPolicy
	TotalTolerance  float64
	DefaultCurrency string
	CallbackURL     string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	gateway      PaymentGateway
	transactions repositories.TransactionRepository
	orders       repositories.OrderRepository
	reconciler   *webhookReconciler
	pricer       checkoutPricer
	callbackURL  string
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires the gateway, pending transaction store and reconciler.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("payment service: payment gateway is required")
	}
	if deps.Transactions == nil || deps.Orders == nil {
		return nil, errors.New("payment service: transaction and order repositories are required")
	}
	if deps.Reconciler == nil {
		return nil, errors.New("payment service: reconciler is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	policy := deps.DiscountPolicy
	if policy == "" {
		policy = DiscountPolicyLenient
	}
	return &paymentService{
		gateway:      deps.Gateway,
		transactions: deps.Transactions,
		orders:       deps.Orders,
		reconciler:   deps.Reconciler,
		pricer: checkoutPricer{
			discounts:       deps.Discounts,
			settings:        deps.Settings,
			policy:          policy,
			tolerance:       deps.TotalTolerance,
			defaultCurrency: deps.DefaultCurrency,
			logger:          logger,
		},
		callbackURL: strings.TrimSpace(deps.CallbackURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// InitializePayment prices the checkout, stores it on a pending transaction and asks the gateway
// for a hosted checkout. The order itself is created later by reconciliation.
func (s *paymentService) InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentInitialization, error) {
	checkout := cmd.Checkout
	if len(checkout.Items) == 0 {
		return PaymentInitialization{}, ErrOrderMissingItems
	}
	if checkout.DeliveryAddress == nil || toShippingAddress(*checkout.DeliveryAddress).IsZero() {
		return PaymentInitialization{}, ErrOrderMissingAddress
	}
	email := strings.ToLower(firstNonEmpty(cmd.Email, checkout.Email, checkout.DeliveryAddress.Email, cmd.Actor.Email))
	if email == "" {
		return PaymentInitialization{}, fmt.Errorf("%w: email is required", ErrPaymentInvalidInput)
	}

	now := s.clock()
	priced, err := s.pricer.price(ctx, checkout, now)
	if err != nil {
		return PaymentInitialization{}, err
	}

	reference := firstNonEmpty(cmd.Reference, checkout.PaymentReference)
	if reference == "" {
		reference = paymentReferencePrefix + s.newID()
	}
	checkout.PaymentReference = reference
	checkout.Email = email
	if checkout.UserID == "" && !cmd.Actor.System() {
		checkout.UserID = cmd.Actor.UserID
	}
	checkout.Currency = priced.Currency

	snapshot, err := checkoutToMetadata(checkout)
	if err != nil {
		return PaymentInitialization{}, fmt.Errorf("%w: encode checkout: %v", ErrPaymentInvalidInput, err)
	}

	txn := Transaction{
		ID:              transactionIDPrefix + s.newID(),
		Reference:       reference,
		UserID:          checkout.UserID,
		PaymentMethod:   strings.TrimSpace(checkout.PaymentMethod),
		PaymentProvider: strings.ToLower(strings.TrimSpace(cmd.Provider)),
		Amount:          priced.Totals.Total,
		Currency:        priced.Currency,
		Status:          domain.TransactionStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		CustomerEmail:   email,
		Metadata:        map[string]any{checkoutMetadataKey: snapshot},
		InitiatedAt:     now,
		UpdatedAt:       now,
	}
	if err := s.storePending(ctx, txn); err != nil {
		return PaymentInitialization{}, err
	}

	callback := firstNonEmpty(cmd.CallbackURL, s.callbackURL)
	result, err := s.gateway.InitializePayment(ctx, payments.PaymentContext{
		PreferredProvider: cmd.Provider,
		Currency:          priced.Currency,
	}, payments.InitializeRequest{
		Reference:   reference,
		Email:       email,
		Amount:      payments.ToMinorUnits(priced.Totals.Total),
		Currency:    priced.Currency,
		CallbackURL: callback,
		Metadata: map[string]any{
			checkoutMetadataKey: snapshot,
			"reference":         reference,
		},
	})
	if err != nil {
		s.logger(ctx, "payment.initialize.failed", map[string]any{"reference": reference, "error": err.Error()})
		return PaymentInitialization{}, mapGatewayError(err)
	}

	s.logger(ctx, "payment.initialized", map[string]any{
		"reference": reference,
		"provider":  result.Provider,
		"amount":    priced.Totals.Total,
	})
	return PaymentInitialization{
		Provider:         result.Provider,
		Reference:        reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Amount:           priced.Totals.Total,
		Currency:         priced.Currency,
	}, nil
}

// storePending creates the pending transaction, refreshing it when the client retries with the
// same reference before paying.
func (s *paymentService) storePending(ctx context.Context, txn Transaction) error {
	err := s.transactions.Insert(ctx, txn)
	if err == nil {
		return nil
	}
	if !isConflict(err) {
		return mapRepositoryError(err, nil)
	}
	existing, findErr := s.transactions.FindByReference(ctx, txn.Reference)
	if findErr != nil {
		return mapRepositoryError(findErr, nil)
	}
	if existing.IsLinked() || existing.Status != domain.TransactionStatusPending {
		return ErrOrderAlreadyProcessed
	}
	txn.ID = existing.ID
	txn.InitiatedAt = existing.InitiatedAt
	if err := s.transactions.Update(ctx, txn); err != nil {
		return mapRepositoryError(err, nil)
	}
	return nil
}

// VerifyPayment asks the gateway about a reference. A successful charge goes through the same
// reconciliation as the webhook, so whichever arrives first creates the order.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerification, error) {
	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		return PaymentVerification{}, fmt.Errorf("%w: reference is required", ErrPaymentInvalidInput)
	}

	details, err := s.gateway.VerifyPayment(ctx, payments.PaymentContext{PreferredProvider: cmd.Provider}, reference)
	if err != nil {
		return PaymentVerification{}, mapGatewayError(err)
	}
	if details.Reference == "" {
		details.Reference = reference
	}

	if !details.Succeeded() {
		status := domain.PaymentStatusPending
		if details.Status == payments.StatusFailed {
			status = domain.PaymentStatusFailed
			s.failPending(ctx, reference)
		}
		return PaymentVerification{Reference: reference, Status: status}, fmt.Errorf("%w: %s", ErrPaymentNotSuccessful, details.Status)
	}

	result, err := s.reconciler.reconcile(ctx, details)
	if err != nil {
		return PaymentVerification{}, err
	}

	verification := PaymentVerification{
		Reference:     reference,
		Status:        domain.PaymentStatusPaid,
		AlreadyLinked: result.Outcome == WebhookAlreadyProcessed || result.Outcome == WebhookPaymentUpdated,
	}
	if result.OrderID == "" {
		if order, err := s.orders.FindByPaymentReference(ctx, reference); err == nil {
			result.OrderID = order.ID
		}
	}
	if result.OrderID != "" {
		order, err := s.orders.FindByID(ctx, result.OrderID)
		if err == nil {
			if !cmd.Actor.IsAdmin && !cmd.Actor.System() && cmd.Actor.UserID != "" && !order.IsOwnedBy(cmd.Actor.UserID) {
				return PaymentVerification{}, ErrOrderForbidden
			}
			verification.Order = &order
		} else {
			s.logger(ctx, "payment.verify.order_lookup_failed", map[string]any{"order": result.OrderID, "error": err.Error()})
		}
	}
	return verification, nil
}

func (s *paymentService) failPending(ctx context.Context, reference string) {
	txn, err := s.transactions.FindByReference(ctx, reference)
	if err != nil || txn.IsLinked() || txn.Status != domain.TransactionStatusPending {
		return
	}
	txn.Status = domain.TransactionStatusFailed
	txn.PaymentStatus = domain.PaymentStatusFailed
	txn.UpdatedAt = s.clock()
	if err := s.transactions.Update(ctx, txn); err != nil {
		s.logger(ctx, "payment.verify.fail_pending", map[string]any{"reference": reference, "error": err.Error()})
	}
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, payments.ErrPaymentNotFound):
		return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
	case errors.Is(err, payments.ErrUnsupportedProvider):
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
}
