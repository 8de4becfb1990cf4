package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/payments"
	"github.com/hogtech/orderflow/internal/repositories"
)

// checkoutMetadataKey is where the checkout snapshot lives in gateway and transaction metadata.
const checkoutMetadataKey = "checkout"

// PaymentGateway is the subset of payments.Manager used by services.
type PaymentGateway interface {
	InitializePayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.InitializeRequest) (payments.Checkout, error)
	VerifyPayment(ctx context.Context, paymentCtx payments.PaymentContext, reference string) (payments.PaymentDetails, error)
	Webhook(name string) (payments.WebhookProvider, error)
}

// WebhookReconcilerDeps bundles collaborators required to construct the reconciler.
type WebhookReconcilerDeps struct {
	Gateway      PaymentGateway
	Orders       OrderService
	OrderReader  repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Locker       WebhookLocker
	Archiver     WebhookArchiver
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type webhookReconciler struct {
	gateway      PaymentGateway
	orders       OrderService
	orderReader  repositories.OrderRepository
	transactions repositories.TransactionRepository
	locker       WebhookLocker
	archiver     WebhookArchiver
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

var _ WebhookReconciler = (*webhookReconciler)(nil)

// NewWebhookReconciler constructs the reconciler shared by webhooks and explicit verification.
func NewWebhookReconciler(deps WebhookReconcilerDeps) (*webhookReconciler, error) {
	if deps.Gateway == nil {
		return nil, errors.New("webhook reconciler: payment gateway is required")
	}
	if deps.Orders == nil || deps.OrderReader == nil {
		return nil, errors.New("webhook reconciler: order service and repository are required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("webhook reconciler: transaction repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &webhookReconciler{
		gateway:      deps.Gateway,
		orders:       deps.Orders,
		orderReader:  deps.OrderReader,
		transactions: deps.Transactions,
		locker:       deps.Locker,
		archiver:     deps.Archiver,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// HandleWebhook verifies and applies a gateway callback. Only signature, format and reference
// problems are returned as errors the caller should reject.
func (r *webhookReconciler) HandleWebhook(ctx context.Context, cmd WebhookCommand) (WebhookResult, error) {
	provider, err := r.gateway.Webhook(cmd.Provider)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrWebhookMalformed, err)
	}
	if err := provider.VerifyWebhookSignature(ctx, cmd.Body, cmd.Signature); err != nil {
		r.logger(ctx, "webhook.signature.rejected", map[string]any{"provider": cmd.Provider})
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrWebhookInvalidSignature, err)
	}
	event, err := provider.ParseWebhook(cmd.Body)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrWebhookMalformed, err)
	}

	reference := strings.TrimSpace(event.Payment.Reference)
	r.archive(ctx, cmd.Provider, reference, cmd.Body)

	if !event.IsChargeSuccess() {
		r.logger(ctx, "webhook.event.ignored", map[string]any{"event": event.Event, "reference": reference})
		return WebhookResult{Outcome: WebhookIgnored, Reference: reference, Message: "event ignored"}, nil
	}
	return r.reconcile(ctx, event.Payment)
}

// reconcile links a successful charge to exactly one order.
func (r *webhookReconciler) reconcile(ctx context.Context, payment payments.PaymentDetails) (WebhookResult, error) {
	reference := strings.TrimSpace(payment.Reference)
	if reference == "" {
		return WebhookResult{}, ErrWebhookMissingReference
	}

	if r.locker != nil {
		release, acquired, err := r.locker.Acquire(ctx, "payment-ref:"+reference)
		switch {
		case err != nil:
			r.logger(ctx, "webhook.lock.unavailable", map[string]any{"reference": reference, "error": err.Error()})
		case !acquired:
			return WebhookResult{Outcome: WebhookProcessing, Reference: reference, Message: "processing"}, nil
		default:
			defer release()
		}
	}

	txn, err := r.transactions.FindByReference(ctx, reference)
	var pending *Transaction
	switch {
	case err == nil:
		if txn.IsLinked() {
			return r.alreadyLinked(ctx, txn.OrderID, payment)
		}
		pending = &txn
	case !isNotFound(err):
		return WebhookResult{}, fmt.Errorf("%w: transaction lookup: %v", ErrOrderPersistence, err)
	}

	if order, err := r.orderReader.FindByPaymentReference(ctx, reference); err == nil {
		return r.alreadyLinked(ctx, order.ID, payment)
	} else if !isNotFound(err) {
		return WebhookResult{}, fmt.Errorf("%w: order lookup: %v", ErrOrderPersistence, err)
	}

	snapshot, err := checkoutFromMetadata(payment.Metadata)
	if err != nil && pending != nil {
		snapshot, err = checkoutFromMetadata(pending.Metadata)
	}
	if err != nil {
		r.logger(ctx, "webhook.checkout.missing", map[string]any{"reference": reference, "error": err.Error()})
		return WebhookResult{}, fmt.Errorf("%w: %s", ErrWebhookMissingCheckoutData, reference)
	}
	snapshot.PaymentReference = reference
	if snapshot.Email == "" {
		snapshot.Email = payment.CustomerEmail
	}

	paidAt := r.clock()
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	order, err := r.orders.CreateOrder(ctx, CreateOrderCommand{
		Checkout: snapshot,
		Actor:    SystemActor,
		Payment: &ConfirmedPayment{
			Provider: payment.Provider,
			Amount:   payments.FromMinorUnits(payment.Amount),
			Currency: payment.Currency,
			Channel:  payment.Channel,
			PaidAt:   paidAt,
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrOrderAlreadyProcessed):
		return WebhookResult{Outcome: WebhookAlreadyProcessed, Reference: reference, Message: "already processed"}, nil
	case errors.Is(err, ErrOrderPersistence), errors.Is(err, ErrCustomerLookup):
		return WebhookResult{}, err
	default:
		// The snapshot cannot become an order; retrying would fail the same way.
		r.logger(ctx, "webhook.order.rejected", map[string]any{
			"severity":  "ERROR",
			"reference": reference,
			"error":     err.Error(),
		})
		return WebhookResult{Outcome: WebhookIgnored, Reference: reference, Message: err.Error()}, nil
	}

	if payment.Amount > 0 && payments.ToMinorUnits(order.Total) != payment.Amount {
		r.logger(ctx, "webhook.amount.mismatch", map[string]any{
			"severity":    "WARNING",
			"reference":   reference,
			"order":       order.ID,
			"orderTotal":  order.Total,
			"amountMinor": payment.Amount,
		})
	}
	r.logger(ctx, "webhook.order.created", map[string]any{"reference": reference, "order": order.ID})
	return WebhookResult{Outcome: WebhookOrderCreated, Reference: reference, OrderID: order.ID, Message: "order created"}, nil
}

// alreadyLinked settles an order that exists for the reference. A still-pending payment is
// marked paid; anything else is a duplicate delivery.
func (r *webhookReconciler) alreadyLinked(ctx context.Context, orderID string, payment payments.PaymentDetails) (WebhookResult, error) {
	result := WebhookResult{Outcome: WebhookAlreadyProcessed, Reference: payment.Reference, OrderID: orderID, Message: "already processed"}

	order, err := r.orderReader.FindByID(ctx, orderID)
	if err != nil {
		r.logger(ctx, "webhook.order.lookup_failed", map[string]any{"order": orderID, "error": err.Error()})
		return result, nil
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		return result, nil
	}

	_, err = r.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{
		OrderID:       orderID,
		PaymentStatus: string(domain.PaymentStatusPaid),
		Actor:         SystemActor,
		Reference:     payment.Reference,
		PaidAt:        payment.PaidAt,
	})
	if err != nil {
		if errors.Is(err, ErrOrderPersistence) {
			return WebhookResult{}, err
		}
		r.logger(ctx, "webhook.payment.update_failed", map[string]any{"order": orderID, "error": err.Error()})
		return result, nil
	}
	result.Outcome = WebhookPaymentUpdated
	result.Message = "payment updated"
	return result, nil
}

func (r *webhookReconciler) archive(ctx context.Context, provider, reference string, body []byte) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.ArchiveWebhook(ctx, provider, reference, body); err != nil {
		r.logger(ctx, "webhook.archive.failed", map[string]any{"reference": reference, "error": err.Error()})
	}
}

// checkoutFromMetadata decodes the snapshot stored under the checkout key. Metadata arrives as
// decoded JSON, so the value is re-encoded and decoded into the typed snapshot.
func checkoutFromMetadata(metadata map[string]any) (CheckoutSnapshot, error) {
	raw, ok := metadata[checkoutMetadataKey]
	if !ok || raw == nil {
		return CheckoutSnapshot{}, errors.New("checkout metadata absent")
	}
	var encoded []byte
	switch v := raw.(type) {
	case string:
		encoded = []byte(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return CheckoutSnapshot{}, err
		}
		encoded = data
	}
	var snapshot CheckoutSnapshot
	if err := json.Unmarshal(encoded, &snapshot); err != nil {
		return CheckoutSnapshot{}, fmt.Errorf("decode checkout metadata: %w", err)
	}
	if len(snapshot.Items) == 0 {
		return CheckoutSnapshot{}, errors.New("checkout metadata has no items")
	}
	return snapshot, nil
}

// checkoutToMetadata is the inverse of checkoutFromMetadata.
func checkoutToMetadata(snapshot CheckoutSnapshot) (map[string]any, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
