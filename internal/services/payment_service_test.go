package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/payments"
)

func newPaymentEnv(t *testing.T) (*reconcilerEnv, PaymentService) {
	t.Helper()
	env := newReconcilerEnv(t)
	svc, err := NewPaymentService(PaymentServiceDeps{
		Gateway:      env.gateway,
		Transactions: env.txns,
		Orders:       env.orders,
		Discounts:    newMemDiscountRepo(),
		Reconciler:   env.rec,
		CallbackURL:  "https://shop.example/checkout/complete",
		Clock:        fixedClock(orderNow),
		IDGenerator:  sequenceIDs("P"),
		Logger:       env.logs.log,
	})
	if err != nil {
		t.Fatalf("payment service: %v", err)
	}
	return env, svc
}

func TestInitializePaymentStoresPendingTransaction(t *testing.T) {
	env, svc := newPaymentEnv(t)
	checkout := sampleCheckout()
	checkout.DeliveryFee = 15

	init, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: checkout, Actor: customerActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(init.Reference, paymentReferencePrefix) {
		t.Fatalf("expected generated reference, got %q", init.Reference)
	}
	if init.Amount != 215 || init.Currency != "GHS" || init.AuthorizationURL == "" {
		t.Fatalf("unexpected initialization %+v", init)
	}

	if len(env.gateway.initialize) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(env.gateway.initialize))
	}
	req := env.gateway.initialize[0]
	if req.Amount != 21500 || req.Email != "ama@example.com" || req.CallbackURL != "https://shop.example/checkout/complete" {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	if _, ok := req.Metadata[checkoutMetadataKey]; !ok {
		t.Fatal("expected checkout snapshot in gateway metadata")
	}

	txn, err := env.txns.FindByReference(context.Background(), init.Reference)
	if err != nil {
		t.Fatalf("expected pending transaction: %v", err)
	}
	if txn.Status != domain.TransactionStatusPending || txn.IsLinked() || txn.Amount != 215 {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	snapshot, err := checkoutFromMetadata(txn.Metadata)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.UserID != "user-1" || snapshot.PaymentReference != init.Reference {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if env.orders.count() != 0 {
		t.Fatal("initialization must not create an order")
	}
}

func TestInitializePaymentValidation(t *testing.T) {
	_, svc := newPaymentEnv(t)

	noEmail := sampleCheckout()
	noEmail.Email = ""
	if _, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: noEmail}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	noItems := sampleCheckout()
	noItems.Items = nil
	if _, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: noItems, Actor: customerActor}); !errors.Is(err, ErrOrderMissingItems) {
		t.Fatalf("expected missing items, got %v", err)
	}
}

func TestInitializePaymentRejectsLinkedReference(t *testing.T) {
	env, svc := newPaymentEnv(t)
	checkout := sampleCheckout()
	checkout.PaymentReference = "TXN-USED"
	if _, err := env.svc.CreateOrder(context.Background(), CreateOrderCommand{Checkout: checkout, Actor: customerActor}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: sampleCheckout(), Actor: customerActor, Reference: "TXN-USED"})
	if !errors.Is(err, ErrOrderAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
}

func TestInitializePaymentGatewayFailure(t *testing.T) {
	env, svc := newPaymentEnv(t)
	env.gateway.initFn = func(payments.PaymentContext, payments.InitializeRequest) (payments.Checkout, error) {
		return payments.Checkout{}, payments.ErrGateway
	}
	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: sampleCheckout(), Actor: customerActor})
	if !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestVerifyPaymentCreatesOrderOnce(t *testing.T) {
	env, svc := newPaymentEnv(t)
	init, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: sampleCheckout(), Actor: customerActor})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.gateway.verifyFn = func(reference string) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{
			Provider:  "paystack",
			Reference: reference,
			Status:    payments.StatusSucceeded,
			Amount:    20000,
			Currency:  "GHS",
			PaidAt:    ptrTime(orderNow),
		}, nil
	}

	first, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{Reference: init.Reference, Actor: customerActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Order == nil || first.AlreadyLinked || first.Status != domain.PaymentStatusPaid {
		t.Fatalf("unexpected verification %+v", first)
	}
	if first.Order.UserID != "user-1" {
		t.Fatalf("expected order owned by the initiating user, got %q", first.Order.UserID)
	}

	second, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{Reference: init.Reference, Actor: customerActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.AlreadyLinked || second.Order == nil || second.Order.ID != first.Order.ID {
		t.Fatalf("expected the same order, got %+v", second)
	}
	if env.orders.count() != 1 {
		t.Fatalf("expected one order, got %d", env.orders.count())
	}

	if _, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{Reference: init.Reference, Actor: Actor{UserID: "intruder"}}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for another user, got %v", err)
	}
}

func TestVerifyPaymentFailedCharge(t *testing.T) {
	env, svc := newPaymentEnv(t)
	init, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{Checkout: sampleCheckout(), Actor: customerActor})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.gateway.verifyFn = func(reference string) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{Reference: reference, Status: payments.StatusFailed}, nil
	}

	result, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{Reference: init.Reference, Actor: customerActor})
	if !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("expected not successful, got %v", err)
	}
	if result.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	txn, _ := env.txns.FindByReference(context.Background(), init.Reference)
	if txn.Status != domain.TransactionStatusFailed {
		t.Fatalf("expected pending transaction to be failed, got %+v", txn)
	}
	if env.orders.count() != 0 {
		t.Fatal("failed charges must not create orders")
	}
}

func TestVerifyPaymentUnknownReference(t *testing.T) {
	_, svc := newPaymentEnv(t)
	if _, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{Reference: "TXN-NOPE"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
