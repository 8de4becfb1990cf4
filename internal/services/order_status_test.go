package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hogtech/orderflow/internal/domain"
)

var adminActor = Actor{UserID: "admin-1", IsAdmin: true}

func createPendingOrder(t *testing.T, env *orderEnv) Order {
	t.Helper()
	order, err := env.svc.CreateOrder(context.Background(), CreateOrderCommand{Checkout: sampleCheckout(), Actor: customerActor})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	env.events.events = nil
	return order
}

func TestUpdateStatus(t *testing.T) {
	env := newOrderEnv(t, nil)
	order := createPendingOrder(t, env)

	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "confirmed", Actor: customerActor}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for customers, got %v", err)
	}
	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "teleported", Actor: adminActor}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	updated, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "Shipped", Actor: adminActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", updated.Status)
	}
	if len(env.emails.updates) != 1 {
		t.Fatalf("expected status email, got %d", len(env.emails.updates))
	}
	if types := env.events.types(); len(types) != 1 || types[0] != orderEventStatusChanged {
		t.Fatalf("expected status changed event, got %v", types)
	}

	// Same status is a no-op without side effects.
	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "shipped", Actor: adminActor}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.emails.updates) != 1 {
		t.Fatal("no-op update must not notify")
	}

	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "delivered", Actor: adminActor}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "processing", Actor: adminActor}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected terminal state error, got %v", err)
	}
}

func TestUpdateStatusNotifiesWhenPersistenceFails(t *testing.T) {
	env := newOrderEnv(t, nil)
	order := createPendingOrder(t, env)
	env.orders.updateFn = func(context.Context, domain.Order) error {
		return &testRepoError{msg: "firestore down", unavailable: true}
	}

	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "shipped", Actor: adminActor}); err == nil {
		t.Fatal("expected persistence error")
	}
	if len(env.emails.updates) != 1 || env.emails.updates[0] != order.ID {
		t.Fatalf("expected status email despite failed write, got %v", env.emails.updates)
	}
	if !env.logs.has("order.status.persist_failed") {
		t.Fatalf("expected persist failure log, got %v", env.logs.events)
	}
	stored, _ := env.orders.FindByID(context.Background(), order.ID)
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("expected stored status unchanged, got %s", stored.Status)
	}

	// Rejected transitions never notify.
	env.orders.updateFn = nil
	if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "missing", Status: "shipped", Actor: adminActor}); err == nil {
		t.Fatal("expected not found")
	}
	if len(env.emails.updates) != 1 {
		t.Fatalf("unexpected extra notification %v", env.emails.updates)
	}
}

func TestUpdateStatusCancelFailsTransactions(t *testing.T) {
	env := newOrderEnv(t, nil)
	order := createPendingOrder(t, env)

	updated, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "cancelled", Actor: adminActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.CancelledAt == nil || updated.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("unexpected cancelled order %+v", updated)
	}
	txns, _ := env.txns.ListByOrder(context.Background(), order.ID)
	for _, txn := range txns {
		if txn.Status != domain.TransactionStatusFailed || txn.PaymentStatus != domain.PaymentStatusFailed {
			t.Fatalf("expected failed transaction, got %+v", txn)
		}
	}
	if len(env.emails.cancellations) != 1 {
		t.Fatal("expected cancellation email")
	}
	if types := env.events.types(); len(types) != 1 || types[0] != orderEventCancelled {
		t.Fatalf("expected cancelled event, got %v", types)
	}
}

func TestCancelOrder(t *testing.T) {
	t.Run("owner cancels pending order", func(t *testing.T) {
		env := newOrderEnv(t, nil)
		order := createPendingOrder(t, env)

		updated, err := env.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: order.ID, Actor: customerActor, Reason: "changed my mind"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != domain.OrderStatusCancelled || updated.PaymentStatus != domain.PaymentStatusFailed {
			t.Fatalf("unexpected order %s/%s", updated.Status, updated.PaymentStatus)
		}
		txns, _ := env.txns.ListByOrder(context.Background(), order.ID)
		if len(txns) != 1 || txns[0].Status != domain.TransactionStatusFailed {
			t.Fatalf("expected failed transaction, got %+v", txns)
		}
		if env.events.events[0].Metadata["reason"] != "changed my mind" {
			t.Fatalf("expected reason on event, got %+v", env.events.events[0])
		}
	})

	t.Run("other customer is forbidden", func(t *testing.T) {
		env := newOrderEnv(t, nil)
		order := createPendingOrder(t, env)
		_, err := env.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: order.ID, Actor: Actor{UserID: "intruder"}})
		if !errors.Is(err, ErrOrderForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("owner cannot cancel once confirmed", func(t *testing.T) {
		env := newOrderEnv(t, nil)
		order := createPendingOrder(t, env)
		if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "confirmed", Actor: adminActor}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := env.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: order.ID, Actor: customerActor})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("admin cancels confirmed order keeping payment status", func(t *testing.T) {
		env := newOrderEnv(t, nil)
		order := createPendingOrder(t, env)
		if _, err := env.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "confirmed", Actor: adminActor}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		updated, err := env.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: order.ID, Actor: adminActor})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != domain.OrderStatusCancelled || updated.PaymentStatus != domain.PaymentStatusPending {
			t.Fatalf("unexpected order %s/%s", updated.Status, updated.PaymentStatus)
		}
		if _, err := env.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: order.ID, Actor: adminActor}); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected terminal error on second cancel, got %v", err)
		}
	})
}

func TestUpdatePaymentStatusTransitions(t *testing.T) {
	tests := []struct {
		from domain.PaymentStatus
		to   domain.PaymentStatus
		ok   bool
	}{
		{domain.PaymentStatusPending, domain.PaymentStatusPaid, true},
		{domain.PaymentStatusPending, domain.PaymentStatusFailed, true},
		{domain.PaymentStatusPaid, domain.PaymentStatusRefunded, true},
		{domain.PaymentStatusPaid, domain.PaymentStatusPending, false},
		{domain.PaymentStatusFailed, domain.PaymentStatusPaid, false},
		{domain.PaymentStatusRefunded, domain.PaymentStatusPaid, false},
		{domain.PaymentStatusCancelled, domain.PaymentStatusPending, false},
	}
	for _, tc := range tests {
		if got := canTransitionPayment(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: want %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestUpdatePaymentStatusMarksPaid(t *testing.T) {
	env := newOrderEnv(t, nil)
	order := createPendingOrder(t, env)

	if _, err := env.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{OrderID: order.ID, PaymentStatus: "paid", Actor: customerActor}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	updated, err := env.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{OrderID: order.ID, PaymentStatus: "paid", Actor: adminActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if len(updated.Transactions) != 1 {
		t.Fatalf("expected paid transaction, got %+v", updated.Transactions)
	}
	txn := updated.Transactions[0]
	if txn.Status != domain.TransactionStatusSuccess || txn.PaidAt == nil || txn.OrderID != order.ID {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	if types := env.events.types(); len(types) != 1 || types[0] != orderEventPaymentStatusChanged {
		t.Fatalf("expected payment status event, got %v", types)
	}

	if _, err := env.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{OrderID: order.ID, PaymentStatus: "pending", Actor: adminActor}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	refunded, err := env.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{OrderID: order.ID, PaymentStatus: "refunded", Actor: adminActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refunded.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.PaymentStatus)
	}
	txns, _ := env.txns.ListByOrder(context.Background(), order.ID)
	for _, txn := range txns {
		if txn.PaymentStatus != domain.PaymentStatusRefunded {
			t.Fatalf("expected refunded transaction, got %+v", txn)
		}
	}
}

func TestUpdatePaymentStatusCreatesManualTransaction(t *testing.T) {
	env := newOrderEnv(t, nil)
	order := createPendingOrder(t, env)

	// Drop the transaction linked at creation to simulate an offline payment.
	env.txns.txns = map[string]domain.Transaction{}

	updated, err := env.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{OrderID: order.ID, PaymentStatus: "paid", Actor: adminActor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := manualReferencePrefix + order.OrderNumber
	if updated.Transactions[0].Reference != want {
		t.Fatalf("expected reference %s, got %s", want, updated.Transactions[0].Reference)
	}
	if _, err := env.txns.FindByReference(context.Background(), want); err != nil {
		t.Fatalf("expected manual transaction stored: %v", err)
	}
}
