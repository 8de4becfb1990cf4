package services

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/hogtech/orderflow/internal/domain"
)

// UpdateStatus lets an admin move an order between fulfilment states. Cancelling through this
// path fails every transaction of the order.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Actor.IsAdmin {
		return Order{}, ErrOrderForbidden
	}
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var (
		updated   Order
		attempted *Order
		previous  domain.OrderStatus
		noop      bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		attempted = nil
		order, err := s.loadOrder(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if order.Status == target {
			updated, noop = order, true
			return nil
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is terminal", ErrOrderInvalidState, order.Status)
		}

		var txns []Transaction
		if target == domain.OrderStatusCancelled {
			txns, err = s.transactions.ListByOrder(txCtx, order.ID)
			if err != nil {
				return mapRepositoryError(err, nil)
			}
		}

		now := s.now()
		order.Status = target
		order.UpdatedAt = now
		if target == domain.OrderStatusCancelled {
			order.CancelledAt = &now
			if order.PaymentStatus != domain.PaymentStatusRefunded {
				order.PaymentStatus = domain.PaymentStatusFailed
			}
		}
		transition := order
		attempted = &transition
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		for _, txn := range txns {
			if err := s.failTransaction(txCtx, txn); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		// A validated transition still notifies when the write fails.
		if attempted != nil {
			s.logger(ctx, "order.status.persist_failed", map[string]any{
				"order": attempted.ID,
				"to":    string(attempted.Status),
				"error": err.Error(),
			})
			s.notifyStatusChange(ctx, *attempted, previous, cmd.Actor, "")
		}
		return Order{}, err
	}
	if noop {
		return updated, nil
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"order": updated.ID,
		"from":  string(previous),
		"to":    string(updated.Status),
		"actor": cmd.Actor.UserID,
	})
	s.notifyStatusChange(ctx, updated, previous, cmd.Actor, "")
	return updated, nil
}

// UpdatePaymentStatus lets an admin or the payment reconciler change the payment state. Marking
// an order paid creates or completes its transaction.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	if !cmd.Actor.IsAdmin {
		return Order{}, ErrOrderForbidden
	}
	target, ok := domain.ParsePaymentStatus(cmd.PaymentStatus)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.PaymentStatus)
	}

	var (
		updated  Order
		previous domain.PaymentStatus
		noop     bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		previous = order.PaymentStatus
		if previous == target {
			updated, noop = order, true
			return nil
		}
		if !canTransitionPayment(previous, target) {
			return fmt.Errorf("%w: payment %s -> %s", ErrOrderInvalidState, previous, target)
		}

		txns, err := s.transactions.ListByOrder(txCtx, order.ID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}

		now := s.now()
		var (
			paidTxn    *Transaction
			paidExists bool
		)
		if target == domain.PaymentStatusPaid {
			reference := firstNonEmpty(cmd.Reference, order.PaymentReference())
			for i := range txns {
				if reference == "" || txns[i].Reference == reference {
					paidTxn, paidExists = &txns[i], true
					break
				}
			}
			if paidTxn == nil && reference != "" {
				found, err := s.transactions.FindByReference(txCtx, reference)
				switch {
				case err == nil:
					if found.IsLinked() && found.OrderID != order.ID {
						return fmt.Errorf("%w: reference %s belongs to order %s", ErrOrderConflict, reference, found.OrderID)
					}
					paidTxn, paidExists = &found, true
				case !isNotFound(err):
					return mapRepositoryError(err, nil)
				}
			}
			if paidTxn == nil {
				if reference == "" {
					reference = manualReferencePrefix + order.OrderNumber
				}
				paidTxn = &Transaction{
					ID:            transactionIDPrefix + s.newID(),
					Reference:     reference,
					UserID:        order.UserID,
					PaymentMethod: order.PaymentMethod,
					CustomerEmail: order.ShippingAddress.Email,
					InitiatedAt:   now,
				}
			}
			paidAt := now
			if cmd.PaidAt != nil {
				paidAt = cmd.PaidAt.UTC()
			}
			paidTxn.OrderID = order.ID
			paidTxn.Amount = order.Total
			paidTxn.Currency = order.Currency
			paidTxn.Status = domain.TransactionStatusSuccess
			paidTxn.PaymentStatus = domain.PaymentStatusPaid
			paidTxn.PaidAt = &paidAt
			paidTxn.UpdatedAt = now
		}

		order.PaymentStatus = target
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}

		if paidTxn != nil {
			if paidExists {
				if err := s.transactions.Update(txCtx, *paidTxn); err != nil {
					return mapRepositoryError(err, nil)
				}
			} else if err := s.transactions.Insert(txCtx, *paidTxn); err != nil {
				return mapRepositoryError(err, nil)
			}
			order.Transactions = []Transaction{*paidTxn}
		} else {
			for _, txn := range txns {
				txn.PaymentStatus = target
				txn.Status = domain.TransactionStatusFor(target)
				txn.UpdatedAt = now
				if err := s.transactions.Update(txCtx, txn); err != nil {
					return mapRepositoryError(err, nil)
				}
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if noop {
		return updated, nil
	}

	s.logger(ctx, "order.payment_status.updated", map[string]any{
		"order": updated.ID,
		"from":  string(previous),
		"to":    string(updated.PaymentStatus),
		"actor": cmd.Actor.UserID,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:                  orderEventPaymentStatusChanged,
		OrderID:               updated.ID,
		OrderNumber:           updated.OrderNumber,
		CurrentStatus:         string(updated.Status),
		PreviousPaymentStatus: string(previous),
		CurrentPaymentStatus:  string(updated.PaymentStatus),
		ActorID:               cmd.Actor.UserID,
		OccurredAt:            updated.UpdatedAt,
	})
	return updated, nil
}

// CancelOrder cancels on behalf of the owner (pending orders only) or an admin. Owner
// cancellation fails the payment so a late charge cannot be reconciled against the order.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	var (
		updated  Order
		previous domain.OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		owner := order.IsOwnedBy(cmd.Actor.UserID)
		if !owner && !cmd.Actor.IsAdmin {
			return ErrOrderForbidden
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.Status)
		}
		if !cmd.Actor.IsAdmin && order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled", ErrOrderInvalidState)
		}

		var txns []Transaction
		if owner {
			txns, err = s.transactions.ListByOrder(txCtx, order.ID)
			if err != nil {
				return mapRepositoryError(err, nil)
			}
		}

		now := s.now()
		previous = order.Status
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		if owner {
			order.PaymentStatus = domain.PaymentStatusFailed
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		for _, txn := range txns {
			if err := s.failTransaction(txCtx, txn); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order": updated.ID,
		"actor": cmd.Actor.UserID,
		"admin": cmd.Actor.IsAdmin,
	})
	s.notifyStatusChange(ctx, updated, previous, cmd.Actor, strings.TrimSpace(cmd.Reason))
	return updated, nil
}

func (s *orderService) failTransaction(ctx context.Context, txn Transaction) error {
	if txn.PaymentStatus == domain.PaymentStatusFailed && txn.Status == domain.TransactionStatusFailed {
		return nil
	}
	txn.PaymentStatus = domain.PaymentStatusFailed
	txn.Status = domain.TransactionStatusFailed
	txn.UpdatedAt = s.now()
	if err := s.transactions.Update(ctx, txn); err != nil {
		return mapRepositoryError(err, nil)
	}
	return nil
}

func (s *orderService) notifyStatusChange(ctx context.Context, order Order, previous OrderStatus, actor Actor, reason string) {
	eventType := orderEventStatusChanged
	if s.emails != nil {
		var result NotificationResult
		if order.Status == domain.OrderStatusCancelled {
			result = s.emails.SendOrderCancellation(ctx, order, reason)
		} else {
			result = s.emails.SendOrderStatusUpdate(ctx, order, previous)
		}
		s.logNotification(ctx, "status_update", order.ID, result)
	}
	if order.Status == domain.OrderStatusCancelled {
		eventType = orderEventCancelled
	}
	event := OrderEvent{
		Type:                 eventType,
		OrderID:              order.ID,
		OrderNumber:          order.OrderNumber,
		PreviousStatus:       string(previous),
		CurrentStatus:        string(order.Status),
		CurrentPaymentStatus: string(order.PaymentStatus),
		ActorID:              actor.UserID,
		OccurredAt:           order.UpdatedAt,
	}
	if reason != "" {
		event.Metadata = map[string]any{"reason": reason}
	}
	s.publishEvent(ctx, event)
}

// canTransitionPayment encodes the payment state machine: pending moves anywhere, paid can only
// be refunded, and failed, cancelled and refunded are final.
func canTransitionPayment(from, to domain.PaymentStatus) bool {
	switch from {
	case domain.PaymentStatusPending:
		return true
	case domain.PaymentStatusPaid:
		return to == domain.PaymentStatusRefunded
	default:
		return false
	}
}
