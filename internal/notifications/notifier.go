// Package notifications turns order lifecycle moments into queued notification jobs. Rendering
// and delivery happen in a separate worker that consumes the notifications topic.
package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hogtech/orderflow/internal/platform/jobs"
	"github.com/hogtech/orderflow/internal/services"
)

const (
	KindOrderConfirmation = "order_confirmation"
	KindOrderStatusUpdate = "order_status_update"
	KindOrderCancellation = "order_cancellation"
	KindAdminNewOrder     = "admin_new_order"

	channelEmail = "email"
)

// JobPublisher enqueues notification jobs.
type JobPublisher interface {
	PublishNotification(ctx context.Context, job jobs.NotificationJob) (string, error)
}

// Notifier implements services.EmailNotifier and services.AdminNotifier.
type Notifier struct {
	publisher JobPublisher
	now       func() time.Time
	logger    *zap.Logger
}

var (
	_ services.EmailNotifier = (*Notifier)(nil)
	_ services.AdminNotifier = (*Notifier)(nil)
)

// Option customises the notifier.
type Option func(*Notifier)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New constructs a notifier over publisher.
func New(publisher JobPublisher, opts ...Option) (*Notifier, error) {
	if publisher == nil {
		return nil, errors.New("notifications: publisher is required")
	}
	n := &Notifier{publisher: publisher, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n, nil
}

func (n *Notifier) SendOrderConfirmation(ctx context.Context, order services.Order) services.NotificationResult {
	return n.enqueue(ctx, KindOrderConfirmation, customerEmail(order), order, map[string]any{
		"total":    order.Total,
		"currency": order.Currency,
		"items":    itemSummaries(order),
	})
}

func (n *Notifier) SendOrderStatusUpdate(ctx context.Context, order services.Order, previous services.OrderStatus) services.NotificationResult {
	return n.enqueue(ctx, KindOrderStatusUpdate, customerEmail(order), order, map[string]any{
		"previousStatus": string(previous),
		"status":         string(order.Status),
	})
}

func (n *Notifier) SendOrderCancellation(ctx context.Context, order services.Order, reason string) services.NotificationResult {
	data := map[string]any{"status": string(order.Status)}
	if reason = strings.TrimSpace(reason); reason != "" {
		data["reason"] = reason
	}
	return n.enqueue(ctx, KindOrderCancellation, customerEmail(order), order, data)
}

func (n *Notifier) NotifyNewOrder(ctx context.Context, order services.Order, adminEmail string) services.NotificationResult {
	return n.enqueue(ctx, KindAdminNewOrder, strings.TrimSpace(adminEmail), order, map[string]any{
		"total":         order.Total,
		"currency":      order.Currency,
		"customerName":  order.ShippingAddress.FullName,
		"paymentStatus": string(order.PaymentStatus),
		"itemCount":     len(order.Items),
	})
}

func (n *Notifier) enqueue(ctx context.Context, kind, recipient string, order services.Order, data map[string]any) services.NotificationResult {
	if recipient == "" {
		return services.NotificationResult{Outcome: services.NotificationSkipped, Reason: "no recipient"}
	}
	job := jobs.NotificationJob{
		Kind:        kind,
		Channel:     channelEmail,
		Recipient:   recipient,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Data:        data,
		QueuedAt:    n.now().UTC(),
	}
	if _, err := n.publisher.PublishNotification(ctx, job); err != nil {
		n.logger.Warn("notification enqueue failed",
			zap.String("kind", kind),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return services.NotificationResult{Outcome: services.NotificationFailed, Reason: err.Error()}
	}
	return services.NotificationResult{Outcome: services.NotificationSent}
}

func customerEmail(order services.Order) string {
	return strings.ToLower(strings.TrimSpace(order.ShippingAddress.Email))
}

func itemSummaries(order services.Order) []map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":     item.ProductName,
			"quantity": item.Quantity,
			"subtotal": item.Subtotal,
		})
	}
	return items
}
