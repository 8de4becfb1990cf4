package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/platform/jobs"
	"github.com/hogtech/orderflow/internal/services"
)

type recordingPublisher struct {
	jobs []jobs.NotificationJob
	err  error
}

func (p *recordingPublisher) PublishNotification(_ context.Context, job jobs.NotificationJob) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.jobs = append(p.jobs, job)
	return "msg-1", nil
}

func sampleOrder() services.Order {
	return services.Order{
		ID:              "ord_1",
		OrderNumber:     "ORD-001070325",
		Status:          domain.OrderStatusShipped,
		PaymentStatus:   domain.PaymentStatusPaid,
		Currency:        "GHS",
		Total:           180,
		ShippingAddress: domain.ShippingAddress{FullName: "Ama", Email: " Ama@Example.com "},
		Items:           []domain.OrderItem{{ProductName: "Jollof Pack", Quantity: 2, Subtotal: 200}},
	}
}

func TestNotifierQueuesCustomerEmails(t *testing.T) {
	pub := &recordingPublisher{}
	now := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)
	n, err := New(pub, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	order := sampleOrder()
	assert.Equal(t, services.NotificationSent, n.SendOrderConfirmation(context.Background(), order).Outcome)
	assert.Equal(t, services.NotificationSent, n.SendOrderStatusUpdate(context.Background(), order, domain.OrderStatusProcessing).Outcome)
	assert.Equal(t, services.NotificationSent, n.SendOrderCancellation(context.Background(), order, " out of stock ").Outcome)

	require.Len(t, pub.jobs, 3)
	assert.Equal(t, KindOrderConfirmation, pub.jobs[0].Kind)
	assert.Equal(t, "ama@example.com", pub.jobs[0].Recipient)
	assert.Equal(t, now, pub.jobs[0].QueuedAt)
	assert.Equal(t, "processing", pub.jobs[1].Data["previousStatus"])
	assert.Equal(t, "out of stock", pub.jobs[2].Data["reason"])
}

func TestNotifierSkipsWithoutRecipient(t *testing.T) {
	pub := &recordingPublisher{}
	n, err := New(pub)
	require.NoError(t, err)

	order := sampleOrder()
	order.ShippingAddress.Email = ""
	assert.Equal(t, services.NotificationSkipped, n.SendOrderConfirmation(context.Background(), order).Outcome)
	assert.Equal(t, services.NotificationSkipped, n.NotifyNewOrder(context.Background(), order, "").Outcome)
	assert.Empty(t, pub.jobs)
}

func TestNotifierReportsPublishFailure(t *testing.T) {
	n, err := New(&recordingPublisher{err: errors.New("pubsub down")})
	require.NoError(t, err)

	result := n.NotifyNewOrder(context.Background(), sampleOrder(), "ops@example.com")
	assert.Equal(t, services.NotificationFailed, result.Outcome)
	assert.Contains(t, result.Reason, "pubsub down")
}

func TestNewRequiresPublisher(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
