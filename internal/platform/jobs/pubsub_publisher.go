package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hogtech/orderflow/internal/services"
)

// OrderEventMessage is the wire form of services.OrderEvent.
type OrderEventMessage struct {
	Type                  string         `json:"type"`
	OrderID               string         `json:"orderId"`
	OrderNumber           string         `json:"orderNumber,omitempty"`
	PreviousStatus        string         `json:"previousStatus,omitempty"`
	CurrentStatus         string         `json:"currentStatus,omitempty"`
	PreviousPaymentStatus string         `json:"previousPaymentStatus,omitempty"`
	CurrentPaymentStatus  string         `json:"currentPaymentStatus,omitempty"`
	ActorID               string         `json:"actorId,omitempty"`
	OccurredAt            time.Time      `json:"occurredAt"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// NotificationJob asks the notification worker to render and deliver a message.
type NotificationJob struct {
	Kind        string         `json:"kind"`
	Channel     string         `json:"channel"`
	Recipient   string         `json:"recipient"`
	OrderID     string         `json:"orderId"`
	OrderNumber string         `json:"orderNumber"`
	Data        map[string]any `json:"data,omitempty"`
	QueuedAt    time.Time      `json:"queuedAt"`
}

// PubSubPublisher publishes order events and notification jobs to their Pub/Sub topics.
// Either topic may be nil, in which case the matching publish is rejected.
type PubSubPublisher struct {
	events        *pubsub.Topic
	notifications *pubsub.Topic
	marshal       func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a publisher. At least one topic is required.
func NewPubSubPublisher(events, notifications *pubsub.Topic) (*PubSubPublisher, error) {
	if events == nil && notifications == nil {
		return nil, errors.New("pubsub publisher: at least one topic is required")
	}
	return &PubSubPublisher{
		events:        events,
		notifications: notifications,
		marshal:       json.Marshal,
	}, nil
}

// PublishOrderEvent implements services.OrderEventPublisher.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.events == nil {
		return errors.New("pubsub publisher: order events topic not configured")
	}
	data, err := p.marshal(OrderEventMessage(event))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)

	if _, err := p.events.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishNotification enqueues a notification job and returns the server message id.
func (p *PubSubPublisher) PublishNotification(ctx context.Context, job NotificationJob) (string, error) {
	if p == nil || p.notifications == nil {
		return "", errors.New("pubsub publisher: notifications topic not configured")
	}
	data, err := p.marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal notification job: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", job.Kind)
	setAttr(attrs, "channel", job.Channel)
	setAttr(attrs, "orderId", job.OrderID)

	id, err := p.notifications.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification job: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
