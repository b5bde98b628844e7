package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/Bashir-Janbalat/store-app-be/internal/notifications"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent sends the event and waits for the server assigned message id.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "customerId", event.CustomerID)
	setAttr(attrs, "status", string(event.Status))
	setAttr(attrs, "previousStatus", string(event.PreviousStatus))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey(p.topic, event.OrderID),
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// PubSubMailer hands rendered e-mails to a mail delivery worker through Pub/Sub.
type PubSubMailer struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubMailer constructs a mailer publishing to the given topic.
func NewPubSubMailer(topic *pubsub.Topic) (*PubSubMailer, error) {
	if topic == nil {
		return nil, errors.New("pubsub mailer: topic is required")
	}
	return &PubSubMailer{topic: topic, marshal: json.Marshal}, nil
}

var _ notifications.Mailer = (*PubSubMailer)(nil)

func (m *PubSubMailer) Send(ctx context.Context, email notifications.Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	data, err := m.marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	attrs := make(map[string]string)
	setAttr(attrs, "to", email.To)
	setAttr(attrs, "subject", email.Subject)
	if _, err := m.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// orderingKey is only set when the topic has message ordering enabled; Publish rejects keys otherwise.
func orderingKey(topic *pubsub.Topic, orderID string) string {
	if !topic.EnableMessageOrdering {
		return ""
	}
	return strings.TrimSpace(orderID)
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
