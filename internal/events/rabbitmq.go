package events

import (
	"context"

	"github.com/Panchu11/obscura/shared/rabbitmq"
)

// BrokerPublisher adapts the shared RabbitMQ client to Publisher
type BrokerPublisher struct {
	client *rabbitmq.Client
}

// NewBrokerPublisher creates a publisher on top of a connected client
func NewBrokerPublisher(client *rabbitmq.Client) *BrokerPublisher {
	return &BrokerPublisher{client: client}
}

func (p *BrokerPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	return p.client.PublishWithRetry(ctx, routingKey, body, ContentType)
}
