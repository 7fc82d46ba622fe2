package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Panchu11/obscura/internal/events"
	"github.com/Panchu11/obscura/internal/ledger/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming the coordinator's notification queue
func (c *Coordinator) setupConsumer() (<-chan amqp.Delivery, error) {
	consumerTag := fmt.Sprintf("obscura-worker-%s", c.instanceID)

	// auto-ack is off; every delivery is settled after its job attempt
	deliveries, err := c.consumer.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
	)
	return deliveries, nil
}

// startMessageDispatcher turns job.created notifications into tasks for the
// worker pool. Notifications are hints; the processor re-reads the job.
func (c *Coordinator) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	c.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Message dispatcher stopped - context canceled")
			return
		case <-c.stopChan:
			c.logger.Info("Message dispatcher stopped")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				if deliveries = c.resubscribe(ctx); deliveries == nil {
					return
				}
				continue
			}

			ev, err := events.Decode(delivery.Body)
			if err != nil {
				c.logger.Error("Failed to parse notification",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages are never retried
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					c.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}
			notificationsReceived.WithLabelValues(string(ev.Type)).Inc()

			if ev.Type != domain.EventJobCreated || !c.filter.accepts(ev.Kind, ev.Amount) {
				c.ack(&delivery, ev.JobID)
				continue
			}

			t := &task{jobID: ev.JobID, source: sourceNotification, delivery: &delivery}
			select {
			case c.tasks <- t:
				c.logger.Debug("Job dispatched to worker pool",
					slog.Uint64("job_id", ev.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				c.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			case <-c.stopChan:
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// resubscribe consumes again once the broker client has reconnected. It
// returns nil when there is no consumer or the coordinator is stopping.
func (c *Coordinator) resubscribe(ctx context.Context) <-chan amqp.Delivery {
	if c.consumer == nil {
		return nil
	}
	ticker := time.NewTicker(c.resubscribeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopChan:
			return nil
		case <-ticker.C:
		}
		deliveries, err := c.setupConsumer()
		if err == nil {
			return deliveries
		}
		c.logger.Debug("Consumer not ready yet", slog.Any("error", err))
	}
}

func (c *Coordinator) ack(delivery *amqp.Delivery, jobID uint64) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK message",
			slog.Uint64("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
