package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultBatchSize    = 50
)

// Publisher delivers an encoded message under a routing key
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Outbox is the part of the ledger store the relay drains
type Outbox interface {
	ListEvents(ctx context.Context, filter storage.EventFilter) ([]domain.Event, error)
	MarkEventsPublished(ctx context.Context, seqs []uint64) error
}

// RelayConfig holds relay configuration
type RelayConfig struct {
	Outbox       Outbox
	Publisher    Publisher
	Logger       *slog.Logger
	PollInterval time.Duration
	BatchSize    int
}

// Relay publishes committed ledger events in sequence order. An event is
// marked published only after the broker accepted it, so delivery is
// at-least-once and consumers must tolerate duplicates.
type Relay struct {
	outbox       Outbox
	publisher    Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
}

// NewRelay creates an outbox relay
func NewRelay(cfg *RelayConfig) *Relay {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		outbox:       cfg.Outbox,
		publisher:    cfg.Publisher,
		logger:       logger,
		pollInterval: interval,
		batchSize:    batch,
	}
}

// Run drains the outbox until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Event relay started",
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				r.logger.Warn("Event relay flush failed", slog.Any("error", err))
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Event relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of unpublished events and returns how many were
// delivered. It stops at the first broker failure to keep sequence order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.outbox.ListEvents(ctx, storage.EventFilter{UnpublishedOnly: true, Limit: r.batchSize})
	if err != nil {
		return 0, fmt.Errorf("failed to list unpublished events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	delivered := make([]uint64, 0, len(pending))
	var publishErr error
	for i := range pending {
		ev := &pending[i]
		body, err := Encode(ev)
		if err != nil {
			publishErr = err
			break
		}
		if err := r.publisher.Publish(ctx, RoutingKey(ev), body); err != nil {
			publishErr = fmt.Errorf("failed to publish event %d: %w", ev.Seq, err)
			publishFailures.Inc()
			break
		}
		eventsPublished.WithLabelValues(string(ev.Type)).Inc()
		delivered = append(delivered, ev.Seq)
	}

	if len(delivered) > 0 {
		if err := r.outbox.MarkEventsPublished(ctx, delivered); err != nil {
			return 0, fmt.Errorf("failed to mark events published: %w", err)
		}
		r.logger.Debug("Events relayed",
			slog.Int("count", len(delivered)),
			slog.Uint64("last_seq", delivered[len(delivered)-1]),
		)
	}
	return len(delivered), publishErr
}
