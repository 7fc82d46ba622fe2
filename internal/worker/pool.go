package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// spawnWorkerPool spawns N goroutines based on concurrency configuration
func (c *Coordinator) spawnWorkerPool(ctx context.Context) {
	c.logger.Info("Spawning worker pool", slog.Int("concurrency", c.concurrency))

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx, i)
	}
}

// workerLoop processes tasks until the coordinator stops
func (c *Coordinator) workerLoop(ctx context.Context, workerNum int) {
	defer c.wg.Done()

	slot := fmt.Sprintf("%s-%d", c.instanceID[:8], workerNum)
	c.logger.Debug("Worker goroutine started", slog.String("slot", slot))

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return

		case t := <-c.tasks:
			err := c.processJob(ctx, t)
			if err != nil {
				c.logger.Error("Job processing failed",
					append(t.logAttrs(), slog.String("slot", slot), slog.String("error", err.Error()))...,
				)
			}
			c.settle(t, err)
		}
	}
}

// settle acknowledges the notification behind a task, if any
func (c *Coordinator) settle(t *task, err error) {
	if t.delivery == nil {
		return
	}
	if err == nil {
		c.ack(t.delivery, t.jobID)
		return
	}

	requeue := shouldRequeueJob(err)
	if nackErr := t.delivery.Nack(false, requeue); nackErr != nil {
		c.logger.Error("Failed to NACK message",
			slog.Uint64("job_id", t.jobID),
			slog.String("error", nackErr.Error()),
		)
		return
	}
	c.logger.Info("Message NACKed",
		slog.Uint64("job_id", t.jobID),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeueJob requeues only transient ledger failures. Everything else
// is either settled already or needs an operator.
func shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrComputationFailed) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
