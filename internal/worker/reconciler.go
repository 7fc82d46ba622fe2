package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
)

// reconcileLoop rescans Pending jobs at startup and then on every tick so
// missed notifications are eventually attempted.
func (c *Coordinator) reconcileLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.reconcileInterval)
	defer ticker.Stop()

	for {
		if n, err := c.ReconcileOnce(ctx); err != nil {
			c.logger.Warn("Reconcile scan failed", slog.Any("error", err))
		} else if n > 0 {
			c.logger.Info("Reconcile scan queued jobs", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// ReconcileOnce queues every acceptable Pending job not already in flight
// and returns how many were queued.
func (c *Coordinator) ReconcileOnce(ctx context.Context) (int, error) {
	reconcileScans.Inc()
	return c.scan(ctx, storage.JobFilter{Status: domain.JobStatusPending}, sourceReconcile)
}

// ResumeAssigned queues the jobs already assigned to this worker, left over
// from a previous run that stopped before submitting.
func (c *Coordinator) ResumeAssigned(ctx context.Context) (int, error) {
	n, err := c.scan(ctx, storage.JobFilter{Worker: c.address, Status: domain.JobStatusAssigned}, sourceResume)
	if n > 0 {
		c.logger.Info("Resuming assigned jobs", slog.Int("count", n))
	}
	return n, err
}

func (c *Coordinator) scan(ctx context.Context, filter storage.JobFilter, source string) (int, error) {
	filter.Limit = c.pageSize
	queued := 0
	for {
		jobs, err := c.ledger.ListJobs(ctx, filter)
		if err != nil {
			return queued, err
		}
		for i := range jobs {
			job := &jobs[i]
			if _, busy := c.tracker.phase(job.ID); busy {
				continue
			}
			if source == sourceReconcile && !c.filter.acceptsJob(job) {
				continue
			}
			if !c.enqueue(ctx, &task{jobID: job.ID, source: source}) {
				return queued, ctx.Err()
			}
			queued++
		}
		if len(jobs) < filter.Limit {
			return queued, nil
		}
		filter.AfterID = jobs[len(jobs)-1].ID
	}
}

func (c *Coordinator) enqueue(ctx context.Context, t *task) bool {
	select {
	case c.tasks <- t:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopChan:
		return false
	}
}
