package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// processJob drives one job through claim, compute and submit. Losing a
// claim race, stale notifications and filtered jobs end quietly with nil.
func (c *Coordinator) processJob(ctx context.Context, t *task) error {
	if !c.tracker.begin(t.jobID) {
		c.logger.Debug("Job already in flight, skipping", t.logAttrs()...)
		return nil
	}

	final := PhaseFailed
	defer func() { c.tracker.finish(t.jobID, final) }()

	job, err := c.ledger.GetJob(ctx, t.jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			final = PhaseSkipped
			c.logger.Warn("Notified job does not exist", t.logAttrs()...)
			return nil
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	switch {
	case job.Status == domain.JobStatusAssigned && job.Worker == c.address && t.source == sourceResume:
		c.logger.Info("Resuming job assigned to this worker", t.logAttrs()...)
	case job.Status == domain.JobStatusAssigned && job.Worker == c.address:
		// only a restart resumes; a redelivered notification must not retry a failed computation
		final = PhaseSkipped
		c.logger.Debug("Job already assigned to this worker, skipping", t.logAttrs()...)
		return nil
	case job.Status != domain.JobStatusPending:
		final = PhaseLost
		c.logger.Debug("Job no longer pending, skipping",
			append(t.logAttrs(), slog.String("status", string(job.Status)))...,
		)
		return nil
	case !c.filter.acceptsJob(job):
		final = PhaseSkipped
		return nil
	default:
		c.tracker.set(t.jobID, PhaseClaiming)
		job, err = c.ledger.ClaimJob(ctx, c.address, t.jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				final = PhaseLost
				c.logger.Info("Lost claim race, abandoning job", t.logAttrs()...)
				return nil
			}
			return fmt.Errorf("failed to claim job: %w", err)
		}
		c.logger.Info("Job claimed",
			append(t.logAttrs(), slog.String("kind", string(job.Kind)), slog.String("payout", job.Payout.String()))...,
		)
	}
	c.tracker.set(t.jobID, PhaseAssigned)

	c.tracker.set(t.jobID, PhaseComputing)
	result, err := c.computer.Run(ctx, job.ID, job.Kind, job.EncryptedInput)
	if err != nil {
		// the job stays Assigned; resume on restart is the only recovery
		return err
	}

	c.tracker.set(t.jobID, PhaseSubmitting)
	if _, err := c.ledger.SubmitResult(ctx, c.address, job.ID, result); err != nil {
		return fmt.Errorf("failed to submit result: %w", err)
	}

	final = PhaseDone
	c.logger.Info("Result submitted", t.logAttrs()...)
	return nil
}
