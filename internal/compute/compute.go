// Package compute holds the computation capability a worker invokes on a
// claimed job, plus the per-kind latency budgets the worker enforces.
package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// Engine turns an encrypted input into an encrypted result for one kind.
// Implementations must return promptly once ctx is done.
type Engine interface {
	Name() string
	Compute(ctx context.Context, kind domain.ComputationKind, encryptedInput []byte) ([]byte, error)
}

// DefaultBudgetFactor scales expected latencies into enforced budgets
const DefaultBudgetFactor = 2.0

var defaultLatencies = map[domain.ComputationKind]time.Duration{
	domain.KindSum:              1000 * time.Millisecond,
	domain.KindAverage:          1500 * time.Millisecond,
	domain.KindMax:              2000 * time.Millisecond,
	domain.KindMin:              2000 * time.Millisecond,
	domain.KindLinearRegression: 3000 * time.Millisecond,
	domain.KindDecisionTree:     4000 * time.Millisecond,
}

// ExpectedLatency returns the typical computation time of a kind
func ExpectedLatency(kind domain.ComputationKind) time.Duration {
	if d, ok := defaultLatencies[kind]; ok {
		return d
	}
	return defaultLatencies[domain.KindDecisionTree]
}

// Budgets maps each kind to the longest a computation may run
type Budgets map[domain.ComputationKind]time.Duration

// NewBudgets derives budgets from expected latencies scaled by factor, then
// applies explicit per-kind overrides.
func NewBudgets(factor float64, overrides map[domain.ComputationKind]time.Duration) Budgets {
	if factor <= 0 {
		factor = DefaultBudgetFactor
	}
	b := make(Budgets, len(domain.AllComputationKinds))
	for _, kind := range domain.AllComputationKinds {
		b[kind] = time.Duration(float64(ExpectedLatency(kind)) * factor)
	}
	for kind, d := range overrides {
		if d > 0 {
			b[kind] = d
		}
	}
	return b
}

// For returns the budget of kind, falling back to the largest default
func (b Budgets) For(kind domain.ComputationKind) time.Duration {
	if d, ok := b[kind]; ok && d > 0 {
		return d
	}
	return time.Duration(float64(ExpectedLatency(kind)) * DefaultBudgetFactor)
}

// Runner invokes an engine under the kind's budget and normalizes failures
// to domain.ErrComputationFailed.
type Runner struct {
	engine  Engine
	budgets Budgets
	logger  *slog.Logger
}

// NewRunner creates a runner
func NewRunner(engine Engine, budgets Budgets, logger *slog.Logger) *Runner {
	if budgets == nil {
		budgets = NewBudgets(DefaultBudgetFactor, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, budgets: budgets, logger: logger}
}

// Budget returns the budget applied to kind
func (r *Runner) Budget(kind domain.ComputationKind) time.Duration {
	return r.budgets.For(kind)
}

// Run computes one job's result
func (r *Runner) Run(ctx context.Context, jobID uint64, kind domain.ComputationKind, encryptedInput []byte) ([]byte, error) {
	budget := r.budgets.For(kind)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	result, err := r.engine.Compute(ctx, kind, encryptedInput)
	elapsed := time.Since(start)
	computeDuration.WithLabelValues(r.engine.Name(), string(kind)).Observe(elapsed.Seconds())

	if err == nil && len(result) == 0 {
		err = errors.New("engine returned an empty result")
	}
	if err != nil {
		computeFailures.WithLabelValues(r.engine.Name(), string(kind)).Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("budget of %s exceeded: %w", budget, err)
		}
		if !errors.Is(err, domain.ErrComputationFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrComputationFailed, err)
		}
		r.logger.Error("Computation failed",
			slog.Uint64("job_id", jobID),
			slog.String("kind", string(kind)),
			slog.String("engine", r.engine.Name()),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return nil, err
	}

	r.logger.Info("Computation finished",
		slog.Uint64("job_id", jobID),
		slog.String("kind", string(kind)),
		slog.String("engine", r.engine.Name()),
		slog.Duration("elapsed", elapsed),
		slog.Int("result_size", len(result)),
	)
	return result, nil
}
