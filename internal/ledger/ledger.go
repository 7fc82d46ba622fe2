// Package ledger is the authoritative job and worker state machine. It owns
// the escrow, stake and platform-fee accounts and emits one event for every
// accepted state change, inside the same store transaction as the change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
)

// Config holds ledger configuration
type Config struct {
	Store               storage.Store
	Logger              *slog.Logger
	Owner               string
	MinStake            domain.Amount
	Fees                domain.FeeSchedule
	ReputationIncrement int64
	Now                 func() time.Time
}

// Ledger applies state transitions atomically on top of a Store
type Ledger struct {
	store               storage.Store
	logger              *slog.Logger
	owner               string
	minStake            domain.Amount
	fees                domain.FeeSchedule
	reputationIncrement int64
	now                 func() time.Time
}

// New creates a ledger
func New(cfg *Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		return nil, fmt.Errorf("ledger owner is required")
	}
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}

	minStake := cfg.MinStake
	if minStake.IsNil() {
		minStake = domain.ZeroAmount()
	}
	increment := cfg.ReputationIncrement
	if increment <= 0 {
		increment = domain.DefaultReputationIncrement
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		store:               cfg.Store,
		logger:              logger,
		owner:               cfg.Owner,
		minStake:            minStake,
		fees:                cfg.Fees,
		reputationIncrement: increment,
		now:                 now,
	}, nil
}

// Owner returns the platform owner identity
func (l *Ledger) Owner() string {
	return l.owner
}

// MinStake returns the minimum registration stake
func (l *Ledger) MinStake() domain.Amount {
	return l.minStake
}

// Fees returns the fee schedule applied at job creation
func (l *Ledger) Fees() domain.FeeSchedule {
	return l.fees
}

// apply runs fn in one store transaction and records the outcome
func (l *Ledger) apply(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	start := time.Now()
	err := l.store.WithTx(ctx, fn)
	observeOperation(op, err, time.Since(start))
	return err
}

// RegisterWorker creates or reactivates a worker and locks its stake
func (l *Ledger) RegisterWorker(ctx context.Context, address, name string, stake domain.Amount) (*domain.Worker, error) {
	if err := requireCaller(address); err != nil {
		return nil, err
	}
	if stake.IsNil() || stake.LT(l.minStake) {
		return nil, domain.ErrInsufficientStake
	}
	if err := domain.CheckAmountBound(stake); err != nil {
		return nil, fmt.Errorf("%w: stake: %w", domain.ErrInvalidArgument, err)
	}

	var registered *domain.Worker
	err := l.apply(ctx, "register_worker", func(tx storage.Tx) error {
		existing, err := tx.GetWorker(ctx, address)
		switch {
		case err == nil && existing.IsActive:
			return domain.ErrAlreadyRegistered
		case err != nil && !errors.Is(err, domain.ErrWorkerNotFound):
			return err
		}

		w := &domain.Worker{
			Address:      address,
			DisplayName:  name,
			Stake:        stake,
			Reputation:   domain.InitialReputation,
			IsActive:     true,
			RegisteredAt: l.now(),
		}
		if existing != nil {
			w.CompletedJobs = existing.CompletedJobs
		}
		if err := tx.PutWorker(ctx, w); err != nil {
			return err
		}
		if err := tx.Credit(ctx, domain.AccountStake, stake); err != nil {
			return err
		}
		registered = w
		return tx.AppendEvent(ctx, &domain.Event{
			Type:   domain.EventWorkerRegistered,
			Actor:  address,
			Amount: stake,
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Worker registered",
		slog.String("worker", address),
		slog.String("name", name),
		slog.String("stake", stake.String()),
	)
	return registered, nil
}

// DeregisterWorker deactivates a worker and returns its stake to its address.
// A worker holding an Assigned job cannot leave.
func (l *Ledger) DeregisterWorker(ctx context.Context, address string) (*domain.Worker, error) {
	if err := requireCaller(address); err != nil {
		return nil, err
	}

	var released *domain.Worker
	err := l.apply(ctx, "deregister_worker", func(tx storage.Tx) error {
		w, err := tx.GetWorker(ctx, address)
		if errors.Is(err, domain.ErrWorkerNotFound) || (err == nil && !w.IsActive) {
			return domain.ErrNotRegistered
		}
		if err != nil {
			return err
		}

		assigned, err := tx.CountJobs(ctx, storage.JobFilter{Worker: address, Status: domain.JobStatusAssigned})
		if err != nil {
			return err
		}
		if assigned > 0 {
			return fmt.Errorf("%w: %d assigned", domain.ErrWorkerHasActiveJobs, assigned)
		}

		stake := w.Stake
		if err := tx.Debit(ctx, domain.AccountStake, stake); err != nil {
			return err
		}
		if err := tx.Credit(ctx, address, stake); err != nil {
			return err
		}

		w.IsActive = false
		w.Stake = domain.ZeroAmount()
		if err := tx.PutWorker(ctx, w); err != nil {
			return err
		}
		released = w
		return tx.AppendEvent(ctx, &domain.Event{
			Type:   domain.EventWorkerDeregistered,
			Actor:  address,
			Amount: stake,
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Worker deregistered", slog.String("worker", address))
	return released, nil
}

// CreateJob escrows a reward and opens a Pending job. The platform fee is
// split off immediately; only the payout stays in escrow.
func (l *Ledger) CreateJob(ctx context.Context, client string, kind domain.ComputationKind, encryptedInput []byte, reward domain.Amount) (*domain.Job, error) {
	if err := requireCaller(client); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownComputationKind, kind)
	}
	if reward.IsNil() || !reward.IsPositive() {
		return nil, domain.ErrInvalidReward
	}
	if err := domain.CheckAmountBound(reward); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidReward, err)
	}
	if len(encryptedInput) == 0 {
		return nil, domain.ErrEmptyInput
	}

	fee, payout, err := l.fees.Split(reward)
	if err != nil {
		return nil, err
	}
	job := &domain.Job{
		Client:         client,
		Kind:           kind,
		EncryptedInput: append([]byte(nil), encryptedInput...),
		Reward:         reward,
		PlatformFee:    fee,
		Payout:         payout,
		Status:         domain.JobStatusPending,
		CreatedAt:      l.now(),
	}

	err = l.apply(ctx, "create_job", func(tx storage.Tx) error {
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}
		if err := tx.Credit(ctx, domain.AccountEscrow, payout); err != nil {
			return err
		}
		if err := tx.Credit(ctx, domain.AccountPlatform, fee); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &domain.Event{
			Type:   domain.EventJobCreated,
			JobID:  job.ID,
			Actor:  client,
			Kind:   kind,
			Amount: payout,
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Job created",
		slog.Uint64("job_id", job.ID),
		slog.String("client", client),
		slog.String("kind", string(kind)),
		slog.String("reward", reward.String()),
		slog.String("platform_fee", fee.String()),
	)
	return job.Clone(), nil
}

// ClaimJob makes worker the exclusive assignee of a Pending job. Concurrent
// claims are serialized by the store; exactly one sees Pending.
func (l *Ledger) ClaimJob(ctx context.Context, worker string, jobID uint64) (*domain.Job, error) {
	if err := requireCaller(worker); err != nil {
		return nil, err
	}

	var claimed *domain.Job
	err := l.apply(ctx, "claim_job", func(tx storage.Tx) error {
		w, err := tx.GetWorker(ctx, worker)
		if errors.Is(err, domain.ErrWorkerNotFound) || (err == nil && !w.IsActive) {
			return domain.ErrNotAnActiveWorker
		}
		if err != nil {
			return err
		}

		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusPending {
			return domain.ErrJobAlreadyClaimed
		}

		job.Worker = worker
		job.Status = domain.JobStatusAssigned
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		claimed = job
		return tx.AppendEvent(ctx, &domain.Event{
			Type:  domain.EventJobAssigned,
			JobID: jobID,
			Actor: worker,
			Kind:  job.Kind,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			claimConflicts.Inc()
		}
		return nil, err
	}

	l.logger.Info("Job claimed",
		slog.Uint64("job_id", jobID),
		slog.String("worker", worker),
	)
	return claimed, nil
}

// SubmitResult stores the encrypted result of an Assigned job
func (l *Ledger) SubmitResult(ctx context.Context, worker string, jobID uint64, encryptedResult []byte) (*domain.Job, error) {
	if err := requireCaller(worker); err != nil {
		return nil, err
	}

	var completed *domain.Job
	err := l.apply(ctx, "submit_result", func(tx storage.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Worker != worker {
			return domain.ErrNotAssignedToCaller
		}
		if job.Status != domain.JobStatusAssigned {
			return fmt.Errorf("%w: job %d is %s", domain.ErrInvalidState, jobID, job.Status)
		}

		now := l.now()
		job.EncryptedResult = append([]byte(nil), encryptedResult...)
		job.Status = domain.JobStatusCompleted
		job.CompletedAt = &now
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		completed = job
		return tx.AppendEvent(ctx, &domain.Event{
			Type:  domain.EventResultSubmitted,
			JobID: jobID,
			Actor: worker,
			Kind:  job.Kind,
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Result submitted",
		slog.Uint64("job_id", jobID),
		slog.String("worker", worker),
		slog.Int("result_size", len(encryptedResult)),
	)
	return completed, nil
}

// VerifyAndPay releases the escrowed payout of a Completed job to its worker
func (l *Ledger) VerifyAndPay(ctx context.Context, client string, jobID uint64) (*domain.Job, error) {
	if err := requireCaller(client); err != nil {
		return nil, err
	}

	var verified *domain.Job
	err := l.apply(ctx, "verify_and_pay", func(tx storage.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Client != client {
			return domain.ErrNotClient
		}
		if job.Status != domain.JobStatusCompleted {
			return fmt.Errorf("%w: job %d is %s", domain.ErrInvalidState, jobID, job.Status)
		}

		if err := tx.Debit(ctx, domain.AccountEscrow, job.Payout); err != nil {
			return err
		}
		if err := tx.Credit(ctx, job.Worker, job.Payout); err != nil {
			return err
		}

		w, err := tx.GetWorker(ctx, job.Worker)
		if err != nil {
			return fmt.Errorf("assigned worker record: %w", err)
		}
		w.CompletedJobs++
		w.Reputation += l.reputationIncrement
		if err := tx.PutWorker(ctx, w); err != nil {
			return err
		}

		job.Status = domain.JobStatusVerified
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		verified = job
		return tx.AppendEvent(ctx, &domain.Event{
			Type:   domain.EventJobCompleted,
			JobID:  jobID,
			Actor:  job.Worker,
			Kind:   job.Kind,
			Amount: job.Payout,
		})
	})
	if err != nil {
		return nil, err
	}

	payoutsTotal.Add(amountFloat(verified.Payout))
	l.logger.Info("Job verified and paid",
		slog.Uint64("job_id", jobID),
		slog.String("worker", verified.Worker),
		slog.String("payout", verified.Payout.String()),
	)
	return verified, nil
}

// CancelJob refunds the escrowed payout of a Pending job to its client.
// The platform fee reserved at creation is kept.
func (l *Ledger) CancelJob(ctx context.Context, client string, jobID uint64) (*domain.Job, error) {
	if err := requireCaller(client); err != nil {
		return nil, err
	}

	var cancelled *domain.Job
	err := l.apply(ctx, "cancel_job", func(tx storage.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Client != client {
			return domain.ErrNotClient
		}
		if job.Status != domain.JobStatusPending {
			return domain.ErrCannotCancel
		}

		if err := tx.Debit(ctx, domain.AccountEscrow, job.Payout); err != nil {
			return err
		}
		if err := tx.Credit(ctx, client, job.Payout); err != nil {
			return err
		}

		job.Worker = ""
		job.Status = domain.JobStatusCancelled
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		cancelled = job
		return tx.AppendEvent(ctx, &domain.Event{
			Type:   domain.EventJobCancelled,
			JobID:  jobID,
			Actor:  client,
			Kind:   job.Kind,
			Amount: job.Payout,
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Job cancelled",
		slog.Uint64("job_id", jobID),
		slog.String("client", client),
		slog.String("refund", cancelled.Payout.String()),
	)
	return cancelled, nil
}

// MarkResultDecrypted flags that the client has decrypted a submitted result.
// It is bookkeeping only and does not move the job's status.
func (l *Ledger) MarkResultDecrypted(ctx context.Context, client string, jobID uint64) (*domain.Job, error) {
	if err := requireCaller(client); err != nil {
		return nil, err
	}

	var marked *domain.Job
	err := l.apply(ctx, "mark_result_decrypted", func(tx storage.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Client != client {
			return domain.ErrNotClient
		}
		if job.Status != domain.JobStatusCompleted && job.Status != domain.JobStatusVerified {
			return fmt.Errorf("%w: job %d has no result", domain.ErrInvalidState, jobID)
		}
		if job.ResultDecrypted {
			marked = job
			return nil
		}

		job.ResultDecrypted = true
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		marked = job
		return tx.AppendEvent(ctx, &domain.Event{
			Type:  domain.EventResultDecrypted,
			JobID: jobID,
			Actor: client,
			Kind:  job.Kind,
		})
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// WithdrawPlatformFees moves the whole platform balance to the owner
func (l *Ledger) WithdrawPlatformFees(ctx context.Context, caller string) (domain.Amount, error) {
	if caller != l.owner {
		observeOperation("withdraw_platform_fees", domain.ErrNotOwner, 0)
		return domain.Amount{}, domain.ErrNotOwner
	}

	var withdrawn domain.Amount
	err := l.apply(ctx, "withdraw_platform_fees", func(tx storage.Tx) error {
		balance, err := tx.Balance(ctx, domain.AccountPlatform)
		if err != nil {
			return err
		}
		if err := tx.Debit(ctx, domain.AccountPlatform, balance); err != nil {
			return err
		}
		if err := tx.Credit(ctx, l.owner, balance); err != nil {
			return err
		}
		withdrawn = balance
		return tx.AppendEvent(ctx, &domain.Event{
			Type:   domain.EventPlatformFeeWithdrawn,
			Actor:  l.owner,
			Amount: balance,
		})
	})
	if err != nil {
		return domain.Amount{}, err
	}

	l.logger.Info("Platform fees withdrawn",
		slog.String("owner", l.owner),
		slog.String("amount", withdrawn.String()),
	)
	return withdrawn, nil
}

func requireCaller(address string) error {
	if strings.TrimSpace(address) == "" {
		return domain.ErrMissingCallerAddress
	}
	if strings.HasPrefix(address, "@") {
		return fmt.Errorf("%w: reserved address %q", domain.ErrInvalidArgument, address)
	}
	return nil
}
