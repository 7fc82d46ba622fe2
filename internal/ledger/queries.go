package ledger

import (
	"context"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
)

// Queries never mutate state and read through the same store the writes
// commit to, so a caller always observes its own completed writes.

// GetJob returns a snapshot of one job
func (l *Ledger) GetJob(ctx context.Context, jobID uint64) (*domain.Job, error) {
	return l.store.GetJob(ctx, jobID)
}

// GetWorker returns a snapshot of one worker
func (l *Ledger) GetWorker(ctx context.Context, address string) (*domain.Worker, error) {
	return l.store.GetWorker(ctx, address)
}

// ListJobs returns one page of jobs matching filter
func (l *Ledger) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	return l.store.ListJobs(ctx, filter)
}

// GetClientJobs returns one page of the jobs created by client
func (l *Ledger) GetClientJobs(ctx context.Context, client string, afterID uint64, limit int) ([]domain.Job, error) {
	return l.store.ListJobs(ctx, storage.JobFilter{Client: client, AfterID: afterID, Limit: limit})
}

// GetWorkerJobs returns one page of the jobs assigned to worker
func (l *Ledger) GetWorkerJobs(ctx context.Context, worker string, afterID uint64, limit int) ([]domain.Job, error) {
	return l.store.ListJobs(ctx, storage.JobFilter{Worker: worker, AfterID: afterID, Limit: limit})
}

// ListPendingJobs returns one page of jobs still open for claiming
func (l *Ledger) ListPendingJobs(ctx context.Context, afterID uint64, limit int) ([]domain.Job, error) {
	return l.store.ListJobs(ctx, storage.JobFilter{Status: domain.JobStatusPending, AfterID: afterID, Limit: limit})
}

// GetAllWorkers returns one page of every registered worker, active or not
func (l *Ledger) GetAllWorkers(ctx context.Context, afterAddress string, limit int) ([]domain.Worker, error) {
	return l.store.ListWorkers(ctx, storage.WorkerFilter{AfterAddress: afterAddress, Limit: limit})
}

// ListWorkers returns one page of workers matching filter
func (l *Ledger) ListWorkers(ctx context.Context, filter storage.WorkerFilter) ([]domain.Worker, error) {
	return l.store.ListWorkers(ctx, filter)
}

// PlatformBalance returns the fees not yet withdrawn by the owner
func (l *Ledger) PlatformBalance(ctx context.Context) (domain.Amount, error) {
	return l.store.Balance(ctx, domain.AccountPlatform)
}

// EscrowBalance returns the payouts held for unsettled jobs
func (l *Ledger) EscrowBalance(ctx context.Context) (domain.Amount, error) {
	return l.store.Balance(ctx, domain.AccountEscrow)
}

// StakeBalance returns the stakes locked by active workers
func (l *Ledger) StakeBalance(ctx context.Context) (domain.Amount, error) {
	return l.store.Balance(ctx, domain.AccountStake)
}

// Balance returns the funds released to an address (payouts, refunds, stakes, fees)
func (l *Ledger) Balance(ctx context.Context, address string) (domain.Amount, error) {
	if err := requireCaller(address); err != nil {
		return domain.Amount{}, err
	}
	return l.store.Balance(ctx, address)
}

// ListEvents replays the notification history after a sequence number
func (l *Ledger) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	return l.store.ListEvents(ctx, storage.EventFilter{AfterSeq: afterSeq, Limit: limit})
}

// JobEvents returns the ordered transitions of a single job
func (l *Ledger) JobEvents(ctx context.Context, jobID uint64) ([]domain.Event, error) {
	return l.store.ListEvents(ctx, storage.EventFilter{JobID: jobID, Limit: storage.MaxPageSize})
}
