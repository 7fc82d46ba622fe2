// Package storage persists ledger state. Every state-changing ledger
// operation runs inside exactly one Store.WithTx call, and implementations
// serialize those calls so the ledger behaves as a single writer.
package storage

import (
	"context"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

const (
	// DefaultPageSize is used when a filter leaves Limit unset
	DefaultPageSize = 20

	// MaxPageSize bounds every paged query
	MaxPageSize = 100
)

// Reader holds the point-in-time queries available inside and outside transactions
type Reader interface {
	GetJob(ctx context.Context, jobID uint64) (*domain.Job, error)
	GetWorker(ctx context.Context, address string) (*domain.Worker, error)
	Balance(ctx context.Context, account string) (domain.Amount, error)
}

// Tx is the write surface of one serialized ledger transaction
type Tx interface {
	Reader

	// InsertJob stores a new job and assigns its ID
	InsertJob(ctx context.Context, job *domain.Job) error
	UpdateJob(ctx context.Context, job *domain.Job) error
	PutWorker(ctx context.Context, worker *domain.Worker) error
	CountJobs(ctx context.Context, filter JobFilter) (int, error)

	Credit(ctx context.Context, account string, amount domain.Amount) error
	// Debit fails with domain.ErrInsufficientFunds rather than going negative
	Debit(ctx context.Context, account string, amount domain.Amount) error

	// AppendEvent records a notification and assigns its sequence number
	AppendEvent(ctx context.Context, event *domain.Event) error
}

// Store is the authoritative ledger persistence
type Store interface {
	Reader

	// WithTx runs fn in a serialized transaction; any error rolls back every write made through tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	ListWorkers(ctx context.Context, filter WorkerFilter) ([]domain.Worker, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error)
	MarkEventsPublished(ctx context.Context, seqs []uint64) error

	// SaveParams records p unless parameters already exist, and returns the stored set
	SaveParams(ctx context.Context, p domain.Params) (domain.Params, error)
	// LoadParams fails with domain.ErrLedgerParamsMissing until SaveParams has run
	LoadParams(ctx context.Context) (domain.Params, error)

	Close() error
}

// JobFilter selects jobs ordered by ascending ID
type JobFilter struct {
	Client  string
	Worker  string
	Status  domain.JobStatus
	AfterID uint64
	Limit   int
}

// WorkerFilter selects workers ordered by ascending address
type WorkerFilter struct {
	ActiveOnly   bool
	AfterAddress string
	Limit        int
}

// EventFilter selects events ordered by ascending sequence
type EventFilter struct {
	AfterSeq        uint64
	JobID           uint64
	UnpublishedOnly bool
	Limit           int
}

// NormalizeLimit clamps a requested page size into [1, MaxPageSize]
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
