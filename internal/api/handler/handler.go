package handler

import (
	"context"
	"log/slog"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/gin-gonic/gin"
)

// CallerContextKey is the gin context key holding the authenticated caller
const CallerContextKey = "caller_address"

// Ledger is the ledger surface exposed over HTTP
type Ledger interface {
	Owner() string
	MinStake() domain.Amount
	Fees() domain.FeeSchedule

	CreateJob(ctx context.Context, client string, kind domain.ComputationKind, encryptedInput []byte, reward domain.Amount) (*domain.Job, error)
	ClaimJob(ctx context.Context, worker string, jobID uint64) (*domain.Job, error)
	SubmitResult(ctx context.Context, worker string, jobID uint64, encryptedResult []byte) (*domain.Job, error)
	VerifyAndPay(ctx context.Context, client string, jobID uint64) (*domain.Job, error)
	CancelJob(ctx context.Context, client string, jobID uint64) (*domain.Job, error)
	MarkResultDecrypted(ctx context.Context, client string, jobID uint64) (*domain.Job, error)
	RegisterWorker(ctx context.Context, address, name string, stake domain.Amount) (*domain.Worker, error)
	DeregisterWorker(ctx context.Context, address string) (*domain.Worker, error)
	WithdrawPlatformFees(ctx context.Context, caller string) (domain.Amount, error)

	GetJob(ctx context.Context, jobID uint64) (*domain.Job, error)
	GetWorker(ctx context.Context, address string) (*domain.Worker, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	ListWorkers(ctx context.Context, filter storage.WorkerFilter) ([]domain.Worker, error)
	PlatformBalance(ctx context.Context) (domain.Amount, error)
	EscrowBalance(ctx context.Context) (domain.Amount, error)
	StakeBalance(ctx context.Context) (domain.Amount, error)
	Balance(ctx context.Context, address string) (domain.Amount, error)
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error)
	JobEvents(ctx context.Context, jobID uint64) ([]domain.Event, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Ledger Ledger
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	ledger Ledger
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{logger: deps.Logger, ledger: deps.Ledger}
}

// WorkerHandler handles worker registration and queries
type WorkerHandler struct {
	logger *slog.Logger
	ledger Ledger
}

// NewWorkerHandler creates a new WorkerHandler instance
func NewWorkerHandler(deps *Dependencies) *WorkerHandler {
	return &WorkerHandler{logger: deps.Logger, ledger: deps.Ledger}
}

// LedgerHandler handles balances, fee withdrawal and the event history
type LedgerHandler struct {
	logger *slog.Logger
	ledger Ledger
}

// NewLedgerHandler creates a new LedgerHandler instance
func NewLedgerHandler(deps *Dependencies) *LedgerHandler {
	return &LedgerHandler{logger: deps.Logger, ledger: deps.Ledger}
}

func callerAddress(c *gin.Context) string {
	return c.GetString(CallerContextKey)
}
