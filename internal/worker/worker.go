// Package worker runs the worker coordinator: it reacts to job.created
// notifications, races other workers to claim jobs, computes results and
// submits them back to the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultConcurrency       = 2
	DefaultReconcileInterval = 30 * time.Second

	// DefaultResubscribeInterval paces consume attempts after a broker drop
	DefaultResubscribeInterval = time.Second
)

// Ledger is the set of ledger operations the coordinator drives
type Ledger interface {
	GetJob(ctx context.Context, jobID uint64) (*domain.Job, error)
	GetWorker(ctx context.Context, address string) (*domain.Worker, error)
	RegisterWorker(ctx context.Context, address, name string, stake domain.Amount) (*domain.Worker, error)
	ClaimJob(ctx context.Context, worker string, jobID uint64) (*domain.Job, error)
	SubmitResult(ctx context.Context, worker string, jobID uint64, encryptedResult []byte) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// Computer produces the encrypted result of a claimed job
type Computer interface {
	Run(ctx context.Context, jobID uint64, kind domain.ComputationKind, encryptedInput []byte) ([]byte, error)
}

// Consumer delivers broker messages for the coordinator's queue
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds coordinator configuration
type Config struct {
	Logger            *slog.Logger
	Ledger            Ledger
	Computer          Computer
	Consumer          Consumer
	Address           string
	Name              string
	Stake             domain.Amount
	AutoRegister      bool
	Concurrency       int
	ReconcileInterval time.Duration
	PageSize          int
	Kinds             []domain.ComputationKind
	MinReward         domain.Amount
	ResumeAssigned    bool
}

// Coordinator runs one worker identity against the ledger
type Coordinator struct {
	logger              *slog.Logger
	ledger              Ledger
	computer            Computer
	consumer            Consumer
	address             string
	name                string
	stake               domain.Amount
	autoRegister        bool
	concurrency         int
	reconcileInterval   time.Duration
	resubscribeInterval time.Duration
	pageSize            int
	filter              jobFilter
	resumeAssigned      bool
	instanceID          string
	tracker             *tracker
	tasks               chan *task
	wg                  sync.WaitGroup
	stopChan            chan struct{}
	stopOnce            sync.Once
}

// NewCoordinator creates a coordinator
func NewCoordinator(cfg *Config) (*Coordinator, error) {
	if cfg.Ledger == nil || cfg.Computer == nil {
		return nil, fmt.Errorf("coordinator needs a ledger and a computer")
	}
	if cfg.Address == "" {
		return nil, domain.ErrMissingCallerAddress
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	instanceID := uuid.NewString()
	return &Coordinator{
		logger:              logger.With(slog.String("worker", cfg.Address), slog.String("instance_id", instanceID)),
		ledger:              cfg.Ledger,
		computer:            cfg.Computer,
		consumer:            cfg.Consumer,
		address:             cfg.Address,
		name:                cfg.Name,
		stake:               cfg.Stake,
		autoRegister:        cfg.AutoRegister,
		concurrency:         concurrency,
		reconcileInterval:   interval,
		resubscribeInterval: DefaultResubscribeInterval,
		pageSize:            storage.NormalizeLimit(cfg.PageSize),
		filter:              newJobFilter(cfg.Kinds, cfg.MinReward),
		resumeAssigned:      cfg.ResumeAssigned,
		instanceID:          instanceID,
		tracker:             newTracker(),
		tasks:               make(chan *task, concurrency*2),
		stopChan:            make(chan struct{}),
	}, nil
}

// Address returns the worker identity the coordinator acts as
func (c *Coordinator) Address() string {
	return c.address
}

// InFlight returns how many jobs are being processed right now
func (c *Coordinator) InFlight() int {
	return c.tracker.inFlight()
}

// Start registers the worker if needed, then processes jobs until ctx is
// cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	// Start holds a slot for its whole run, so a concurrent Stop never waits
	// on a zero counter while the goroutines below are still being added.
	c.wg.Add(1)
	defer c.wg.Done()

	c.logger.Info("Starting worker coordinator",
		slog.Int("concurrency", c.concurrency),
		slog.Duration("reconcile_interval", c.reconcileInterval),
		slog.Bool("notifications", c.consumer != nil),
	)

	if err := c.ensureRegistered(ctx); err != nil {
		return err
	}

	select {
	case <-c.stopChan:
		return nil
	default:
	}

	c.spawnWorkerPool(ctx)

	if c.consumer != nil {
		deliveries, err := c.setupConsumer()
		if err != nil {
			return err
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.startMessageDispatcher(ctx, deliveries)
		}()
	}

	if c.resumeAssigned {
		if _, err := c.ResumeAssigned(ctx); err != nil {
			c.logger.Warn("Failed to resume assigned jobs", slog.Any("error", err))
		}
	}

	c.wg.Add(1)
	go c.reconcileLoop(ctx)

	select {
	case <-ctx.Done():
		c.logger.Info("Coordinator context canceled, stopping...")
	case <-c.stopChan:
	}
	return nil
}

// Stop gracefully stops the coordinator and waits for in-flight jobs
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping worker coordinator...")
		close(c.stopChan)
		c.wg.Wait()
		c.logger.Info("Worker coordinator stopped")
	})
}

// ensureRegistered checks that the configured address is an active worker,
// registering it when auto registration is enabled.
func (c *Coordinator) ensureRegistered(ctx context.Context) error {
	w, err := c.ledger.GetWorker(ctx, c.address)
	if err == nil && w.IsActive {
		c.logger.Info("Worker is registered",
			slog.String("stake", w.Stake.String()),
			slog.Int64("reputation", w.Reputation),
			slog.Int64("completed_jobs", w.CompletedJobs),
		)
		return nil
	}
	if err != nil && !errors.Is(err, domain.ErrWorkerNotFound) {
		return fmt.Errorf("failed to look up worker: %w", err)
	}
	if !c.autoRegister {
		return fmt.Errorf("%w: %s", domain.ErrNotAnActiveWorker, c.address)
	}

	_, err = c.ledger.RegisterWorker(ctx, c.address, c.name, c.stake)
	if err != nil && !errors.Is(err, domain.ErrAlreadyRegistered) {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	c.logger.Info("Worker auto-registered", slog.String("stake", c.stake.String()))
	return nil
}
