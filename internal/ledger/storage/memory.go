package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// MemoryStore keeps ledger state in process memory. It serializes
// transactions with a single lock and rolls back through an undo log.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[uint64]*domain.Job
	workers  map[string]*domain.Worker
	balances map[string]domain.Amount
	events   []domain.Event
	params   *domain.Params
	nextJob  uint64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[uint64]*domain.Job),
		workers:  make(map[string]*domain.Worker),
		balances: make(map[string]domain.Amount),
		events:   make([]domain.Event, 0, 128),
		nextJob:  1,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, jobID uint64) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getJob(jobID)
}

func (m *MemoryStore) getJob(jobID uint64) (*domain.Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *MemoryStore) GetWorker(_ context.Context, address string) (*domain.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWorker(address)
}

func (m *MemoryStore) getWorker(address string) (*domain.Worker, error) {
	w, ok := m.workers[address]
	if !ok {
		return nil, domain.ErrWorkerNotFound
	}
	return w.Clone(), nil
}

func (m *MemoryStore) Balance(_ context.Context, account string) (domain.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance(account), nil
}

func (m *MemoryStore) balance(account string) domain.Amount {
	if v, ok := m.balances[account]; ok {
		return v
	}
	return domain.ZeroAmount()
}

func (m *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0, len(m.jobs))
	for id, job := range m.jobs {
		if id > filter.AfterID && matchJob(job, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := NormalizeLimit(filter.Limit)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.jobs[id].Clone())
	}
	return out, nil
}

func matchJob(job *domain.Job, filter JobFilter) bool {
	if filter.Client != "" && job.Client != filter.Client {
		return false
	}
	if filter.Worker != "" && job.Worker != filter.Worker {
		return false
	}
	if filter.Status != "" && job.Status != filter.Status {
		return false
	}
	return true
}

func (m *MemoryStore) ListWorkers(_ context.Context, filter WorkerFilter) ([]domain.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addrs := make([]string, 0, len(m.workers))
	for addr, w := range m.workers {
		if addr <= filter.AfterAddress {
			continue
		}
		if filter.ActiveOnly && !w.IsActive {
			continue
		}
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	limit := NormalizeLimit(filter.Limit)
	if len(addrs) > limit {
		addrs = addrs[:limit]
	}

	out := make([]domain.Worker, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, *m.workers[addr].Clone())
	}
	return out, nil
}

func (m *MemoryStore) ListEvents(_ context.Context, filter EventFilter) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := NormalizeLimit(filter.Limit)
	out := make([]domain.Event, 0, limit)
	// events[i].Seq == i+1
	for i := int(filter.AfterSeq); i < len(m.events) && len(out) < limit; i++ {
		ev := m.events[i]
		if filter.JobID != 0 && ev.JobID != filter.JobID {
			continue
		}
		if filter.UnpublishedOnly && ev.PublishedAt != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *MemoryStore) MarkEventsPublished(_ context.Context, seqs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, seq := range seqs {
		if seq == 0 || seq > uint64(len(m.events)) {
			return fmt.Errorf("unknown event sequence %d", seq)
		}
		ev := &m.events[seq-1]
		if ev.PublishedAt == nil {
			t := now
			ev.PublishedAt = &t
		}
	}
	return nil
}

func (m *MemoryStore) SaveParams(_ context.Context, p domain.Params) (domain.Params, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.params == nil {
		stored := p
		m.params = &stored
	}
	return *m.params, nil
}

func (m *MemoryStore) LoadParams(_ context.Context) (domain.Params, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.params == nil {
		return domain.Params{}, domain.ErrLedgerParamsMissing
	}
	return *m.params, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// memoryTx applies writes directly and records how to undo each one
type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) GetJob(_ context.Context, jobID uint64) (*domain.Job, error) {
	return tx.store.getJob(jobID)
}

func (tx *memoryTx) GetWorker(_ context.Context, address string) (*domain.Worker, error) {
	return tx.store.getWorker(address)
}

func (tx *memoryTx) Balance(_ context.Context, account string) (domain.Amount, error) {
	return tx.store.balance(account), nil
}

func (tx *memoryTx) InsertJob(_ context.Context, job *domain.Job) error {
	m := tx.store
	id := m.nextJob
	m.nextJob++
	job.ID = id
	m.jobs[id] = job.Clone()

	tx.undo = append(tx.undo, func() {
		delete(m.jobs, id)
		m.nextJob = id
	})
	return nil
}

func (tx *memoryTx) UpdateJob(_ context.Context, job *domain.Job) error {
	m := tx.store
	prev, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	m.jobs[job.ID] = job.Clone()

	tx.undo = append(tx.undo, func() {
		m.jobs[prev.ID] = prev
	})
	return nil
}

func (tx *memoryTx) PutWorker(_ context.Context, worker *domain.Worker) error {
	m := tx.store
	prev, existed := m.workers[worker.Address]
	m.workers[worker.Address] = worker.Clone()

	tx.undo = append(tx.undo, func() {
		if existed {
			m.workers[prev.Address] = prev
		} else {
			delete(m.workers, worker.Address)
		}
	})
	return nil
}

func (tx *memoryTx) CountJobs(_ context.Context, filter JobFilter) (int, error) {
	count := 0
	for id, job := range tx.store.jobs {
		if id > filter.AfterID && matchJob(job, filter) {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) Credit(_ context.Context, account string, amount domain.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative credit %s", domain.ErrInvalidArgument, amount)
	}
	total, err := domain.AddAmounts(tx.store.balance(account), amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	tx.setBalance(account, total)
	return nil
}

func (tx *memoryTx) Debit(_ context.Context, account string, amount domain.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit %s", domain.ErrInvalidArgument, amount)
	}
	current := tx.store.balance(account)
	if current.LT(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", domain.ErrInsufficientFunds, account, current, amount)
	}
	tx.setBalance(account, current.Sub(amount))
	return nil
}

func (tx *memoryTx) setBalance(account string, value domain.Amount) {
	m := tx.store
	prev, existed := m.balances[account]
	m.balances[account] = value

	tx.undo = append(tx.undo, func() {
		if existed {
			m.balances[account] = prev
		} else {
			delete(m.balances, account)
		}
	})
}

func (tx *memoryTx) AppendEvent(_ context.Context, event *domain.Event) error {
	m := tx.store
	event.Seq = uint64(len(m.events)) + 1
	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}
	if event.Amount.IsNil() {
		event.Amount = domain.ZeroAmount()
	}
	m.events = append(m.events, *event)

	tx.undo = append(tx.undo, func() {
		m.events = m.events[:len(m.events)-1]
	})
	return nil
}
