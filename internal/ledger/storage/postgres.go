package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// ledgerLockKey is the advisory lock every write transaction takes,
// making PostgreSQL serialize ledger operations across processes.
const ledgerLockKey int64 = 0x6f6273637572

const jobColumns = `
	job_id, client, worker, computation_kind, encrypted_input, encrypted_result,
	reward::text AS reward, platform_fee::text AS platform_fee, payout::text AS payout,
	status, result_decrypted, created_at, completed_at`

const workerColumns = `
	address, display_name, stake::text AS stake, reputation, completed_jobs, is_active, registered_at`

const eventColumns = `
	seq, event_type, job_id, actor, computation_kind, amount::text AS amount, created_at, published_at`

// PostgresStore persists the ledger in PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a store on top of the shared PostgreSQL client
func NewPostgresStore(pg *postgresql.Client, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// EnsureSchema creates the ledger tables when they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		_ = sqlTx.Rollback()
		return domain.NewRetryableError(fmt.Errorf("failed to acquire ledger lock: %w", err))
	}

	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback ledger transaction",
				slog.String("error", rbErr.Error()),
			)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID uint64) (*domain.Job, error) {
	return getJob(ctx, s.db, jobID, false)
}

func (s *PostgresStore) GetWorker(ctx context.Context, address string) (*domain.Worker, error) {
	return getWorker(ctx, s.db, address)
}

func (s *PostgresStore) Balance(ctx context.Context, account string) (domain.Amount, error) {
	return balance(ctx, s.db, account)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	where, args := jobWhere(filter)
	args = append(args, NormalizeLimit(filter.Limit))
	query := fmt.Sprintf(`SELECT %s FROM ledger_jobs WHERE %s ORDER BY job_id ASC LIMIT $%d`,
		jobColumns, where, len(args))

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, r := range rows {
		job, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *PostgresStore) ListWorkers(ctx context.Context, filter WorkerFilter) ([]domain.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM ledger_workers WHERE address > $1`
	args := []interface{}{filter.AfterAddress}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY address ASC LIMIT $2`
	args = append(args, NormalizeLimit(filter.Limit))

	var rows []workerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	workers := make([]domain.Worker, 0, len(rows))
	for _, r := range rows {
		w, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		workers = append(workers, *w)
	}
	return workers, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE seq > $1`
	args := []interface{}{filter.AfterSeq}
	if filter.JobID != 0 {
		args = append(args, filter.JobID)
		query += fmt.Sprintf(` AND job_id = $%d`, len(args))
	}
	if filter.UnpublishedOnly {
		query += ` AND published_at IS NULL`
	}
	args = append(args, NormalizeLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY seq ASC LIMIT $%d`, len(args))

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (s *PostgresStore) MarkEventsPublished(ctx context.Context, seqs []uint64) error {
	if len(seqs) == 0 {
		return nil
	}
	ids := make([]int64, len(seqs))
	for i, seq := range seqs {
		ids[i] = int64(seq)
	}

	query := `
		UPDATE ledger_events
		SET published_at = NOW()
		WHERE seq = ANY($1) AND published_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}

type paramsRow struct {
	Owner               string `db:"owner"`
	MinStake            string `db:"min_stake"`
	FeeBasisPoints      int64  `db:"fee_bps"`
	ReputationIncrement int64  `db:"reputation_increment"`
}

func (s *PostgresStore) SaveParams(ctx context.Context, p domain.Params) (domain.Params, error) {
	query := `
		INSERT INTO ledger_params (id, owner, min_stake, fee_bps, reputation_increment)
		VALUES (1, $1, $2::numeric, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, p.Owner, p.MinStake.String(), p.Fees.BasisPoints, p.ReputationIncrement)
	if err != nil {
		return domain.Params{}, fmt.Errorf("failed to save ledger parameters: %w", err)
	}
	return s.LoadParams(ctx)
}

func (s *PostgresStore) LoadParams(ctx context.Context) (domain.Params, error) {
	var row paramsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT owner, min_stake::text AS min_stake, fee_bps, reputation_increment
		FROM ledger_params WHERE id = 1
	`)
	if err != nil {
		var pqErr *pq.Error
		// 42P01: the schema has not been applied yet
		if errors.Is(err, sql.ErrNoRows) || (errors.As(err, &pqErr) && pqErr.Code == "42P01") {
			return domain.Params{}, domain.ErrLedgerParamsMissing
		}
		return domain.Params{}, fmt.Errorf("failed to load ledger parameters: %w", err)
	}

	minStake, err := domain.ParseAmount(row.MinStake)
	if err != nil {
		return domain.Params{}, err
	}
	return domain.Params{
		Owner:               row.Owner,
		MinStake:            minStake,
		Fees:                domain.FeeSchedule{BasisPoints: row.FeeBasisPoints},
		ReputationIncrement: row.ReputationIncrement,
	}, nil
}

func (s *PostgresStore) Close() error {
	return nil
}

// postgresTx implements Tx on an open transaction holding the ledger lock
type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) GetJob(ctx context.Context, jobID uint64) (*domain.Job, error) {
	return getJob(ctx, t.tx, jobID, true)
}

func (t *postgresTx) GetWorker(ctx context.Context, address string) (*domain.Worker, error) {
	return getWorker(ctx, t.tx, address)
}

func (t *postgresTx) Balance(ctx context.Context, account string) (domain.Amount, error) {
	return balance(ctx, t.tx, account)
}

func (t *postgresTx) InsertJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO ledger_jobs (
			client, worker, computation_kind, encrypted_input, encrypted_result,
			reward, platform_fee, payout, status, result_decrypted, created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12
		)
		RETURNING job_id
	`

	var id int64
	err := t.tx.QueryRowContext(ctx, query,
		job.Client,
		job.Worker,
		string(job.Kind),
		job.EncryptedInput,
		job.EncryptedResult,
		job.Reward.String(),
		job.PlatformFee.String(),
		job.Payout.String(),
		string(job.Status),
		job.ResultDecrypted,
		job.CreatedAt,
		job.CompletedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	job.ID = uint64(id)
	return nil
}

func (t *postgresTx) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE ledger_jobs
		SET worker = $1,
		    encrypted_result = $2,
		    status = $3,
		    result_decrypted = $4,
		    completed_at = $5
		WHERE job_id = $6
	`

	result, err := t.tx.ExecContext(ctx, query,
		job.Worker,
		job.EncryptedResult,
		string(job.Status),
		job.ResultDecrypted,
		job.CompletedAt,
		int64(job.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (t *postgresTx) PutWorker(ctx context.Context, w *domain.Worker) error {
	query := `
		INSERT INTO ledger_workers (
			address, display_name, stake, reputation, completed_jobs, is_active, registered_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    stake = EXCLUDED.stake,
		    reputation = EXCLUDED.reputation,
		    completed_jobs = EXCLUDED.completed_jobs,
		    is_active = EXCLUDED.is_active,
		    registered_at = EXCLUDED.registered_at
	`

	_, err := t.tx.ExecContext(ctx, query,
		w.Address,
		w.DisplayName,
		w.Stake.String(),
		w.Reputation,
		w.CompletedJobs,
		w.IsActive,
		w.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert worker: %w", err)
	}
	return nil
}

func (t *postgresTx) CountJobs(ctx context.Context, filter JobFilter) (int, error) {
	where, args := jobWhere(filter)
	var count int
	if err := t.tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM ledger_jobs WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func (t *postgresTx) Credit(ctx context.Context, account string, amount domain.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative credit %s", domain.ErrInvalidArgument, amount)
	}

	query := `
		INSERT INTO ledger_balances (account, amount)
		VALUES ($1, $2::numeric)
		ON CONFLICT (account) DO UPDATE
		SET amount = ledger_balances.amount + EXCLUDED.amount
		RETURNING amount::text
	`
	var total string
	if err := t.tx.QueryRowContext(ctx, query, account, amount.String()).Scan(&total); err != nil {
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}
	// NUMERIC(78,0) holds more than an Amount; refuse balances that could not be read back
	if _, err := domain.ParseAmount(total); err != nil {
		return fmt.Errorf("credit %s: %w", account, domain.ErrAmountOverflow)
	}
	return nil
}

func (t *postgresTx) Debit(ctx context.Context, account string, amount domain.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit %s", domain.ErrInvalidArgument, amount)
	}
	if amount.IsZero() {
		return nil
	}

	query := `
		UPDATE ledger_balances
		SET amount = amount - $2::numeric
		WHERE account = $1 AND amount >= $2::numeric
	`
	result, err := t.tx.ExecContext(ctx, query, account, amount.String())
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", account, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s cannot cover %s", domain.ErrInsufficientFunds, account, amount)
	}
	return nil
}

func (t *postgresTx) AppendEvent(ctx context.Context, ev *domain.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Amount.IsNil() {
		ev.Amount = domain.ZeroAmount()
	}

	query := `
		INSERT INTO ledger_events (event_type, job_id, actor, computation_kind, amount, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING seq
	`

	var seq int64
	err := t.tx.QueryRowContext(ctx, query,
		string(ev.Type),
		int64(ev.JobID),
		ev.Actor,
		string(ev.Kind),
		ev.Amount.String(),
		ev.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	ev.Seq = uint64(seq)
	return nil
}

func getJob(ctx context.Context, q sqlx.QueryerContext, jobID uint64, forUpdate bool) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ledger_jobs WHERE job_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, query, int64(jobID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain()
}

func getWorker(ctx context.Context, q sqlx.QueryerContext, address string) (*domain.Worker, error) {
	var row workerRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+workerColumns+` FROM ledger_workers WHERE address = $1`, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	return row.toDomain()
}

func balance(ctx context.Context, q sqlx.QueryerContext, account string) (domain.Amount, error) {
	var amount string
	err := sqlx.GetContext(ctx, q, &amount, `SELECT amount::text FROM ledger_balances WHERE account = $1`, account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ZeroAmount(), nil
		}
		return domain.Amount{}, fmt.Errorf("failed to get balance: %w", err)
	}
	return domain.ParseAmount(amount)
}

func jobWhere(filter JobFilter) (string, []interface{}) {
	clauses := []string{"job_id > $1"}
	args := []interface{}{int64(filter.AfterID)}

	if filter.Client != "" {
		args = append(args, filter.Client)
		clauses = append(clauses, fmt.Sprintf("client = $%d", len(args)))
	}
	if filter.Worker != "" {
		args = append(args, filter.Worker)
		clauses = append(clauses, fmt.Sprintf("worker = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

type jobRow struct {
	JobID           int64        `db:"job_id"`
	Client          string       `db:"client"`
	Worker          string       `db:"worker"`
	Kind            string       `db:"computation_kind"`
	EncryptedInput  []byte       `db:"encrypted_input"`
	EncryptedResult []byte       `db:"encrypted_result"`
	Reward          string       `db:"reward"`
	PlatformFee     string       `db:"platform_fee"`
	Payout          string       `db:"payout"`
	Status          string       `db:"status"`
	ResultDecrypted bool         `db:"result_decrypted"`
	CreatedAt       time.Time    `db:"created_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
}

func (r jobRow) toDomain() (*domain.Job, error) {
	reward, err := domain.ParseAmount(r.Reward)
	if err != nil {
		return nil, fmt.Errorf("job %d reward: %w", r.JobID, err)
	}
	fee, err := domain.ParseAmount(r.PlatformFee)
	if err != nil {
		return nil, fmt.Errorf("job %d platform fee: %w", r.JobID, err)
	}
	payout, err := domain.ParseAmount(r.Payout)
	if err != nil {
		return nil, fmt.Errorf("job %d payout: %w", r.JobID, err)
	}

	job := &domain.Job{
		ID:              uint64(r.JobID),
		Client:          r.Client,
		Worker:          r.Worker,
		Kind:            domain.ComputationKind(r.Kind),
		EncryptedInput:  r.EncryptedInput,
		EncryptedResult: r.EncryptedResult,
		Reward:          reward,
		PlatformFee:     fee,
		Payout:          payout,
		Status:          domain.JobStatus(r.Status),
		ResultDecrypted: r.ResultDecrypted,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return job, nil
}

type workerRow struct {
	Address       string    `db:"address"`
	DisplayName   string    `db:"display_name"`
	Stake         string    `db:"stake"`
	Reputation    int64     `db:"reputation"`
	CompletedJobs int64     `db:"completed_jobs"`
	IsActive      bool      `db:"is_active"`
	RegisteredAt  time.Time `db:"registered_at"`
}

func (r workerRow) toDomain() (*domain.Worker, error) {
	stake, err := domain.ParseAmount(r.Stake)
	if err != nil {
		return nil, fmt.Errorf("worker %s stake: %w", r.Address, err)
	}
	return &domain.Worker{
		Address:       r.Address,
		DisplayName:   r.DisplayName,
		Stake:         stake,
		Reputation:    r.Reputation,
		CompletedJobs: r.CompletedJobs,
		IsActive:      r.IsActive,
		RegisteredAt:  r.RegisteredAt.UTC(),
	}, nil
}

type eventRow struct {
	Seq         int64        `db:"seq"`
	Type        string       `db:"event_type"`
	JobID       int64        `db:"job_id"`
	Actor       string       `db:"actor"`
	Kind        string       `db:"computation_kind"`
	Amount      string       `db:"amount"`
	CreatedAt   time.Time    `db:"created_at"`
	PublishedAt sql.NullTime `db:"published_at"`
}

func (r eventRow) toDomain() (*domain.Event, error) {
	amount, err := domain.ParseAmount(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("event %d amount: %w", r.Seq, err)
	}
	ev := &domain.Event{
		Seq:       uint64(r.Seq),
		Type:      domain.EventType(r.Type),
		JobID:     uint64(r.JobID),
		Actor:     r.Actor,
		Kind:      domain.ComputationKind(r.Kind),
		Amount:    amount,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.PublishedAt.Valid {
		t := r.PublishedAt.Time.UTC()
		ev.PublishedAt = &t
	}
	return ev, nil
}
