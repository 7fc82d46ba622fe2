package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner   = "0xowner"
	client  = "0xclient"
	worker1 = "0xworker1"
	worker2 = "0xworker2"
)

var (
	minStake  = domain.MustParseAmount("100000000000000000") // 0.1 ether
	jobReward = domain.MustParseAmount("50000000000000000")  // 0.05 ether
	input     = []byte("encrypted_data")
)

func newTestLedger(t *testing.T) (*Ledger, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	l, err := New(&Config{
		Store:    store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Owner:    owner,
		MinStake: minStake,
		Fees:     domain.DefaultFeeSchedule(),
	})
	require.NoError(t, err)
	return l, store
}

func mustRegister(t *testing.T, l *Ledger, address string) {
	t.Helper()
	_, err := l.RegisterWorker(context.Background(), address, "Worker "+address, minStake)
	require.NoError(t, err)
}

func mustCreate(t *testing.T, l *Ledger) *domain.Job {
	t.Helper()
	job, err := l.CreateJob(context.Background(), client, domain.KindSum, input, jobReward)
	require.NoError(t, err)
	return job
}

func balanceOf(t *testing.T, l *Ledger, address string) string {
	t.Helper()
	var (
		v   domain.Amount
		err error
	)
	switch address {
	case domain.AccountEscrow:
		v, err = l.EscrowBalance(context.Background())
	case domain.AccountPlatform:
		v, err = l.PlatformBalance(context.Background())
	case domain.AccountStake:
		v, err = l.StakeBalance(context.Background())
	default:
		v, err = l.Balance(context.Background(), address)
	}
	require.NoError(t, err)
	return v.String()
}

func pow2(n uint) domain.Amount {
	return domain.MustParseAmount(new(big.Int).Lsh(big.NewInt(1), n).String())
}

func TestNew(t *testing.T) {
	_, err := New(&Config{Owner: owner, Fees: domain.DefaultFeeSchedule()})
	assert.Error(t, err)

	_, err = New(&Config{Store: storage.NewMemoryStore(), Fees: domain.DefaultFeeSchedule()})
	assert.Error(t, err)

	_, err = New(&Config{Store: storage.NewMemoryStore(), Owner: owner, Fees: domain.FeeSchedule{BasisPoints: 20000}})
	assert.Error(t, err)
}

func TestRegisterWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("sufficient stake", func(t *testing.T) {
		l, _ := newTestLedger(t)
		w, err := l.RegisterWorker(ctx, worker1, "Worker1", minStake)
		require.NoError(t, err)
		assert.True(t, w.IsActive)
		assert.Equal(t, int64(domain.InitialReputation), w.Reputation)
		assert.Equal(t, minStake.String(), w.Stake.String())
		assert.Equal(t, minStake.String(), balanceOf(t, l, domain.AccountStake))
	})

	t.Run("insufficient stake", func(t *testing.T) {
		l, _ := newTestLedger(t)
		_, err := l.RegisterWorker(ctx, worker1, "Worker1", domain.MustParseAmount("50000000000000000"))
		assert.ErrorIs(t, err, domain.ErrInsufficientStake)

		_, err = l.GetWorker(ctx, worker1)
		assert.ErrorIs(t, err, domain.ErrWorkerNotFound)
	})

	t.Run("double registration", func(t *testing.T) {
		l, _ := newTestLedger(t)
		mustRegister(t, l, worker1)
		_, err := l.RegisterWorker(ctx, worker1, "Worker1", minStake)
		assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
		assert.Equal(t, minStake.String(), balanceOf(t, l, domain.AccountStake))
	})

	t.Run("missing address", func(t *testing.T) {
		l, _ := newTestLedger(t)
		_, err := l.RegisterWorker(ctx, "", "Worker1", minStake)
		assert.ErrorIs(t, err, domain.ErrMissingCallerAddress)
	})

	t.Run("reserved address", func(t *testing.T) {
		l, _ := newTestLedger(t)
		_, err := l.RegisterWorker(ctx, domain.AccountEscrow, "pool", minStake)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestRegisterDeregisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	mustRegister(t, l, worker1)
	w, err := l.DeregisterWorker(ctx, worker1)
	require.NoError(t, err)
	assert.False(t, w.IsActive)
	assert.True(t, w.Stake.IsZero())
	assert.Equal(t, minStake.String(), balanceOf(t, l, worker1))
	assert.Equal(t, "0", balanceOf(t, l, domain.AccountStake))

	_, err = l.DeregisterWorker(ctx, worker1)
	assert.ErrorIs(t, err, domain.ErrNotRegistered)

	// a deregistered worker cannot claim
	job := mustCreate(t, l)
	_, err = l.ClaimJob(ctx, worker1, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotAnActiveWorker)

	again, err := l.RegisterWorker(ctx, worker1, "Worker1 again", minStake)
	require.NoError(t, err)
	assert.True(t, again.IsActive)
	assert.Equal(t, int64(domain.InitialReputation), again.Reputation)
	assert.Equal(t, "Worker1 again", again.DisplayName)
}

func TestDeregisterWorker_BlockedWhileAssigned(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustRegister(t, l, worker1)
	job := mustCreate(t, l)

	_, err := l.ClaimJob(ctx, worker1, job.ID)
	require.NoError(t, err)

	_, err = l.DeregisterWorker(ctx, worker1)
	assert.ErrorIs(t, err, domain.ErrWorkerHasActiveJobs)

	w, err := l.GetWorker(ctx, worker1)
	require.NoError(t, err)
	assert.True(t, w.IsActive)

	// once the result is in, the worker may leave and still gets paid
	_, err = l.SubmitResult(ctx, worker1, job.ID, []byte("result"))
	require.NoError(t, err)
	_, err = l.DeregisterWorker(ctx, worker1)
	require.NoError(t, err)

	_, err = l.VerifyAndPay(ctx, client, job.ID)
	require.NoError(t, err)
	assert.Equal(t, minStake.Add(domain.MustParseAmount("49000000000000000")).String(), balanceOf(t, l, worker1))
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("scenario A: fee split at creation", func(t *testing.T) {
		l, _ := newTestLedger(t)
		job := mustCreate(t, l)

		assert.Equal(t, uint64(1), job.ID)
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, "1000000000000000", job.PlatformFee.String())
		assert.Equal(t, "49000000000000000", job.Payout.String())
		assert.Equal(t, "1000000000000000", balanceOf(t, l, domain.AccountPlatform))
		assert.Equal(t, "49000000000000000", balanceOf(t, l, domain.AccountEscrow))
		assert.False(t, job.HasWorker())
	})

	t.Run("event carries reward after fee", func(t *testing.T) {
		l, _ := newTestLedger(t)
		job := mustCreate(t, l)

		events, err := l.JobEvents(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventJobCreated, events[0].Type)
		assert.Equal(t, client, events[0].Actor)
		assert.Equal(t, domain.KindSum, events[0].Kind)
		assert.Equal(t, "49000000000000000", events[0].Amount.String())
	})

	t.Run("ids are monotonic", func(t *testing.T) {
		l, _ := newTestLedger(t)
		first := mustCreate(t, l)
		second := mustCreate(t, l)
		assert.Greater(t, second.ID, first.ID)

		jobs, err := l.GetClientJobs(ctx, client, 0, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, first.ID, jobs[0].ID)
		assert.Equal(t, second.ID, jobs[1].ID)
	})

	tests := []struct {
		name    string
		kind    domain.ComputationKind
		input   []byte
		reward  domain.Amount
		wantErr error
	}{
		{"zero reward", domain.KindSum, input, domain.ZeroAmount(), domain.ErrInvalidReward},
		{"empty input", domain.KindSum, nil, jobReward, domain.ErrEmptyInput},
		{"unknown kind", domain.ComputationKind("MEDIAN"), input, jobReward, domain.ErrUnknownComputationKind},
		{"reward past amount bound", domain.KindSum, input, pow2(250), domain.ErrInvalidReward},
		{"reward at amount bound", domain.KindSum, input, pow2(domain.MaxAmountBits), domain.ErrAmountTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			_, err := l.CreateJob(ctx, client, tt.kind, tt.input, tt.reward)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "0", balanceOf(t, l, domain.AccountPlatform))

			events, err := l.ListEvents(ctx, 0, 10)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestCreateJob_EscrowOverflowAppliesNothing(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	// an escrow pool one step from the Amount ceiling
	nearMax := pow2(255).Sub(domain.NewAmount(1)).Add(pow2(255)).Sub(domain.NewAmount(10))
	require.NoError(t, store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.Credit(ctx, domain.AccountEscrow, nearMax)
	}))

	_, err := l.CreateJob(ctx, client, domain.KindSum, input, jobReward)
	require.ErrorIs(t, err, domain.ErrAmountOverflow)

	_, err = l.GetJob(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.Equal(t, nearMax.String(), balanceOf(t, l, domain.AccountEscrow))
	assert.Equal(t, "0", balanceOf(t, l, domain.AccountPlatform))

	events, err := l.ListEvents(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	// the next accepted job still gets id 1
	small, err := l.CreateJob(ctx, client, domain.KindSum, input, domain.NewAmount(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), small.ID)
}

func TestRegisterWorker_StakePastBound(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.RegisterWorker(context.Background(), worker1, "big", pow2(domain.MaxAmountBits))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorIs(t, err, domain.ErrAmountTooLarge)
	assert.Equal(t, "0", balanceOf(t, l, domain.AccountStake))
}

func TestClaimJob(t *testing.T) {
	ctx := context.Background()

	t.Run("active worker claims", func(t *testing.T) {
		l, _ := newTestLedger(t)
		mustRegister(t, l, worker1)
		job := mustCreate(t, l)

		claimed, err := l.ClaimJob(ctx, worker1, job.ID)
		require.NoError(t, err)
		assert.Equal(t, worker1, claimed.Worker)
		assert.Equal(t, domain.JobStatusAssigned, claimed.Status)
	})

	t.Run("non worker rejected", func(t *testing.T) {
		l, _ := newTestLedger(t)
		job := mustCreate(t, l)
		_, err := l.ClaimJob(ctx, client, job.ID)
		assert.ErrorIs(t, err, domain.ErrNotAnActiveWorker)
	})

	t.Run("unknown job", func(t *testing.T) {
		l, _ := newTestLedger(t)
		mustRegister(t, l, worker1)
		_, err := l.ClaimJob(ctx, worker1, 42)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("scenario E: second claim loses", func(t *testing.T) {
		l, _ := newTestLedger(t)
		mustRegister(t, l, worker1)
		mustRegister(t, l, worker2)
		job := mustCreate(t, l)

		_, err := l.ClaimJob(ctx, worker1, job.ID)
		require.NoError(t, err)
		_, err = l.ClaimJob(ctx, worker2, job.ID)
		assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)

		// the same worker claiming twice is also a lost race
		_, err = l.ClaimJob(ctx, worker1, job.ID)
		assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)

		got, err := l.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, worker1, got.Worker)
	})
}

func TestClaimJob_ConcurrentRace(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	const contenders = 16
	workers := make([]string, contenders)
	for i := range workers {
		workers[i] = fmt.Sprintf("0xrace%02d", i)
		mustRegister(t, l, workers[i])
	}
	job := mustCreate(t, l)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	start := make(chan struct{})
	for _, w := range workers {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			<-start
			_, err := l.ClaimJob(ctx, w, job.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, w)
			case errors.Is(err, domain.ErrJobAlreadyClaimed):
				losers++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}(w)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, contenders-1, losers)

	got, err := l.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.Worker)

	events, err := l.JobEvents(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventJobAssigned, events[1].Type)
	assert.Equal(t, winners[0], events[1].Actor)
}

func TestSubmitResult(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustRegister(t, l, worker1)
	mustRegister(t, l, worker2)
	job := mustCreate(t, l)

	_, err := l.SubmitResult(ctx, worker1, job.ID, []byte("early"))
	assert.ErrorIs(t, err, domain.ErrNotAssignedToCaller)

	_, err = l.ClaimJob(ctx, worker1, job.ID)
	require.NoError(t, err)

	_, err = l.SubmitResult(ctx, worker2, job.ID, []byte("intruder"))
	assert.ErrorIs(t, err, domain.ErrNotAssignedToCaller)

	completed, err := l.SubmitResult(ctx, worker1, job.ID, []byte("encrypted_result"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, completed.Status)
	assert.Equal(t, "encrypted_result", string(completed.EncryptedResult))
	require.NotNil(t, completed.CompletedAt)

	_, err = l.SubmitResult(ctx, worker1, job.ID, []byte("again"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := l.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "encrypted_result", string(got.EncryptedResult))
}

func TestScenarioB_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustRegister(t, l, worker1)
	job := mustCreate(t, l)

	_, err := l.ClaimJob(ctx, worker1, job.ID)
	require.NoError(t, err)

	_, err = l.VerifyAndPay(ctx, client, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = l.SubmitResult(ctx, worker1, job.ID, []byte("encrypted_result"))
	require.NoError(t, err)

	_, err = l.VerifyAndPay(ctx, worker1, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotClient)

	before := balanceOf(t, l, worker1)
	verified, err := l.VerifyAndPay(ctx, client, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusVerified, verified.Status)
	assert.Equal(t, "0", before)
	assert.Equal(t, "49000000000000000", balanceOf(t, l, worker1))
	assert.Equal(t, "0", balanceOf(t, l, domain.AccountEscrow))

	w, err := l.GetWorker(ctx, worker1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.CompletedJobs)
	assert.Greater(t, w.Reputation, int64(domain.InitialReputation))

	events, err := l.JobEvents(ctx, job.ID)
	require.NoError(t, err)
	types := make([]domain.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []domain.EventType{
		domain.EventJobCreated,
		domain.EventJobAssigned,
		domain.EventResultSubmitted,
		domain.EventJobCompleted,
	}, types)
	assert.Equal(t, "49000000000000000", events[3].Amount.String())

	workerJobs, err := l.GetWorkerJobs(ctx, worker1, 0, 10)
	require.NoError(t, err)
	require.Len(t, workerJobs, 1)
	assert.Equal(t, job.ID, workerJobs[0].ID)
}

func TestScenarioC_CancelPending(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustRegister(t, l, worker1)
	job := mustCreate(t, l)

	_, err := l.CancelJob(ctx, "0xstranger", job.ID)
	assert.ErrorIs(t, err, domain.ErrNotClient)

	cancelled, err := l.CancelJob(ctx, client, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)
	assert.Equal(t, "49000000000000000", balanceOf(t, l, client))
	// the fee reserved at creation stays with the platform
	assert.Equal(t, "1000000000000000", balanceOf(t, l, domain.AccountPlatform))
	assert.Equal(t, "0", balanceOf(t, l, domain.AccountEscrow))

	_, err = l.ClaimJob(ctx, worker1, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
}

func TestScenarioD_CannotCancelAssigned(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustRegister(t, l, worker1)
	job := mustCreate(t, l)

	_, err := l.ClaimJob(ctx, worker1, job.ID)
	require.NoError(t, err)

	_, err = l.CancelJob(ctx, client, job.ID)
	assert.ErrorIs(t, err, domain.ErrCannotCancel)

	got, err := l.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusAssigned, got.Status)
	assert.Equal(t, worker1, got.Worker)
	assert.Equal(t, "0", balanceOf(t, l, client))
}

func TestTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()

	verifiedLedger, _ := newTestLedger(t)
	mustRegister(t, verifiedLedger, worker1)
	mustRegister(t, verifiedLedger, worker2)
	verified := mustCreate(t, verifiedLedger)
	_, err := verifiedLedger.ClaimJob(ctx, worker1, verified.ID)
	require.NoError(t, err)
	_, err = verifiedLedger.SubmitResult(ctx, worker1, verified.ID, []byte("r"))
	require.NoError(t, err)
	_, err = verifiedLedger.VerifyAndPay(ctx, client, verified.ID)
	require.NoError(t, err)

	cancelledLedger, _ := newTestLedger(t)
	mustRegister(t, cancelledLedger, worker1)
	mustRegister(t, cancelledLedger, worker2)
	cancelled := mustCreate(t, cancelledLedger)
	_, err = cancelledLedger.CancelJob(ctx, client, cancelled.ID)
	require.NoError(t, err)

	for name, tc := range map[string]struct {
		l     *Ledger
		jobID uint64
	}{
		"verified":  {verifiedLedger, verified.ID},
		"cancelled": {cancelledLedger, cancelled.ID},
	} {
		t.Run(name, func(t *testing.T) {
			l := tc.l
			before, err := l.GetJob(ctx, tc.jobID)
			require.NoError(t, err)
			escrow := balanceOf(t, l, domain.AccountEscrow)
			clientBalance := balanceOf(t, l, client)
			workerBalance := balanceOf(t, l, worker1)

			_, err = l.ClaimJob(ctx, worker2, tc.jobID)
			assert.Error(t, err)
			_, err = l.SubmitResult(ctx, worker1, tc.jobID, []byte("x"))
			assert.Error(t, err)
			_, err = l.VerifyAndPay(ctx, client, tc.jobID)
			assert.Error(t, err)
			_, err = l.CancelJob(ctx, client, tc.jobID)
			assert.Error(t, err)

			after, err := l.GetJob(ctx, tc.jobID)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, before.Worker, after.Worker)
			assert.Equal(t, escrow, balanceOf(t, l, domain.AccountEscrow))
			assert.Equal(t, clientBalance, balanceOf(t, l, client))
			assert.Equal(t, workerBalance, balanceOf(t, l, worker1))
		})
	}
}

func TestMarkResultDecrypted(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustRegister(t, l, worker1)
	job := mustCreate(t, l)

	_, err := l.MarkResultDecrypted(ctx, client, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = l.ClaimJob(ctx, worker1, job.ID)
	require.NoError(t, err)
	_, err = l.SubmitResult(ctx, worker1, job.ID, []byte("r"))
	require.NoError(t, err)

	_, err = l.MarkResultDecrypted(ctx, worker1, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotClient)

	marked, err := l.MarkResultDecrypted(ctx, client, job.ID)
	require.NoError(t, err)
	assert.True(t, marked.ResultDecrypted)
	assert.Equal(t, domain.JobStatusCompleted, marked.Status)

	// repeating is a no-op without a second event
	_, err = l.MarkResultDecrypted(ctx, client, job.ID)
	require.NoError(t, err)
	events, err := l.JobEvents(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestWithdrawPlatformFees(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustCreate(t, l)
	mustCreate(t, l)

	_, err := l.WithdrawPlatformFees(ctx, client)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	amount, err := l.WithdrawPlatformFees(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000", amount.String())
	assert.Equal(t, "0", balanceOf(t, l, domain.AccountPlatform))
	assert.Equal(t, "2000000000000000", balanceOf(t, l, owner))

	amount, err = l.WithdrawPlatformFees(ctx, owner)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestGetAllWorkersPaged(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		mustRegister(t, l, fmt.Sprintf("0xw%d", i))
	}
	_, err := l.DeregisterWorker(ctx, "0xw1")
	require.NoError(t, err)

	page, err := l.GetAllWorkers(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "0xw2", page[2].Address)

	page, err = l.GetAllWorkers(ctx, page[2].Address, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)

	active, err := l.ListWorkers(ctx, storage.WorkerFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 4)
}
