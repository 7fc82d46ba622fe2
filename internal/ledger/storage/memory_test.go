package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(client string) *domain.Job {
	return &domain.Job{
		Client:         client,
		Kind:           domain.KindSum,
		EncryptedInput: []byte("ciphertext"),
		Reward:         domain.NewAmount(100),
		PlatformFee:    domain.NewAmount(2),
		Payout:         domain.NewAmount(98),
		Status:         domain.JobStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestMemoryStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.WithTx(ctx, func(tx Tx) error {
		job := newTestJob("alice")
		require.NoError(t, tx.InsertJob(ctx, job))
		assert.Equal(t, uint64(1), job.ID)
		require.NoError(t, tx.Credit(ctx, domain.AccountEscrow, job.Payout))
		return tx.AppendEvent(ctx, &domain.Event{Type: domain.EventJobCreated, JobID: job.ID, Actor: "alice"})
	})
	require.NoError(t, err)

	job, err := store.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", job.Client)

	escrow, err := store.Balance(ctx, domain.AccountEscrow)
	require.NoError(t, err)
	assert.Equal(t, "98", escrow.String())

	events, err := store.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Seq)
}

func TestMemoryStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.Credit(ctx, "bob", domain.NewAmount(10))
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx Tx) error {
		job := newTestJob("alice")
		require.NoError(t, tx.InsertJob(ctx, job))
		require.NoError(t, tx.Debit(ctx, "bob", domain.NewAmount(4)))
		require.NoError(t, tx.Credit(ctx, "carol", domain.NewAmount(4)))
		require.NoError(t, tx.PutWorker(ctx, &domain.Worker{Address: "w1", Stake: domain.NewAmount(1), IsActive: true}))
		require.NoError(t, tx.AppendEvent(ctx, &domain.Event{Type: domain.EventJobCreated, JobID: job.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetJob(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = store.GetWorker(ctx, "w1")
	assert.ErrorIs(t, err, domain.ErrWorkerNotFound)

	bob, _ := store.Balance(ctx, "bob")
	carol, _ := store.Balance(ctx, "carol")
	assert.Equal(t, "10", bob.String())
	assert.True(t, carol.IsZero())

	events, err := store.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)

	// the rolled back ID is handed out again since it was never observable
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		job := newTestJob("alice")
		require.NoError(t, tx.InsertJob(ctx, job))
		assert.Equal(t, uint64(1), job.ID)
		return nil
	}))
}

func TestMemoryStore_WithTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	assert.Panics(t, func() {
		_ = store.WithTx(ctx, func(tx Tx) error {
			job := newTestJob("alice")
			require.NoError(t, tx.InsertJob(ctx, job))
			require.NoError(t, tx.Credit(ctx, domain.AccountEscrow, job.Payout))
			panic("kernel bug")
		})
	})

	_, err := store.GetJob(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	escrow, err := store.Balance(ctx, domain.AccountEscrow)
	require.NoError(t, err)
	assert.True(t, escrow.IsZero())

	// the lock was released and the id was not consumed
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		job := newTestJob("bob")
		require.NoError(t, tx.InsertJob(ctx, job))
		assert.Equal(t, uint64(1), job.ID)
		return nil
	}))
}

func TestMemoryStore_CreditOverflow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	half := domain.NewAmount(1 << 31)
	for i := 0; i < 7; i++ {
		half = half.MulRaw(1 << 32)
	}
	largest := half.SubRaw(1).Add(half)

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.Credit(ctx, domain.AccountPlatform, largest)
	}))

	err := store.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.Credit(ctx, "alice", domain.NewAmount(7)))
		return tx.Credit(ctx, domain.AccountPlatform, domain.NewAmount(1))
	})
	require.ErrorIs(t, err, domain.ErrAmountOverflow)

	platform, _ := store.Balance(ctx, domain.AccountPlatform)
	assert.True(t, platform.Equal(largest))
	alice, _ := store.Balance(ctx, "alice")
	assert.True(t, alice.IsZero())
}

func TestMemoryStore_DebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.WithTx(ctx, func(tx Tx) error {
		return tx.Debit(ctx, domain.AccountEscrow, domain.NewAmount(1))
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertJob(ctx, newTestJob("alice"))
	}))

	job, err := store.GetJob(ctx, 1)
	require.NoError(t, err)
	job.Status = domain.JobStatusVerified
	job.EncryptedInput[0] = 'X'

	fresh, err := store.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, fresh.Status)
	assert.Equal(t, "ciphertext", string(fresh.EncryptedInput))
}

func TestMemoryStore_ListJobsPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		for i := 0; i < 5; i++ {
			client := "alice"
			if i%2 == 1 {
				client = "bob"
			}
			if err := tx.InsertJob(ctx, newTestJob(client)); err != nil {
				return err
			}
		}
		return nil
	}))

	page, err := store.ListJobs(ctx, JobFilter{Client: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].ID)
	assert.Equal(t, uint64(3), page[1].ID)

	page, err = store.ListJobs(ctx, JobFilter{Client: "alice", AfterID: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(5), page[0].ID)

	all, err := store.ListJobs(ctx, JobFilter{Status: domain.JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStore_ListWorkersPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		for i := 0; i < 4; i++ {
			w := &domain.Worker{
				Address:  fmt.Sprintf("0x%02d", i),
				Stake:    domain.NewAmount(1),
				IsActive: i != 2,
			}
			if err := tx.PutWorker(ctx, w); err != nil {
				return err
			}
		}
		return nil
	}))

	page, err := store.ListWorkers(ctx, WorkerFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "0x01", page[1].Address)

	page, err = store.ListWorkers(ctx, WorkerFilter{AfterAddress: "0x01", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "0x03", page[0].Address)
}

func TestMemoryStore_EventsPublication(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		for jobID := uint64(1); jobID <= 3; jobID++ {
			if err := tx.AppendEvent(ctx, &domain.Event{Type: domain.EventJobCreated, JobID: jobID}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.MarkEventsPublished(ctx, []uint64{1, 2}))

	pending, err := store.ListEvents(ctx, EventFilter{UnpublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(3), pending[0].Seq)

	byJob, err := store.ListEvents(ctx, EventFilter{JobID: 2})
	require.NoError(t, err)
	require.Len(t, byJob, 1)
	assert.NotNil(t, byJob[0].PublishedAt)

	assert.Error(t, store.MarkEventsPublished(ctx, []uint64{9}))
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, NormalizeLimit(0))
	assert.Equal(t, DefaultPageSize, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxPageSize, NormalizeLimit(MaxPageSize+1))
}
