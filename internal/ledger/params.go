package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
)

// Bootstrap records p as the shared ledger parameters on first start.
// Every later start must present the same values, so two processes can never
// apply different minimum stakes or fee rates to one ledger.
func Bootstrap(ctx context.Context, store storage.Store, p domain.Params) (domain.Params, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return domain.Params{}, err
	}

	stored, err := store.SaveParams(ctx, p)
	if err != nil {
		return domain.Params{}, err
	}
	if !stored.Equal(p) {
		return domain.Params{}, fmt.Errorf("%w: stored %s, configured %s", domain.ErrLedgerParamsMismatch, stored, p)
	}
	return stored, nil
}

// AwaitParams polls the store until another process has bootstrapped the ledger
func AwaitParams(ctx context.Context, store storage.Store, interval time.Duration, logger *slog.Logger) (domain.Params, error) {
	if interval <= 0 {
		interval = time.Second
	}

	for {
		p, err := store.LoadParams(ctx)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrLedgerParamsMissing) {
			return domain.Params{}, err
		}

		logger.Info("Waiting for ledger parameters", slog.Duration("retry_in", interval))
		select {
		case <-ctx.Done():
			return domain.Params{}, fmt.Errorf("%w: %w", domain.ErrLedgerParamsMissing, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// NewFromParams builds a ledger on stored parameters
func NewFromParams(store storage.Store, logger *slog.Logger, p domain.Params) (*Ledger, error) {
	return New(&Config{
		Store:               store,
		Logger:              logger,
		Owner:               p.Owner,
		MinStake:            p.MinStake,
		Fees:                p.Fees,
		ReputationIncrement: p.ReputationIncrement,
	})
}

// Params returns the parameters this ledger enforces
func (l *Ledger) Params() domain.Params {
	return domain.Params{
		Owner:               l.owner,
		MinStake:            l.minStake,
		Fees:                l.fees,
		ReputationIncrement: l.reputationIncrement,
	}
}
