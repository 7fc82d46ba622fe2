package worker

import (
	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// jobFilter selects the jobs this coordinator attempts
type jobFilter struct {
	kinds     map[domain.ComputationKind]struct{}
	minReward domain.Amount
}

func newJobFilter(kinds []domain.ComputationKind, minReward domain.Amount) jobFilter {
	f := jobFilter{minReward: minReward}
	if len(kinds) > 0 {
		f.kinds = make(map[domain.ComputationKind]struct{}, len(kinds))
		for _, k := range kinds {
			f.kinds[k] = struct{}{}
		}
	}
	if f.minReward.IsNil() {
		f.minReward = domain.ZeroAmount()
	}
	return f
}

// accepts compares against the worker payout, which is what the worker earns
func (f jobFilter) accepts(kind domain.ComputationKind, payout domain.Amount) bool {
	if f.kinds != nil {
		if _, ok := f.kinds[kind]; !ok {
			return false
		}
	}
	if payout.IsNil() {
		return f.minReward.IsZero()
	}
	return payout.GTE(f.minReward)
}

func (f jobFilter) acceptsJob(job *domain.Job) bool {
	return f.accepts(job.Kind, job.Payout)
}
