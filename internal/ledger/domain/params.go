package domain

import (
	"fmt"
	"strings"
)

// Params are the economic parameters every process sharing a ledger must agree on
type Params struct {
	Owner               string
	MinStake            Amount
	Fees                FeeSchedule
	ReputationIncrement int64
}

// Normalize fills the defaults a deployment may leave unset
func (p Params) Normalize() Params {
	if p.MinStake.IsNil() {
		p.MinStake = ZeroAmount()
	}
	if p.ReputationIncrement <= 0 {
		p.ReputationIncrement = DefaultReputationIncrement
	}
	return p
}

// Validate checks a normalized parameter set
func (p Params) Validate() error {
	if strings.TrimSpace(p.Owner) == "" {
		return fmt.Errorf("%w: ledger owner is required", ErrInvalidArgument)
	}
	if p.MinStake.IsNil() || p.MinStake.IsNegative() {
		return fmt.Errorf("%w: min stake must not be negative", ErrInvalidArgument)
	}
	if err := CheckAmountBound(p.MinStake); err != nil {
		return err
	}
	if err := p.Fees.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

// Equal compares two normalized parameter sets
func (p Params) Equal(o Params) bool {
	return p.Owner == o.Owner &&
		p.MinStake.Equal(o.MinStake) &&
		p.Fees == o.Fees &&
		p.ReputationIncrement == o.ReputationIncrement
}

func (p Params) String() string {
	return fmt.Sprintf("owner=%s min_stake=%s fee_bps=%d reputation_increment=%d",
		p.Owner, p.MinStake, p.Fees.BasisPoints, p.ReputationIncrement)
}
