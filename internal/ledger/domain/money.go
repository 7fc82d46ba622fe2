package domain

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// MaxAmountBits bounds a single reward or stake. Pool balances are sums of
// such amounts and stay far below the 256-bit limit of Amount.
const MaxAmountBits = 192

var amountCeiling = sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), MaxAmountBits))

// Amount is a non-negative monetary value in the smallest unit
type Amount = sdkmath.Int

// ZeroAmount returns a zero amount
func ZeroAmount() Amount {
	return sdkmath.ZeroInt()
}

// NewAmount builds an amount from an int64
func NewAmount(v int64) Amount {
	return sdkmath.NewInt(v)
}

// ParseAmount parses a base-10 integer amount; negative values are rejected
func ParseAmount(s string) (Amount, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return Amount{}, fmt.Errorf("%w: malformed amount %q", ErrInvalidArgument, s)
	}
	if v.IsNegative() {
		return Amount{}, fmt.Errorf("%w: negative amount %q", ErrInvalidArgument, s)
	}
	return v, nil
}

// CheckAmountBound rejects amounts of MaxAmountBits bits or more
func CheckAmountBound(a Amount) error {
	if a.IsNil() {
		return fmt.Errorf("%w: missing amount", ErrInvalidArgument)
	}
	if a.GTE(amountCeiling) {
		return fmt.Errorf("%w: %s needs more than %d bits", ErrAmountTooLarge, a, MaxAmountBits)
	}
	return nil
}

// AddAmounts returns a + b, or ErrAmountOverflow instead of panicking
func AddAmounts(a, b Amount) (Amount, error) {
	sum, err := a.SafeAdd(b)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, a, b)
	}
	return sum, nil
}

// MustParseAmount is ParseAmount for constants and tests
func MustParseAmount(s string) Amount {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FeeSchedule splits a reward into platform fee and worker payout
type FeeSchedule struct {
	BasisPoints int64
}

// DefaultFeeSchedule charges DefaultFeeBasisPoints
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{BasisPoints: DefaultFeeBasisPoints}
}

// Validate checks the rate lies in [0, 100%]
func (f FeeSchedule) Validate() error {
	if f.BasisPoints < 0 || f.BasisPoints > BasisPointsDenominator {
		return fmt.Errorf("fee basis points must be between 0 and %d, got %d", BasisPointsDenominator, f.BasisPoints)
	}
	return nil
}

// Split returns (platformFee, payout). The fee truncates toward zero and
// payout takes the remainder, so fee + payout == reward always holds.
func (f FeeSchedule) Split(reward Amount) (fee Amount, payout Amount, err error) {
	scaled, err := reward.SafeMul(sdkmath.NewInt(f.BasisPoints))
	if err != nil {
		return Amount{}, Amount{}, fmt.Errorf("%w: fee on %s", ErrAmountOverflow, reward)
	}
	fee = scaled.QuoRaw(BasisPointsDenominator)
	payout = reward.Sub(fee)
	return fee, payout, nil
}
