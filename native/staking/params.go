package staking

import "math/big"

// Params holds the owner-mutable configuration consumed by both engines.
// Rates are integer numerators over RateScale: a BaseRate of 10 with a
// RateScale of 1000 is 1% per period.
type Params struct {
	// SignatureAddress is the account whose detached signatures authorise
	// weight changes.
	SignatureAddress [20]byte
	// BaseRate is the per-period reward numerator applied to every staked
	// balance (compound engine).
	BaseRate *big.Int
	// ExtraRatePerWeight is the additional per-period numerator granted per
	// unit of stakeholder weight (compound engine).
	ExtraRatePerWeight *big.Int
	// RateScale is the shared denominator for BaseRate and
	// ExtraRatePerWeight.
	RateScale *big.Int
	// CompoundPeriod is the accrual unit of the compound engine, in seconds.
	CompoundPeriod uint64
	// RewardPeriod is the length of a discrete reward period, in seconds.
	RewardPeriod uint64
	// Cooldown is how long a deposit must age before it can be withdrawn,
	// in seconds.
	Cooldown uint64
	// MaxWeight records the highest weight ever granted.
	MaxWeight uint64
}

// DefaultParams returns the parameters a fresh ledger starts with: 1% base
// reward per 30-day period, no weight bonus, 7-day cooldown.
func DefaultParams() Params {
	return Params{
		BaseRate:           big.NewInt(10),
		ExtraRatePerWeight: big.NewInt(0),
		RateScale:          big.NewInt(1000),
		CompoundPeriod:     30 * 24 * 60 * 60,
		RewardPeriod:       30 * 24 * 60 * 60,
		Cooldown:           7 * 24 * 60 * 60,
	}
}

// Validate ensures the parameters fall within safe operating ranges.
func (p Params) Validate() error {
	if p.RateScale == nil || p.RateScale.Sign() <= 0 {
		return ErrInvalidParameter
	}
	if p.BaseRate == nil || p.BaseRate.Sign() < 0 {
		return ErrInvalidParameter
	}
	if p.ExtraRatePerWeight == nil || p.ExtraRatePerWeight.Sign() < 0 {
		return ErrInvalidParameter
	}
	if p.CompoundPeriod == 0 || p.RewardPeriod == 0 {
		return ErrInvalidParameter
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.BaseRate = copyBigInt(p.BaseRate)
	clone.ExtraRatePerWeight = copyBigInt(p.ExtraRatePerWeight)
	clone.RateScale = copyBigInt(p.RateScale)
	return clone
}

func copyBigInt(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}
