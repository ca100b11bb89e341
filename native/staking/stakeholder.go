package staking

import "math/big"

// Stakeholder is the per-account ledger record, created lazily on first
// stake and never deleted. The compound engine drives StakingBalance through
// InterestDate; the period engine drives it through LastClaimed. StartDate
// doubles as the "not staking" sentinel: zero means the account holds no
// active deposit.
type Stakeholder struct {
	// StakingBalance is the confirmed staked principal.
	StakingBalance *big.Int
	// NewStake is a deposit waiting for the next boundary before it joins
	// StakingBalance.
	NewStake *big.Int
	// Weight is the confirmed reward multiplier.
	Weight uint64
	// NewWeight is a requested multiplier waiting for the next boundary.
	// Meaningful only while HasNewWeight is set.
	NewWeight    uint64
	HasNewWeight bool
	// StartDate is the unix time the current continuous stake began; zero
	// when not staking. Reward accrual never touches it.
	StartDate uint64
	// InterestDate marks how far compounding has been applied (compound
	// engine cursor, unix seconds). Only whole periods advance it, so the
	// fractional remainder of a period is carried to the next settlement.
	InterestDate uint64
	// LastClaimed is the first reward period the account has not yet been
	// paid for (period engine cursor).
	LastClaimed uint64
	// ReleaseAmount is stake confirmed for withdrawal but not yet
	// transferred out (period engine).
	ReleaseAmount *big.Int
}

// newStakeholder returns an empty record with all amounts initialised.
func newStakeholder() *Stakeholder {
	return &Stakeholder{
		StakingBalance: big.NewInt(0),
		NewStake:       big.NewInt(0),
		ReleaseAmount:  big.NewInt(0),
	}
}

// Clone returns a deep copy of the record.
func (s *Stakeholder) Clone() *Stakeholder {
	if s == nil {
		return nil
	}
	clone := *s
	clone.StakingBalance = copyBigInt(s.StakingBalance)
	clone.NewStake = copyBigInt(s.NewStake)
	clone.ReleaseAmount = copyBigInt(s.ReleaseAmount)
	return &clone
}

// IsStaking reports whether the account currently holds an active deposit.
func (s *Stakeholder) IsStaking() bool {
	return s != nil && s.StartDate != 0
}

// TotalBalance is the confirmed principal plus any pending deposit.
func (s *Stakeholder) TotalBalance() *big.Int {
	total := copyBigInt(s.StakingBalance)
	if s.NewStake != nil {
		total.Add(total, s.NewStake)
	}
	return total
}

func (s *Stakeholder) normalize() {
	if s.StakingBalance == nil {
		s.StakingBalance = big.NewInt(0)
	}
	if s.NewStake == nil {
		s.NewStake = big.NewInt(0)
	}
	if s.ReleaseAmount == nil {
		s.ReleaseAmount = big.NewInt(0)
	}
}
