package staking

import "math/big"

// RewardPeriod is one entry of the append-only period ledger. Entries are
// contiguous in time; only the last entry is open (End == 0) and mutable.
// Balances confirmed before the period opened sit in the Total* aggregates,
// while deposits and weight deltas arriving during the period accumulate in
// TotalNew* and fold into the next period's Total* when it opens.
type RewardPeriod struct {
	// Start is the unix second the period opened, inclusive.
	Start uint64
	// End is the unix second the period closed, exclusive. Zero while open.
	End uint64
	// RewardPerPeriod is the reward budget distributed for this period.
	RewardPerPeriod *big.Int
	// TotalStakingBalance is the confirmed staked balance as of period start,
	// adjusted by claims settled while the period was open.
	TotalStakingBalance *big.Int
	// TotalWeightedStakingBalance applies each stakeholder's (1 + weight)
	// multiplier to its contribution.
	TotalWeightedStakingBalance *big.Int
	// TotalNewStake accumulates deposits made during this period.
	TotalNewStake *big.Int
	// TotalNewWeightedStake is TotalNewStake with weight multipliers applied.
	TotalNewWeightedStake *big.Int
	// TotalWeightedRewardsClaimed tallies weighted rewards settled while this
	// period was open, kept for reconciliation.
	TotalWeightedRewardsClaimed *big.Int
}

func newRewardPeriod(start uint64, rewardPerPeriod *big.Int) *RewardPeriod {
	return &RewardPeriod{
		Start:                       start,
		RewardPerPeriod:             copyBigInt(rewardPerPeriod),
		TotalStakingBalance:         big.NewInt(0),
		TotalWeightedStakingBalance: big.NewInt(0),
		TotalNewStake:               big.NewInt(0),
		TotalNewWeightedStake:       big.NewInt(0),
		TotalWeightedRewardsClaimed: big.NewInt(0),
	}
}

// Clone returns a deep copy of the period.
func (p *RewardPeriod) Clone() *RewardPeriod {
	if p == nil {
		return nil
	}
	return &RewardPeriod{
		Start:                       p.Start,
		End:                         p.End,
		RewardPerPeriod:             copyBigInt(p.RewardPerPeriod),
		TotalStakingBalance:         copyBigInt(p.TotalStakingBalance),
		TotalWeightedStakingBalance: copyBigInt(p.TotalWeightedStakingBalance),
		TotalNewStake:               copyBigInt(p.TotalNewStake),
		TotalNewWeightedStake:       copyBigInt(p.TotalNewWeightedStake),
		TotalWeightedRewardsClaimed: copyBigInt(p.TotalWeightedRewardsClaimed),
	}
}

// openNext builds the successor period: pending stake folds into the
// confirmed aggregates and the reward budget carries forward unchanged.
func (p *RewardPeriod) openNext() *RewardPeriod {
	next := newRewardPeriod(p.End, p.RewardPerPeriod)
	next.TotalStakingBalance.Add(p.TotalStakingBalance, p.TotalNewStake)
	next.TotalWeightedStakingBalance.Add(p.TotalWeightedStakingBalance, p.TotalNewWeightedStake)
	return next
}

// settledAggregates returns the pool aggregates this period would carry if
// closed with no further activity. Used to extrapolate periods that have
// elapsed on the clock but were never materialised because nothing touched
// the ledger.
func (p *RewardPeriod) settledAggregates() (total, weighted *big.Int) {
	total = new(big.Int).Add(p.TotalStakingBalance, p.TotalNewStake)
	weighted = new(big.Int).Add(p.TotalWeightedStakingBalance, p.TotalNewWeightedStake)
	return total, weighted
}
