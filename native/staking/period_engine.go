package staking

import (
	"math/big"
	"sync"
	"time"
)

// PeriodEngine implements the discrete reward period ledger: a global,
// append-only sequence of fixed-length periods, each distributing a fixed
// reward budget among weighted stakers. Per-account rewards are computed by
// replaying the closed periods the account missed; the period list itself is
// advanced lazily at the top of every mutating call.
type PeriodEngine struct {
	mu       sync.Mutex
	state    periodState
	token    TokenLedger
	owner    [20]byte
	module   [20]byte
	ledgerID string
	now      func() time.Time
}

// NewPeriodEngine constructs a period staking engine.
func NewPeriodEngine(owner, module [20]byte, ledgerID string) *PeriodEngine {
	return &PeriodEngine{owner: owner, module: module, ledgerID: ledgerID}
}

// SetState wires the engine to its persistence layer.
func (e *PeriodEngine) SetState(state periodState) { e.state = state }

// SetToken wires the engine to the external token ledger.
func (e *PeriodEngine) SetToken(token TokenLedger) { e.token = token }

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *PeriodEngine) SetClock(now func() time.Time) { e.now = now }

// ModuleAddress returns the token ledger account holding staked funds.
func (e *PeriodEngine) ModuleAddress() [20]byte { return e.module }

func (e *PeriodEngine) nowUnix() uint64 {
	if e.now != nil {
		return uint64(e.now().UTC().Unix())
	}
	return uint64(time.Now().UTC().Unix())
}

func (e *PeriodEngine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.token == nil {
		return ErrNilToken
	}
	return nil
}

// advancePeriods closes every period whose end boundary has elapsed and
// opens its successor, folding pending stake into the confirmed aggregates.
// Idempotent: calling it again with no time elapsed changes nothing. It may
// close many periods at once when the ledger has been dormant. Returns the
// index of the open period.
func (e *PeriodEngine) advancePeriods(p Params, now uint64) (uint64, error) {
	count, err := e.state.PeriodCount()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		if _, err := e.state.AppendPeriod(newRewardPeriod(now, nil)); err != nil {
			return 0, err
		}
		return 0, nil
	}

	index := count - 1
	last, err := e.state.GetPeriod(index)
	if err != nil {
		return 0, err
	}
	closed := uint64(0)
	for now >= last.Start+p.RewardPeriod {
		last.End = last.Start + p.RewardPeriod
		if err := e.state.PutPeriod(index, last); err != nil {
			return 0, err
		}
		next := last.openNext()
		index, err = e.state.AppendPeriod(next)
		if err != nil {
			return 0, err
		}
		last = next
		closed++
	}
	if closed > 0 {
		e.state.AppendEvent(newPeriodsAdvancedEvent(closed, index))
	}
	return index, nil
}

// periodAggregates returns the weighted pool total and reward budget for
// period n as of `now`, extrapolating periods that elapsed without being
// materialised: a dormant ledger keeps its last settled aggregates.
func (e *PeriodEngine) periodAggregates(n, count uint64, last *RewardPeriod) (weighted, reward *big.Int, err error) {
	switch {
	case n < count-1:
		per, err := e.state.GetPeriod(n)
		if err != nil {
			return nil, nil, err
		}
		return copyBigInt(per.TotalWeightedStakingBalance), copyBigInt(per.RewardPerPeriod), nil
	case n == count-1:
		return copyBigInt(last.TotalWeightedStakingBalance), copyBigInt(last.RewardPerPeriod), nil
	default:
		_, settledWeighted := last.settledAggregates()
		return settledWeighted, copyBigInt(last.RewardPerPeriod), nil
	}
}

// calculateRewards walks the closed periods since the stakeholder's cursor,
// accruing its weighted share of each period's budget. Rewards compound into
// the share used for the following period. Returns the total reward and the
// projected post-claim record; the stored record is not touched. Periods
// with no weighted stake distribute nothing: their budget is orphaned, not
// carried forward.
func (e *PeriodEngine) calculateRewards(p Params, sh *Stakeholder, now uint64) (*big.Int, *Stakeholder, error) {
	reward := big.NewInt(0)
	proj := sh.Clone()
	proj.normalize()

	count, err := e.state.PeriodCount()
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return reward, proj, nil
	}
	last, err := e.state.GetPeriod(count - 1)
	if err != nil {
		return nil, nil, err
	}
	current := count - 1 + (now-last.Start)/p.RewardPeriod
	if current < proj.LastClaimed {
		return reward, proj, nil
	}

	// The pending deposit joined the pool at the start of period
	// LastClaimed, which has begun by now.
	if proj.NewStake.Sign() > 0 {
		proj.StakingBalance.Add(proj.StakingBalance, proj.NewStake)
		proj.NewStake = big.NewInt(0)
	}

	for n := proj.LastClaimed; n < current; n++ {
		poolWeighted, budget, err := e.periodAggregates(n, count, last)
		if err != nil {
			return nil, nil, err
		}
		if poolWeighted.Sign() <= 0 || budget == nil || budget.Sign() <= 0 {
			continue
		}
		share := weightedAmount(proj.StakingBalance, proj.Weight)
		share.Mul(share, budget)
		share.Quo(share, poolWeighted)
		reward.Add(reward, share)
		proj.StakingBalance.Add(proj.StakingBalance, share)
	}
	proj.LastClaimed = current
	return reward, proj, nil
}

// applyClaim records a settled reward on the open period: compounded rewards
// join the confirmed pool immediately, withdrawn rewards only bump the
// reconciliation counter.
func applyClaim(open *RewardPeriod, reward *big.Int, weight uint64, withdrawn bool) {
	if reward == nil || reward.Sign() <= 0 {
		return
	}
	weighted := weightedAmount(reward, weight)
	if !withdrawn {
		open.TotalStakingBalance.Add(open.TotalStakingBalance, reward)
		open.TotalWeightedStakingBalance.Add(open.TotalWeightedStakingBalance, weighted)
	}
	open.TotalWeightedRewardsClaimed.Add(open.TotalWeightedRewardsClaimed, weighted)
}

// Stake pulls amount from the caller's token balance into the ledger. The
// deposit always joins the pool at the next period boundary; rewards pending
// for the caller are settled first.
func (e *PeriodEngine) Stake(addr [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return err
	}
	now := e.nowUnix()
	current, err := e.advancePeriods(p, now)
	if err != nil {
		return err
	}
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return err
	}
	if !ok {
		sh = newStakeholder()
	}
	sh.normalize()

	reward, proj, err := e.calculateRewards(p, sh, now)
	if err != nil {
		return err
	}
	open, err := e.state.GetPeriod(current)
	if err != nil {
		return err
	}
	applyClaim(open, reward, proj.Weight, false)

	proj.NewStake.Add(proj.NewStake, amount)
	proj.LastClaimed = current + 1
	if proj.StartDate == 0 {
		proj.StartDate = now
	}
	open.TotalNewStake.Add(open.TotalNewStake, amount)
	open.TotalNewWeightedStake.Add(open.TotalNewWeightedStake, weightedAmount(amount, proj.Weight))

	if err := e.token.TransferFrom(e.module, addr, e.module, amount); err != nil {
		return depositError(err)
	}
	if err := e.state.PutPeriod(current, open); err != nil {
		return err
	}
	if err := e.state.PutStakeholder(addr, proj); err != nil {
		return err
	}
	e.state.AppendEvent(newStakedEvent(addr, amount, false))
	return nil
}

// ClaimRewards settles every closed period since the caller's cursor. With
// withdraw set the reward is paid out to the caller's token balance instead
// of compounding into the staked principal.
func (e *PeriodEngine) ClaimRewards(addr [20]byte, withdraw bool) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return nil, err
	}
	now := e.nowUnix()
	current, err := e.advancePeriods(p, now)
	if err != nil {
		return nil, err
	}
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownStakeholder
	}
	sh.normalize()

	reward, proj, err := e.calculateRewards(p, sh, now)
	if err != nil {
		return nil, err
	}
	if withdraw && reward.Sign() > 0 {
		proj.StakingBalance.Sub(proj.StakingBalance, reward)
		if err := e.token.Transfer(e.module, addr, reward); err != nil {
			return nil, err
		}
	}

	open, err := e.state.GetPeriod(current)
	if err != nil {
		return nil, err
	}
	applyClaim(open, reward, proj.Weight, withdraw)
	if err := e.state.PutPeriod(current, open); err != nil {
		return nil, err
	}
	if err := e.state.PutStakeholder(addr, proj); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newRewardsClaimedEvent(addr, reward, withdraw))
	return reward, nil
}

// UpdateWeight applies a signature-authorised weight change. The caller's
// pending rewards settle under the old weight first; the new weight counts
// from the current period forward, never retroactively.
func (e *PeriodEngine) UpdateWeight(addr [20]byte, weight uint64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return err
	}
	if err := verifyWeightSignature(p, e.ledgerID, addr, weight, sig); err != nil {
		return err
	}
	now := e.nowUnix()
	current, err := e.advancePeriods(p, now)
	if err != nil {
		return err
	}
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownStakeholder
	}
	sh.normalize()

	reward, proj, err := e.calculateRewards(p, sh, now)
	if err != nil {
		return err
	}
	open, err := e.state.GetPeriod(current)
	if err != nil {
		return err
	}
	oldWeight := proj.Weight
	applyClaim(open, reward, oldWeight, false)

	// Re-weight the account's pool contributions: the confirmed balance
	// sits in the open period's totals, the pending deposit in the new
	// stake accumulators.
	open.TotalWeightedStakingBalance.Sub(open.TotalWeightedStakingBalance, weightedAmount(proj.StakingBalance, oldWeight))
	open.TotalWeightedStakingBalance.Add(open.TotalWeightedStakingBalance, weightedAmount(proj.StakingBalance, weight))
	open.TotalNewWeightedStake.Sub(open.TotalNewWeightedStake, weightedAmount(proj.NewStake, oldWeight))
	open.TotalNewWeightedStake.Add(open.TotalNewWeightedStake, weightedAmount(proj.NewStake, weight))
	proj.Weight = weight

	if weight > p.MaxWeight {
		p.MaxWeight = weight
		if err := e.state.PutParams(p); err != nil {
			return err
		}
	}
	if err := e.state.PutPeriod(current, open); err != nil {
		return err
	}
	if err := e.state.PutStakeholder(addr, proj); err != nil {
		return err
	}
	e.state.AppendEvent(newWeightUpdatedEvent(addr, weight, true))
	return nil
}

// RequestWithdrawal settles the caller's rewards, removes up to amount from
// the staked pool and queues it for transfer-out. When the settled principal
// cannot cover the request, allowPartial selects between failing and
// draining whatever is available. The cooldown gate applies here, where the
// accounting is confirmed; the later WithdrawFunds transfer is unrestricted.
func (e *PeriodEngine) RequestWithdrawal(addr [20]byte, amount *big.Int, allowPartial bool) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return nil, err
	}
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownStakeholder
	}
	sh.normalize()
	if !sh.IsStaking() {
		return nil, ErrInsufficientBalance
	}
	now := e.nowUnix()
	if now < sh.StartDate+p.Cooldown {
		return nil, ErrCooldownActive
	}
	current, err := e.advancePeriods(p, now)
	if err != nil {
		return nil, err
	}

	reward, proj, err := e.calculateRewards(p, sh, now)
	if err != nil {
		return nil, err
	}
	if proj.StakingBalance.Cmp(amount) < 0 && !allowPartial {
		return nil, ErrInsufficientBalance
	}

	open, err := e.state.GetPeriod(current)
	if err != nil {
		return nil, err
	}
	applyClaim(open, reward, proj.Weight, false)

	withdrawn := copyBigInt(amount)
	if withdrawn.Cmp(proj.StakingBalance) > 0 {
		withdrawn.Set(proj.StakingBalance)
	}
	proj.StakingBalance.Sub(proj.StakingBalance, withdrawn)
	proj.ReleaseAmount.Add(proj.ReleaseAmount, withdrawn)
	if proj.StakingBalance.Sign() == 0 && proj.NewStake.Sign() == 0 {
		proj.StartDate = 0
	}

	open.TotalStakingBalance.Sub(open.TotalStakingBalance, withdrawn)
	open.TotalWeightedStakingBalance.Sub(open.TotalWeightedStakingBalance, weightedAmount(withdrawn, proj.Weight))

	if err := e.state.PutPeriod(current, open); err != nil {
		return nil, err
	}
	if err := e.state.PutStakeholder(addr, proj); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newWithdrawalRequestedEvent(addr, withdrawn))
	return withdrawn, nil
}

// WithdrawFunds transfers the caller's queued release amount out to its
// token balance.
func (e *PeriodEngine) WithdrawFunds(addr [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return nil, err
	}
	if _, err := e.advancePeriods(p, e.nowUnix()); err != nil {
		return nil, err
	}
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownStakeholder
	}
	sh.normalize()
	if sh.ReleaseAmount.Sign() <= 0 {
		return nil, ErrInsufficientBalance
	}
	released := copyBigInt(sh.ReleaseAmount)
	if err := e.token.Transfer(e.module, addr, released); err != nil {
		return nil, err
	}
	sh.ReleaseAmount = big.NewInt(0)
	if err := e.state.PutStakeholder(addr, sh); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newWithdrawnEvent(addr, released))
	return released, nil
}

// UpdateRewardPerPeriod sets the reward budget of the currently open period.
// Within one period the last write wins; closed periods are never touched.
func (e *PeriodEngine) UpdateRewardPerPeriod(caller [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return err
	}
	current, err := e.advancePeriods(p, e.nowUnix())
	if err != nil {
		return err
	}
	open, err := e.state.GetPeriod(current)
	if err != nil {
		return err
	}
	open.RewardPerPeriod = copyBigInt(amount)
	if err := e.state.PutPeriod(current, open); err != nil {
		return err
	}
	e.state.AppendEvent(newParamsUpdatedEvent("rewardPerPeriod"))
	return nil
}

// CalculateRewards is the read-only reward projection for an address: the
// claimable reward and the record a claim would produce. The stored state is
// not modified, so dormant periods are extrapolated rather than materialised.
func (e *PeriodEngine) CalculateRewards(addr [20]byte) (*big.Int, *Stakeholder, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return nil, nil, err
	}
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrUnknownStakeholder
	}
	sh.normalize()
	return e.calculateRewards(p, sh, e.nowUnix())
}

// CurrentPeriod returns the index of the period containing the current
// instant, counting periods that have elapsed but are not yet materialised.
func (e *PeriodEngine) CurrentPeriod() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return 0, err
	}
	count, err := e.state.PeriodCount()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	last, err := e.state.GetPeriod(count - 1)
	if err != nil {
		return 0, err
	}
	now := e.nowUnix()
	if now < last.Start {
		return count - 1, nil
	}
	return count - 1 + (now-last.Start)/p.RewardPeriod, nil
}

// PeriodCount returns the number of materialised periods.
func (e *PeriodEngine) PeriodCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PeriodCount()
}

// Period returns a copy of the materialised period at the given index.
func (e *PeriodEngine) Period(index uint64) (*RewardPeriod, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	per, err := e.state.GetPeriod(index)
	if err != nil {
		return nil, err
	}
	return per.Clone(), nil
}

// Stakeholder returns a copy of the stored record for the address.
func (e *PeriodEngine) Stakeholder(addr [20]byte) (*Stakeholder, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil || !ok {
		return nil, ok, err
	}
	return sh.Clone(), true, nil
}
