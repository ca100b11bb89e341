package staking

import (
	"math/big"
	"sync"
	"time"
)

// CompoundEngine implements the lazily-compounded staking ledger: rewards
// accrue per account as compound interest, applied whenever the account is
// touched. Deferred stake and weight changes are merged at the first period
// boundary a settlement crosses.
//
// Every mutating call settles the stakeholder first and persists nothing
// until all checks and token transfers have succeeded, so a failed call
// leaves no partial state behind.
type CompoundEngine struct {
	mu       sync.Mutex
	state    engineState
	token    TokenLedger
	owner    [20]byte
	module   [20]byte
	ledgerID string
	now      func() time.Time
}

// NewCompoundEngine constructs a compound staking engine. The module address
// is the account holding staked funds on the token ledger; ledgerID scopes
// weight authorisation signatures to this deployment.
func NewCompoundEngine(owner, module [20]byte, ledgerID string) *CompoundEngine {
	return &CompoundEngine{owner: owner, module: module, ledgerID: ledgerID}
}

// SetState wires the engine to its persistence layer.
func (e *CompoundEngine) SetState(state engineState) { e.state = state }

// SetToken wires the engine to the external token ledger.
func (e *CompoundEngine) SetToken(token TokenLedger) { e.token = token }

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *CompoundEngine) SetClock(now func() time.Time) { e.now = now }

// ModuleAddress returns the token ledger account holding staked funds.
func (e *CompoundEngine) ModuleAddress() [20]byte { return e.module }

func (e *CompoundEngine) nowUnix() uint64 {
	if e.now != nil {
		return uint64(e.now().UTC().Unix())
	}
	return uint64(time.Now().UTC().Unix())
}

func (e *CompoundEngine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.token == nil {
		return ErrNilToken
	}
	return nil
}

// settleCompound folds every whole elapsed period into the stakeholder's
// balance. The cursor advances by whole periods only, so the fractional tail
// of a period carries over to the next settlement. Deferred stake and weight
// merge after the first crossed boundary: the period in flight when they were
// requested still accrues on the old values.
func settleCompound(p Params, sh *Stakeholder, now uint64) *big.Int {
	reward := big.NewInt(0)
	if sh.InterestDate == 0 || now <= sh.InterestDate {
		return reward
	}
	steps := (now - sh.InterestDate) / p.CompoundPeriod
	if steps == 0 {
		return reward
	}

	balance := copyBigInt(sh.StakingBalance)
	weight := sh.Weight
	for i := uint64(0); i < steps; i++ {
		increment := applyRate(balance, effectiveRate(p, weight), p.RateScale)
		balance.Add(balance, increment)
		reward.Add(reward, increment)
		if i == 0 {
			if sh.NewStake.Sign() > 0 {
				balance.Add(balance, sh.NewStake)
				sh.NewStake = big.NewInt(0)
			}
			if sh.HasNewWeight {
				weight = sh.NewWeight
				sh.HasNewWeight = false
			}
		}
	}
	sh.StakingBalance = balance
	sh.Weight = weight
	sh.InterestDate += steps * p.CompoundPeriod
	return reward
}

// Stake pulls amount from the caller's token balance into the ledger. With
// instant set the deposit starts accruing immediately and the accrual clock
// restarts at now; otherwise the deposit waits for the next period boundary.
func (e *CompoundEngine) Stake(addr [20]byte, amount *big.Int, instant bool) error {
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
	sh, ok, err := e.state.GetStakeholder(addr)
	if err != nil {
		return err
	}
	if !ok {
		sh = newStakeholder()
	}
	sh.normalize()

	now := e.nowUnix()
	reward := settleCompound(p, sh, now)

	if sh.InterestDate == 0 {
		sh.InterestDate = now
	}
	if instant {
		sh.StakingBalance.Add(sh.StakingBalance, amount)
		sh.InterestDate = now
		sh.StartDate = now
	} else {
		sh.NewStake.Add(sh.NewStake, amount)
		if sh.StartDate == 0 {
			sh.StartDate = now
		}
	}

	if err := e.token.TransferFrom(e.module, addr, e.module, amount); err != nil {
		return depositError(err)
	}

	total, err := e.state.TotalStake()
	if err != nil {
		return err
	}
	total.Add(total, amount)
	total.Add(total, reward)
	if err := e.state.PutTotalStake(total); err != nil {
		return err
	}
	if err := e.state.PutStakeholder(addr, sh); err != nil {
		return err
	}
	e.state.AppendEvent(newStakedEvent(addr, amount, instant))
	return nil
}

// ClaimRewards settles the caller's accrual. With withdraw set the newly
// accrued reward is paid out to the caller's token balance instead of
// compounding into the staked principal.
func (e *CompoundEngine) ClaimRewards(addr [20]byte, withdraw bool) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
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

	reward := settleCompound(p, sh, e.nowUnix())

	if withdraw {
		sh.StakingBalance.Sub(sh.StakingBalance, reward)
		if reward.Sign() > 0 {
			if err := e.token.Transfer(e.module, addr, reward); err != nil {
				return nil, err
			}
		}
	} else if reward.Sign() > 0 {
		total, err := e.state.TotalStake()
		if err != nil {
			return nil, err
		}
		total.Add(total, reward)
		if err := e.state.PutTotalStake(total); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutStakeholder(addr, sh); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newRewardsClaimedEvent(addr, reward, withdraw))
	return reward, nil
}

// UpdateWeight applies a signature-authorised weight change. Instant changes
// settle the old weight's accrual and restart the accrual clock at now;
// deferred changes take effect at the next boundary crossed.
func (e *CompoundEngine) UpdateWeight(addr [20]byte, weight uint64, sig []byte, instant bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.state.Params()
	if err != nil {
		return err
	}
	if err := e.verifyWeightSignature(p, addr, weight, sig); err != nil {
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

	now := e.nowUnix()
	reward := settleCompound(p, sh, now)
	if reward.Sign() > 0 {
		total, err := e.state.TotalStake()
		if err != nil {
			return err
		}
		total.Add(total, reward)
		if err := e.state.PutTotalStake(total); err != nil {
			return err
		}
	}

	if instant {
		sh.Weight = weight
		sh.HasNewWeight = false
		sh.InterestDate = now
	} else {
		sh.NewWeight = weight
		sh.HasNewWeight = true
	}

	if weight > p.MaxWeight {
		p.MaxWeight = weight
		if err := e.state.PutParams(p); err != nil {
			return err
		}
	}
	if err := e.state.PutStakeholder(addr, sh); err != nil {
		return err
	}
	e.state.AppendEvent(newWeightUpdatedEvent(addr, weight, instant))
	return nil
}

// WithdrawFunds pays out up to amount of the caller's settled principal.
// Requests above the available balance withdraw exactly the available
// balance; they do not fail. A full drain resets the deposit clock, while a
// partial withdrawal leaves it untouched.
func (e *CompoundEngine) WithdrawFunds(addr [20]byte, amount *big.Int) (*big.Int, error) {
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

	reward := settleCompound(p, sh, now)
	if sh.StakingBalance.Sign() == 0 {
		return nil, ErrInsufficientBalance
	}

	withdrawn := copyBigInt(amount)
	if withdrawn.Cmp(sh.StakingBalance) > 0 {
		withdrawn.Set(sh.StakingBalance)
	}
	sh.StakingBalance.Sub(sh.StakingBalance, withdrawn)
	if sh.StakingBalance.Sign() == 0 && sh.NewStake.Sign() == 0 {
		sh.StartDate = 0
	}

	if err := e.token.Transfer(e.module, addr, withdrawn); err != nil {
		return nil, err
	}

	total, err := e.state.TotalStake()
	if err != nil {
		return nil, err
	}
	total.Add(total, reward)
	total.Sub(total, withdrawn)
	if err := e.state.PutTotalStake(total); err != nil {
		return nil, err
	}
	if err := e.state.PutStakeholder(addr, sh); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newWithdrawnEvent(addr, withdrawn))
	return withdrawn, nil
}

// WithdrawRemainingFunds lets the owner sweep tokens held by the module that
// no stakeholder has a claim on. The amount is capped at the unstaked
// remainder.
func (e *CompoundEngine) WithdrawRemainingFunds(caller [20]byte, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller != e.owner {
		return nil, ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	total, err := e.state.TotalStake()
	if err != nil {
		return nil, err
	}
	available := e.token.BalanceOf(e.module)
	available.Sub(available, total)
	if available.Sign() <= 0 {
		return nil, ErrInsufficientBalance
	}
	withdrawn := copyBigInt(amount)
	if withdrawn.Cmp(available) > 0 {
		withdrawn.Set(available)
	}
	if err := e.token.Transfer(e.module, e.owner, withdrawn); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newWithdrawnEvent(e.owner, withdrawn))
	return withdrawn, nil
}

// Stakeholder returns a copy of the stored record for the address.
func (e *CompoundEngine) Stakeholder(addr [20]byte) (*Stakeholder, bool, error) {
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

// TotalStake returns the aggregate staked balance tracked by the engine.
func (e *CompoundEngine) TotalStake() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TotalStake()
}
