package staking

import "math/big"

// mutateParams loads, mutates, validates and stores the parameter set, then
// emits a params.updated event for the named field.
func mutateParams(state engineState, field string, mutate func(*Params)) error {
	p, err := state.Params()
	if err != nil {
		return err
	}
	mutate(&p)
	if err := p.Validate(); err != nil {
		return err
	}
	if err := state.PutParams(p); err != nil {
		return err
	}
	state.AppendEvent(newParamsUpdatedEvent(field))
	return nil
}

// UpdateSignatureAddress rotates the account whose signatures authorise
// weight changes. Owner only.
func (e *CompoundEngine) UpdateSignatureAddress(caller, addr [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "signatureAddress", func(p *Params) {
		p.SignatureAddress = addr
	})
}

// UpdateBaseRate sets the per-period base reward numerator. Owner only.
func (e *CompoundEngine) UpdateBaseRate(caller [20]byte, rate *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "baseRate", func(p *Params) {
		p.BaseRate = copyBigInt(rate)
	})
}

// UpdateExtraRatePerWeight sets the per-weight-unit reward bonus numerator.
// Owner only.
func (e *CompoundEngine) UpdateExtraRatePerWeight(caller [20]byte, rate *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "extraRatePerWeight", func(p *Params) {
		p.ExtraRatePerWeight = copyBigInt(rate)
	})
}

// UpdateRateScale changes the shared rate denominator, rescaling the stored
// numerators so every effective percentage is preserved. Owner only.
func (e *CompoundEngine) UpdateRateScale(caller [20]byte, scale *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if scale == nil || scale.Sign() <= 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "rateScale", func(p *Params) {
		p.BaseRate = rescaleRate(p.BaseRate, scale, p.RateScale)
		p.ExtraRatePerWeight = rescaleRate(p.ExtraRatePerWeight, scale, p.RateScale)
		p.RateScale = copyBigInt(scale)
	})
}

// UpdateCompoundPeriod sets the accrual unit of the compound engine, in
// seconds. Owner only. Accrual already in flight keeps its cursor; only
// future settlements use the new length.
func (e *CompoundEngine) UpdateCompoundPeriod(caller [20]byte, seconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if seconds == 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "compoundPeriod", func(p *Params) {
		p.CompoundPeriod = seconds
	})
}

// UpdateCooldown sets the minimum deposit age before withdrawal, in seconds.
// Owner only.
func (e *CompoundEngine) UpdateCooldown(caller [20]byte, seconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "cooldown", func(p *Params) {
		p.Cooldown = seconds
	})
}

// UpdateSignatureAddress rotates the account whose signatures authorise
// weight changes. Owner only.
func (e *PeriodEngine) UpdateSignatureAddress(caller, addr [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "signatureAddress", func(p *Params) {
		p.SignatureAddress = addr
	})
}

// UpdateRewardPeriodLength sets the length of future reward periods, in
// seconds. Owner only. Periods are closed up to the current instant under
// the old length first so no period mixes the two.
func (e *PeriodEngine) UpdateRewardPeriodLength(caller [20]byte, seconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if seconds == 0 {
		return ErrInvalidParameter
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.state.Params()
	if err != nil {
		return err
	}
	if _, err := e.advancePeriods(p, e.nowUnix()); err != nil {
		return err
	}
	return mutateParams(e.state, "rewardPeriod", func(p *Params) {
		p.RewardPeriod = seconds
	})
}

// UpdateCooldown sets the minimum deposit age before a withdrawal request,
// in seconds. Owner only.
func (e *PeriodEngine) UpdateCooldown(caller [20]byte, seconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutateParams(e.state, "cooldown", func(p *Params) {
		p.Cooldown = seconds
	})
}
