package staking

import "math/big"

// applyRate returns floor(balance * numerator / scale). Multiplication
// happens before division so a single step never loses more than one token
// unit to truncation; over N compounding steps the cumulative loss stays
// proportional to N/scale.
func applyRate(balance, numerator, scale *big.Int) *big.Int {
	if balance == nil || balance.Sign() <= 0 || numerator == nil || numerator.Sign() <= 0 {
		return big.NewInt(0)
	}
	increment := new(big.Int).Mul(balance, numerator)
	return increment.Quo(increment, scale)
}

// compound applies the per-period rate steps times, folding each increment
// back into the balance before the next step.
func compound(balance, numerator, scale *big.Int, steps uint64) *big.Int {
	result := new(big.Int).Set(balance)
	for i := uint64(0); i < steps; i++ {
		result.Add(result, applyRate(result, numerator, scale))
	}
	return result
}

// rescaleRate converts a stored rate numerator to a new scale, preserving
// the effective percentage: floor(value * newScale / oldScale).
func rescaleRate(value, newScale, oldScale *big.Int) *big.Int {
	if value == nil || value.Sign() == 0 {
		return big.NewInt(0)
	}
	rescaled := new(big.Int).Mul(value, newScale)
	return rescaled.Quo(rescaled, oldScale)
}

// effectiveRate is the per-period numerator for a stakeholder: the base rate
// plus the extra rate once per unit of weight.
func effectiveRate(p Params, weight uint64) *big.Int {
	rate := new(big.Int).Set(p.BaseRate)
	if weight == 0 || p.ExtraRatePerWeight == nil || p.ExtraRatePerWeight.Sign() == 0 {
		return rate
	}
	bonus := new(big.Int).Mul(p.ExtraRatePerWeight, new(big.Int).SetUint64(weight))
	return rate.Add(rate, bonus)
}

// weightedAmount scales a balance by (1 + weight): the unweighted balance
// plus one extra share per weight unit.
func weightedAmount(amount *big.Int, weight uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	factor := new(big.Int).SetUint64(weight + 1)
	return factor.Mul(factor, amount)
}
