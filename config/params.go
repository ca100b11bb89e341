package config

import (
	"fmt"
	"math/big"
	"strings"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

// StakingParams converts the configured staking section into the engine
// parameter set.
func (cfg *Config) StakingParams() (staking.Params, error) {
	p := staking.Params{
		CompoundPeriod: cfg.Staking.CompoundPeriodSeconds,
		RewardPeriod:   cfg.Staking.RewardPeriodSeconds,
		Cooldown:       cfg.Staking.CooldownSeconds,
	}
	var err error
	if p.BaseRate, err = parseAmount(cfg.Staking.BaseRate); err != nil {
		return p, fmt.Errorf("staking: invalid BaseRate: %w", err)
	}
	if p.ExtraRatePerWeight, err = parseAmount(cfg.Staking.ExtraRatePerWeight); err != nil {
		return p, fmt.Errorf("staking: invalid ExtraRatePerWeight: %w", err)
	}
	if p.RateScale, err = parseAmount(cfg.Staking.RateScale); err != nil {
		return p, fmt.Errorf("staking: invalid RateScale: %w", err)
	}
	if addr := strings.TrimSpace(cfg.Staking.SignatureAddress); addr != "" {
		decoded, err := crypto.DecodeAddress(addr)
		if err != nil {
			return p, fmt.Errorf("staking: invalid SignatureAddress: %w", err)
		}
		p.SignatureAddress = decoded.Raw()
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// OwnerAddress decodes the configured engine owner.
func (cfg *Config) OwnerAddress() ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(cfg.Staking.Owner))
	if err != nil {
		return [20]byte{}, fmt.Errorf("staking: invalid Owner: %w", err)
	}
	return decoded.Raw(), nil
}

// RewardPerPeriod parses the configured period reward budget; nil when the
// field is unset.
func (cfg *Config) RewardPerPeriod() (*big.Int, error) {
	if strings.TrimSpace(cfg.Staking.RewardPerPeriod) == "" {
		return nil, nil
	}
	amount, err := parseAmount(cfg.Staking.RewardPerPeriod)
	if err != nil {
		return nil, fmt.Errorf("staking: invalid RewardPerPeriod: %w", err)
	}
	return amount, nil
}

// GenesisAllocations decodes the token genesis section into addresses and
// amounts ready to mint.
func (cfg *Config) GenesisAllocations() (map[[20]byte]*big.Int, error) {
	allocs := make(map[[20]byte]*big.Int, len(cfg.Token.Genesis))
	for i, alloc := range cfg.Token.Genesis {
		decoded, err := crypto.DecodeAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("token: genesis[%d]: invalid address: %w", i, err)
		}
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("token: genesis[%d]: invalid amount: %w", i, err)
		}
		raw := decoded.Raw()
		if existing, ok := allocs[raw]; ok {
			existing.Add(existing, amount)
			continue
		}
		allocs[raw] = amount
	}
	return allocs, nil
}
