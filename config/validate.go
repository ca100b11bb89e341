package config

import (
	"fmt"
	"math/big"
	"strings"

	"stakeledger/crypto"
)

// Validate checks the configuration is complete enough to boot the daemon.
// Load does not call it, so tooling can read partial files; the daemon must.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	switch cfg.Staking.Mode {
	case ModeCompound, ModePeriod:
	default:
		return fmt.Errorf("staking: unknown mode %q", cfg.Staking.Mode)
	}
	if strings.TrimSpace(cfg.Staking.Owner) == "" {
		return fmt.Errorf("staking: Owner is required")
	}
	if _, err := crypto.DecodeAddress(cfg.Staking.Owner); err != nil {
		return fmt.Errorf("staking: invalid Owner: %w", err)
	}
	if addr := strings.TrimSpace(cfg.Staking.SignatureAddress); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("staking: invalid SignatureAddress: %w", err)
		}
	}
	for _, field := range []struct{ name, value string }{
		{"BaseRate", cfg.Staking.BaseRate},
		{"ExtraRatePerWeight", cfg.Staking.ExtraRatePerWeight},
		{"RateScale", cfg.Staking.RateScale},
	} {
		amount, err := parseAmount(field.value)
		if err != nil {
			return fmt.Errorf("staking: invalid %s: %w", field.name, err)
		}
		if field.name == "RateScale" && amount.Sign() <= 0 {
			return fmt.Errorf("staking: RateScale must be positive")
		}
	}
	if cfg.Staking.RewardPerPeriod != "" {
		if _, err := parseAmount(cfg.Staking.RewardPerPeriod); err != nil {
			return fmt.Errorf("staking: invalid RewardPerPeriod: %w", err)
		}
	}
	if cfg.Staking.CompoundPeriodSeconds == 0 || cfg.Staking.RewardPeriodSeconds == 0 {
		return fmt.Errorf("staking: period lengths must be positive")
	}
	for i, alloc := range cfg.Token.Genesis {
		if _, err := crypto.DecodeAddress(alloc.Address); err != nil {
			return fmt.Errorf("token: genesis[%d]: invalid address: %w", i, err)
		}
		if _, err := parseAmount(alloc.Amount); err != nil {
			return fmt.Errorf("token: genesis[%d]: invalid amount: %w", i, err)
		}
	}
	return nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("empty amount")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", value)
	}
	return amount, nil
}
