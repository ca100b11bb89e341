package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Node    Node    `toml:"node"`
	Log     Log     `toml:"log"`
	Staking Staking `toml:"staking"`
	Token   Token   `toml:"token"`
}

// Load reads the configuration from the given path. A missing file is
// replaced with a persisted default so a fresh checkout boots without setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Node.ListenAddress) == "" {
		cfg.Node.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.Node.DataDir) == "" {
		cfg.Node.DataDir = "./stakeledger-data"
	}
	if strings.TrimSpace(cfg.Log.Environment) == "" {
		cfg.Log.Environment = "development"
	}
	if strings.TrimSpace(cfg.Staking.Mode) == "" {
		cfg.Staking.Mode = ModeCompound
	}
	if strings.TrimSpace(cfg.Staking.LedgerID) == "" {
		cfg.Staking.LedgerID = "stakeledger-local"
	}
	if strings.TrimSpace(cfg.Staking.BaseRate) == "" {
		cfg.Staking.BaseRate = "10"
	}
	if strings.TrimSpace(cfg.Staking.ExtraRatePerWeight) == "" {
		cfg.Staking.ExtraRatePerWeight = "0"
	}
	if strings.TrimSpace(cfg.Staking.RateScale) == "" {
		cfg.Staking.RateScale = "1000"
	}
	if cfg.Staking.CompoundPeriodSeconds == 0 {
		cfg.Staking.CompoundPeriodSeconds = 30 * 24 * 60 * 60
	}
	if cfg.Staking.RewardPeriodSeconds == 0 {
		cfg.Staking.RewardPeriodSeconds = 30 * 24 * 60 * 60
	}
	if cfg.Staking.CooldownSeconds == 0 {
		cfg.Staking.CooldownSeconds = 7 * 24 * 60 * 60
	}
}

// createDefault writes a default configuration file and returns it. Owner
// and signature addresses are left empty on purpose so the daemon refuses to
// start until the operator fills them in.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
