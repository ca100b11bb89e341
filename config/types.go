package config

// Node holds daemon-level settings.
type Node struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
}

// Log controls structured log output and rotation.
type Log struct {
	Environment string `toml:"Environment"`
	File        string `toml:"File,omitempty"`
	MaxSizeMB   int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups  int    `toml:"MaxBackups,omitempty"`
}

// Staking configures the ledger engine. Amounts and rates are decimal
// strings so genesis files survive values beyond int64.
type Staking struct {
	// Mode selects the engine: "compound" or "period".
	Mode             string `toml:"Mode"`
	Owner            string `toml:"Owner"`
	LedgerID         string `toml:"LedgerID"`
	SignatureAddress string `toml:"SignatureAddress"`

	BaseRate           string `toml:"BaseRate"`
	ExtraRatePerWeight string `toml:"ExtraRatePerWeight"`
	RateScale          string `toml:"RateScale"`
	RewardPerPeriod    string `toml:"RewardPerPeriod,omitempty"`

	CompoundPeriodSeconds uint64 `toml:"CompoundPeriodSeconds"`
	RewardPeriodSeconds   uint64 `toml:"RewardPeriodSeconds"`
	CooldownSeconds       uint64 `toml:"CooldownSeconds"`
}

// GenesisAllocation seeds one token balance at first boot.
type GenesisAllocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Token configures the in-process token ledger.
type Token struct {
	Genesis []GenesisAllocation `toml:"Genesis"`
}

// Engine modes accepted by Staking.Mode.
const (
	ModeCompound = "compound"
	ModePeriod   = "period"
)
