package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stakeledger/config"
	"stakeledger/native/staking"
	"stakeledger/native/token"
	"stakeledger/observability/logging"
	"stakeledger/rpc"
	"stakeledger/storage"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("stakeledgerd", cfg.Log.Environment, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	if err := config.Validate(cfg); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.Node.DataDir, "ledger"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := staking.NewStore(db)
	if err := seedParams(cfg, store); err != nil {
		logger.Error("Failed to seed parameters", slog.Any("error", err))
		os.Exit(1)
	}

	// The token ledger stands in for the external token: process-local,
	// seeded from the genesis section at every boot.
	ledger := token.NewLedger()
	allocs, err := cfg.GenesisAllocations()
	if err != nil {
		logger.Error("Failed to parse genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}
	for addr, amount := range allocs {
		if err := ledger.Mint(addr, amount); err != nil {
			logger.Error("Failed to mint genesis allocation", slog.Any("error", err))
			os.Exit(1)
		}
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("Failed to decode owner address", slog.Any("error", err))
		os.Exit(1)
	}
	module := moduleAddress()

	serverCfg := rpc.ServerConfig{Token: ledger, Logger: logger}
	switch cfg.Staking.Mode {
	case config.ModePeriod:
		engine := staking.NewPeriodEngine(owner, module, cfg.Staking.LedgerID)
		engine.SetState(store)
		engine.SetToken(ledger)
		reward, err := cfg.RewardPerPeriod()
		if err != nil {
			logger.Error("Failed to parse reward per period", slog.Any("error", err))
			os.Exit(1)
		}
		if reward != nil {
			if err := engine.UpdateRewardPerPeriod(owner, reward); err != nil {
				logger.Error("Failed to set reward per period", slog.Any("error", err))
				os.Exit(1)
			}
		}
		serverCfg.Period = engine
	default:
		engine := staking.NewCompoundEngine(owner, module, cfg.Staking.LedgerID)
		engine.SetState(store)
		engine.SetToken(ledger)
		serverCfg.Compound = engine
	}

	logger.Info("Starting staking ledger",
		slog.String("mode", cfg.Staking.Mode),
		slog.String("ledger_id", cfg.Staking.LedgerID),
		slog.String("data_dir", cfg.Node.DataDir),
	)

	server := rpc.NewServer(serverCfg)
	if err := server.Start(cfg.Node.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedParams applies the configured parameters over the stored set. The
// stored MaxWeight high-water mark survives restarts; everything else is
// owned by the config file.
func seedParams(cfg *config.Config, store *staking.Store) error {
	params, err := cfg.StakingParams()
	if err != nil {
		return err
	}
	stored, err := store.Params()
	if err != nil {
		return err
	}
	params.MaxWeight = stored.MaxWeight
	return store.PutParams(params)
}

// moduleAddress is the token account holding staked funds, derived from a
// fixed label so every deployment agrees on it.
func moduleAddress() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("stakeledger/staking/module"))
	copy(addr[:], digest[12:])
	return addr
}
