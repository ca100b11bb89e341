package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

// StakeholderResult is the JSON view of a ledger record. Amounts are decimal
// strings so clients never lose precision to float parsing.
type StakeholderResult struct {
	Address        string `json:"address"`
	StakingBalance string `json:"stakingBalance"`
	NewStake       string `json:"newStake"`
	Weight         uint64 `json:"weight"`
	NewWeight      uint64 `json:"newWeight,omitempty"`
	HasNewWeight   bool   `json:"hasNewWeight,omitempty"`
	StartDate      uint64 `json:"startDate"`
	InterestDate   uint64 `json:"interestDate,omitempty"`
	LastClaimed    uint64 `json:"lastClaimed,omitempty"`
	ReleaseAmount  string `json:"releaseAmount,omitempty"`
	IsStaking      bool   `json:"isStaking"`
}

// PeriodResult is the JSON view of one reward period.
type PeriodResult struct {
	Index                       uint64 `json:"index"`
	Start                       uint64 `json:"start"`
	End                         uint64 `json:"end,omitempty"`
	RewardPerPeriod             string `json:"rewardPerPeriod"`
	TotalStakingBalance         string `json:"totalStakingBalance"`
	TotalWeightedStakingBalance string `json:"totalWeightedStakingBalance"`
	TotalNewStake               string `json:"totalNewStake"`
	TotalNewWeightedStake       string `json:"totalNewWeightedStake"`
	TotalWeightedRewardsClaimed string `json:"totalWeightedRewardsClaimed"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func stakeholderResult(addr string, sh *staking.Stakeholder) StakeholderResult {
	return StakeholderResult{
		Address:        addr,
		StakingBalance: bigString(sh.StakingBalance),
		NewStake:       bigString(sh.NewStake),
		Weight:         sh.Weight,
		NewWeight:      sh.NewWeight,
		HasNewWeight:   sh.HasNewWeight,
		StartDate:      sh.StartDate,
		InterestDate:   sh.InterestDate,
		LastClaimed:    sh.LastClaimed,
		ReleaseAmount:  bigString(sh.ReleaseAmount),
		IsStaking:      sh.IsStaking(),
	}
}

func periodResult(index uint64, per *staking.RewardPeriod) PeriodResult {
	return PeriodResult{
		Index:                       index,
		Start:                       per.Start,
		End:                         per.End,
		RewardPerPeriod:             bigString(per.RewardPerPeriod),
		TotalStakingBalance:         bigString(per.TotalStakingBalance),
		TotalWeightedStakingBalance: bigString(per.TotalWeightedStakingBalance),
		TotalNewStake:               bigString(per.TotalNewStake),
		TotalNewWeightedStake:       bigString(per.TotalNewWeightedStake),
		TotalWeightedRewardsClaimed: bigString(per.TotalWeightedRewardsClaimed),
	}
}

func decodeBech32(addr string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(addr))
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Raw(), nil
}

func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func unmarshalSingleParam(params []json.RawMessage, target interface{}) error {
	if len(params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	if err := json.Unmarshal(params[0], target); err != nil {
		return fmt.Errorf("invalid parameter object")
	}
	return nil
}

// writeEngineError maps engine sentinel errors onto JSON-RPC errors and
// returns the metrics outcome label.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) string {
	switch {
	case errors.Is(err, staking.ErrNotOwner):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, "caller is not the owner", nil)
		return "unauthorized"
	case errors.Is(err, staking.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid weight authorisation signature", nil)
		return "invalid_params"
	case errors.Is(err, staking.ErrCooldownActive):
		writeError(w, http.StatusConflict, id, codeInvalidParams, "withdrawal cooldown still active", nil)
		return "cooldown"
	case errors.Is(err, staking.ErrInsufficientAllowance),
		errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, staking.ErrUnknownStakeholder),
		errors.Is(err, staking.ErrInvalidParameter):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
		return "error"
	}
}
