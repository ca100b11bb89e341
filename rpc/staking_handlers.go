package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
)

type stakeParams struct {
	Caller  string `json:"caller"`
	Amount  string `json:"amount"`
	Instant bool   `json:"instant,omitempty"`
}

type claimRewardsParams struct {
	Caller   string `json:"caller"`
	Withdraw bool   `json:"withdraw,omitempty"`
}

type updateWeightParams struct {
	Caller    string `json:"caller"`
	Weight    uint64 `json:"weight"`
	Signature string `json:"signature"`
	Instant   bool   `json:"instant,omitempty"`
}

type withdrawParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount,omitempty"`
}

type requestWithdrawalParams struct {
	Caller       string `json:"caller"`
	Amount       string `json:"amount"`
	AllowPartial bool   `json:"allowPartial,omitempty"`
}

type setRewardParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type updateParamParams struct {
	Caller string `json:"caller"`
	Param  string `json:"param"`
	Value  string `json:"value"`
}

type claimRewardsResult struct {
	Reward      string            `json:"reward"`
	Stakeholder StakeholderResult `json:"stakeholder"`
}

type withdrawResult struct {
	Withdrawn string `json:"withdrawn"`
}

type calculateRewardsResult struct {
	Reward    string            `json:"reward"`
	Projected StakeholderResult `json:"projected"`
}

type currentPeriodResult struct {
	CurrentPeriod uint64 `json:"currentPeriod"`
	PeriodCount   uint64 `json:"periodCount"`
}

func (s *Server) requireCompound(w http.ResponseWriter, id interface{}) bool {
	if s.compound == nil {
		writeError(w, http.StatusNotImplemented, id, codeMethodNotFound, "method requires compound mode", nil)
		return false
	}
	return true
}

func (s *Server) requirePeriod(w http.ResponseWriter, id interface{}) bool {
	if s.period == nil {
		writeError(w, http.StatusNotImplemented, id, codeMethodNotFound, "method requires period mode", nil)
		return false
	}
	return true
}

func (s *Server) stakeholderResultFor(addrStr string, addr [20]byte) (StakeholderResult, error) {
	if s.compound != nil {
		sh, ok, err := s.compound.Stakeholder(addr)
		if err != nil || !ok {
			return StakeholderResult{Address: addrStr}, err
		}
		return stakeholderResult(addrStr, sh), nil
	}
	sh, ok, err := s.period.Stakeholder(addr)
	if err != nil || !ok {
		return StakeholderResult{Address: addrStr}, err
	}
	return stakeholderResult(addrStr, sh), nil
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params stakeParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}

	if s.compound != nil {
		err = s.compound.Stake(addr, amount, params.Instant)
	} else if s.period != nil {
		err = s.period.Stake(addr, amount)
	} else {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "no engine configured", nil)
		return "error"
	}
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	result, err := s.stakeholderResultFor(params.Caller, addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params claimRewardsParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}

	var reward *big.Int
	if s.compound != nil {
		reward, err = s.compound.ClaimRewards(addr, params.Withdraw)
	} else if s.period != nil {
		reward, err = s.period.ClaimRewards(addr, params.Withdraw)
	} else {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "no engine configured", nil)
		return "error"
	}
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	stakeholder, err := s.stakeholderResultFor(params.Caller, addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, claimRewardsResult{Reward: bigString(reward), Stakeholder: stakeholder})
	return "ok"
}

func (s *Server) handleUpdateWeight(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params updateWeightParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.Signature), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", err.Error())
		return "invalid_params"
	}

	if s.compound != nil {
		err = s.compound.UpdateWeight(addr, params.Weight, sig, params.Instant)
	} else if s.period != nil {
		err = s.period.UpdateWeight(addr, params.Weight, sig)
	} else {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "no engine configured", nil)
		return "error"
	}
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	result, err := s.stakeholderResultFor(params.Caller, addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params withdrawParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}

	var withdrawn *big.Int
	if s.compound != nil {
		amount, err := parseAmount(params.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return "invalid_params"
		}
		withdrawn, err = s.compound.WithdrawFunds(addr, amount)
		if err != nil {
			return writeEngineError(w, req.ID, err)
		}
	} else if s.period != nil {
		withdrawn, err = s.period.WithdrawFunds(addr)
		if err != nil {
			return writeEngineError(w, req.ID, err)
		}
	} else {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "no engine configured", nil)
		return "error"
	}
	writeResult(w, req.ID, withdrawResult{Withdrawn: bigString(withdrawn)})
	return "ok"
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	if !s.requirePeriod(w, req.ID) {
		return "unsupported"
	}
	var params requestWithdrawalParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	withdrawn, err := s.period.RequestWithdrawal(addr, amount, params.AllowPartial)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, withdrawResult{Withdrawn: bigString(withdrawn)})
	return "ok"
}

func (s *Server) handleWithdrawRemaining(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	if !s.requireCompound(w, req.ID) {
		return "unsupported"
	}
	var params withdrawParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	withdrawn, err := s.compound.WithdrawRemainingFunds(addr, amount)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, withdrawResult{Withdrawn: bigString(withdrawn)})
	return "ok"
}

func (s *Server) handleSetRewardPerPeriod(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	if !s.requirePeriod(w, req.ID) {
		return "unsupported"
	}
	var params setRewardParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	// Zero is a valid budget: it suspends distribution.
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return "invalid_params"
	}
	if err := s.period.UpdateRewardPerPeriod(addr, amount); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"rewardPerPeriod": amount.String()})
	return "ok"
}

// handleUpdateParam routes owner parameter updates. Param selects the field;
// value is a decimal amount, a duration in seconds or a bech32 address
// depending on the field.
func (s *Server) handleUpdateParam(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params updateParamParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}

	err = s.applyParamUpdate(caller, params.Param, params.Value)
	if err != nil {
		var unknown *unknownParamError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, unknown.Error(), nil)
			return "invalid_params"
		}
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"param": params.Param, "value": params.Value})
	return "ok"
}

type unknownParamError struct {
	param string
}

func (e *unknownParamError) Error() string {
	return fmt.Sprintf("unknown or unsupported parameter %q", e.param)
}

func (s *Server) applyParamUpdate(caller [20]byte, param, value string) error {
	parseSeconds := func() (uint64, error) {
		seconds, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
		if !ok || seconds.Sign() < 0 || !seconds.IsUint64() {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return seconds.Uint64(), nil
	}
	parseRate := func() (*big.Int, error) {
		rate, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
		if !ok || rate.Sign() < 0 {
			return nil, fmt.Errorf("invalid rate %q", value)
		}
		return rate, nil
	}

	switch param {
	case "signatureAddress":
		addr, err := decodeBech32(value)
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		if s.compound != nil {
			return s.compound.UpdateSignatureAddress(caller, addr)
		}
		if s.period != nil {
			return s.period.UpdateSignatureAddress(caller, addr)
		}
	case "cooldown":
		seconds, err := parseSeconds()
		if err != nil {
			return err
		}
		if s.compound != nil {
			return s.compound.UpdateCooldown(caller, seconds)
		}
		if s.period != nil {
			return s.period.UpdateCooldown(caller, seconds)
		}
	case "baseRate":
		rate, err := parseRate()
		if err != nil {
			return err
		}
		if s.compound != nil {
			return s.compound.UpdateBaseRate(caller, rate)
		}
	case "extraRatePerWeight":
		rate, err := parseRate()
		if err != nil {
			return err
		}
		if s.compound != nil {
			return s.compound.UpdateExtraRatePerWeight(caller, rate)
		}
	case "rateScale":
		rate, err := parseRate()
		if err != nil {
			return err
		}
		if s.compound != nil {
			return s.compound.UpdateRateScale(caller, rate)
		}
	case "compoundPeriod":
		seconds, err := parseSeconds()
		if err != nil {
			return err
		}
		if s.compound != nil {
			return s.compound.UpdateCompoundPeriod(caller, seconds)
		}
	case "rewardPeriod":
		seconds, err := parseSeconds()
		if err != nil {
			return err
		}
		if s.period != nil {
			return s.period.UpdateRewardPeriodLength(caller, seconds)
		}
	}
	return &unknownParamError{param: param}
}

func parseAddressParam(params []json.RawMessage) (string, [20]byte, error) {
	if len(params) != 1 {
		return "", [20]byte{}, fmt.Errorf("address parameter required")
	}
	var addrStr string
	if err := json.Unmarshal(params[0], &addrStr); err != nil {
		return "", [20]byte{}, fmt.Errorf("invalid address parameter")
	}
	addr, err := decodeBech32(addrStr)
	if err != nil {
		return "", [20]byte{}, fmt.Errorf("invalid address: %w", err)
	}
	return addrStr, addr, nil
}

func (s *Server) handleGetStakeholder(w http.ResponseWriter, req *RPCRequest) string {
	addrStr, addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	result, err := s.stakeholderResultFor(addrStr, addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleCalculateRewards(w http.ResponseWriter, req *RPCRequest) string {
	if !s.requirePeriod(w, req.ID) {
		return "unsupported"
	}
	addrStr, addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	reward, projected, err := s.period.CalculateRewards(addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, calculateRewardsResult{
		Reward:    bigString(reward),
		Projected: stakeholderResult(addrStr, projected),
	})
	return "ok"
}

func (s *Server) handleTotalStake(w http.ResponseWriter, req *RPCRequest) string {
	if !s.requireCompound(w, req.ID) {
		return "unsupported"
	}
	total, err := s.compound.TotalStake()
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"totalStake": bigString(total)})
	return "ok"
}

func (s *Server) handleCurrentPeriod(w http.ResponseWriter, req *RPCRequest) string {
	if !s.requirePeriod(w, req.ID) {
		return "unsupported"
	}
	current, err := s.period.CurrentPeriod()
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	count, err := s.period.PeriodCount()
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, currentPeriodResult{CurrentPeriod: current, PeriodCount: count})
	return "ok"
}

func (s *Server) handleGetPeriod(w http.ResponseWriter, req *RPCRequest) string {
	if !s.requirePeriod(w, req.ID) {
		return "unsupported"
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "period index required", nil)
		return "invalid_params"
	}
	var index uint64
	if err := json.Unmarshal(req.Params[0], &index); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid period index", err.Error())
		return "invalid_params"
	}
	per, err := s.period.Period(index)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "period not found", err.Error())
		return "invalid_params"
	}
	writeResult(w, req.ID, periodResult(index, per))
	return "ok"
}
