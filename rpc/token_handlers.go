package rpc

import (
	"net/http"
)

type approveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) string {
	if s.token == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "token ledger unavailable", nil)
		return "error"
	}
	addrStr, addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	balance := s.token.BalanceOf(addr)
	writeResult(w, req.ID, map[string]string{"address": addrStr, "balance": bigString(balance)})
	return "ok"
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	if s.token == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "token ledger unavailable", nil)
		return "error"
	}
	var params approveParams
	if err := unmarshalSingleParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return "invalid_params"
	}
	spender, err := decodeBech32(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	if err := s.token.Approve(owner, spender, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	writeResult(w, req.ID, map[string]string{"allowance": bigString(s.token.Allowance(owner, spender))})
	return "ok"
}
