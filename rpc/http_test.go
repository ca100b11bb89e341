package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/native/token"
	"stakeledger/storage"
)

type testEnv struct {
	server *Server
	ledger *token.Ledger
	owner  string
	user   string
	module [20]byte
}

func bech32Addr(suffix byte) string {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.NewAddress(raw).String()
}

func rawAddr(suffix byte) [20]byte {
	var a [20]byte
	a[len(a)-1] = suffix
	return a
}

func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()
	env := &testEnv{
		owner:  bech32Addr(0xAA),
		user:   bech32Addr(0x01),
		module: rawAddr(0xFE),
	}
	owner := rawAddr(0xAA)
	user := rawAddr(0x01)

	env.ledger = token.NewLedger()
	if err := env.ledger.Mint(user, big.NewInt(10000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.ledger.Approve(user, env.module, big.NewInt(10000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	store := staking.NewStore(storage.NewMemDB())
	cfg := ServerConfig{Token: env.ledger}
	switch mode {
	case "compound":
		engine := staking.NewCompoundEngine(owner, env.module, "rpc-test")
		engine.SetState(store)
		engine.SetToken(env.ledger)
		cfg.Compound = engine
	case "period":
		engine := staking.NewPeriodEngine(owner, env.module, "rpc-test")
		engine.SetState(store)
		engine.SetToken(env.ledger)
		cfg.Period = engine
	default:
		t.Fatalf("unknown mode %q", mode)
	}
	env.server = NewServer(cfg)
	return env
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func call(t *testing.T, s *Server, method string, params ...interface{}) (*rpcReply, int) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	reply := &rpcReply{}
	if err := json.Unmarshal(rec.Body.Bytes(), reply); err != nil {
		t.Fatalf("decode reply: %v (%s)", err, rec.Body.String())
	}
	return reply, rec.Code
}

func TestStakeAndQueryCompound(t *testing.T) {
	env := newTestEnv(t, "compound")

	reply, code := call(t, env.server, "staking_stake", map[string]interface{}{
		"caller": env.user, "amount": "500", "instant": true,
	})
	if code != http.StatusOK || reply.Error != nil {
		t.Fatalf("stake failed: code=%d err=%+v", code, reply.Error)
	}
	var sh StakeholderResult
	if err := json.Unmarshal(reply.Result, &sh); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if sh.StakingBalance != "500" || !sh.IsStaking {
		t.Fatalf("unexpected stakeholder: %+v", sh)
	}

	reply, _ = call(t, env.server, "token_balanceOf", env.user)
	var balance map[string]string
	if err := json.Unmarshal(reply.Result, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != "9500" {
		t.Fatalf("balance = %s, want 9500", balance["balance"])
	}

	reply, _ = call(t, env.server, "staking_totalStake")
	var total map[string]string
	if err := json.Unmarshal(reply.Result, &total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total["totalStake"] != "500" {
		t.Fatalf("total stake = %s, want 500", total["totalStake"])
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t, "compound")
	reply, code := call(t, env.server, "staking_frobnicate")
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if reply.Error == nil || reply.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want method not found", reply.Error)
	}
}

func TestModeGuards(t *testing.T) {
	env := newTestEnv(t, "compound")
	reply, code := call(t, env.server, "staking_requestWithdrawal", map[string]interface{}{
		"caller": env.user, "amount": "10",
	})
	if code != http.StatusNotImplemented || reply.Error == nil {
		t.Fatalf("period method in compound mode: code=%d err=%+v", code, reply.Error)
	}

	env = newTestEnv(t, "period")
	reply, code = call(t, env.server, "staking_totalStake")
	if code != http.StatusNotImplemented || reply.Error == nil {
		t.Fatalf("compound method in period mode: code=%d err=%+v", code, reply.Error)
	}
}

func TestInvalidAddressRejected(t *testing.T) {
	env := newTestEnv(t, "compound")
	reply, code := call(t, env.server, "staking_stake", map[string]interface{}{
		"caller": "nothex", "amount": "10",
	})
	if code != http.StatusBadRequest || reply.Error == nil || reply.Error.Code != codeInvalidParams {
		t.Fatalf("code=%d err=%+v", code, reply.Error)
	}
}

func TestOwnerGateSurfacesAsUnauthorized(t *testing.T) {
	env := newTestEnv(t, "period")
	reply, code := call(t, env.server, "staking_setRewardPerPeriod", map[string]interface{}{
		"caller": env.user, "amount": "100",
	})
	if code != http.StatusForbidden || reply.Error == nil || reply.Error.Code != codeUnauthorized {
		t.Fatalf("code=%d err=%+v", code, reply.Error)
	}

	reply, code = call(t, env.server, "staking_setRewardPerPeriod", map[string]interface{}{
		"caller": env.owner, "amount": "100",
	})
	if code != http.StatusOK || reply.Error != nil {
		t.Fatalf("owner call failed: code=%d err=%+v", code, reply.Error)
	}
}

func TestPeriodViews(t *testing.T) {
	env := newTestEnv(t, "period")
	if reply, code := call(t, env.server, "staking_stake", map[string]interface{}{
		"caller": env.user, "amount": "100",
	}); code != http.StatusOK || reply.Error != nil {
		t.Fatalf("stake: code=%d err=%+v", code, reply.Error)
	}

	reply, code := call(t, env.server, "staking_currentPeriod")
	if code != http.StatusOK || reply.Error != nil {
		t.Fatalf("current period: code=%d err=%+v", code, reply.Error)
	}
	var current currentPeriodResult
	if err := json.Unmarshal(reply.Result, &current); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if current.PeriodCount != 1 {
		t.Fatalf("period count = %d, want 1", current.PeriodCount)
	}

	reply, code = call(t, env.server, "staking_getPeriod", 0)
	if code != http.StatusOK || reply.Error != nil {
		t.Fatalf("get period: code=%d err=%+v", code, reply.Error)
	}
	var per PeriodResult
	if err := json.Unmarshal(reply.Result, &per); err != nil {
		t.Fatalf("decode period: %v", err)
	}
	if per.TotalNewStake != "100" {
		t.Fatalf("open period new stake = %s, want 100", per.TotalNewStake)
	}

	if reply, code := call(t, env.server, "staking_getPeriod", 7); code != http.StatusNotFound || reply.Error == nil {
		t.Fatalf("missing period: code=%d err=%+v", code, reply.Error)
	}
}

func TestAuthTokenEnforced(t *testing.T) {
	env := newTestEnv(t, "compound")
	env.server.authToken = "sekrit"

	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "staking_stake",
		"params": []interface{}{map[string]interface{}{"caller": env.user, "amount": "10", "instant": true}},
	})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", "sekrit"))
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: status = %d body=%s", rec.Code, rec.Body.String())
	}

	// Read-only queries stay open.
	reply, code := call(t, env.server, "token_balanceOf", env.user)
	if code != http.StatusOK || reply.Error != nil {
		t.Fatalf("query with auth enabled: code=%d err=%+v", code, reply.Error)
	}
}
