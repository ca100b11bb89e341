package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"stakeledger/native/staking"
	"stakeledger/native/token"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	sourceRateLimit = rate.Limit(10)
	sourceRateBurst = 20
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the staking ledger over JSON-RPC. Exactly one of the two
// engines is wired depending on the configured mode.
type Server struct {
	compound *staking.CompoundEngine
	period   *staking.PeriodEngine
	token    *token.Ledger
	log      *slog.Logger
	metrics  *serverMetrics

	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Compound *staking.CompoundEngine
	Period   *staking.PeriodEngine
	Token    *token.Ledger
	Logger   *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		compound:  cfg.Compound,
		period:    cfg.Period,
		token:     cfg.Token,
		log:       logger,
		metrics:   newServerMetrics(),
		authToken: strings.TrimSpace(os.Getenv("STAKELEDGER_RPC_TOKEN")),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Router builds the HTTP routing table: JSON-RPC on /, liveness on /healthz,
// prometheus metrics on /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

// Start serves the router until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("rpc listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	source := clientSource(r)
	if !s.allowSource(source) {
		s.metrics.observe("", "rate_limited", 0)
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", source)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method is required", nil)
		return
	}

	start := time.Now()
	status := s.dispatch(w, r, &req)
	s.metrics.observe(req.Method, status, time.Since(start))
	s.log.Debug("rpc request", "method", req.Method, "status", status, "source", source)
}

// dispatch routes a request to its handler and reports an outcome label for
// metrics.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	switch req.Method {
	case "staking_stake":
		return s.handleStake(w, r, req)
	case "staking_claimRewards":
		return s.handleClaimRewards(w, r, req)
	case "staking_updateWeight":
		return s.handleUpdateWeight(w, r, req)
	case "staking_withdraw":
		return s.handleWithdraw(w, r, req)
	case "staking_requestWithdrawal":
		return s.handleRequestWithdrawal(w, r, req)
	case "staking_withdrawRemaining":
		return s.handleWithdrawRemaining(w, r, req)
	case "staking_setRewardPerPeriod":
		return s.handleSetRewardPerPeriod(w, r, req)
	case "staking_updateParam":
		return s.handleUpdateParam(w, r, req)
	case "staking_getStakeholder":
		return s.handleGetStakeholder(w, req)
	case "staking_calculateRewards":
		return s.handleCalculateRewards(w, req)
	case "staking_totalStake":
		return s.handleTotalStake(w, req)
	case "staking_currentPeriod":
		return s.handleCurrentPeriod(w, req)
	case "staking_getPeriod":
		return s.handleGetPeriod(w, req)
	case "token_balanceOf":
		return s.handleBalanceOf(w, req)
	case "token_approve":
		return s.handleApprove(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return "not_found"
	}
}

// requireAuth enforces the bearer token on mutating methods when one is
// configured.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(sourceRateLimit, sourceRateBurst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
