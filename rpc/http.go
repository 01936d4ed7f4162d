package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voucherchain/core"
	"voucherchain/core/state"
	"voucherchain/native/voucher"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32044
)

// Server exposes the node over JSON-RPC plus /healthz and /metrics.
type Server struct {
	node *core.Node
	log  *slog.Logger
}

func NewServer(node *core.Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{node: node, log: log}
}

// Handler builds the HTTP mux so callers can mount it on their own listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload")
		return
	}

	var (
		result interface{}
		rpcErr *RPCError
	)
	switch req.Method {
	case "voucher_create":
		result, rpcErr = s.handleVoucherCreate(&req)
	case "voucher_createBatch":
		result, rpcErr = s.handleVoucherCreateBatch(&req)
	case "voucher_get":
		result, rpcErr = s.handleVoucherGet(&req)
	case "voucher_redeem":
		result, rpcErr = s.handleVoucherRedeem(&req)
	case "voucher_transfer":
		result, rpcErr = s.handleVoucherTransfer(&req)
	case "token_mint":
		result, rpcErr = s.handleTokenMint(&req)
	case "token_approve":
		result, rpcErr = s.handleTokenApprove(&req)
	case "token_balance":
		result, rpcErr = s.handleTokenBalance(&req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return
	}
	if rpcErr != nil {
		s.log.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "reason", rpcErr.Message)
		writeError(w, http.StatusOK, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	writeResult(w, req.ID, result)
}

// errorToRPC maps engine and ledger sentinels onto JSON-RPC error codes so
// callers can branch without string matching.
func errorToRPC(err error) *RPCError {
	switch {
	case errors.Is(err, voucher.ErrNotFound):
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, voucher.ErrUnauthorized):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, voucher.ErrInsufficientApproval),
		errors.Is(err, voucher.ErrInvalidAmount),
		errors.Is(err, voucher.ErrInvalidQuantity),
		errors.Is(err, voucher.ErrInvalidSchedule),
		errors.Is(err, voucher.ErrNothingToRedeem),
		errors.Is(err, voucher.ErrZeroRequest),
		errors.Is(err, voucher.ErrResourceExhausted):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, state.ErrInsufficientFunds),
		errors.Is(err, state.ErrInsufficientAllowance),
		errors.Is(err, state.ErrMintNotAuthorized),
		errors.Is(err, state.ErrIdentityNotFound),
		errors.Is(err, state.ErrNotIdentityOwner):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
