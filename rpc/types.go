package rpc

import (
	"encoding/json"
	"net/http"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeServerError       = -32000
	codeUnauthorized      = -32001
	codeNotFound          = -32004
	codeLifecycle         = -32010
	codeRateLimited       = -32020
	codeWrongPaymentToken = -32030
	codeTokenRejected     = -32031
	codeUnexpectedFunds   = -32032
	codeZeroDeposit       = -32033
	codeJournalDisabled   = -32040
)

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
	status  int
}

func (e *RPCError) Error() string { return e.Message }

func newRPCError(status, code int, message string, data interface{}) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data, status: status}
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	writeError(w, rpcErr.status, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// StatusResponse summarises the committed ledger head.
type StatusResponse struct {
	Contract      string `json:"contract"`
	AcceptedDenom string `json:"accepted_denom"`
	Height        uint64 `json:"height"`
	Root          string `json:"root"`
}

// JournalEntryResult is one journal row as returned over JSON-RPC.
type JournalEntryResult struct {
	ID     string      `json:"id"`
	Height uint64      `json:"height"`
	Root   string      `json:"root"`
	Action string      `json:"action"`
	Sender string      `json:"sender"`
	Events interface{} `json:"events"`
	Time   int64       `json:"time"`
}
