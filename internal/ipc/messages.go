package ipc

import (
	"encoding/json"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface for RPCError
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: code=%d, message=%s", e.Code, e.Message)
}

// Task execution protocol spoken with external automation programs

const MethodTaskRun = "task.run"

// TaskRunParams is sent to an automation program for one attempt
type TaskRunParams struct {
	SlotID      int    `json:"slot_id"`
	ProfilePath string `json:"profile_path"`
	Proxy       string `json:"proxy,omitempty"`
	Attempt     int    `json:"attempt"`
}

// TaskRunResult is the automation program's answer
type TaskRunResult struct {
	Success  bool     `json:"success"`
	Category string   `json:"category,omitempty"`
	Profit   *float64 `json:"profit,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Daemon control protocol spoken over the control socket

const (
	MethodStatus      = "pool.status"
	MethodPause       = "pool.pause"
	MethodResume      = "pool.resume"
	MethodRestartSlot = "pool.restart_slot"
	MethodStop        = "pool.stop"
	MethodProxyStats  = "pool.proxy_stats"
	MethodCommand     = "pool.command"
)

// RestartSlotParams selects the slot to restart
type RestartSlotParams struct {
	Slot int `json:"slot"`
}

// RestartSlotResult reports whether the slot existed
type RestartSlotResult struct {
	Restarted bool `json:"restarted"`
}

// StopParams selects graceful or emergency stop
type StopParams struct {
	Emergency bool `json:"emergency"`
}

// CommandParams carries a raw operator command line
type CommandParams struct {
	Text string `json:"text"`
}

// CommandResult is the human-readable reply to a command
type CommandResult struct {
	Reply string `json:"reply"`
}
