package gateway

import (
	"encoding/json"
)

// Wire commands exchanged with remote executor agents
const (
	WirePing          = "PING"
	WireGetBars       = "GET_BARS"
	WireGetPrice      = "GET_PRICE"
	WireOpenPosition  = "OPEN_POSITION"
	WireClosePosition = "CLOSE_POSITION"
	WireGetAccount    = "GET_ACCOUNT"
	WireEmergencyStop = "EMERGENCY_STOP"
)

// Wire response statuses
const (
	WireStatusOK    = "OK"
	WireStatusError = "ERROR"
)

// Request is the JSON frame sent to an executor agent
type Request struct {
	ID         string          `json:"id,omitempty"`
	Command    string          `json:"command"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Response is the JSON frame received from an executor agent.
// Malformed frames and vanished peers are never surfaced to command
// callers; they feed the disconnection path only.
type Response struct {
	ID      string          `json:"id,omitempty"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Heartbeat is the periodic status frame pushed by executor agents
type Heartbeat struct {
	ExecutorID       string `json:"executorId"`
	Status           string `json:"status"`
	ActiveStrategies int    `json:"activeStrategies"`
	OpenPositions    int    `json:"openPositions"`
	Timestamp        int64  `json:"timestamp"`
}

// IsOK reports whether the agent accepted the request
func (r *Response) IsOK() bool {
	return r.Status == WireStatusOK
}
