package gateway

import (
	"github.com/fleet-bridge/internal/models"
)

// Gateway owns the live duplex connections to remote executor agents.
// Its connected set is the ground truth for executor liveness; the
// fleet service's cached status is reconciled against it.
type Gateway interface {
	// ConnectedExecutors returns the ids of all executors with a live
	// connection right now.
	ConnectedExecutors() []string

	// IsConnected reports whether one executor has a live connection
	IsConnected(executorID string) bool

	// SendCommand makes a synchronous best-effort delivery attempt.
	// It returns false when the executor is not connected or the write
	// fails; it never blocks waiting for the remote acknowledgment.
	SendCommand(executorID string, cmd *models.TradeCommand) bool

	// EmergencyStopAll broadcasts a stop frame to every live socket,
	// bypassing the delivery queue entirely.
	EmergencyStopAll(reason string)
}
