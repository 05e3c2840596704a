package gateway

import (
	"sync"
	"testing"

	"github.com/fleet-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(id string) *agentConn {
	return &agentConn{
		executorID: id,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

func TestTrySendAfterCloseReturnsFalse(t *testing.T) {
	ac := newTestConn("exec-1")
	close(ac.done)

	// Must not panic: a peer can vanish between the connection lookup
	// and the channel send.
	assert.False(t, ac.trySend([]byte("frame")))
}

func TestTrySendRacingCloseNeverPanics(t *testing.T) {
	for i := 0; i < 1000; i++ {
		ac := newTestConn("exec-1")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			close(ac.done)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				ac.trySend([]byte("frame"))
			}
		}()
		wg.Wait()
	}
}

func TestTrySendFullBufferDropsFrame(t *testing.T) {
	ac := newTestConn("exec-1")
	for i := 0; i < sendBuffer; i++ {
		require.True(t, ac.trySend([]byte("frame")))
	}
	assert.False(t, ac.trySend([]byte("overflow")))
}

func TestSendCommandToClosingConnection(t *testing.T) {
	g := NewWSGateway(nil)
	ac := newTestConn("exec-1")
	g.conns["exec-1"] = ac
	close(ac.done)

	ok := g.SendCommand("exec-1", &models.TradeCommand{
		ID:   "cmd-1",
		Type: models.CommandPing,
	})
	assert.False(t, ok)
}

func TestSendCommandUnknownExecutor(t *testing.T) {
	g := NewWSGateway(nil)
	assert.False(t, g.SendCommand("ghost", &models.TradeCommand{ID: "cmd-1"}))
	assert.False(t, g.IsConnected("ghost"))
	assert.Empty(t, g.ConnectedExecutors())
}
