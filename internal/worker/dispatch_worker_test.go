package worker

import (
	"testing"
	"time"

	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchGateway struct {
	connected map[string]bool
	sendOK    bool
	sent      []string
}

func (g *dispatchGateway) ConnectedExecutors() []string { return nil }

func (g *dispatchGateway) IsConnected(id string) bool { return g.connected[id] }

func (g *dispatchGateway) SendCommand(id string, cmd *models.TradeCommand) bool {
	if !g.sendOK {
		return false
	}
	g.sent = append(g.sent, cmd.ID)
	return true
}

func (g *dispatchGateway) EmergencyStopAll(reason string) {}

type statusRecorder struct {
	statuses map[string]models.CommandStatus
}

func (r *statusRecorder) UpdateStatus(id string, status models.CommandStatus) error {
	r.statuses[id] = status
	return nil
}

type auditRecorder struct {
	entries []*models.AuditLog
}

func (r *auditRecorder) Create(entry *models.AuditLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

type dispatchFixture struct {
	w      *DispatchWorker
	q      *queue.RetryQueue[models.TradeCommand]
	gw     *dispatchGateway
	rec    *statusRecorder
	audits *auditRecorder
}

func newDispatchFixture() *dispatchFixture {
	f := &dispatchFixture{
		q:      queue.New[models.TradeCommand](0),
		gw:     &dispatchGateway{connected: make(map[string]bool), sendOK: true},
		rec:    &statusRecorder{statuses: make(map[string]models.CommandStatus)},
		audits: &auditRecorder{},
	}
	f.w = NewDispatchWorker(f.q, f.gw, f.rec, f.audits, time.Second, time.Second, time.Minute)
	return f
}

func TestDrainDeliversAndMarksSent(t *testing.T) {
	f := newDispatchFixture()
	f.gw.connected["exec-1"] = true

	_, err := f.q.Enqueue(models.TradeCommand{ID: "cmd-1", ExecutorID: "exec-1"}, 5, 3)
	require.NoError(t, err)

	f.w.Drain()

	assert.Equal(t, 0, f.q.Size())
	assert.Equal(t, []string{"cmd-1"}, f.gw.sent)
	assert.Equal(t, models.CommandStatusSent, f.rec.statuses["cmd-1"])

	require.Len(t, f.audits.entries, 1)
	assert.Equal(t, models.AuditActionCommandSent, f.audits.entries[0].Action)
}

func TestDrainSkipsOfflineTargetWithoutConsumingAttempt(t *testing.T) {
	f := newDispatchFixture()
	f.gw.connected["exec-1"] = false

	_, err := f.q.Enqueue(models.TradeCommand{ID: "cmd-1", ExecutorID: "exec-1"}, 5, 3)
	require.NoError(t, err)

	// Repeated passes against an offline target never burn attempts
	for i := 0; i < 10; i++ {
		f.w.Drain()
	}

	items := f.q.ProcessableItems()
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].Attempts)

	// Reconnect: the queued command flushes on the next pass
	f.gw.connected["exec-1"] = true
	f.w.Drain()
	assert.Equal(t, 0, f.q.Size())
	assert.Equal(t, []string{"cmd-1"}, f.gw.sent)
}

func TestDrainDropsExpiredCommand(t *testing.T) {
	f := newDispatchFixture()
	// Offline target, so only expiry can remove the items
	f.gw.connected["exec-1"] = false

	past := time.Now().Add(-time.Minute)
	_, err := f.q.Enqueue(models.TradeCommand{
		ID:         "cmd-stale",
		ExecutorID: "exec-1",
		Type:       models.CommandStartStrategy,
		ExpiresAt:  &past,
	}, 5, 3)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	_, err = f.q.Enqueue(models.TradeCommand{
		ID:         "cmd-fresh",
		ExecutorID: "exec-1",
		ExpiresAt:  &future,
	}, 5, 3)
	require.NoError(t, err)

	_, err = f.q.Enqueue(models.TradeCommand{
		ID:         "cmd-forever",
		ExecutorID: "exec-1",
	}, 5, 3)
	require.NoError(t, err)

	f.w.Drain()

	// Only the stale command was dropped; nothing was delivered
	assert.Equal(t, 2, f.q.Size())
	assert.Empty(t, f.gw.sent)
	assert.Equal(t, models.CommandStatusFailed, f.rec.statuses["cmd-stale"])
	_, marked := f.rec.statuses["cmd-fresh"]
	assert.False(t, marked)

	require.Len(t, f.audits.entries, 1)
	assert.Equal(t, models.AuditActionCommandExpired, f.audits.entries[0].Action)
	assert.Equal(t, models.AuditWarning, f.audits.entries[0].Severity)
	assert.Contains(t, f.audits.entries[0].Detail, "cmd-stale")
}

func TestDrainRequeuesFailedSendWithBackoff(t *testing.T) {
	f := newDispatchFixture()
	f.gw.connected["exec-1"] = true
	f.gw.sendOK = false

	_, err := f.q.Enqueue(models.TradeCommand{ID: "cmd-1", ExecutorID: "exec-1"}, 5, 3)
	require.NoError(t, err)

	f.w.Drain()

	// Failed send consumed an attempt and gated the item behind backoff
	assert.Equal(t, 1, f.q.Size())
	assert.Empty(t, f.q.ProcessableItems())
	pending := f.q.PendingRetry()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	f := newDispatchFixture()

	assert.Equal(t, time.Second, f.w.retryDelay(0))
	assert.Equal(t, 2*time.Second, f.w.retryDelay(1))
	assert.Equal(t, 8*time.Second, f.w.retryDelay(3))
	assert.Equal(t, time.Minute, f.w.retryDelay(20))
}
