package worker

import (
	"fmt"
	"log"
	"time"

	"github.com/fleet-bridge/internal/gateway"
	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/queue"
)

// CommandMarker updates a command's delivery status after an attempt
type CommandMarker interface {
	UpdateStatus(id string, status models.CommandStatus) error
}

// CommandAuditor records delivery-pipeline audit entries
type CommandAuditor interface {
	Create(entry *models.AuditLog) error
}

// DispatchWorker drains the durable delivery queue. It runs on a
// single goroutine and processes items strictly in queue order, which
// preserves per-executor command ordering without extra sequencing.
//
// Items addressed to an offline executor are skipped without consuming
// an attempt, so urgent commands queued during a disconnect flush as
// soon as the executor reconnects. Commands carrying an expiry are
// dropped once their delivery window closes instead of being retained
// for a target that may never return. Failed live sends requeue with
// exponential backoff until the attempt budget dead-letters them.
type DispatchWorker struct {
	q          *queue.RetryQueue[models.TradeCommand]
	gw         gateway.Gateway
	commands   CommandMarker
	audits     CommandAuditor
	interval   time.Duration
	backoff    time.Duration
	backoffMax time.Duration
	stopChan   chan struct{}
}

// NewDispatchWorker creates a queue-draining worker
func NewDispatchWorker(
	q *queue.RetryQueue[models.TradeCommand],
	gw gateway.Gateway,
	commands CommandMarker,
	audits CommandAuditor,
	interval, backoff, backoffMax time.Duration,
) *DispatchWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	if backoffMax <= 0 {
		backoffMax = time.Minute
	}
	return &DispatchWorker{
		q:          q,
		gw:         gw,
		commands:   commands,
		audits:     audits,
		interval:   interval,
		backoff:    backoff,
		backoffMax: backoffMax,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the dispatch loop
func (w *DispatchWorker) Start() {
	log.Printf("[Dispatch] Worker started with interval: %v", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Drain()
		case <-w.stopChan:
			log.Println("[Dispatch] Worker stopped")
			return
		}
	}
}

// Stop stops the dispatch loop
func (w *DispatchWorker) Stop() {
	close(w.stopChan)
}

// Drain performs one pass over the currently processable items
func (w *DispatchWorker) Drain() {
	now := time.Now()
	for _, item := range w.q.ProcessableItems() {
		cmd := item.Payload

		if cmd.IsExpired(now) {
			w.q.RemoveByID(item.ID)
			w.expire(cmd)
			continue
		}

		if !w.gw.IsConnected(cmd.ExecutorID) {
			// Offline target: leave the item queued, attempt intact
			continue
		}

		if w.gw.SendCommand(cmd.ExecutorID, &cmd) {
			w.q.RemoveByID(item.ID)
			if err := w.commands.UpdateStatus(cmd.ID, models.CommandStatusSent); err != nil {
				log.Printf("[Dispatch] Failed to mark command %s sent: %v", cmd.ID, err)
			}
			w.audit(cmd.ExecutorID, models.AuditActionCommandSent, models.AuditInfo,
				fmt.Sprintf("command %s (%s) delivered from queue", cmd.ID, cmd.Type))
			continue
		}

		delay := w.retryDelay(item.Attempts)
		if err := w.q.Requeue(item.ID, delay); err != nil {
			log.Printf("[Dispatch] Failed to requeue command %s: %v", cmd.ID, err)
			continue
		}
		log.Printf("[Dispatch] Send failed for command %s (attempt %d), retrying in %v", cmd.ID, item.Attempts+1, delay)
	}
}

// expire marks an expired command failed and audits the drop
func (w *DispatchWorker) expire(cmd models.TradeCommand) {
	log.Printf("[Dispatch] Command %s for %s expired before delivery", cmd.ID, cmd.ExecutorID)
	if err := w.commands.UpdateStatus(cmd.ID, models.CommandStatusFailed); err != nil {
		log.Printf("[Dispatch] Failed to mark expired command %s: %v", cmd.ID, err)
	}
	w.audit(cmd.ExecutorID, models.AuditActionCommandExpired, models.AuditWarning,
		fmt.Sprintf("command %s (%s) expired at %s before delivery", cmd.ID, cmd.Type, cmd.ExpiresAt.Format(time.RFC3339)))
}

func (w *DispatchWorker) audit(executorID, action string, severity models.AuditSeverity, detail string) {
	entry := &models.AuditLog{
		ExecutorID: executorID,
		Action:     action,
		Severity:   severity,
		Detail:     detail,
	}
	if err := w.audits.Create(entry); err != nil {
		log.Printf("[Dispatch] Failed to write audit entry %s: %v", action, err)
	}
}

// retryDelay doubles the base delay per prior attempt, capped
func (w *DispatchWorker) retryDelay(attempts int) time.Duration {
	delay := w.backoff
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= w.backoffMax {
			return w.backoffMax
		}
	}
	return delay
}
