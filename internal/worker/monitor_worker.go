package worker

import (
	"log"
	"time"

	"github.com/fleet-bridge/internal/models"
)

// FleetReconciler is the slice of the fleet service the monitor needs
type FleetReconciler interface {
	CachedStates() map[string]models.ExecutorState
	HandleDisconnection(executorID string)
	MarkOnline(executorID string)
}

// LiveSource supplies the gateway's live-connection ground truth
type LiveSource interface {
	ConnectedExecutors() []string
}

// MonitorWorker periodically diffs the gateway's live-connection set
// against the fleet's cached status and drives the online/offline
// transitions. This reconciliation, not heartbeats, is the sole source
// of liveness truth. Passes run one at a time on the loop goroutine,
// so a slow pass delays the next tick rather than overlapping it.
type MonitorWorker struct {
	fleet    FleetReconciler
	live     LiveSource
	interval time.Duration
	stopChan chan struct{}
}

// NewMonitorWorker creates a reconciliation worker
func NewMonitorWorker(fleet FleetReconciler, live LiveSource, interval time.Duration) *MonitorWorker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &MonitorWorker{
		fleet:    fleet,
		live:     live,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (w *MonitorWorker) Start() {
	log.Printf("[Monitor] Worker started with interval: %v", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Reconcile()
		case <-w.stopChan:
			log.Println("[Monitor] Worker stopped")
			return
		}
	}
}

// Stop stops the reconciliation loop
func (w *MonitorWorker) Stop() {
	close(w.stopChan)
}

// Reconcile performs one reconciliation pass: cached-online executors
// missing from the live set go through disconnection handling; cached
// offline executors present in the live set are marked online.
func (w *MonitorWorker) Reconcile() {
	liveSet := make(map[string]bool)
	for _, id := range w.live.ConnectedExecutors() {
		liveSet[id] = true
	}

	for id, cached := range w.fleet.CachedStates() {
		isLive := liveSet[id]
		switch {
		case cached == models.ExecutorOnline && !isLive:
			log.Printf("[Monitor] Executor %s dropped from live set", id)
			w.fleet.HandleDisconnection(id)
		case cached != models.ExecutorOnline && isLive:
			w.fleet.MarkOnline(id)
		}
		delete(liveSet, id)
	}

	// Live connections without a cache entry (e.g. after a restart)
	for id := range liveSet {
		w.fleet.MarkOnline(id)
	}
}
