package worker

import (
	"testing"

	"github.com/fleet-bridge/internal/models"
	"github.com/stretchr/testify/assert"
)

// recordingFleet captures the transitions Reconcile drives
type recordingFleet struct {
	states       map[string]models.ExecutorState
	disconnected []string
	onlined      []string
}

func (f *recordingFleet) CachedStates() map[string]models.ExecutorState {
	out := make(map[string]models.ExecutorState, len(f.states))
	for id, s := range f.states {
		out[id] = s
	}
	return out
}

func (f *recordingFleet) HandleDisconnection(id string) {
	f.disconnected = append(f.disconnected, id)
	f.states[id] = models.ExecutorOffline
}

func (f *recordingFleet) MarkOnline(id string) {
	f.onlined = append(f.onlined, id)
	f.states[id] = models.ExecutorOnline
}

type staticLive struct {
	ids []string
}

func (s *staticLive) ConnectedExecutors() []string {
	return s.ids
}

func TestReconcileDetectsDrop(t *testing.T) {
	fleet := &recordingFleet{states: map[string]models.ExecutorState{
		"a": models.ExecutorOnline,
		"b": models.ExecutorOnline,
	}}
	live := &staticLive{ids: []string{"b"}}

	w := NewMonitorWorker(fleet, live, 0)
	w.Reconcile()

	assert.Equal(t, []string{"a"}, fleet.disconnected)
	assert.Empty(t, fleet.onlined)
	assert.Equal(t, models.ExecutorOffline, fleet.states["a"])
	assert.Equal(t, models.ExecutorOnline, fleet.states["b"])
}

func TestReconcileDetectsReconnect(t *testing.T) {
	fleet := &recordingFleet{states: map[string]models.ExecutorState{
		"a": models.ExecutorOffline,
	}}
	live := &staticLive{ids: []string{"a"}}

	w := NewMonitorWorker(fleet, live, 0)
	w.Reconcile()

	assert.Equal(t, []string{"a"}, fleet.onlined)
	assert.Empty(t, fleet.disconnected)
}

func TestReconcileAdoptsUncachedLiveConnections(t *testing.T) {
	// Post-restart: the cache is empty but a connection is already live
	fleet := &recordingFleet{states: map[string]models.ExecutorState{}}
	live := &staticLive{ids: []string{"orphan"}}

	w := NewMonitorWorker(fleet, live, 0)
	w.Reconcile()

	assert.Equal(t, []string{"orphan"}, fleet.onlined)
}

func TestReconcileLeavesMatchedStatesAlone(t *testing.T) {
	fleet := &recordingFleet{states: map[string]models.ExecutorState{
		"a": models.ExecutorOnline,
		"b": models.ExecutorOffline,
	}}
	live := &staticLive{ids: []string{"a"}}

	w := NewMonitorWorker(fleet, live, 0)
	w.Reconcile()

	assert.Empty(t, fleet.disconnected)
	assert.Empty(t, fleet.onlined)
}
