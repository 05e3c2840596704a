package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueOrdersByPriorityDescending(t *testing.T) {
	q := New[string](0)

	_, err := q.Enqueue("low", 1, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("high", 2, 3)
	require.NoError(t, err)

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "high", first.Payload)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "low", second.Payload)
}

func TestEnqueuePreservesFIFOWithinTier(t *testing.T) {
	q := New[string](0)

	for _, payload := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(payload, 5, 3)
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		item, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, item.Payload)
	}
}

func TestOverflowEvictsLowestPriority(t *testing.T) {
	q := New[string](2)

	var evicted []string
	q.OnEvict = func(item Item[string]) {
		evicted = append(evicted, item.Payload)
	}

	_, err := q.Enqueue("normal", 5, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("low", 1, 3)
	require.NoError(t, err)

	// Full queue: an urgent arrival pushes out the lowest tier
	_, err = q.Enqueue("urgent", 10, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"low"}, evicted)
	assert.Equal(t, 2, q.Size())

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "urgent", first.Payload)
}

func TestOverflowRejectsIncomingLowestPriority(t *testing.T) {
	q := New[string](2)

	_, err := q.Enqueue("a", 5, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("b", 5, 3)
	require.NoError(t, err)

	_, err = q.Enqueue("c", 5, 3)
	assert.ErrorIs(t, err, ErrQueueFull)

	_, err = q.Enqueue("d", 1, 3)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Size())
}

func TestRequeueGatesBehindBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := New[string](0)
	q.now = func() time.Time { return now }

	id, err := q.Enqueue("cmd", 5, 3)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(id, 30*time.Second))

	// Still queued but not processable until the backoff elapses
	assert.Equal(t, 1, q.Size())
	assert.Empty(t, q.ProcessableItems())
	require.Len(t, q.PendingRetry(), 1)
	assert.Equal(t, 1, q.PendingRetry()[0].Attempts)

	now = now.Add(31 * time.Second)
	require.Len(t, q.ProcessableItems(), 1)
	assert.Len(t, q.ReadyForRetry(), 1)
}

func TestRequeueDeadLettersAtMaxAttempts(t *testing.T) {
	q := New[string](0)

	var dead []Item[string]
	q.OnDeadLetter = func(item Item[string]) {
		dead = append(dead, item)
	}

	id, err := q.Enqueue("doomed", 5, 2)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(id, 0))
	assert.Empty(t, dead)

	require.NoError(t, q.Requeue(id, 0))
	require.Len(t, dead, 1)
	assert.Equal(t, "doomed", dead[0].Payload)
	assert.Equal(t, 2, dead[0].Attempts)

	// Dead-lettered items never resurface
	assert.Equal(t, 0, q.Size())
	assert.ErrorIs(t, q.Requeue(id, 0), ErrItemNotFound)
	assert.Equal(t, int64(1), q.GetStats().DeadLettered)
}

func TestUpdatePriorityMovesBehindExistingTier(t *testing.T) {
	q := New[string](0)

	_, err := q.Enqueue("first-high", 8, 3)
	require.NoError(t, err)
	id, err := q.Enqueue("promoted", 1, 3)
	require.NoError(t, err)

	require.NoError(t, q.UpdatePriority(id, 8))

	first, _ := q.Dequeue()
	assert.Equal(t, "first-high", first.Payload)
	second, _ := q.Dequeue()
	assert.Equal(t, "promoted", second.Payload)
}

func TestPromoteWhereClearsRetryGate(t *testing.T) {
	q := New[string](0)

	id, err := q.Enqueue("stuck", 1, 5)
	require.NoError(t, err)
	_, err = q.Enqueue("other", 5, 5)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(id, time.Hour))
	require.Len(t, q.ProcessableItems(), 1)
	require.Len(t, q.PendingRetry(), 1)

	promoted := q.PromoteWhere(func(p string) bool { return p == "stuck" }, 10)
	assert.Equal(t, 1, promoted)

	items := q.ProcessableItems()
	require.Len(t, items, 2)
	assert.Equal(t, "stuck", items[0].Payload)

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "stuck", head.Payload)
	assert.Nil(t, head.NextRetryAt)
}

func TestExportImportRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := New[string](0)
	q.now = func() time.Time { return now }

	id, err := q.Enqueue("retrying", 5, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("fresh", 8, 3)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(id, time.Minute))

	data, err := q.Export()
	require.NoError(t, err)

	// The restored queue shares the frozen clock so the retry gate
	// stays closed regardless of when the test runs
	restored := New[string](0)
	restored.now = func() time.Time { return now }
	require.NoError(t, restored.Import(data))

	assert.Equal(t, q.Size(), restored.Size())

	want := q.ProcessableItems()
	got := restored.ProcessableItems()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}

	pending := restored.PendingRetry()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].NextRetryAt)
	assert.True(t, pending[0].NextRetryAt.Equal(now.Add(time.Minute)))
}

func TestGetStatsHistograms(t *testing.T) {
	q := New[string](0)

	_, err := q.Enqueue("a", 5, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("b", 5, 3)
	require.NoError(t, err)
	id, err := q.Enqueue("c", 10, 3)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(id, 0))

	stats := q.GetStats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 2, stats.ByPriority[5])
	assert.Equal(t, 1, stats.ByPriority[10])
	assert.Equal(t, 2, stats.ByAttempts[0])
	assert.Equal(t, 1, stats.ByAttempts[1])
}

func TestEstimatedWaitCountsHigherPriorityOnly(t *testing.T) {
	q := New[string](0)

	_, err := q.Enqueue("urgent", 10, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("high", 8, 3)
	require.NoError(t, err)
	_, err = q.Enqueue("same", 5, 3)
	require.NoError(t, err)

	wait := q.EstimatedWait(5, 2*time.Second)
	assert.Equal(t, 4*time.Second, wait)
}
