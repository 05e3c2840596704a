package queue

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull    = errors.New("queue at capacity")
	ErrItemNotFound = errors.New("queue item not found")
)

// Item is the retry envelope around a queued payload
type Item[T any] struct {
	ID          string     `json:"id"`
	Priority    int        `json:"priority"`
	Payload     T          `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// ready reports whether the item is eligible for processing at t
func (it *Item[T]) ready(t time.Time) bool {
	return it.NextRetryAt == nil || !it.NextRetryAt.After(t)
}

// Stats is a point-in-time snapshot of queue composition
type Stats struct {
	Size         int         `json:"size"`
	ByPriority   map[int]int `json:"by_priority"`
	ByAttempts   map[int]int `json:"by_attempts"`
	DeadLettered int64       `json:"dead_lettered"`
	Evicted      int64       `json:"evicted"`
}

// RetryQueue is a bounded, priority-ordered, retry-aware queue.
// Items are kept sorted by priority descending with stable FIFO order
// within a tier. All methods are safe for concurrent use.
//
// On overflow the lowest-priority item is evicted (newest first within
// the lowest tier) and reported through OnEvict; an incoming item that
// would itself be the lowest priority is rejected with ErrQueueFull.
// Items that exhaust their attempts are removed permanently and
// reported through OnDeadLetter; they are never resurfaced.
type RetryQueue[T any] struct {
	mu       sync.Mutex
	items    []*Item[T]
	maxItems int

	deadLettered int64
	evicted      int64

	// OnDeadLetter is invoked (outside the lock) when an item exhausts
	// its attempts. OnEvict is invoked when capacity forces an item out.
	OnDeadLetter func(item Item[T])
	OnEvict      func(item Item[T])

	now func() time.Time
}

// New creates a RetryQueue bounded at maxItems (0 means unbounded)
func New[T any](maxItems int) *RetryQueue[T] {
	return &RetryQueue[T]{
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Enqueue inserts a payload at the given priority and returns the
// generated item id.
func (q *RetryQueue[T]) Enqueue(payload T, priority, maxAttempts int) (string, error) {
	item := &Item[T]{
		ID:          uuid.New().String(),
		Priority:    priority,
		Payload:     payload,
		CreatedAt:   q.clock(),
		MaxAttempts: maxAttempts,
	}

	q.mu.Lock()
	var evicted *Item[T]
	if q.maxItems > 0 && len(q.items) >= q.maxItems {
		lowest := q.items[len(q.items)-1]
		if lowest.Priority >= priority {
			q.mu.Unlock()
			return "", ErrQueueFull
		}
		q.items = q.items[:len(q.items)-1]
		q.evicted++
		evicted = lowest
	}
	q.insert(item)
	q.mu.Unlock()

	if evicted != nil && q.OnEvict != nil {
		q.OnEvict(*evicted)
	}
	return item.ID, nil
}

// insert places the item at the first position with a strictly lower
// priority, preserving FIFO order within a tier. Caller holds q.mu.
func (q *RetryQueue[T]) insert(item *Item[T]) {
	pos := len(q.items)
	for i, existing := range q.items {
		if existing.Priority < item.Priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
}

// Dequeue removes and returns the highest-priority item
func (q *RetryQueue[T]) Dequeue() (*Item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Peek returns the highest-priority item without removing it
func (q *RetryQueue[T]) Peek() (*Item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	cp := *q.items[0]
	return &cp, true
}

// RemoveByID removes the item with the given id
func (q *RetryQueue[T]) RemoveByID(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id) != nil
}

func (q *RetryQueue[T]) removeLocked(id string) *Item[T] {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return item
		}
	}
	return nil
}

// Requeue increments the item's attempt count and, if attempts remain,
// reinserts it gated behind retryDelay. An item whose attempts reach
// MaxAttempts is dead-lettered: removed permanently and reported via
// OnDeadLetter.
func (q *RetryQueue[T]) Requeue(id string, retryDelay time.Duration) error {
	q.mu.Lock()
	item := q.removeLocked(id)
	if item == nil {
		q.mu.Unlock()
		return ErrItemNotFound
	}

	item.Attempts++
	if item.Attempts >= item.MaxAttempts {
		q.deadLettered++
		q.mu.Unlock()
		if q.OnDeadLetter != nil {
			q.OnDeadLetter(*item)
		}
		return nil
	}

	next := q.clock().Add(retryDelay)
	item.NextRetryAt = &next
	q.insert(item)
	q.mu.Unlock()
	return nil
}

// UpdatePriority moves an item to a new priority tier, placing it
// behind existing items of that tier.
func (q *RetryQueue[T]) UpdatePriority(id string, newPriority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.removeLocked(id)
	if item == nil {
		return ErrItemNotFound
	}
	item.Priority = newPriority
	q.insert(item)
	return nil
}

// PromoteWhere re-prioritizes every item matching pred to newPriority
// and clears its retry gate, so the matched items drain at the head of
// the queue immediately. Returns the number of items promoted.
func (q *RetryQueue[T]) PromoteWhere(pred func(payload T) bool, newPriority int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var matched []*Item[T]
	kept := q.items[:0]
	for _, item := range q.items {
		if pred(item.Payload) {
			matched = append(matched, item)
		} else {
			kept = append(kept, item)
		}
	}
	q.items = kept
	for _, item := range matched {
		item.Priority = newPriority
		item.NextRetryAt = nil
		q.insert(item)
	}
	return len(matched)
}

// ProcessableItems returns copies of the items eligible for processing
// now, in queue order.
func (q *RetryQueue[T]) ProcessableItems() []Item[T] {
	return q.partition(true)
}

// ReadyForRetry returns retried items whose backoff has elapsed
func (q *RetryQueue[T]) ReadyForRetry() []Item[T] {
	now := q.clock()
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Item[T]
	for _, item := range q.items {
		if item.NextRetryAt != nil && item.ready(now) {
			out = append(out, *item)
		}
	}
	return out
}

// PendingRetry returns items still gated behind their backoff
func (q *RetryQueue[T]) PendingRetry() []Item[T] {
	return q.partition(false)
}

func (q *RetryQueue[T]) partition(ready bool) []Item[T] {
	now := q.clock()
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Item[T]
	for _, item := range q.items {
		if item.ready(now) == ready {
			out = append(out, *item)
		}
	}
	return out
}

// Size returns the current number of queued items
func (q *RetryQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetStats returns per-priority and per-attempt histograms plus
// dead-letter and eviction counters.
func (q *RetryQueue[T]) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Size:         len(q.items),
		ByPriority:   make(map[int]int),
		ByAttempts:   make(map[int]int),
		DeadLettered: q.deadLettered,
		Evicted:      q.evicted,
	}
	for _, item := range q.items {
		stats.ByPriority[item.Priority]++
		stats.ByAttempts[item.Attempts]++
	}
	return stats
}

// EstimatedWait models the wait for a new item at the given priority by
// counting items of strictly higher priority ahead of it and assuming a
// constant average service time per item.
func (q *RetryQueue[T]) EstimatedWait(priority int, avgServiceTime time.Duration) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	ahead := 0
	for _, item := range q.items {
		if item.Priority > priority {
			ahead++
		}
	}
	return time.Duration(ahead) * avgServiceTime
}

// snapshot is the serialized queue state
type snapshot[T any] struct {
	Items        []*Item[T] `json:"items"`
	DeadLettered int64      `json:"dead_lettered"`
	Evicted      int64      `json:"evicted"`
	SavedAt      time.Time  `json:"saved_at"`
}

// Export serializes the full queue state, including retry timestamps,
// for restart recovery.
func (q *RetryQueue[T]) Export() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return json.Marshal(snapshot[T]{
		Items:        q.items,
		DeadLettered: q.deadLettered,
		Evicted:      q.evicted,
		SavedAt:      q.clock(),
	})
}

// Import replaces the queue contents with a previously exported state.
// Item order, ids and date fields round-trip exactly.
func (q *RetryQueue[T]) Import(data []byte) error {
	var snap snapshot[T]
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = snap.Items
	q.deadLettered = snap.DeadLettered
	q.evicted = snap.Evicted
	return nil
}

func (q *RetryQueue[T]) clock() time.Time {
	if q.now != nil {
		return q.now()
	}
	return time.Now()
}
