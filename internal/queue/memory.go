package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ammobase/harvester/pkg/types"
)

// Compile-time interface satisfaction check.
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process Queue for tests and single-node runs. It
// honors dedup ids and delays but offers no durability.
type MemoryQueue struct {
	mu     sync.Mutex
	nextID int
	queues map[types.Stage][]*memMessage
	dedup  map[types.Stage]map[string]bool
	now    func() time.Time
}

type memMessage struct {
	handle      string
	body        []byte
	attempt     int
	availableAt time.Time
	inflight    bool
}

// NewMemory creates an empty MemoryQueue.
func NewMemory() *MemoryQueue {
	return &MemoryQueue{
		queues: make(map[types.Stage][]*memMessage),
		dedup:  make(map[types.Stage]map[string]bool),
		now:    time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue appends a message, dropping duplicates by dedup id.
func (q *MemoryQueue) Enqueue(_ context.Context, stage types.Stage, body []byte, opts Options) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if opts.DedupID != "" {
		seen := q.dedup[stage]
		if seen == nil {
			seen = make(map[string]bool)
			q.dedup[stage] = seen
		}
		if seen[opts.DedupID] {
			return nil
		}
		seen[opts.DedupID] = true
	}

	q.nextID++
	attempt := opts.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	q.queues[stage] = append(q.queues[stage], &memMessage{
		handle:      strconv.Itoa(q.nextID),
		body:        body,
		attempt:     attempt,
		availableAt: q.now().Add(opts.Delay),
	})
	return nil
}

// Receive returns up to max visible messages and marks them in flight.
func (q *MemoryQueue) Receive(_ context.Context, stage types.Stage, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []Message
	for _, m := range q.queues[stage] {
		if len(out) >= max {
			break
		}
		if m.inflight || m.availableAt.After(now) {
			continue
		}
		m.inflight = true
		out = append(out, Message{Handle: m.handle, Body: m.body, Attempt: m.attempt})
	}
	return out, nil
}

// Delete removes an in-flight message.
func (q *MemoryQueue) Delete(_ context.Context, stage types.Stage, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.queues[stage]
	for i, m := range msgs {
		if m.handle == msg.Handle {
			q.queues[stage] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len reports the number of queued (not yet deleted) messages for a stage.
func (q *MemoryQueue) Len(stage types.Stage) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[stage])
}

// Requeue releases an in-flight message back to the queue (visibility
// timeout expiry in a real queue).
func (q *MemoryQueue) Requeue(stage types.Stage, msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.queues[stage] {
		if m.handle == msg.Handle {
			m.inflight = false
			return
		}
	}
}
