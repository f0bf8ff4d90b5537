package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemoryQueue is an in-process Queue for single-process deployments and
// tests. It mirrors the SQS delivery contract: per-message visibility
// timeout, approximate receive count, and a dead-letter buffer once the max
// receive count is exceeded.
type MemoryQueue struct {
	clock             clockwork.Clock
	visibilityTimeout time.Duration
	maxReceiveCount   int

	mu         sync.Mutex
	items      []*memoryItem
	deadLetter []Descriptor
}

type memoryItem struct {
	id           string
	descriptor   Descriptor
	visibleAt    time.Time
	receiveCount int
}

// NewMemoryQueue builds a queue with the given redelivery policy.
func NewMemoryQueue(clock clockwork.Clock, visibilityTimeout time.Duration, maxReceiveCount int) *MemoryQueue {
	return &MemoryQueue{
		clock:             clock,
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
	}
}

func (q *MemoryQueue) Publish(_ context.Context, descriptors []Descriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	for _, d := range descriptors {
		q.items = append(q.items, &memoryItem{
			id:         uuid.NewString(),
			descriptor: d,
			visibleAt:  now,
		})
	}
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	deadline := q.clock.Now().Add(wait)
	for {
		if msgs := q.receiveVisible(max); len(msgs) > 0 {
			return msgs, nil
		}
		if !q.clock.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.clock.After(50 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) receiveVisible(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var msgs []Message
	kept := q.items[:0]
	for _, it := range q.items {
		if len(msgs) >= max || it.visibleAt.After(now) {
			kept = append(kept, it)
			continue
		}
		it.receiveCount++
		if it.receiveCount > q.maxReceiveCount {
			// Redrive exhausted: dead-letter instead of delivering.
			q.deadLetter = append(q.deadLetter, it.descriptor)
			continue
		}
		it.visibleAt = now.Add(q.visibilityTimeout)
		msgs = append(msgs, Message{
			Descriptor:    it.descriptor,
			ReceiptHandle: it.id,
			ReceiveCount:  it.receiveCount,
		})
		kept = append(kept, it)
	}
	q.items = kept
	return msgs
}

func (q *MemoryQueue) Ack(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.id == msg.ReceiptHandle {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	// Already acknowledged or dead-lettered; acking twice is harmless.
	return nil
}

// DeadLetter returns the descriptors that exhausted their receive count.
func (q *MemoryQueue) DeadLetter() []Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Descriptor, len(q.deadLetter))
	copy(out, q.deadLetter)
	return out
}

// Len reports messages currently queued (visible or in flight).
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
