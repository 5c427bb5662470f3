// Package queue buffers trace entries between recording and storage.
//
// Recording happens on request goroutines of the host application and must
// never block, so Enqueue fails fast under backpressure instead of waiting.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/lighttrace/internal/domain/model"
	"github.com/okian/lighttrace/pkg/metrics"
)

const (
	defaultQueueCapacity = 4096
	defaultBufferSize    = 4096
)

// Entry is the payload flowing through the queue: a trace entry plus the
// store generation it was recorded against. Consumers discard entries whose
// generation is older than the store's.
type Entry struct {
	model.Entry
	Generation uint64
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an entry. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Entry) bool

	// TryEnqueue adds an entry, returning ErrFull, ErrClosed or ctx.Err() on rejection.
	TryEnqueue(ctx context.Context, e Entry) error

	// Dequeue returns a channel receiving entries as they become available.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Entry

	// Done marks one dequeued entry as fully processed.
	Done()

	// Pending returns the number of entries enqueued but not yet marked Done.
	Pending() int64

	// Enqueued returns the total number of entries accepted so far.
	Enqueued() int64

	// Completed returns the total number of entries marked Done so far.
	Completed() int64

	// Len returns the current number of queued entries.
	Len(ctx context.Context) int

	// Close stops accepting entries; consumers drain what is left.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	entries    chan Entry
	capacity   int
	bufferSize int
	enqueued   atomic.Int64
	completed  atomic.Int64

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.entries = make(chan Entry, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds an entry to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) bool { //nolint:gocritic // hugeParam: channel semantics
	return q.TryEnqueue(ctx, e) == nil
}

// TryEnqueue is Enqueue reporting why an entry was rejected:
// ErrClosed, ErrFull or the context error.
func (q *InMemoryQueue) TryEnqueue(ctx context.Context, e Entry) error { //nolint:gocritic // hugeParam: channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return ErrClosed
	}
	if len(q.entries) >= q.capacity {
		q.reject("capacity_exceeded")
		return ErrFull
	}
	if err := ctx.Err(); err != nil {
		q.reject("context_cancelled")
		return err
	}

	select {
	case q.entries <- e:
		q.enqueued.Add(1)
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		q.reject("queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

func (q *InMemoryQueue) observe() {
	size := len(q.entries)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Dequeue returns a channel that will receive entries as they become available.
// Cancel ctx when the consumer stops reading: an entry already taken off the
// queue is then acknowledged and counted as dropped instead of being held.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Entry {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for e := range q.entries {
			select {
			case out <- e:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				// The entry never reaches a consumer.
				metrics.RecordEntryDropped()
				q.Done()
				return
			}
		}
	}()
	return out
}

// Done marks one dequeued entry as processed.
func (q *InMemoryQueue) Done() {
	q.completed.Add(1)
}

// Pending returns entries enqueued but not yet marked Done.
func (q *InMemoryQueue) Pending() int64 {
	return max(0, q.enqueued.Load()-q.completed.Load())
}

// Enqueued returns the total number of entries accepted so far.
func (q *InMemoryQueue) Enqueued() int64 {
	return q.enqueued.Load()
}

// Completed returns the total number of entries marked Done so far.
func (q *InMemoryQueue) Completed() int64 {
	return q.completed.Load()
}

// Len returns the current number of queued entries.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.entries)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
