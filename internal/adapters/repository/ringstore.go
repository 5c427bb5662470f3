package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/lighttrace/pkg/metrics"
)

const (
	defaultCapacity              = 10_000
	defaultMetricsUpdateInterval = 5 * time.Second
)

var _ Store = (*RingStore)(nil)

// RingStore is a bounded, insertion-ordered, append-only log.
//
// The backing slice is a ring: head is the index of the oldest entry and
// size the number of live entries. Reset swaps in a fresh ring under the
// write lock, so it is a single atomic step for readers.
type RingStore struct {
	mu   sync.RWMutex
	buf  []Entry
	head int
	size int

	closed bool

	capacity              int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewRingStore constructs a ring store and starts its metrics updater.
// The updater stops when ctx is done or Close is called.
func NewRingStore(ctx context.Context, opts ...Option) *RingStore {
	s := &RingStore{
		capacity:              defaultCapacity,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]Entry, s.capacity)

	metrics.UpdateStoreCapacity(s.capacity)
	metrics.UpdateStoreEntries(0)
	s.startMetricsUpdater(ctx)
	return s
}

// Append implements Store.
func (s *RingStore) Append(_ context.Context, e Entry) error { //nolint:gocritic // hugeParam: stored by value
	start := time.Now()
	defer func() {
		metrics.RecordStoreAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := e.Validate(); err != nil {
		metrics.RecordErrorByComponent("store", "invalid_entry")
		return err
	}
	e = e.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.size == s.capacity {
		// Overwrite the oldest slot and advance head.
		s.buf[s.head] = e
		s.head = (s.head + 1) % s.capacity
		metrics.RecordEntryEvicted()
	} else {
		s.buf[(s.head+s.size)%s.capacity] = e
		s.size++
	}
	metrics.RecordEntryRecorded()
	return nil
}

// Entries implements Store.
func (s *RingStore) Entries(_ context.Context) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%s.capacity].Clone()
	}
	return out, nil
}

// Reset implements Store.
func (s *RingStore) Reset(_ context.Context) error {
	fresh := make([]Entry, s.capacity)

	s.mu.Lock()
	s.buf = fresh
	s.head = 0
	s.size = 0
	s.mu.Unlock()

	metrics.RecordStoreReset()
	metrics.UpdateStoreEntries(0)
	return nil
}

// Count implements Store.
func (s *RingStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity returns the configured maximum number of entries.
func (s *RingStore) Capacity() int {
	return s.capacity
}

// Close stops the metrics updater. Appends after Close return ErrClosed.
func (s *RingStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *RingStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreEntries(s.Count(ctx))
			}
		}
	}()
}
