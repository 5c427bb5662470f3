// Package service provides the tracer: the process-wide trace store together
// with its non-blocking capture pipeline.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/lighttrace/internal/adapters/mq/queue"
	workerpool "github.com/okian/lighttrace/internal/adapters/mq/worker"
	"github.com/okian/lighttrace/internal/adapters/repository"
	"github.com/okian/lighttrace/internal/domain/model"
	"github.com/okian/lighttrace/pkg/logger"
	"github.com/okian/lighttrace/pkg/metrics"
)

const (
	defaultMaxEntries   = 10_000
	defaultQueueSize    = 4096
	defaultWorkerCount  = 2
	defaultFlushTimeout = 250 * time.Millisecond
	flushPollInterval   = time.Millisecond
)

// Service records trace entries and serves them back to the UI.
type Service struct {
	// lifecycle serializes Start and Stop; mu guards the fields below.
	lifecycle sync.Mutex
	mu        sync.RWMutex

	// Entries carry the generation they were recorded in. Reset bumps it
	// under resetMu so older entries still queued never reach the store.
	generation atomic.Uint64
	resetMu    sync.RWMutex

	store      repository.Store
	entryQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	maxEntries   int
	queueSize    int
	workerCount  int
	flushTimeout time.Duration
	sqlitePath   string

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMaxEntries bounds the number of entries kept by the store.
func WithMaxEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithQueueSize sets the capacity of the capture queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of capture workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithFlushTimeout bounds how long reads and resets wait for queued entries
// to reach the store.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.flushTimeout = d
		}
	}
}

// WithSQLitePath keeps entries in a SQLite database at path instead of memory.
func WithSQLitePath(path string) Option {
	return func(s *Service) {
		s.sqlitePath = path
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Call Start before recording.
func New(opts ...Option) *Service {
	s := &Service{
		maxEntries:   defaultMaxEntries,
		queueSize:    defaultQueueSize,
		workerCount:  defaultWorkerCount,
		flushTimeout: defaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the store, queue and workers. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("tracer")
	}

	// Background loops outlive the caller's ctx and stop with Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	store, err := s.openStore(runCtx)
	if err != nil {
		cancel()
		return err
	}
	s.store = store
	s.entryQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.entryQueue, &generationAppender{svc: s, store: store})
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "tracer started",
		logger.Int("maxEntries", s.maxEntries),
		logger.Int("queueSize", s.queueSize),
		logger.Int("workers", s.workerCount),
		logger.String("store", s.storeKind()),
	)
	return nil
}

// generationAppender writes queued entries to the store, discarding those
// recorded before the latest Reset.
type generationAppender struct {
	svc   *Service
	store repository.Store
}

func (a *generationAppender) Append(ctx context.Context, e eventqueue.Entry) error {
	a.svc.resetMu.RLock()
	defer a.svc.resetMu.RUnlock()
	if e.Generation != a.svc.generation.Load() {
		metrics.RecordEntryDropped()
		return nil
	}
	return a.store.Append(ctx, e.Entry)
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	if s.sqlitePath == "" {
		return repository.NewRingStore(ctx, repository.WithCapacity(s.maxEntries)), nil
	}
	store, err := repository.NewSQLiteStore(ctx, s.sqlitePath, s.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	return store, nil
}

func (s *Service) storeKind() string {
	if s.sqlitePath == "" {
		return "memory"
	}
	return "sqlite"
}

// Stop drains the queue into the store and releases background goroutines.
// Record calls made once Stop has begun are rejected rather than blocked.
func (s *Service) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool, store, cancel := s.workerPool, s.store, s.cancel
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping tracer...")

	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	if err := store.Close(); err != nil {
		s.logger.Warn(ctx, "store close", logger.Error(err))
	}
	cancel()

	s.logger.Info(ctx, "tracer stopped")
}

// Record queues e for storage without blocking. Missing ID and timestamp are
// filled in. Returns false when the entry is invalid, the tracer is stopped
// or the queue is full; dropped entries are counted.
func (s *Service) Record(ctx context.Context, e model.Entry) bool { //nolint:gocritic // hugeParam: entries are values
	if e.ID == "" || e.Timestamp.IsZero() {
		fresh := model.NewEntry(e.Category, e.Operation)
		if e.ID == "" {
			e.ID = fresh.ID
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = fresh.Timestamp
		}
	}
	if e.Status == "" {
		e.Status = model.StatusOK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var err error
	switch {
	case !s.started:
		err = ErrNotStarted
	default:
		if err = e.Validate(); err == nil {
			err = s.entryQueue.TryEnqueue(ctx, eventqueue.Entry{
				Entry:      e,
				Generation: s.generation.Load(),
			})
		}
	}
	if err != nil {
		metrics.RecordEntryDropped()
		if s.logger != nil {
			s.logger.Debug(ctx, "trace entry dropped",
				logger.String("category", e.Category),
				logger.String("operation", e.Operation),
				logger.Error(err),
			)
		}
		return false
	}
	return true
}

// Track starts timing an operation. The returned func records the entry;
// a non-nil error marks it failed and becomes its message.
func (s *Service) Track(ctx context.Context, category, operation string) func(err error) {
	e := model.NewEntry(category, operation)
	start := time.Now()
	return func(err error) {
		e.Duration = time.Since(start)
		if err != nil {
			e.Status = model.StatusError
			e.Message = err.Error()
		}
		s.Record(ctx, e)
	}
}

// Flush waits until every entry queued before the call has been handled by
// the workers, or ctx is done. Entries recorded meanwhile are not waited for.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.RLock()
	q := s.entryQueue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	target := q.Enqueued()
	if q.Completed() >= target {
		return nil
	}
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush: %w", ctx.Err())
		case <-ticker.C:
			if q.Completed() >= target {
				return nil
			}
		}
	}
}

// settle gives entries queued before a read a bounded chance to land.
func (s *Service) settle(ctx context.Context) {
	if s.flushTimeout == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil && s.logger != nil {
		s.logger.Debug(ctx, "flush incomplete", logger.Error(err))
	}
}

// Entries returns all stored entries in insertion order.
func (s *Service) Entries(ctx context.Context) ([]model.Entry, error) {
	store, err := s.activeStore()
	if err != nil {
		return nil, err
	}
	s.settle(ctx)
	return store.Entries(ctx)
}

// Reset clears the store. Entries recorded before the call never appear
// afterwards, including those still waiting in the queue.
func (s *Service) Reset(ctx context.Context) error {
	store, err := s.activeStore()
	if err != nil {
		return err
	}

	s.resetMu.Lock()
	gen := s.generation.Add(1)
	err = store.Reset(ctx)
	s.resetMu.Unlock()
	if err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	s.logger.Info(ctx, "trace store reset", logger.Int("generation", int(gen)))
	return nil
}

func (s *Service) activeStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"maxEntries":  s.maxEntries,
		"store":       s.storeKind(),
	}
	if s.started {
		ctx := context.Background()
		queueLen := s.entryQueue.Len(ctx)
		count := s.store.Count(ctx)
		stats["queueLength"] = queueLen
		stats["entries"] = count

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoreEntries(count)
	}
	return stats
}
