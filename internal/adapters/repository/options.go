package repository

import "time"

// Option applies a configuration option to the RingStore.
type Option func(*RingStore)

// WithCapacity bounds the number of retained entries. Older entries are
// evicted first once the store is full.
func WithCapacity(capacity int) Option {
	return func(s *RingStore) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *RingStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
