// Package metrics provides Prometheus metrics for LightTrace.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every LightTrace collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Trace capture
	entriesRecorded prometheus.Counter
	entriesDropped  prometheus.Counter
	entriesEvicted  prometheus.Counter

	// Store
	storeEntries       prometheus.Gauge
	storeCapacity      prometheus.Gauge
	storeResets        prometheus.Counter
	storeAppendLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// Reports
	reportRenders   *prometheus.CounterVec
	reportSizeBytes prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Process-wide recorder used by the package-level functions.
var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lighttrace",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.entriesRecorded = m.counter("entries_recorded_total", "Trace entries appended to the store")
	m.entriesDropped = m.counter("entries_dropped_total", "Trace entries dropped before reaching the store (backpressure, invalid, stopped)")
	m.entriesEvicted = m.counter("entries_evicted_total", "Trace entries evicted because the store was full")

	m.storeEntries = m.gauge("store_entries", "Trace entries currently held by the store")
	m.storeCapacity = m.gauge("store_capacity", "Maximum number of trace entries the store retains")
	m.storeResets = m.counter("store_resets_total", "Number of store resets")
	m.storeAppendLatency = m.histogram("store_append_latency_milliseconds", "Store append latency in milliseconds", m.histogramBuckets)
	m.storeQueryLatency = m.histogram("store_query_latency_milliseconds", "Store snapshot latency in milliseconds", m.histogramBuckets)

	m.reportRenders = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "report_renders_total",
		Help: "Reports rendered by delivery mode",
	}, []string{"mode"})
	m.reportSizeBytes = m.histogram("report_size_bytes", "Rendered report size in bytes", prometheus.ExponentialBuckets(256, 4, 8))

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("queue_size", "Entries waiting in the capture queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capture queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Capture queue utilization (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Entries enqueued for capture")
	m.queueDequeue = m.counter("queue_dequeue_total", "Entries dequeued by capture workers")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueue attempts")

	m.workerCount = m.gauge("worker_count", "Capture workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to move one entry from queue to store", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Capture worker failures")

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_by_component_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_by_endpoint_total",
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// SetGlobal replaces the manager used by the package-level recorders.
func SetGlobal(m *Manager) error {
	if m == nil {
		return ErrNilManager
	}
	globalManager.Store(m)
	return nil
}

// Global returns the manager used by the package-level recorders.
func Global() *Manager {
	return globalManager.Load()
}

// GetRegistry returns the custom Prometheus registry used by the default manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func g() *Manager { return globalManager.Load() }

// Trace capture.

// RecordEntryRecorded increments the recorded entries counter.
func RecordEntryRecorded() { g().entriesRecorded.Inc() }

// RecordEntryDropped increments the dropped entries counter.
func RecordEntryDropped() { g().entriesDropped.Inc() }

// RecordEntryEvicted increments the evicted entries counter.
func RecordEntryEvicted() { g().entriesEvicted.Inc() }

// Store.

// UpdateStoreEntries sets the number of entries held by the store.
func UpdateStoreEntries(n int) { g().storeEntries.Set(float64(n)) }

// UpdateStoreCapacity sets the store capacity.
func UpdateStoreCapacity(n int) { g().storeCapacity.Set(float64(n)) }

// RecordStoreReset increments the reset counter.
func RecordStoreReset() { g().storeResets.Inc() }

// RecordStoreAppendLatency records append latency in milliseconds.
func RecordStoreAppendLatency(ms float64) { g().storeAppendLatency.Observe(ms) }

// RecordStoreQueryLatency records snapshot latency in milliseconds.
func RecordStoreQueryLatency(ms float64) { g().storeQueryLatency.Observe(ms) }

// Reports.

// RecordReportRender records one rendered report of size bytes; mode is "inline" or "download".
func RecordReportRender(mode string, size int) {
	m := g()
	m.reportRenders.WithLabelValues(mode).Inc()
	m.reportSizeBytes.Observe(float64(size))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	g().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	g().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { g().queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { g().queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { g().queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { g().queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { g().queueDequeue.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { g().queueEnqueueErrors.Inc() }

// Workers.

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { g().workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency in milliseconds.
func RecordWorkerProcessingLatency(ms float64) { g().workerProcessingLatency.Observe(ms) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { g().workerErrors.Inc() }

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	g().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	g().errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { g().systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { g().systemGoroutineCount.Set(float64(count)) }
