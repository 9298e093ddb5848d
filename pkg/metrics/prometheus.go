// Package metrics provides Prometheus metrics for the rubyams protocol client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default histogram buckets in milliseconds.
var (
	defaultLatencyBuckets      = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}
	defaultConfirmationBuckets = []float64{1000, 5000, 10000, 20000, 40000, 60000, 120000, 300000, 600000}
)

// Manager manages all Prometheus metrics for the rubyams service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets    []float64
	confirmationBuckets []float64
	constLabels         map[string]string
	registry            prometheus.Registerer

	// Locator Metrics
	locatorScans            *prometheus.CounterVec
	locatorSkipped          *prometheus.CounterVec
	locatorAmbiguousMatches *prometheus.CounterVec
	locatorScanLatency      *prometheus.HistogramVec

	// Transaction Metrics
	txBuilt               *prometheus.CounterVec
	txBuildErrors         *prometheus.CounterVec
	txSubmitted           *prometheus.CounterVec
	txRejected            *prometheus.CounterVec
	txConfirmed           *prometheus.CounterVec
	txConfirmTimeouts     *prometheus.CounterVec
	txConfirmationLatency prometheus.Histogram
	txPollTicks           prometheus.Counter

	// Facade Metrics
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	// Tracker Queue Metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Tracker Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	lateConfirmations       prometheus.Counter
	abandonedTransactions   prometheus.Counter
	trackedDuplicates       prometheus.Counter

	// Ledger Emulator Metrics
	ledgerUTxOCount   prometheus.Gauge
	ledgerMempoolSize prometheus.Gauge

	// Journal Metrics
	journalWrites *prometheus.CounterVec
	journalErrors *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rubyams",
		subsystem:        "protocol",
		histogramBuckets:    defaultLatencyBuckets,
		confirmationBuckets: defaultConfirmationBuckets,
		constLabels:         make(map[string]string),
		registry:            prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Locator Metrics
	m.locatorScans = auto.NewCounterVec(
		m.counterOpts("locator_scans_total", "Total number of contract address scans by record kind"),
		[]string{"kind"},
	)
	m.locatorSkipped = auto.NewCounterVec(
		m.counterOpts("locator_skipped_outputs_total", "Outputs skipped during a scan by record kind and reason"),
		[]string{"kind", "reason"},
	)
	m.locatorAmbiguousMatches = auto.NewCounterVec(
		m.counterOpts("locator_ambiguous_matches_total", "Scans where more than one record matched the logical id"),
		[]string{"kind"},
	)
	m.locatorScanLatency = auto.NewHistogramVec(
		m.histogramOpts("locator_scan_latency_milliseconds", "Contract address scan latency in milliseconds"),
		[]string{"kind"},
	)

	// Transaction Metrics
	m.txBuilt = auto.NewCounterVec(
		m.counterOpts("tx_built_total", "Unsigned transactions built by action"),
		[]string{"action"},
	)
	m.txBuildErrors = auto.NewCounterVec(
		m.counterOpts("tx_build_errors_total", "Transaction build failures by action"),
		[]string{"action"},
	)
	m.txSubmitted = auto.NewCounterVec(
		m.counterOpts("tx_submitted_total", "Signed transactions accepted by the ledger by action"),
		[]string{"action"},
	)
	m.txRejected = auto.NewCounterVec(
		m.counterOpts("tx_rejected_total", "Transactions rejected by the ledger by action"),
		[]string{"action"},
	)
	m.txConfirmed = auto.NewCounterVec(
		m.counterOpts("tx_confirmed_total", "Transactions confirmed within the wait bound by action"),
		[]string{"action"},
	)
	m.txConfirmTimeouts = auto.NewCounterVec(
		m.counterOpts("tx_confirmation_timeouts_total", "Transactions not confirmed within the wait bound by action"),
		[]string{"action"},
	)
	confirmation := m.histogramOpts("tx_confirmation_latency_milliseconds", "Time from submission to observed confirmation in milliseconds")
	confirmation.Buckets = m.confirmationBuckets
	m.txConfirmationLatency = auto.NewHistogram(confirmation)
	m.txPollTicks = auto.NewCounter(
		m.counterOpts("tx_poll_ticks_total", "Total number of confirmation polls"),
	)

	// Facade Metrics
	m.operations = auto.NewCounterVec(
		m.counterOpts("operations_total", "Facade operations by machine, operation and outcome"),
		[]string{"machine", "op", "outcome"},
	)
	m.operationLatency = auto.NewHistogramVec(
		m.histogramOpts("operation_latency_milliseconds", "Facade operation latency in milliseconds"),
		[]string{"machine", "op"},
	)

	// Tracker Queue Metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("tracker_queue_size", "Current number of pending transactions awaiting tracking"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("tracker_queue_capacity", "Maximum tracker queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("tracker_queue_utilization_ratio", "Tracker queue utilization ratio (size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("tracker_queue_enqueue_total", "Total number of pending transactions enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("tracker_queue_dequeue_total", "Total number of pending transactions dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("tracker_queue_enqueue_errors_total", "Total number of tracker enqueue errors"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("tracker_queue_processing_latency_milliseconds", "Tracker enqueue latency in milliseconds"))

	// Tracker Worker Metrics
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("tracker_worker_active_count", "Number of tracker workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("tracker_worker_processing_latency_milliseconds", "Time a tracker worker spent following one transaction"))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("tracker_worker_errors_total", "Total number of tracker worker errors"))
	m.lateConfirmations = auto.NewCounter(m.counterOpts("tx_late_confirmations_total", "Transactions confirmed after the caller's wait bound"))
	m.abandonedTransactions = auto.NewCounter(m.counterOpts("tx_abandoned_total", "Transactions still unconfirmed when the tracking window closed"))
	m.trackedDuplicates = auto.NewCounter(m.counterOpts("tracker_duplicates_total", "Transactions offered to the tracker more than once"))

	// Ledger Emulator Metrics
	m.ledgerUTxOCount = auto.NewGauge(m.gaugeOpts("ledger_utxo_count", "Unspent outputs held by the ledger emulator"))
	m.ledgerMempoolSize = auto.NewGauge(m.gaugeOpts("ledger_mempool_size", "Submitted but unconfirmed transactions in the ledger emulator"))

	// Journal Metrics
	m.journalWrites = auto.NewCounterVec(
		m.counterOpts("journal_writes_total", "Activity journal writes by operation"),
		[]string{"op"},
	)
	m.journalErrors = auto.NewCounterVec(
		m.counterOpts("journal_errors_total", "Activity journal failures by operation"),
		[]string{"op"},
	)

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors"),
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// Locator Metrics Functions.

// RecordLocatorScan counts one scan of a contract address and its latency.
func RecordLocatorScan(kind string, latencyMs float64) {
	globalManager.locatorScans.WithLabelValues(kind).Inc()
	globalManager.locatorScanLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordLocatorSkipped counts an output skipped during a scan.
func RecordLocatorSkipped(kind, reason string) {
	globalManager.locatorSkipped.WithLabelValues(kind, reason).Inc()
}

// RecordLocatorAmbiguous counts a scan that found more than one matching record.
func RecordLocatorAmbiguous(kind string) {
	globalManager.locatorAmbiguousMatches.WithLabelValues(kind).Inc()
}

// Transaction Metrics Functions.

// RecordTxBuilt counts a successfully built unsigned transaction.
func RecordTxBuilt(action string) {
	globalManager.txBuilt.WithLabelValues(action).Inc()
}

// RecordTxBuildError counts a failed transaction build.
func RecordTxBuildError(action string) {
	globalManager.txBuildErrors.WithLabelValues(action).Inc()
}

// RecordTxSubmitted counts a transaction accepted for inclusion.
func RecordTxSubmitted(action string) {
	globalManager.txSubmitted.WithLabelValues(action).Inc()
}

// RecordTxRejected counts a transaction the ledger refused.
func RecordTxRejected(action string) {
	globalManager.txRejected.WithLabelValues(action).Inc()
}

// RecordTxConfirmed counts a confirmation and observes its latency.
func RecordTxConfirmed(action string, latencyMs float64) {
	globalManager.txConfirmed.WithLabelValues(action).Inc()
	globalManager.txConfirmationLatency.Observe(latencyMs)
}

// RecordTxConfirmationTimeout counts a confirmation wait that ran out.
func RecordTxConfirmationTimeout(action string) {
	globalManager.txConfirmTimeouts.WithLabelValues(action).Inc()
}

// RecordTxPoll counts one confirmation poll.
func RecordTxPoll() {
	globalManager.txPollTicks.Inc()
}

// Facade Metrics Functions.

// RecordOperation counts a facade operation with its outcome and latency.
func RecordOperation(machine, op, outcome string, latencyMs float64) {
	globalManager.operations.WithLabelValues(machine, op, outcome).Inc()
	globalManager.operationLatency.WithLabelValues(machine, op).Observe(latencyMs)
}

// Tracker Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Tracker Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of tracker workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records how long a worker followed one transaction.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordLateConfirmation counts a confirmation observed by the tracker.
func RecordLateConfirmation() {
	globalManager.lateConfirmations.Inc()
}

// RecordAbandonedTransaction counts a transaction the tracker gave up on.
func RecordAbandonedTransaction() {
	globalManager.abandonedTransactions.Inc()
}

// RecordTrackedDuplicate counts a transaction hash offered to the tracker twice.
func RecordTrackedDuplicate() {
	globalManager.trackedDuplicates.Inc()
}

// Ledger Emulator Metrics Functions.

// UpdateLedgerUTxOCount sets the emulator's unspent output count.
func UpdateLedgerUTxOCount(count int) {
	globalManager.ledgerUTxOCount.Set(float64(count))
}

// UpdateLedgerMempoolSize sets the emulator's pending transaction count.
func UpdateLedgerMempoolSize(size int) {
	globalManager.ledgerMempoolSize.Set(float64(size))
}

// Journal Metrics Functions.

// RecordJournalWrite counts a journal write.
func RecordJournalWrite(op string) {
	globalManager.journalWrites.WithLabelValues(op).Inc()
}

// RecordJournalError counts a journal failure.
func RecordJournalError(op string) {
	globalManager.journalErrors.WithLabelValues(op).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
