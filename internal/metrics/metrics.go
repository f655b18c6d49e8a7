package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "material_search_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "material_search_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Library contents
var (
	AssetsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "material_search_assets",
			Help: "Number of indexed assets by type",
		},
		[]string{"type"}, // "image", "video", "video_frame"
	)
)

// Watcher and queue metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_watcher_events_total",
			Help: "Total file system events received by the watcher",
		},
		[]string{"event_type"},
	)

	WatcherEventsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_watcher_events_filtered_total",
			Help: "File system events rejected by the path filter",
		},
	)

	WatcherEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_watcher_events_dropped_total",
			Help: "File system events dropped after shutdown began",
		},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_watcher_errors_total",
			Help: "Total errors reported by the file system watcher",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_watched_directories",
			Help: "Number of directories registered with the watcher",
		},
	)

	WatcherRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_watcher_running",
			Help: "Whether the file system watcher is running (1) or not (0)",
		},
	)

	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_queue_pending",
			Help: "Number of paths waiting for the debounce window to elapse",
		},
	)

	QueueBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_queue_batches_total",
			Help: "Total batches handed to the incremental indexer",
		},
	)

	QueueBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "material_search_queue_batch_size",
			Help:    "Number of entries per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)
)

// Indexer metrics
var (
	IndexerItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_indexer_items_total",
			Help: "Items handled by the indexer by source and result",
		},
		[]string{"source", "result"}, // source: "watch", "scan"; result: "indexed", "deleted", "skipped", "error"
	)

	IndexerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_indexer_errors_total",
			Help: "Indexer errors by stage",
		},
		[]string{"stage"}, // "stat", "decode", "embed", "store", "sample"
	)

	IndexerBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "material_search_indexer_batch_duration_seconds",
			Help:    "Time to process one incremental batch",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "material_search_extraction_duration_seconds",
			Help:    "Feature extraction duration per asset",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"type"},
	)

	FramesSampledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_frames_sampled_total",
			Help: "Total video frames decoded by the frame sampler",
		},
	)
)

// Scanner metrics
var (
	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_scan_runs_total",
			Help: "Total number of full library scans",
		},
	)

	ScanIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_scan_running",
			Help: "Whether a full scan is currently running (1) or not (0)",
		},
	)

	ScanLastDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_scan_last_duration_seconds",
			Help: "Duration of the last full scan",
		},
	)

	ScanLastTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_scan_last_timestamp_seconds",
			Help: "Unix timestamp of the last completed full scan",
		},
	)
)

// Embedding and search metrics
var (
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_embedding_requests_total",
			Help: "Embedding requests by kind and status",
		},
		[]string{"kind", "status"}, // kind: "image", "text"
	)

	EmbeddingWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "material_search_embedding_wait_seconds",
			Help:    "Time spent waiting for exclusive access to the embedding model",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "material_search_embedding_duration_seconds",
			Help:    "Embedding model inference time",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_search_requests_total",
			Help: "Search requests by search type and status",
		},
		[]string{"type", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "material_search_search_duration_seconds",
			Help:    "End-to-end search latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_filesystem_retry_attempts_total",
			Help: "Retries performed after stale file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_filesystem_retry_failures_total",
			Help: "Operations that still failed after all retries",
		},
		[]string{"operation"},
	)
)

// Auth metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_search_auth_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_active_sessions",
			Help: "Number of active login sessions",
		},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_event_subscribers",
			Help: "Number of connected websocket event subscribers",
		},
	)

	// Memory metrics

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "material_search_memory_paused",
			Help: "Whether scan workers are paused for memory pressure (1 = paused)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "material_search_memory_pauses_total",
			Help: "Total number of times scan workers were paused for memory pressure",
		},
	)
)

// AppInfo exposes build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "material_search_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
