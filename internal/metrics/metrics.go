package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapconvert_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_conversions_total",
			Help: "Total number of file conversions by family route and status",
		},
		[]string{"route", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapconvert_conversion_duration_seconds",
			Help:    "File conversion duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"route"},
	)

	ConversionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_conversions_in_flight",
			Help: "Number of conversions currently running",
		},
	)

	ConversionPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_conversion_panics_total",
			Help: "Conversions that panicked and were recovered, by route",
		},
		[]string{"route"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapconvert_batch_files",
			Help:    "Number of files per conversion request",
			Buckets: []float64{1, 2, 3, 5, 8, 10},
		},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_upload_bytes_total",
			Help: "Total bytes received for conversion",
		},
	)
)

// External tool metrics
var (
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_tool_invocations_total",
			Help: "Total number of external tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapconvert_tool_duration_seconds",
			Help:    "External tool run time in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	ToolAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapconvert_tool_available",
			Help: "Whether an external conversion tool was found at startup (1 = available)",
		},
		[]string{"tool"},
	)
)

// Result registry and download metrics
var (
	RegistryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_registry_entries",
			Help: "Number of converted results currently registered",
		},
	)

	RegistryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_registry_operations_total",
			Help: "Total registry operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_downloads_total",
			Help: "Total download requests by status",
		},
		[]string{"status"},
	)

	DownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_download_bytes_total",
			Help: "Total bytes streamed to clients",
		},
	)
)

// Sweeper and temp storage metrics
var (
	SweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_sweep_runs_total",
			Help: "Total number of temp directory sweeps",
		},
	)

	SweepFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_sweep_files_removed_total",
			Help: "Total number of expired entries removed by the sweeper",
		},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_sweep_errors_total",
			Help: "Total number of sweep errors",
		},
	)

	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_sweep_last_run_timestamp",
			Help: "Timestamp of the last sweep",
		},
	)

	TempDirFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_temp_dir_files",
			Help: "Number of entries in the output directory",
		},
	)

	TempDirBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_temp_dir_bytes",
			Help: "Total size of regular files in the output directory",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_filesystem_retry_attempts_total",
			Help: "Total filesystem operation retries after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapconvert_filesystem_stale_errors_total",
			Help: "Total ESTALE errors seen by filesystem operations",
		},
		[]string{"operation"},
	)
)

// Memory admission metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_memory_usage_ratio",
			Help: "Heap allocation as a share of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapconvert_memory_paused",
			Help: "Whether new conversions are held for memory (1 = held)",
		},
	)

	ConversionsDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapconvert_conversions_deferred_total",
			Help: "Conversion requests that waited for memory to recover",
		},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapconvert_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
