package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	// ScansTotal tracks finished scans by terminal status
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Total number of scans by terminal status",
		},
		[]string{"status"},
	)

	// ScanDuration tracks end-to-end scan duration
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Scan duration in seconds from cloning to a terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// ScansInProgress tracks scans currently held by a worker
	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scans_in_progress",
			Help: "Number of scans currently running",
		},
	)

	// ScanStatusEventsTotal tracks status events published to observers
	ScanStatusEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_status_events_total",
			Help: "Total number of scan status events published",
		},
		[]string{"type"},
	)

	// ScansRecoveredTotal tracks stuck scans failed by the recovery job
	ScansRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scans_recovered_total",
			Help: "Total number of stuck scans marked failed by recovery",
		},
	)
)

// Change detection metrics
var (
	// FilesSelectedTotal tracks files selected for analysis
	FilesSelectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_files_selected_total",
			Help: "Total number of files selected for analysis",
		},
	)

	// FilesSkippedTotal tracks files skipped by reason
	FilesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_files_skipped_total",
			Help: "Total number of files skipped by reason",
		},
		[]string{"reason"},
	)
)

// Analysis metrics
var (
	// AnalysisBatchesTotal tracks dispatched batches by result
	AnalysisBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_batches_total",
			Help: "Total number of analysis batches by result",
		},
		[]string{"result"},
	)

	// AnalysisBatchDuration tracks analysis request latency
	AnalysisBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_batch_duration_seconds",
			Help:    "Analysis request duration per batch in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// FindingsTotal tracks enriched findings by severity
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_total",
			Help: "Total number of findings by severity",
		},
		[]string{"severity"},
	)
)

// WebSocket metrics
var (
	// WebSocketConnections tracks open live status connections
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Number of open websocket connections",
		},
	)
)

// Skip reasons for FilesSkippedTotal.
const (
	SkipReasonUnchanged = "unchanged"
	SkipReasonIgnored   = "ignored"
	SkipReasonBinary    = "binary"
	SkipReasonTrivial   = "trivial"
	SkipReasonError     = "error"
	SkipReasonOversized = "oversized"
)
