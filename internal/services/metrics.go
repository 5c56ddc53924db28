package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the update pipeline
type Metrics struct {
	// WebSocket metrics
	WebSocketConnections prometheus.Gauge

	// Update pipeline metrics
	UpdatesIngested  *prometheus.CounterVec
	UpdatesDelivered prometheus.Counter
	UpdatesFailed    prometheus.Counter
	UpdatesEvicted   prometheus.Counter
	BatchLatency     prometheus.Histogram

	// Dashboard metrics
	PinnedWidgets prometheus.Gauge

	// Connection manager reference for dynamic metrics
	connManager *ConnectionManager
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(connManager *ConnectionManager) *Metrics {
	metrics := &Metrics{
		connManager: connManager,

		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulseboard_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		UpdatesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseboard_updates_ingested_total",
			Help: "Total number of widget updates ingested by source and type",
		}, []string{"source", "update_type"}),

		UpdatesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulseboard_updates_delivered_total",
			Help: "Total number of widget updates delivered to the rendering layer",
		}),

		UpdatesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulseboard_updates_failed_total",
			Help: "Total number of widget updates whose batch delivery failed",
		}),

		UpdatesEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulseboard_updates_evicted_total",
			Help: "Total number of pending updates evicted under pressure",
		}),

		BatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulseboard_batch_delivery_duration_seconds",
			Help:    "Per-widget batch delivery latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),

		PinnedWidgets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulseboard_pinned_widgets",
			Help: "Number of widgets currently pinned to the dashboard",
		}),
	}

	// Register a collector that mirrors the connection manager's count
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pulseboard_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}

// RecordIngested records an ingested update
func (m *Metrics) RecordIngested(source, updateType string) {
	m.UpdatesIngested.WithLabelValues(source, updateType).Inc()
}

// PipelineStats tracks the update pipeline's own throughput counters,
// independently of Prometheus. UpdatesPerMinute is total updates divided by
// elapsed minutes since the last reset, not a sliding window. AverageLatency
// is a two-sample running average, (prev+new)/2: cheap, and old samples
// decay quickly.
type PipelineStats struct {
	totalUpdates   int64
	failedUpdates  int64
	averageLatency time.Duration
	hasLatency     bool
	since          time.Time
	now            func() time.Time
	mutex          sync.Mutex
}

// NewPipelineStats creates a stats tracker starting its rate window now.
func NewPipelineStats() *PipelineStats {
	s := &PipelineStats{now: time.Now}
	s.since = s.now()
	return s
}

// SetClock overrides the tracker's clock. Used by tests.
func (s *PipelineStats) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// RecordUpdate counts one ingested update.
func (s *PipelineStats) RecordUpdate() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.totalUpdates++
}

// RecordFailures counts n updates whose delivery failed.
func (s *PipelineStats) RecordFailures(n int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failedUpdates += int64(n)
}

// RecordLatency folds one delivery latency sample into the running average.
func (s *PipelineStats) RecordLatency(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.hasLatency {
		s.averageLatency = d
		s.hasLatency = true
		return
	}
	s.averageLatency = (s.averageLatency + d) / 2
}

// Reset zeroes all counters and restarts the rate window.
func (s *PipelineStats) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.totalUpdates = 0
	s.failedUpdates = 0
	s.averageLatency = 0
	s.hasLatency = false
	s.since = s.now()
}

// StatsSnapshot is a point-in-time view of the pipeline counters.
type StatsSnapshot struct {
	TotalUpdates     int64         `json:"total_updates"`
	FailedUpdates    int64         `json:"failed_updates"`
	UpdatesPerMinute float64       `json:"updates_per_minute"`
	AverageLatency   time.Duration `json:"average_latency"`
}

// Snapshot returns the current counters. UpdatesPerMinute is the total
// divided by elapsed minutes since the last reset; for the first minute the
// window is clamped to one minute, so the raw total stands in for the rate
// instead of a near-zero divisor inflating it.
func (s *PipelineStats) Snapshot() StatsSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	elapsed := s.now().Sub(s.since).Minutes()
	perMinute := float64(s.totalUpdates)
	if elapsed > 1 {
		perMinute = float64(s.totalUpdates) / elapsed
	}

	return StatsSnapshot{
		TotalUpdates:     s.totalUpdates,
		FailedUpdates:    s.failedUpdates,
		UpdatesPerMinute: perMinute,
		AverageLatency:   s.averageLatency,
	}
}
