// Package metrics provides Prometheus metrics for streaming sessions
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Feed failure reasons
const (
	ReasonFlow       = "flow"
	ReasonAllocation = "allocation"
	ReasonCancelled  = "cancelled"
)

// SessionMetrics contains Prometheus metrics for session lifecycle and
// ingestion. All methods are safe on a nil receiver.
type SessionMetrics struct {
	registry *prometheus.Registry

	state            *prometheus.GaugeVec
	fedBytes         prometheus.Counter
	feedFailures     *prometheus.CounterVec
	droppedChunks    prometheus.Counter
	busMessages      *prometheus.CounterVec
	runtimeErrors    prometheus.Counter
	shutdownTimeouts prometheus.Counter
	stopDuration     prometheus.Histogram
	queuedBytes      prometheus.Gauge

	collectors []prometheus.Collector
}

// NewSessionMetrics creates and registers session metrics
func NewSessionMetrics(registry *prometheus.Registry) (*SessionMetrics, error) {
	m := &SessionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	m.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streambridge_session_state",
			Help: "Current session state (0 uninitialized, 1 initialized, 2 playing, 3 stopping, 4 stopped)",
		},
		[]string{"session"},
	)

	m.fedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streambridge_fed_bytes_total",
		Help: "Total PCM bytes accepted into pipelines",
	})

	m.feedFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_feed_failures_total",
			Help: "Total feeds rejected while playing",
		},
		[]string{"reason"}, // reason: flow, allocation, cancelled
	)

	m.droppedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streambridge_dropped_chunks_total",
		Help: "Total chunks dropped because the session was not playing",
	})

	m.busMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_bus_messages_total",
			Help: "Total pipeline bus messages dispatched",
		},
		[]string{"type"},
	)

	m.runtimeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streambridge_runtime_errors_total",
		Help: "Total asynchronous pipeline errors recorded",
	})

	m.shutdownTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streambridge_shutdown_timeouts_total",
		Help: "Total stops that gave up waiting for end-of-stream",
	})

	m.stopDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streambridge_stop_duration_seconds",
		Help:    "Time taken by session stop",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	m.queuedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streambridge_ingestion_queued_bytes",
		Help: "Bytes waiting in the ingestion queue after the last feed",
	})

	m.collectors = []prometheus.Collector{
		m.state, m.fedBytes, m.feedFailures, m.droppedChunks, m.busMessages,
		m.runtimeErrors, m.shutdownTimeouts, m.stopDuration, m.queuedBytes,
	}
}

// SetState records the numeric state of a session
func (m *SessionMetrics) SetState(session string, state int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(session).Set(float64(state))
}

// ForgetSession removes the state series of a finished session
func (m *SessionMetrics) ForgetSession(session string) {
	if m == nil {
		return
	}
	m.state.DeleteLabelValues(session)
}

// AddFedBytes counts bytes accepted by a feed
func (m *SessionMetrics) AddFedBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fedBytes.Add(float64(n))
}

// RecordFeedFailure counts a feed rejected while playing
func (m *SessionMetrics) RecordFeedFailure(reason string) {
	if m == nil {
		return
	}
	m.feedFailures.WithLabelValues(reason).Inc()
}

// RecordDroppedChunk counts a feed outside the playing window
func (m *SessionMetrics) RecordDroppedChunk() {
	if m == nil {
		return
	}
	m.droppedChunks.Inc()
}

// RecordBusMessage counts a dispatched bus message by type
func (m *SessionMetrics) RecordBusMessage(msgType string) {
	if m == nil {
		return
	}
	m.busMessages.WithLabelValues(msgType).Inc()
}

// RecordRuntimeError counts an asynchronous pipeline error
func (m *SessionMetrics) RecordRuntimeError() {
	if m == nil {
		return
	}
	m.runtimeErrors.Inc()
}

// RecordShutdownTimeout counts a stop that did not see end-of-stream in time
func (m *SessionMetrics) RecordShutdownTimeout() {
	if m == nil {
		return
	}
	m.shutdownTimeouts.Inc()
}

// ObserveStopDuration records how long a stop took
func (m *SessionMetrics) ObserveStopDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.stopDuration.Observe(d.Seconds())
}

// SetQueuedBytes records the ingestion queue fill level
func (m *SessionMetrics) SetQueuedBytes(n int) {
	if m == nil {
		return
	}
	m.queuedBytes.Set(float64(n))
}

// Describe implements prometheus.Collector
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
