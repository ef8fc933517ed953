package session

import (
	"time"

	"github.com/tphakala/streambridge/internal/logger"
	"github.com/tphakala/streambridge/internal/observability/metrics"
	"github.com/tphakala/streambridge/internal/pipeline"
)

// DefaultShutdownTimeout bounds how long Stop waits for end-of-stream
const DefaultShutdownTimeout = 3 * time.Second

// Describer turns a configuration into a stage chain
type Describer func(pipeline.Configuration) (pipeline.Description, error)

// Option configures a Manager
type Option func(*Manager)

// WithShutdownTimeout sets the end-of-stream wait used by Stop.
// Non-positive values keep the default.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

// WithLogger replaces the package logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics records session metrics
func WithMetrics(sm *metrics.SessionMetrics) Option {
	return func(m *Manager) { m.metrics = sm }
}

// WithFrameDuration sets the ingestion read granularity
func WithFrameDuration(d time.Duration) Option {
	return func(m *Manager) { m.frameDuration = d }
}

// WithQueueDuration sets the ingestion queue capacity in audio time
func WithQueueDuration(d time.Duration) Option {
	return func(m *Manager) { m.queueDuration = d }
}

// WithFileNameTemplate sets the template used when the destination is a directory
func WithFileNameTemplate(template string) Option {
	return func(m *Manager) { m.fileNameTemplate = template }
}

// WithDescriber replaces pipeline.Describe when building graphs
func WithDescriber(d Describer) Option {
	return func(m *Manager) {
		if d != nil {
			m.describe = d
		}
	}
}
