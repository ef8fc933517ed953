// Package session owns the lifecycle of one streaming pipeline: building it
// from a configuration, starting it with an event-dispatch task, pushing
// PCM into it and shutting it down with a bounded end-of-stream wait.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
	"github.com/tphakala/streambridge/internal/observability/metrics"
	"github.com/tphakala/streambridge/internal/pipeline"
)

// Config is the caller-supplied part of a session configuration. The
// input is always S16LE interleaved PCM.
type Config struct {
	SampleRate  int
	Channels    int
	Destination string
	Bitrate     int
}

// Status is a point-in-time view of a session
type Status struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Destination string `json:"destination"`
	LastError   string `json:"last_error"`
	FedBytes    int64  `json:"fed_bytes"`
	QueuedBytes int    `json:"queued_bytes"`
}

// Manager drives one pipeline at a time through
// Uninitialized -> Initialized -> Playing -> Stopping -> Stopped.
// A stopped manager can be initialized again for a new session.
//
// Initialize, Start and Stop are serialized. Feed may run concurrently with
// them and with LastError from any goroutine.
type Manager struct {
	log              logger.Logger
	metrics          *metrics.SessionMetrics
	describe         Describer
	shutdownTimeout  time.Duration
	frameDuration    time.Duration
	queueDuration    time.Duration
	fileNameTemplate string

	transition sync.Mutex
	state      atomic.Int32
	accepting  atomic.Bool
	fedBytes   atomic.Int64

	// graphMu guards graph; Feed holds it shared while pushing so the graph
	// cannot be released under an in-flight push
	graphMu     sync.RWMutex
	graph       *pipeline.Graph
	id          string
	destination string

	// errMu guards the error record; the dispatch task writes, any caller reads
	errMu     sync.RWMutex
	lastError string
	faulted   bool

	task *dispatchTask
}

// NewManager creates an uninitialized manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:             GetLogger(),
		describe:        pipeline.Describe,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(next State) {
	prev := State(m.state.Swap(int32(next)))
	if prev == next {
		return
	}
	m.graphMu.RLock()
	id := m.id
	m.graphMu.RUnlock()

	m.metrics.SetState(id, int(next))
	m.log.Debug("session state changed",
		logger.String("session_id", id),
		logger.String("from", prev.String()),
		logger.String("to", next.String()))
}

// ID returns the identifier of the current or last session
func (m *Manager) ID() string {
	m.graphMu.RLock()
	defer m.graphMu.RUnlock()
	return m.id
}

// Initialize builds the pipeline for a new session. The sample rate,
// channel count and bitrate are not validated up front: an unsupported
// value surfaces as a construction failure from the engine.
func (m *Manager) Initialize(sampleRate, channels int, destination string, bitrate int) bool {
	err := m.InitializeContext(context.Background(), Config{
		SampleRate:  sampleRate,
		Channels:    channels,
		Destination: destination,
		Bitrate:     bitrate,
	})
	return err == nil
}

// InitializeContext is Initialize returning the failure
func (m *Manager) InitializeContext(ctx context.Context, cfg Config) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	if state := m.State(); state != StateUninitialized && state != StateStopped {
		return stateError("initialize", state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id := uuid.NewString()
	m.clearError()
	m.fedBytes.Store(0)

	pcfg := pipeline.Configuration{
		SampleRate:       cfg.SampleRate,
		Channels:         cfg.Channels,
		Bitrate:          cfg.Bitrate,
		Destination:      cfg.Destination,
		FrameDuration:    m.frameDuration,
		QueueDuration:    m.queueDuration,
		SessionID:        id,
		FileNameTemplate: m.fileNameTemplate,
	}

	graph, err := m.build(pcfg)
	if err != nil {
		m.recordError(err.Error())
		m.setState(StateUninitialized)
		m.log.Error("session initialization failed",
			logger.String("session_id", id),
			logger.String("destination", logger.RedactDestination(cfg.Destination)),
			logger.Error(err))
		return err
	}

	m.graphMu.Lock()
	previous := m.id
	m.graph = graph
	m.id = id
	m.destination = graph.Description().Destination.String()
	m.graphMu.Unlock()

	if previous != "" {
		m.metrics.ForgetSession(previous)
	}

	m.setState(StateInitialized)
	m.log.Info("session initialized",
		logger.String("session_id", id),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("channels", cfg.Channels),
		logger.Int("bitrate", cfg.Bitrate),
		logger.String("destination_kind", graph.Description().Destination.Kind.String()),
		logger.String("destination", logger.RedactDestination(m.destination)))
	return nil
}

func (m *Manager) build(cfg pipeline.Configuration) (*pipeline.Graph, error) {
	desc, err := m.describe(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.Build(desc)
}

// Start moves the pipeline to PLAYING and spawns the dispatch task.
// Starting a playing session is a no-op.
func (m *Manager) Start() bool {
	return m.StartContext(context.Background()) == nil
}

// StartContext is Start returning the failure. ctx bounds the state change
// only; the session keeps running after it is cancelled.
func (m *Manager) StartContext(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	switch state := m.State(); state {
	case StatePlaying:
		return nil
	case StateInitialized:
	default:
		return stateError("start", state)
	}

	m.graphMu.RLock()
	graph, id := m.graph, m.id
	m.graphMu.RUnlock()

	// messages left by an earlier failed start belong to no task
	graph.Bus().Flush()
	task := m.spawnDispatch(graph.Bus(), id)

	if err := graph.Pipeline().SetState(ctx, engine.StatePlaying); err != nil {
		// the engine already rolled back the elements it started
		task.cancel()
		<-task.done

		err = startError(err)
		m.recordError(err.Error())
		m.log.Error("session start failed",
			logger.String("session_id", id),
			logger.Error(err))
		return err
	}

	m.task = task
	m.accepting.Store(true)
	m.setState(StatePlaying)
	return nil
}

// Feed copies data into the pipeline. Outside PLAYING the chunk is dropped
// and Feed still reports success. A full ingestion queue blocks until the
// pipeline drains it.
func (m *Manager) Feed(data []byte) bool {
	return m.FeedContext(context.Background(), data) == nil
}

// FeedContext is Feed returning the failure. Cancelling ctx aborts a
// backpressure wait.
func (m *Manager) FeedContext(ctx context.Context, data []byte) error {
	if !m.accepting.Load() {
		m.metrics.RecordDroppedChunk()
		return nil
	}

	m.graphMu.RLock()
	defer m.graphMu.RUnlock()
	if m.graph == nil {
		m.metrics.RecordDroppedChunk()
		return nil
	}
	src := m.graph.Source()

	buf, err := src.AllocateBuffer(len(data))
	if err != nil {
		err = allocationError(err, len(data))
		m.metrics.RecordFeedFailure(metrics.ReasonAllocation)
		m.recordIngestionError(err)
		return err
	}
	copy(buf, data)

	ret := src.PushBuffer(ctx, buf)
	switch {
	case ret == engine.FlowOK:
		m.fedBytes.Add(int64(len(data)))
		m.metrics.AddFedBytes(len(data))
		m.metrics.SetQueuedBytes(src.QueuedBytes())
		return nil
	case ctx.Err() != nil:
		m.metrics.RecordFeedFailure(metrics.ReasonCancelled)
		return cancelledError(ctx.Err())
	case !m.accepting.Load():
		// stop or a runtime error closed ingestion while this push was in flight
		m.metrics.RecordDroppedChunk()
		return nil
	}

	err = flowError(ret, len(data))
	m.metrics.RecordFeedFailure(metrics.ReasonFlow)
	m.recordIngestionError(err)
	return err
}

// Stop flushes buffered audio to the output and tears the session down.
// It waits at most the shutdown timeout for end-of-stream before forcing
// the pipeline down. Stopping an idle or stopped manager is a no-op.
func (m *Manager) Stop() {
	_ = m.StopContext(context.Background())
}

// StopContext is Stop returning diagnostics: a timeout-category error when
// end-of-stream was not confirmed in time and any element stop failures.
// Cancelling ctx cuts the end-of-stream wait short.
func (m *Manager) StopContext(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	switch m.State() {
	case StateUninitialized, StateStopped:
		return nil
	case StateInitialized:
		m.setState(StateStopping)
		err := m.releaseGraph()
		m.setState(StateStopped)
		return err
	}

	started := time.Now()
	id := m.ID()

	// 1. no more data
	m.setState(StateStopping)
	m.accepting.Store(false)

	m.graphMu.RLock()
	graph := m.graph
	m.graphMu.RUnlock()

	// 2. end-of-stream flushes queued audio through every stage
	if ret := graph.Source().EndOfStream(); ret != engine.FlowOK {
		m.log.Debug("end-of-stream not queued",
			logger.String("session_id", id),
			logger.String("flow", ret.String()))
	}

	// 3. bounded wait for the dispatch task to see end-of-stream or an error
	var diag []error
	task := m.task
	timer := time.NewTimer(m.shutdownTimeout)
	select {
	case <-task.done:
		timer.Stop()
	case <-timer.C:
		diag = append(diag, m.shutdownTimedOut(id))
	case <-ctx.Done():
		timer.Stop()
		diag = append(diag, ctx.Err())
	}

	// 4. force the pipeline down regardless of confirmation
	if err := graph.Pipeline().SetState(context.WithoutCancel(ctx), engine.StateNull); err != nil {
		m.log.Warn("pipeline stop reported errors",
			logger.String("session_id", id),
			logger.Error(err))
		diag = append(diag, err)
	}

	// 5. join the dispatch task
	task.cancel()
	<-task.done
	m.task = nil

	// 6. release the graph
	if err := m.releaseGraph(); err != nil {
		diag = append(diag, err)
	}

	m.setState(StateStopped)
	m.metrics.ObserveStopDuration(time.Since(started))
	m.log.Info("session stopped",
		logger.String("session_id", id),
		logger.Int64("fed_bytes", m.fedBytes.Load()),
		logger.Duration("elapsed", time.Since(started)))
	return errors.Join(diag...)
}

func (m *Manager) shutdownTimedOut(id string) error {
	err := shutdownTimeoutError(m.shutdownTimeout)
	m.metrics.RecordShutdownTimeout()
	m.log.Warn("did not receive end-of-stream within timeout",
		logger.String("session_id", id),
		logger.Duration("timeout", m.shutdownTimeout))
	return err
}

func (m *Manager) releaseGraph() error {
	m.graphMu.Lock()
	defer m.graphMu.Unlock()
	if m.graph == nil {
		return nil
	}
	err := m.graph.Close()
	m.graph = nil
	return err
}

// LastError returns the most recent error message, or "" if none
func (m *Manager) LastError() string {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return m.lastError
}

// Snapshot returns the session status
func (m *Manager) Snapshot() Status {
	m.graphMu.RLock()
	status := Status{
		ID:          m.id,
		Destination: m.destination,
		FedBytes:    m.fedBytes.Load(),
	}
	if m.graph != nil {
		status.QueuedBytes = m.graph.Source().QueuedBytes()
	}
	m.graphMu.RUnlock()

	status.State = m.State().String()
	status.LastError = m.LastError()
	return status
}

func (m *Manager) recordError(msg string) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.lastError = msg
}

// recordIngestionError keeps a runtime error from being replaced by the
// push failures it causes
func (m *Manager) recordIngestionError(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	if !m.faulted {
		m.lastError = err.Error()
	}
}

func (m *Manager) recordRuntimeError(msg string) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.lastError = msg
	m.faulted = true
}

func (m *Manager) clearError() {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.lastError = ""
	m.faulted = false
}
