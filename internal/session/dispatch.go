package session

import (
	"context"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/logger"
)

// dispatchTask is the handle of the goroutine reading one session's bus.
// Start spawns it and exactly one Stop (or a failed Start) joins it.
type dispatchTask struct {
	cancel context.CancelFunc
	done   chan struct{} // closed when the loop returns
}

func (m *Manager) spawnDispatch(bus *engine.Bus, id string) *dispatchTask {
	ctx, cancel := context.WithCancel(context.Background())
	task := &dispatchTask{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(task.done)
		m.dispatch(ctx, bus, id)
	}()
	return task
}

// dispatch handles bus messages until end-of-stream, an error, or cancellation
func (m *Manager) dispatch(ctx context.Context, bus *engine.Bus, id string) {
	log := m.log.With(logger.String("session_id", id))
	for {
		msg, err := bus.Pop(ctx)
		if err != nil {
			return
		}
		m.metrics.RecordBusMessage(msg.Type.String())

		switch msg.Type {
		case engine.MessageError:
			m.accepting.Store(false)
			m.recordRuntimeError(msg.String())
			m.metrics.RecordRuntimeError()
			log.Error("pipeline error",
				logger.String("source", msg.Source),
				logger.String("message", msg.Text),
				logger.String("debug", msg.Debug))
			return

		case engine.MessageEOS:
			log.Debug("end of stream reached",
				logger.String("source", msg.Source))
			return

		case engine.MessageWarning:
			log.Warn("pipeline warning",
				logger.String("source", msg.Source),
				logger.String("message", msg.Text),
				logger.String("debug", msg.Debug))

		case engine.MessageStateChanged:
			log.Debug("pipeline state changed",
				logger.String("source", msg.Source),
				logger.String("from", msg.Old.String()),
				logger.String("to", msg.New.String()))
		}
	}
}
