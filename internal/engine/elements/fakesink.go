package elements

import (
	"sync/atomic"

	"github.com/tphakala/streambridge/internal/engine"
)

// FakeSink discards buffers and confirms end-of-stream
type FakeSink struct {
	engine.Base

	buffers atomic.Int64
	bytes   atomic.Int64
}

// NewFakeSink creates a discarding sink
func NewFakeSink(name string) *FakeSink {
	s := &FakeSink{}
	s.Init(FactoryFakeSink, name)
	return s
}

// SetProperty implements engine.Element. sync and silent are accepted and ignored.
func (s *FakeSink) SetProperty(key string, value any) error {
	if key != "sync" && key != "silent" {
		return engine.UnknownPropertyError(s.Name(), key)
	}
	if _, err := engine.BoolProperty(value); err != nil {
		return engine.InvalidPropertyError(s.Name(), key, value, err)
	}
	s.StoreProperty(key, value)
	return nil
}

// Negotiate accepts any caps
func (s *FakeSink) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	return upstream, nil
}

// Chain implements engine.Element
func (s *FakeSink) Chain(buf *engine.Buffer) engine.FlowReturn {
	s.buffers.Add(1)
	s.bytes.Add(int64(len(buf.Data)))
	return engine.FlowOK
}

// Event implements engine.Element
func (s *FakeSink) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS {
		s.PostEOS()
	}
	return engine.FlowOK
}

// Received returns the number of buffers and bytes consumed
func (s *FakeSink) Received() (buffers, bytes int64) {
	return s.buffers.Load(), s.bytes.Load()
}
