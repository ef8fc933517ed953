package session

import (
	"fmt"
	"sync"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/engine/elements"
	"github.com/tphakala/streambridge/internal/pipeline"
)

const (
	factoryStallSink = "test-stallsink"
	factoryWarnSink  = "test-warnsink"
)

// stallSink never consumes data or end-of-stream until it is unlocked,
// like an output stuck on a dead device
type stallSink struct {
	engine.Base

	once    sync.Once
	release chan struct{}
}

func init() {
	engine.Register(factoryStallSink, func(name string) engine.Element {
		s := &stallSink{release: make(chan struct{})}
		s.Init(factoryStallSink, name)
		return s
	})
	engine.Register(factoryWarnSink, func(name string) engine.Element {
		s := &warnSink{}
		s.Init(factoryWarnSink, name)
		return s
	})
}

func (s *stallSink) Chain(*engine.Buffer) engine.FlowReturn {
	<-s.release
	return engine.FlowFlushing
}

func (s *stallSink) Event(engine.Event) engine.FlowReturn {
	<-s.release
	return engine.FlowFlushing
}

func (s *stallSink) Unlock() {
	s.once.Do(func() { close(s.release) })
}

func stallDescriber(cfg pipeline.Configuration) (pipeline.Description, error) {
	return pipeline.Description{
		Name: "stalled",
		Stages: []pipeline.Stage{
			{Factory: elements.FactoryAppSrc, Name: pipeline.StageSource, Properties: []pipeline.Property{
				{Key: "caps", Value: cfg.Caps().String()},
				{Key: "max-bytes", Value: cfg.QueueBytes()},
			}},
			{Factory: factoryStallSink, Name: "stalled-output"},
		},
	}, nil
}

// warnSink discards audio and posts a warning on its first buffer.
// warned is closed once the warning is on the bus.
type warnSink struct {
	engine.Base

	once   sync.Once
	warned chan struct{}
}

func (s *warnSink) SetProperty(key string, value any) error {
	if key != "warned" {
		return engine.UnknownPropertyError(s.Name(), key)
	}
	ch, ok := value.(chan struct{})
	if !ok {
		return engine.InvalidPropertyError(s.Name(), key, value, fmt.Errorf("want chan struct{}, got %T", value))
	}
	s.warned = ch
	return nil
}

func (s *warnSink) Chain(*engine.Buffer) engine.FlowReturn {
	s.once.Do(func() {
		s.PostWarning("Output is falling behind.", "late by 40 ms")
		if s.warned != nil {
			close(s.warned)
		}
	})
	return engine.FlowOK
}

func (s *warnSink) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS {
		s.PostEOS()
	}
	return engine.FlowOK
}

func warnDescriber(warned chan struct{}) Describer {
	return func(cfg pipeline.Configuration) (pipeline.Description, error) {
		return pipeline.Description{
			Name: "warning",
			Stages: []pipeline.Stage{
				{Factory: elements.FactoryAppSrc, Name: pipeline.StageSource, Properties: []pipeline.Property{
					{Key: "caps", Value: cfg.Caps().String()},
					{Key: "max-bytes", Value: cfg.QueueBytes()},
				}},
				{Factory: factoryWarnSink, Name: "warning-output", Properties: []pipeline.Property{
					{Key: "warned", Value: warned},
				}},
			},
		}, nil
	}
}
