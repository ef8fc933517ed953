package engine

import (
	"fmt"
	"time"
)

// Buffer carries a chunk of media between elements.
// Raw audio buffers count Samples per channel at the stream rate;
// encoded buffers count Samples in 48 kHz units.
type Buffer struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
	Samples  int
}

// FlowReturn is the result of pushing a buffer downstream
type FlowReturn int

const (
	FlowOK        FlowReturn = 0
	FlowNotLinked FlowReturn = -1
	FlowFlushing  FlowReturn = -2
	FlowEOS       FlowReturn = -3
	FlowError     FlowReturn = -5
)

// String returns the flow return name
func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowError:
		return "error"
	default:
		return fmt.Sprintf("flow(%d)", int(f))
	}
}

// EventType identifies an in-band event
type EventType int

const (
	// EventEOS travels downstream after the last buffer
	EventEOS EventType = iota + 1
)

// Event is an in-band control signal that travels downstream in order with buffers
type Event struct {
	Type EventType
}
