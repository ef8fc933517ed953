package engine

import (
	"fmt"
	"strings"
	"time"
)

// MessageType is a bitmask so callers can filter several types at once
type MessageType uint32

const (
	MessageError MessageType = 1 << iota
	MessageWarning
	MessageEOS
	MessageStateChanged

	MessageAny MessageType = MessageError | MessageWarning | MessageEOS | MessageStateChanged
)

// String returns the lowercase message type name
func (t MessageType) String() string {
	switch t {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageEOS:
		return "eos"
	case MessageStateChanged:
		return "state-changed"
	}

	var names []string
	for _, single := range []MessageType{MessageError, MessageWarning, MessageEOS, MessageStateChanged} {
		if t&single != 0 {
			names = append(names, single.String())
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("message(%d)", uint32(t))
	}
	return strings.Join(names, "|")
}

// Message is an immutable notification posted on the bus
type Message struct {
	Type   MessageType
	Source string // name of the posting element or pipeline
	Text   string
	Debug  string
	Old    State
	New    State
	Time   time.Time
}

// String formats errors and warnings as "<source>: <text>"
func (m Message) String() string {
	switch m.Type {
	case MessageStateChanged:
		return fmt.Sprintf("%s: state changed from %s to %s", m.Source, m.Old, m.New)
	case MessageEOS:
		return fmt.Sprintf("%s: end of stream", m.Source)
	}
	return fmt.Sprintf("%s: %s", m.Source, m.Text)
}
