package engine

import (
	"context"
	"maps"
	"sync"
)

// State is the processing state of a pipeline
type State int

const (
	StateNull State = iota
	StatePlaying
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StatePlaying:
		return "PLAYING"
	}
	return "UNKNOWN"
}

// Element is one processing stage. Implementations embed Base.
type Element interface {
	Name() string
	Factory() string

	// SetProperty configures the element before it is linked
	SetProperty(key string, value any) error
	Property(key string) (any, bool)

	// Negotiate receives the upstream caps and returns the caps this element produces
	Negotiate(upstream Caps) (Caps, error)

	// Chain processes one buffer on the streaming goroutine
	Chain(buf *Buffer) FlowReturn
	// Event handles an in-band event; most elements forward it
	Event(ev Event) FlowReturn

	// Start acquires runtime resources. ctx lives until the pipeline returns to NULL.
	Start(ctx context.Context) error
	// Stop releases runtime resources and joins element goroutines
	Stop() error

	core() *Base
}

// LinkObserver is implemented by elements that need to inspect their
// downstream peer once linked, e.g. muxers writing straight to a file sink.
type LinkObserver interface {
	OnLinked(downstream Element) error
}

// Unlocker is implemented by elements that can block in Chain or in a
// producer call. Unlock is called on every element before any Stop so
// blocked goroutines return promptly.
type Unlocker interface {
	Unlock()
}

// Base holds the state shared by every element
type Base struct {
	name    string
	factory string

	mu    sync.RWMutex
	peer  Element
	bus   *Bus
	caps  Caps
	props map[string]any
}

// Init sets the element identity. Constructors call it once.
func (b *Base) Init(factory, name string) {
	b.factory = factory
	b.name = name
	b.props = make(map[string]any)
}

func (b *Base) core() *Base { return b }

// Name returns the element instance name
func (b *Base) Name() string { return b.name }

// Factory returns the factory the element was made with
func (b *Base) Factory() string { return b.factory }

// StoreProperty records a validated property value for Property
func (b *Base) StoreProperty(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[key] = value
}

// Property returns the last value stored for key
func (b *Base) Property(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.props[key]
	return v, ok
}

// Properties returns a copy of all stored properties
func (b *Base) Properties() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.props)
}

// SetProperty rejects every key; elements with properties override it
func (b *Base) SetProperty(key string, _ any) error {
	return UnknownPropertyError(b.name, key)
}

// Negotiate passes upstream caps through unchanged
func (b *Base) Negotiate(upstream Caps) (Caps, error) {
	return upstream, nil
}

// Event forwards ev downstream
func (b *Base) Event(ev Event) FlowReturn {
	return b.PushEvent(ev)
}

// Start is a no-op
func (b *Base) Start(context.Context) error { return nil }

// Stop is a no-op
func (b *Base) Stop() error { return nil }

// Peer returns the downstream element, or nil
func (b *Base) Peer() Element {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peer
}

func (b *Base) setPeer(peer Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peer = peer
}

// Caps returns the caps this element produces
func (b *Base) Caps() Caps {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.caps
}

// SetCaps fixes the caps this element produces. Sources call it when
// their caps property is set; Pipeline.Link calls it after negotiation.
func (b *Base) SetCaps(caps Caps) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps = caps
}

// Bus returns the bus of the pipeline the element belongs to
func (b *Base) Bus() *Bus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bus
}

func (b *Base) setBus(bus *Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = bus
}

// Push hands buf to the downstream peer
func (b *Base) Push(buf *Buffer) FlowReturn {
	peer := b.Peer()
	if peer == nil {
		return FlowNotLinked
	}
	return peer.Chain(buf)
}

// PushEvent hands ev to the downstream peer
func (b *Base) PushEvent(ev Event) FlowReturn {
	peer := b.Peer()
	if peer == nil {
		return FlowNotLinked
	}
	return peer.Event(ev)
}

// PostError posts an error message sourced from this element
func (b *Base) PostError(text, debug string) {
	b.post(Message{Type: MessageError, Text: text, Debug: debug})
}

// PostWarning posts a warning message sourced from this element
func (b *Base) PostWarning(text, debug string) {
	b.post(Message{Type: MessageWarning, Text: text, Debug: debug})
}

// PostEOS posts end-of-stream; sinks call it after finalizing output
func (b *Base) PostEOS() {
	b.post(Message{Type: MessageEOS})
}

func (b *Base) post(msg Message) {
	msg.Source = b.name
	if bus := b.Bus(); bus != nil {
		bus.Post(msg)
	}
}
