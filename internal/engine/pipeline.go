package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

// Pipeline owns a set of linked elements, their bus and their state
type Pipeline struct {
	name string
	bus  *Bus

	mu       sync.Mutex
	elements []Element
	byName   map[string]Element
	state    State
	cancel   context.CancelFunc
	closed   bool
}

// NewPipeline creates an empty pipeline in the NULL state
func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		name:   name,
		bus:    NewBus(),
		byName: make(map[string]Element),
	}
}

// Name returns the pipeline name used as the source of its own messages
func (p *Pipeline) Name() string { return p.name }

// Bus returns the pipeline bus
func (p *Pipeline) Bus() *Bus { return p.bus }

// State returns the current state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Add puts elements into the pipeline. Names must be unique.
func (p *Pipeline) Add(elems ...Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range elems {
		if _, dup := p.byName[e.Name()]; dup {
			return ConstructionError(fmt.Errorf("pipeline %q already has an element named %q", p.name, e.Name()), e.Name(), "add_element")
		}
	}
	for _, e := range elems {
		e.core().setBus(p.bus)
		p.elements = append(p.elements, e)
		p.byName[e.Name()] = e
	}
	return nil
}

// ByName returns the element with name, or nil
func (p *Pipeline) ByName(name string) Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byName[name]
}

// Elements returns the elements in the order they were added
func (p *Pipeline) Elements() []Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.elements)
}

// Link connects up to down: down negotiates against the caps up produces,
// then up may inspect its new peer.
func (p *Pipeline) Link(up, down Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byName[up.Name()] != up || p.byName[down.Name()] != down {
		return ConstructionError(fmt.Errorf("cannot link %s to %s: both elements must be in pipeline %q", up.Name(), down.Name(), p.name), up.Name(), "link")
	}
	if up.core().Peer() != nil {
		return ConstructionError(fmt.Errorf("%s is already linked", up.Name()), up.Name(), "link")
	}

	upCaps := up.core().Caps()
	if upCaps.IsZero() {
		return ConstructionError(fmt.Errorf("%s has no fixed caps to offer %s", up.Name(), down.Name()), up.Name(), "link")
	}

	downCaps, err := down.Negotiate(upCaps)
	if err != nil {
		return ConstructionError(fmt.Errorf("could not link %s to %s: %w", up.Name(), down.Name(), err), down.Name(), "negotiate")
	}
	down.core().SetCaps(downCaps)
	up.core().setPeer(down)

	if observer, ok := up.(LinkObserver); ok {
		if err := observer.OnLinked(down); err != nil {
			up.core().setPeer(nil)
			return ConstructionError(fmt.Errorf("could not link %s to %s: %w", up.Name(), down.Name(), err), up.Name(), "link")
		}
	}

	GetLogger().Trace("linked elements",
		logger.String("pipeline", p.name),
		logger.String("upstream", up.Name()),
		logger.String("downstream", down.Name()),
		logger.String("caps", downCaps.String()))

	return nil
}

// LinkMany links elements pairwise in order
func (p *Pipeline) LinkMany(elems ...Element) error {
	for i := 0; i+1 < len(elems); i++ {
		if err := p.Link(elems[i], elems[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// SetState moves the pipeline to target.
//
// PLAYING starts elements downstream-first so every sink is ready before
// the source produces data; a failing Start rolls back the elements already
// started. NULL unlocks every element, then stops them source-first so the
// streaming goroutine ends before sinks close. NULL always succeeds in
// reaching the state; the returned error only reports Stop failures.
func (p *Pipeline) SetState(ctx context.Context, target State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == target {
		return nil
	}

	switch target {
	case StatePlaying:
		return p.play(ctx)
	case StateNull:
		return p.stop()
	}
	return stateError(fmt.Errorf("unsupported target state %d", int(target)), p.name, target)
}

func (p *Pipeline) play(ctx context.Context) error {
	if p.closed {
		return stateError(fmt.Errorf("pipeline %q is closed", p.name), p.name, StatePlaying)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	started := make([]Element, 0, len(p.elements))
	for _, e := range slices.Backward(p.elements) {
		if err := e.Start(runCtx); err != nil {
			for _, s := range started {
				unlock(s)
			}
			for _, s := range slices.Backward(started) {
				_ = s.Stop()
			}
			cancel()
			return stateError(fmt.Errorf("failed to start %s: %w", e.Name(), err), p.name, StatePlaying)
		}
		started = append(started, e)
	}

	p.cancel = cancel
	p.setStateLocked(StatePlaying)
	return nil
}

func (p *Pipeline) stop() error {
	for _, e := range p.elements {
		unlock(e)
	}

	var errs []error
	for _, e := range p.elements {
		if err := e.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.setStateLocked(StateNull)

	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component(ComponentEngine).
			Category(errors.CategoryState).
			Context("pipeline", p.name).
			Context("operation", "stop_elements").
			Build()
	}
	return nil
}

func (p *Pipeline) setStateLocked(next State) {
	old := p.state
	p.state = next
	p.bus.Post(Message{Type: MessageStateChanged, Source: p.name, Old: old, New: next})

	GetLogger().Debug("pipeline state changed",
		logger.String("pipeline", p.name),
		logger.String("old", old.String()),
		logger.String("new", next.String()))
}

func unlock(e Element) {
	if u, ok := e.(Unlocker); ok {
		u.Unlock()
	}
}

// Close sets the pipeline to NULL, closes the bus and drops all elements.
// Close is idempotent.
func (p *Pipeline) Close() error {
	err := p.SetState(context.Background(), StateNull)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.bus.Close()
	for _, e := range p.elements {
		e.core().setPeer(nil)
	}
	p.elements = nil
	clear(p.byName)
	return err
}
