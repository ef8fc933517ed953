package engine

import (
	"fmt"
	"slices"
	"sync"
)

// Constructor creates an element instance named name
type Constructor func(name string) Element

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Constructor)
	instances  = make(map[string]int)
)

// Register makes a factory available to Make. Registering the same
// factory twice panics.
func Register(factory string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if ctor == nil {
		panic("engine: Register constructor is nil for " + factory)
	}
	if _, dup := factories[factory]; dup {
		panic("engine: Register called twice for " + factory)
	}
	factories[factory] = ctor
}

// Make creates an element from a registered factory. An empty name is
// replaced with the factory name and an instance counter.
func Make(factory, name string) (Element, error) {
	registryMu.Lock()
	ctor, ok := factories[factory]
	if ok && name == "" {
		name = fmt.Sprintf("%s%d", factory, instances[factory])
		instances[factory]++
	}
	registryMu.Unlock()

	if !ok {
		return nil, ConstructionError(fmt.Errorf("no such element factory %q", factory), name, "make_element")
	}
	return ctor(name), nil
}

// Factories returns the registered factory names in sorted order
func Factories() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
