package controlplane

import (
	"fmt"
	"sync"
)

// Factory is a constructor function that creates a new Client instance.
type Factory func(settings Settings) (Client, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a dialect factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("controlplane: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a new Client by dialect name using the registered factory.
func New(name string, settings Settings) (Client, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("controlplane: unknown dialect %q", name)
	}
	return factory(settings)
}

// Available returns the names of all registered dialects.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
