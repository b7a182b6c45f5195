package reporter

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates an uninitialised reporter.
type Factory func() Reporter

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a reporter available by name. It panics on duplicates.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("reporter %q already registered", name))
	}
	factories[name] = f
}

// New creates a reporter by name.
func New(name string) (Reporter, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown reporter %q (available: %v)", name, Names())
	}
	return f(), nil
}

// Names lists registered reporters in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
