package registry

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu        sync.RWMutex
	factories = map[Kind]Factory{}
)

// Register makes a Factory available by its Kind. Called from each
// provider file's init(), the same way pkg/ci/registry.go's Register is
// invoked from each CI provider's init().
func Register(kind Kind, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New builds an Adapter for the given kind using cfg.
func New(kind Kind, cfg Config) (Adapter, error) {
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown container registry provider %q (available: %v)", kind, Kinds())
	}
	return f(cfg)
}

// Kinds returns the sorted list of registered provider kinds.
func Kinds() []Kind {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Kind, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
