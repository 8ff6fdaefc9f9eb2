package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Factory opens a new surface of a registered backend.
type Factory func(cfg Config) (Surface, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first that opens wins).
	// GPU > Software (Software is the fallback).
	backendPriority = []string{BackendGPU, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in priority order,
// followed by any others in lexical order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return orderedNames()
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a surface of the named backend.
func Open(name string, cfg Config) (Surface, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return s, nil
}

// OpenDefault opens the best available backend. Backends are tried in
// priority order; one that fails to open is logged and skipped.
// All failures are joined into the returned error.
func OpenDefault(cfg Config) (Surface, error) {
	registryMu.RLock()
	names := orderedNames()
	registryMu.RUnlock()

	var errs []error
	for _, name := range names {
		s, err := Open(name, cfg)
		if err == nil {
			cfg.Log().Info("backend selected", "backend", name)
			return s, nil
		}
		cfg.Log().Warn("backend unavailable, trying next", "backend", name, "err", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

// orderedNames must be called with registryMu held.
func orderedNames() []string {
	names := make([]string, 0, len(backends))
	for _, name := range backendPriority {
		if _, ok := backends[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range backends {
		if !slices.Contains(backendPriority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}
