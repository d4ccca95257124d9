package source

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/logger"
)

// Registry manages source factory registration and lookup
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new source registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "source_registry")),
	}
}

// Register registers a source factory under its name
func (r *Registry) Register(factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := factory.Name()
	if _, exists := r.factories[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source %s already registered", name))
	}

	r.factories[name] = factory
	r.logger.Debug("source registered", zap.String("name", name))
	return nil
}

// Lookup returns the factory registered under name
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source %s not found", name))
	}
	return factory, nil
}

// List returns the sorted names of registered sources
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register registers a factory in the global registry
func Register(factory Factory) error {
	return globalRegistry.Register(factory)
}

// MustRegister registers a factory in the global registry and panics on
// duplicates. Intended for package init functions.
func MustRegister(factory Factory) {
	if err := Register(factory); err != nil {
		panic(err)
	}
}

// Lookup returns a factory from the global registry
func Lookup(name string) (Factory, error) {
	return globalRegistry.Lookup(name)
}

// List returns the names in the global registry
func List() []string {
	return globalRegistry.List()
}
