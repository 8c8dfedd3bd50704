package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// Builder is the function signature for creating a backend from config.
// Each backend package provides a Builder that it registers in init().
type Builder func(ctx context.Context, cfg Config, logger logging.ServiceLogger) (Backend, error)

// Registry maintains a mapping of backend names to their builders and
// capabilities.
type Registry struct {
	mu           sync.RWMutex
	builders     map[string]Builder
	capabilities map[string]Capabilities
}

// DefaultRegistry is the global backend registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:     make(map[string]Builder),
		capabilities: make(map[string]Capabilities),
	}
}

// Register adds a backend builder to the registry. The name should match
// the Backend config value (e.g., "sqs", "redis").
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// RegisterWithCapabilities adds a backend builder and its capabilities.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
	r.capabilities[name] = caps
}

// GetCapabilities returns the capabilities for a registered backend.
// Returns a zero Capabilities struct if the backend is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates a backend using the registered builder for the config's
// Backend value.
func (r *Registry) Build(ctx context.Context, cfg Config, logger logging.ServiceLogger) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	name := cfg.GetBackend()

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend: %q (registered: %v)", name, r.Names())
	}

	return builder(ctx, cfg, logger)
}

// Names returns the list of registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

// Has returns true if a backend is registered with the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a backend builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a backend builder and its capabilities to the
// default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a backend using the default registry.
func Build(ctx context.Context, cfg Config, logger logging.ServiceLogger) (Backend, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// GetCapabilities returns the capabilities for a backend by name, using the
// default registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
