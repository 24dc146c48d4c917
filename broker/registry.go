package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/miladsoleymani/dlqmux/core"
)

// Driver is one live connection to a broker, created by a plugin Factory.
type Driver interface {
	// NewConsumer creates a consumer handle for a group. The caller owns it.
	NewConsumer(ctx context.Context, groupID string) (core.ConsumerHandle, error)

	// Producer returns the connection's shared producer.
	Producer() core.ProducerHandle

	// NewAdmin opens an administrative handle for one provisioning call.
	NewAdmin(ctx context.Context) (core.AdminHandle, error)

	// Close releases the connection and the shared producer.
	Close() error
}

// Factory creates a Driver from the given Config.
type Factory func(cfg Config) (Driver, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a named driver factory. Plugins call this from init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Create instantiates a driver by name using the registered factory.
func Create(name string, cfg Config) (Driver, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dlqmux: unknown broker driver %q", name)
	}
	return f(cfg)
}

// Drivers returns the names of all registered drivers, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
