package rpc

import (
	"fmt"
	"sort"
	"sync"
)

// Container holds the providers registered by generated modules and builds
// each client once, bound to one Caller.
//
// Usage:
//
//	c := rpc.NewContainer(transport)
//	if err := api.RegisterAuthModule(c); err != nil { ... }
//	users, _ := c.Resolve("Users")
type Container struct {
	mu        sync.RWMutex
	caller    Caller
	providers map[string]Provider
	byModule  map[string][]string
	instances map[string]any
}

// NewContainer creates an empty container.
func NewContainer(c Caller) *Container {
	return &Container{
		caller:    c,
		providers: make(map[string]Provider),
		byModule:  make(map[string][]string),
		instances: make(map[string]any),
	}
}

// Register implements Registrar. Registering the same provider twice is a
// no-op, so modules shared by several dependents can register freely.
func (c *Container) Register(p Provider) error {
	if p.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if p.New == nil {
		return fmt.Errorf("provider %q has no constructor", p.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.providers[p.Name]; ok {
		if existing.Module == p.Module {
			return nil
		}
		return fmt.Errorf("provider %q already registered by module %q", p.Name, existing.Module)
	}
	c.providers[p.Name] = p
	c.byModule[p.Module] = append(c.byModule[p.Module], p.Name)
	return nil
}

// Resolve returns the client of a provider, creating it on first use.
func (c *Container) Resolve(name string) (any, error) {
	c.mu.RLock()
	if inst, ok := c.instances[name]; ok {
		c.mu.RUnlock()
		return inst, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if inst, ok := c.instances[name]; ok {
		return inst, nil
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", name)
	}
	inst := p.New(c.caller)
	c.instances[name] = inst
	return inst, nil
}

// Names returns the registered provider names, sorted.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.providers))
	for n := range c.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Module returns the providers a module registered, in registration order.
func (c *Container) Module(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.byModule[name]...)
}

// Resolve is the typed form of Container.Resolve.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	inst, err := c.Resolve(name)
	if err != nil {
		return zero, err
	}
	v, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("provider %q is %T, not %T", name, inst, zero)
	}
	return v, nil
}
