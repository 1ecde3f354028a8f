// Package di provides a minimal string-token service container shared by modules.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	Get(token string) any
	Lookup(token string) (any, bool)
}

// Container registers and resolves services by token.
type Container interface {
	ServiceRegistry
	Register(token string, svc any)
}

type container struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{services: make(map[string]any)}
}

func (c *container) Register(token string, svc any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[token] = svc
}

func (c *container) Get(token string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[token]
	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", token))
	}
	return svc
}

func (c *container) Lookup(token string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[token]
	return svc, ok
}
