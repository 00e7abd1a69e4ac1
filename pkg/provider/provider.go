// Package provider resolves service tokens to live service instances.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/morezero/command-runner/pkg/registry"
)

const logPrefix = "provider:provider"

// ErrNotProvided is returned for tokens with no instance or factory.
var ErrNotProvided = errors.New("provider: service not provided")

// Factory builds a service instance on first use.
type Factory func(ctx context.Context) (any, error)

type binding struct {
	once     sync.Once
	factory  Factory
	instance any
	err      error
}

// Registry maps tokens to instances. Factories run once; a failed factory
// keeps failing with the same error.
type Registry struct {
	mu       sync.RWMutex
	bindings map[registry.Token]*binding
}

// New creates an empty provider.
func New() *Registry {
	return &Registry{bindings: make(map[registry.Token]*binding)}
}

// Provide binds an existing instance to token.
func (p *Registry) Provide(token registry.Token, instance any) {
	b := &binding{instance: instance}
	b.once.Do(func() {})

	p.mu.Lock()
	p.bindings[token] = b
	p.mu.Unlock()
}

// ProvideFactory binds a lazily built instance to token.
func (p *Registry) ProvideFactory(token registry.Token, factory Factory) {
	p.mu.Lock()
	p.bindings[token] = &binding{factory: factory}
	p.mu.Unlock()
}

// Resolve returns the instance bound to token.
func (p *Registry) Resolve(ctx context.Context, token registry.Token) (any, error) {
	p.mu.RLock()
	b, ok := p.bindings[token]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotProvided, token)
	}

	b.once.Do(func() {
		b.instance, b.err = b.factory(ctx)
		if b.err != nil {
			b.err = fmt.Errorf("%s - factory for %s failed: %w", logPrefix, token, b.err)
		}
	})
	return b.instance, b.err
}

// Len reports how many tokens are bound.
func (p *Registry) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.bindings)
}
