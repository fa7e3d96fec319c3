// Package store keeps secret values keyed by profile and name.
//
// Values are opaque bytes. Backends register a Factory under a name in
// init(); callers pick one with Open. Implementations must be safe for
// concurrent use and must never log secret values.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get and Delete when nothing is stored under the key.
var ErrNotFound = errors.New("secret not found")

// Store is a secret store keyed by (profile, name).
type Store interface {
	Get(ctx context.Context, profile, name string) ([]byte, error)
	Set(ctx context.Context, profile, name string, value []byte) error
	Delete(ctx context.Context, profile, name string) error
}

// ProfileLister is implemented by backends that can enumerate profiles.
type ProfileLister interface {
	Profiles(ctx context.Context) ([]string, error)
}

// Options carries what a backend may need to open. Backends ignore fields
// they do not use.
type Options struct {
	Fs       afero.Fs
	Dir      string
	VaultURL string
	Logger   *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Factory opens a backend.
type Factory func(opts Options) (Store, error)

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a backend factory. Names are unique.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.New("invalid store backend registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("store backend %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Open creates the named backend.
func (r *Registry) Open(name string, opts Options) (Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("store backend name is required")
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (available: %s)", name, strings.Join(r.Backends(), ", "))
	}

	return factory(opts)
}

// Backends returns the registered backend names, sorted.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in backends.
var DefaultRegistry = NewRegistry()

// Register adds a factory to DefaultRegistry.
func Register(name string, factory Factory) error {
	return DefaultRegistry.Register(name, factory)
}

// Open opens a backend from DefaultRegistry.
func Open(name string, opts Options) (Store, error) {
	return DefaultRegistry.Open(name, opts)
}

// Backends lists the backends in DefaultRegistry.
func Backends() []string {
	return DefaultRegistry.Backends()
}

func mustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}
