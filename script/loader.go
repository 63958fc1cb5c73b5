package script

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/codec"
)

// Ref is an immutable reference to a script unit: the descriptor location in
// the shared store plus the static arguments passed to every entry point.
type Ref struct {
	Location string
	Args     Args
}

// Factory instantiates a script unit from its descriptor config.
// One fresh instance is created per worker; instances are never shared.
type Factory func(config map[string]any) (any, error)

// descriptor is the JSON document stored at a Ref's location.
type descriptor struct {
	Factory string         `json:"factory"`
	Config  map[string]any `json:"config,omitempty"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a script factory available under the given name.
// It panics on duplicate registration, like database/sql driver registration.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("script: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("script: Register called twice for factory " + name)
	}
	registry[name] = f
}

// Factories returns the sorted names of all registered factories.
func Factories() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Loader resolves script refs against a shared store.
type Loader struct {
	store blobstore.Store
}

// NewLoader creates a loader reading descriptors from the given store.
func NewLoader(store blobstore.Store) *Loader {
	return &Loader{store: store}
}

// Load reads the descriptor at ref.Location, instantiates its factory, and
// binds the instance against the script contract. Each call produces a fresh
// instance, so every worker gets its own runtime.
func (l *Loader) Load(ctx context.Context, ref Ref) (*Runtime, error) {
	blob, err := l.store.Open(ctx, ref.Location)
	if err != nil {
		return nil, fmt.Errorf("script %q: open descriptor: %w", ref.Location, err)
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("script %q: read descriptor: %w", ref.Location, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("script %q: read descriptor: %w", ref.Location, err)
	}

	var d descriptor
	if err := (codec.JSON{}).Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("script %q: parse descriptor: %w", ref.Location, err)
	}
	if d.Factory == "" {
		return nil, fmt.Errorf("script %q: descriptor has no factory", ref.Location)
	}

	registryMu.RLock()
	factory, ok := registry[d.Factory]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q: unknown factory %q (registered: %v)", ref.Location, d.Factory, Factories())
	}

	instance, err := factory(d.Config)
	if err != nil {
		return nil, fmt.Errorf("script %q: factory %q: %w", ref.Location, d.Factory, err)
	}

	return Bind(ref.Location, instance)
}

// WriteDescriptor stores a script descriptor at the given location.
// Convenience for deploy tooling and tests.
func WriteDescriptor(ctx context.Context, store blobstore.Store, location, factory string, config map[string]any) error {
	data, err := (codec.JSON{}).Marshal(descriptor{Factory: factory, Config: config})
	if err != nil {
		return fmt.Errorf("script %q: encode descriptor: %w", location, err)
	}
	return store.Put(ctx, location, data)
}
