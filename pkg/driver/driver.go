package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/types"
)

// ErrDriverMapping is returned when a backend has no usable driver
var ErrDriverMapping = fmt.Errorf("driver mapping error: %w", errdefs.ErrFailedPrecondition)

// Driver translates a catalog backend into configuration file sections
type Driver interface {
	Name() string

	// GetConfigSections returns, for every tier in backend.Tiers, the
	// criteria identifying an existing section for that tier and the full
	// entries the section must hold. Both maps use the same logical
	// section names.
	GetConfigSections(kind types.ServiceKind, pool, backendName string, backend *types.Backend) (search, config iniconf.Sections, err error)
}

// Factory builds a driver from its configured options
type Factory func(options map[string]string) (Driver, error)

// Registry maps driver names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	options   map[string]map[string]string
	drivers   map[string]Driver
}

// NewRegistry creates an empty registry. options holds per-driver settings
// keyed by driver name.
func NewRegistry(options map[string]map[string]string) *Registry {
	if options == nil {
		options = make(map[string]map[string]string)
	}
	return &Registry{
		factories: make(map[string]Factory),
		options:   options,
		drivers:   make(map[string]Driver),
	}
}

// Default returns a registry with the built-in drivers
func Default(options map[string]map[string]string) *Registry {
	r := NewRegistry(options)
	r.Register(CephDriverName, NewCephDriver)
	r.Register(LVMDriverName, NewLVMDriver)
	return r
}

// Register adds or replaces a factory
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.drivers, name)
}

// Names lists the registered drivers
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the driver registered as name, building it on first use
func (r *Registry) Get(name string) (Driver, error) {
	if name == "" {
		return nil, fmt.Errorf("backend has no driver configured: %w", ErrDriverMapping)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.drivers[name]; ok {
		return d, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q: %w", name, ErrDriverMapping)
	}
	d, err := factory(r.options[name])
	if err != nil {
		return nil, fmt.Errorf("driver %q: %v: %w", name, err, ErrDriverMapping)
	}
	r.drivers[name] = d
	return d, nil
}

// ForBackend returns the driver named by the backend record
func (r *Registry) ForBackend(backend *types.Backend) (Driver, error) {
	d, err := r.Get(backend.Driver)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", backend.Name, err)
	}
	return d, nil
}

// SectionName builds the logical section name of a backend tier. Commas and
// whitespace are removed since they separate names in the grouping key.
func SectionName(backendName, tier string) string {
	name := backendName + "_" + tier
	return strings.Map(func(r rune) rune {
		if r == ',' || r == ' ' || r == '\t' || r == '[' || r == ']' {
			return -1
		}
		return r
	}, name)
}

func option(options map[string]string, key, def string) string {
	if v, ok := options[key]; ok && v != "" {
		return v
	}
	return def
}
