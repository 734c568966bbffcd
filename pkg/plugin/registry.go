package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/groundview/internal/core"
)

// ReporterFactory creates a fresh, uninitialized reporter.
type ReporterFactory func() Reporter

type registry[F any] struct {
	mu        sync.RWMutex
	factories map[string]F
}

func newRegistry[F any]() *registry[F] {
	return &registry[F]{factories: make(map[string]F)}
}

func (r *registry[F]) register(name string, f F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("plugin: %q registered twice", name))
	}
	r.factories[name] = f
}

func (r *registry[F]) get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s", core.ErrPluginNotFound, name)
	}
	return f, nil
}

func (r *registry[F]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all registrations. Tests only.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	r.factories = make(map[string]F)
	r.mu.Unlock()
}

var reporterReg = newRegistry[ReporterFactory]()

// RegisterReporter registers a reporter factory. Registering a name twice panics.
func RegisterReporter(name string, f ReporterFactory) {
	reporterReg.register(name, f)
}

// GetReporterFactory looks up a reporter factory by name.
func GetReporterFactory(name string) (ReporterFactory, error) {
	return reporterReg.get(name)
}

// ReporterNames lists registered reporters in name order.
func ReporterNames() []string {
	return reporterReg.names()
}

// NewReporter creates and initializes the named reporter.
func NewReporter(name string, cfg map[string]any) (Reporter, error) {
	f, err := GetReporterFactory(name)
	if err != nil {
		return nil, err
	}
	r := f()
	if err := r.Init(cfg); err != nil {
		return nil, fmt.Errorf("init reporter %s: %w", name, err)
	}
	return r, nil
}
