package definition

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

var (
	// ErrDefinitionNotFound is returned for an unregistered workflow id
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrDuplicateDefinition is returned when an id is registered twice
	ErrDuplicateDefinition = errors.New("workflow definition already registered")
)

// HooksDecorator wraps the hooks of a definition before its engine is built
type HooksDecorator func(def *workflow.Definition, hooks workflow.Hooks) workflow.Hooks

// Registry holds one engine per workflow definition id
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	opts     []workflow.EngineOption
	decorate HooksDecorator
}

type entry struct {
	def    *workflow.Definition
	engine *workflow.Engine
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithEngineOptions sets the options applied to every engine
func WithEngineOptions(opts ...workflow.EngineOption) RegistryOption {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// WithHooksDecorator installs fn to wrap each definition's hooks
func WithHooksDecorator(fn HooksDecorator) RegistryOption {
	return func(r *Registry) {
		r.decorate = fn
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register builds an engine for def
func (r *Registry) Register(def *workflow.Definition) (*workflow.Engine, error) {
	if def == nil {
		return nil, workflow.ErrNilDefinition
	}

	built := *def
	if r.decorate != nil {
		built.Hooks = r.decorate(def, def.Hooks)
	}

	engine, err := workflow.NewEngine(&built, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.ID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDefinition, def.ID)
	}
	r.entries[def.ID] = &entry{def: def, engine: engine}
	return engine, nil
}

// RegisterAll registers every definition, stopping at the first error
func (r *Registry) RegisterAll(defs ...*workflow.Definition) error {
	for _, def := range defs {
		if _, err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Engine returns the engine registered under id
func (r *Registry) Engine(id string) (*workflow.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, id)
	}
	return e.engine, nil
}

// Definition returns the definition registered under id
func (r *Registry) Definition(id string) (*workflow.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, id)
	}
	return e.def, nil
}

// IDs returns the registered workflow ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
