package workflow

// TransitionOption customizes a transition added through the builder
type TransitionOption func(*Transition)

// WithDescription sets the human-readable label of a transition
func WithDescription(desc string) TransitionOption {
	return func(t *Transition) {
		t.Description = desc
	}
}

// WithAction attaches an onTransition hook
func WithAction(fn ActionFunc) TransitionOption {
	return func(t *Transition) {
		t.OnTransition = fn
	}
}

// WithGuard attaches a guard to an automatic transition
func WithGuard(guard GuardFunc) TransitionOption {
	return func(t *Transition) {
		t.Guard = guard
	}
}

// Builder assembles a Definition fluently. Every state, terminal ones
// included, must be configured before Build.
type Builder struct {
	def *Definition
}

// StateConfiguration configures transitions and hooks for a specific state
type StateConfiguration struct {
	builder *Builder
	state   *StateDefinition
}

// NewBuilder creates a builder for the workflow identified by id
func NewBuilder(id string) *Builder {
	return &Builder{
		def: &Definition{
			ID:     id,
			States: make(map[State]*StateDefinition),
		},
	}
}

// Version sets the definition version
func (b *Builder) Version(v int) *Builder {
	b.def.Version = v
	return b
}

// Initial sets the initial state
func (b *Builder) Initial(state State) *Builder {
	b.def.InitialState = state
	return b
}

// Hooks sets the definition-wide hooks
func (b *Builder) Hooks(hooks Hooks) *Builder {
	b.def.Hooks = hooks
	return b
}

// Configure returns the configuration for state, creating it on first use
func (b *Builder) Configure(state State) *StateConfiguration {
	sd, exists := b.def.States[state]
	if !exists {
		sd = &StateDefinition{}
		b.def.States[state] = sd
	}
	return &StateConfiguration{builder: b, state: sd}
}

// Build validates and returns the assembled definition. The builder may be
// reused afterwards; the returned definition is an independent copy.
func (b *Builder) Build() (*Definition, error) {
	if err := validateDefinition(b.def); err != nil {
		return nil, err
	}
	return b.def.clone(), nil
}

// MustBuild is Build for package-level definitions; it panics on error
func (b *Builder) MustBuild() *Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// Permit allows event to move the state to toState
func (c *StateConfiguration) Permit(event Event, toState State, opts ...TransitionOption) *StateConfiguration {
	return c.add(Transition{Event: event, To: toState}, opts)
}

// PermitIf allows event to move the state to toState when guard passes
func (c *StateConfiguration) PermitIf(event Event, toState State, guard GuardFunc, opts ...TransitionOption) *StateConfiguration {
	return c.add(Transition{Event: event, To: toState, Guard: guard}, opts)
}

// PermitAuto adds an automatic transition fired by EvaluateTransitions when
// cond holds. The event can still be fired manually.
func (c *StateConfiguration) PermitAuto(event Event, toState State, cond ConditionFunc, opts ...TransitionOption) *StateConfiguration {
	return c.add(Transition{Event: event, To: toState, Auto: true, AutoCondition: cond}, opts)
}

// OnEnter sets the hook run when the state is entered
func (c *StateConfiguration) OnEnter(fn ActionFunc) *StateConfiguration {
	c.state.OnEnter = fn
	return c
}

// OnExit sets the hook run when the state is left
func (c *StateConfiguration) OnExit(fn ActionFunc) *StateConfiguration {
	c.state.OnExit = fn
	return c
}

// Terminal marks the state terminal regardless of its transitions
func (c *StateConfiguration) Terminal() *StateConfiguration {
	c.state.Metadata.IsTerminal = true
	return c
}

// Label sets the display label of the state
func (c *StateConfiguration) Label(label string) *StateConfiguration {
	c.state.Metadata.Label = label
	return c
}

// Progress sets the progress percentage shown for the state
func (c *StateConfiguration) Progress(pct int) *StateConfiguration {
	c.state.Metadata.Progress = pct
	return c
}

// Configure switches to another state of the same builder
func (c *StateConfiguration) Configure(state State) *StateConfiguration {
	return c.builder.Configure(state)
}

// Build finishes a fluent chain; see Builder.Build
func (c *StateConfiguration) Build() (*Definition, error) {
	return c.builder.Build()
}

// MustBuild finishes a fluent chain; see Builder.MustBuild
func (c *StateConfiguration) MustBuild() *Definition {
	return c.builder.MustBuild()
}

// add appends t. Duplicate events are kept so validation can reject them.
func (c *StateConfiguration) add(t Transition, opts []TransitionOption) *StateConfiguration {
	for _, opt := range opts {
		opt(&t)
	}
	c.state.Transitions = append(c.state.Transitions, t)
	return c
}
