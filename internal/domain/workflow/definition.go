package workflow

import "context"

// GuardFunc decides whether a manually fired transition may proceed.
// Returning an error is reported as a hook failure, distinct from a refusal.
type GuardFunc func(ctx context.Context, data Context) (bool, error)

// ConditionFunc decides whether an automatic transition is eligible.
// It must be synchronous and free of side effects; the evaluation loop calls
// it repeatedly against the same context.
type ConditionFunc func(data Context) bool

// ActionFunc is a side-effecting hook attached to a state or a transition
type ActionFunc func(ctx context.Context, data Context) error

// TransitionHookFunc is a definition-wide hook bracketing every transition
type TransitionHookFunc func(ctx context.Context, info TransitionInfo) error

// ErrorHookFunc receives every hook or guard failure of a transition
type ErrorHookFunc func(ctx context.Context, err error, data Context)

// TransitionInfo is handed to the before/after hooks of a definition
type TransitionInfo struct {
	From  State
	To    State
	Event Event
	Data  Context
}

// Transition is one edge of the workflow graph
type Transition struct {
	Event       Event
	To          State
	Description string

	// Guard gates manual firing; nil means always allowed.
	Guard GuardFunc

	// Auto marks the transition as eligible for EvaluateTransitions. An auto
	// transition without AutoCondition is never selected.
	Auto          bool
	AutoCondition ConditionFunc

	OnTransition ActionFunc
}

// StateMetadata carries optional, mostly presentational, state attributes
type StateMetadata struct {
	// IsTerminal marks the state terminal even if it has outgoing transitions.
	IsTerminal bool
	Label      string
	Progress   int
}

// StateDefinition describes one state and its outgoing transitions.
// Transitions are scanned in slice order.
type StateDefinition struct {
	Transitions []Transition
	OnEnter     ActionFunc
	OnExit      ActionFunc
	Metadata    StateMetadata
}

// Hooks run around every transition regardless of which state or event fired it
type Hooks struct {
	BeforeTransition TransitionHookFunc
	AfterTransition  TransitionHookFunc
	OnError          ErrorHookFunc
}

// Definition is the static graph of one workflow type
type Definition struct {
	ID           string
	Version      int
	InitialState State
	States       map[State]*StateDefinition
	Hooks        Hooks
}

// transition looks up the transition for event
func (s *StateDefinition) transition(event Event) (*Transition, bool) {
	for i := range s.Transitions {
		if s.Transitions[i].Event == event {
			return &s.Transitions[i], true
		}
	}
	return nil, false
}

// clone deep-copies the graph structure. Function values are shared.
func (d *Definition) clone() *Definition {
	states := make(map[State]*StateDefinition, len(d.States))
	for name, sd := range d.States {
		if sd == nil {
			states[name] = nil
			continue
		}
		cp := *sd
		cp.Transitions = append([]Transition(nil), sd.Transitions...)
		states[name] = &cp
	}
	return &Definition{
		ID:           d.ID,
		Version:      d.Version,
		InitialState: d.InitialState,
		States:       states,
		Hooks:        d.Hooks,
	}
}
