package workflow

import "context"

// AvailableTransition describes one transition defined on a state
type AvailableTransition struct {
	Event        Event  `json:"event"`
	To           State  `json:"to"`
	Description  string `json:"description,omitempty"`
	Auto         bool   `json:"auto"`
	ConditionMet bool   `json:"condition_met"`
}

// GetAvailableTransitions lists every transition of state. ConditionMet is
// the auto condition's verdict when one is set, true otherwise. An unknown
// state yields an empty list.
func (e *Engine) GetAvailableTransitions(state State, data Context) []AvailableTransition {
	sd, ok := e.def.States[state]
	if !ok {
		return []AvailableTransition{}
	}

	out := make([]AvailableTransition, 0, len(sd.Transitions))
	for i := range sd.Transitions {
		t := &sd.Transitions[i]
		met := true
		if t.AutoCondition != nil {
			_ = recoverCall(func() error {
				met = false
				met = t.AutoCondition(data)
				return nil
			})
		}
		out = append(out, AvailableTransition{
			Event:        t.Event,
			To:           t.To,
			Description:  t.Description,
			Auto:         t.Auto,
			ConditionMet: met,
		})
	}
	return out
}

// CanTransition reports whether event is defined on state and its guard
// currently allows it. Unknown states and events, guard errors and guard
// panics all report false.
func (e *Engine) CanTransition(ctx context.Context, state State, event Event, data Context) bool {
	sd, ok := e.def.States[state]
	if !ok {
		return false
	}
	t, ok := sd.transition(event)
	if !ok {
		return false
	}
	if t.Guard == nil {
		return true
	}

	var allowed bool
	err := recoverCall(func() error {
		var gerr error
		allowed, gerr = t.Guard(ctx, data)
		return gerr
	})
	return err == nil && allowed
}

// GetNextStates returns the distinct states reachable from state in one
// transition, in definition order
func (e *Engine) GetNextStates(state State) []State {
	sd, ok := e.def.States[state]
	if !ok {
		return []State{}
	}

	seen := make(map[State]bool, len(sd.Transitions))
	out := make([]State, 0, len(sd.Transitions))
	for _, t := range sd.Transitions {
		if seen[t.To] {
			continue
		}
		seen[t.To] = true
		out = append(out, t.To)
	}
	return out
}

// IsTerminalState reports whether state is marked terminal or has no
// outgoing transitions. States outside the definition are not terminal.
func (e *Engine) IsTerminalState(state State) bool {
	sd, ok := e.def.States[state]
	if !ok {
		return false
	}
	return sd.Metadata.IsTerminal || len(sd.Transitions) == 0
}

// GetAllStates returns every state of the definition, sorted by name
func (e *Engine) GetAllStates() []State {
	return sortedStates(e.def.States)
}

// GetTerminalStates returns the terminal subset of GetAllStates
func (e *Engine) GetTerminalStates() []State {
	var out []State
	for _, name := range sortedStates(e.def.States) {
		if e.IsTerminalState(name) {
			out = append(out, name)
		}
	}
	if out == nil {
		return []State{}
	}
	return out
}
