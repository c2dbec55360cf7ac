package workflow

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks def without building an engine
func Validate(def *Definition) error {
	return validateDefinition(def)
}

// validateDefinition collects every structural problem of def
func validateDefinition(def *Definition) error {
	if def == nil {
		return &DefinitionError{Err: ErrNilDefinition}
	}
	if len(def.States) == 0 {
		return &DefinitionError{DefinitionID: def.ID, Err: ErrNoStates}
	}

	var errs []error
	if _, ok := def.States[def.InitialState]; !ok {
		errs = append(errs, &DefinitionError{
			DefinitionID: def.ID,
			State:        def.InitialState,
			Err:          ErrUnknownInitialState,
		})
	}

	for _, name := range sortedStates(def.States) {
		sd := def.States[name]
		if sd == nil {
			errs = append(errs, &DefinitionError{DefinitionID: def.ID, State: name, Err: ErrNilState})
			continue
		}

		seen := make(map[Event]bool, len(sd.Transitions))
		for _, t := range sd.Transitions {
			if t.Event == "" {
				errs = append(errs, &DefinitionError{DefinitionID: def.ID, State: name, Err: ErrEmptyEvent})
				continue
			}
			if seen[t.Event] {
				errs = append(errs, &DefinitionError{DefinitionID: def.ID, State: name, Event: t.Event, Err: ErrDuplicateEvent})
			}
			seen[t.Event] = true

			if _, ok := def.States[t.To]; !ok {
				errs = append(errs, &DefinitionError{
					DefinitionID: def.ID,
					State:        name,
					Event:        t.Event,
					Err:          fmt.Errorf("%w: %q", ErrUnknownTargetState, t.To),
				})
			}
		}
	}

	return errors.Join(errs...)
}

// Lint reports non-fatal authoring problems of a valid definition: automatic
// transitions that can never fire, states unreachable from the initial state
// and cycles made only of automatic transitions.
func Lint(def *Definition) []string {
	if validateDefinition(def) != nil {
		return nil
	}

	var warnings []string
	for _, name := range sortedStates(def.States) {
		for _, t := range def.States[name].Transitions {
			if t.Auto && t.AutoCondition == nil {
				warnings = append(warnings, fmt.Sprintf(
					"state %q event %q is auto but has no auto condition and will never fire", name, t.Event))
			}
		}
	}

	reachable := reachableFrom(def, def.InitialState)
	for _, name := range sortedStates(def.States) {
		if !reachable[name] {
			warnings = append(warnings, fmt.Sprintf("state %q is unreachable from %q", name, def.InitialState))
		}
	}

	for _, cycle := range autoCycles(def) {
		warnings = append(warnings, fmt.Sprintf(
			"automatic transitions form a cycle at %s; evaluation will stop at the auto-transition cap", cycle))
	}

	return warnings
}

// reachableFrom returns the set of states reachable from start
func reachableFrom(def *Definition, start State) map[State]bool {
	seen := map[State]bool{start: true}
	queue := []State{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		sd := def.States[cur]
		if sd == nil {
			continue
		}
		for _, t := range sd.Transitions {
			if !seen[t.To] {
				seen[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	return seen
}

// autoCycles finds back edges in the subgraph of automatic transitions
func autoCycles(def *Definition) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[State]int, len(def.States))
	var cycles []string

	var dfs func(state State)
	dfs = func(state State) {
		color[state] = gray
		for _, t := range def.States[state].Transitions {
			if !t.Auto || t.AutoCondition == nil {
				continue
			}
			switch color[t.To] {
			case gray:
				cycles = append(cycles, fmt.Sprintf("%s -> %s", state, t.To))
			case white:
				dfs(t.To)
			}
		}
		color[state] = black
	}

	for _, name := range sortedStates(def.States) {
		if color[name] == white {
			dfs(name)
		}
	}
	return cycles
}

func sortedStates(states map[State]*StateDefinition) []State {
	names := make([]State, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
