package workflow

import (
	"context"
	"fmt"
)

// EvaluationResult describes one run of the automatic-transition loop.
// Transitions holds the applied transitions; Attempts holds every executed
// transition, failed ones included, in execution order.
type EvaluationResult struct {
	Transitioned bool               `json:"transitioned"`
	Transitions  []TransitionResult `json:"transitions"`
	Attempts     []TransitionResult `json:"attempts"`
	FinalState   State              `json:"final_state"`
	Errors       []string           `json:"errors"`
}

// EvaluateTransitions applies eligible automatic transitions starting at
// current until none applies or the auto-transition cap is reached.
//
// In each state the transitions are scanned in definition order and the
// first auto transition whose condition holds is executed through
// ExecuteTransition. If that execution fails its error is recorded and the
// scan continues with the next eligible candidate; if it succeeds the scan
// restarts from the new state, since hooks may have changed the context.
// Reaching the cap while an eligible transition remains is reported in
// Errors rather than failing the call.
func (e *Engine) EvaluateTransitions(ctx context.Context, current State, data Context) EvaluationResult {
	result := EvaluationResult{
		Transitions: []TransitionResult{},
		Attempts:    []TransitionResult{},
		FinalState:  current,
		Errors:      []string{},
	}

	state := current
	for applied := 0; ; applied++ {
		if applied >= e.maxAutoTransitions {
			if e.hasEligibleAuto(state, data) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%v (limit %d)", ErrMaxAutoTransitions, e.maxAutoTransitions))
				e.logger.Warn("auto-transition cap reached")
			}
			break
		}
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("evaluation stopped: %v", err))
			break
		}

		sd, ok := e.def.States[state]
		if !ok {
			break
		}

		advanced := false
		for i := range sd.Transitions {
			t := &sd.Transitions[i]
			met, err := e.conditionMet(t, data)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if !met {
				continue
			}

			res := e.ExecuteTransition(ctx, state, t.Event, data)
			result.Attempts = append(result.Attempts, res)
			if !res.Success {
				result.Errors = append(result.Errors, res.Error)
				continue
			}

			result.Transitions = append(result.Transitions, res)
			result.Transitioned = true
			state = t.To
			advanced = true
			break
		}

		if !advanced {
			break
		}
	}

	result.FinalState = state
	return result
}

// conditionMet evaluates the auto condition of t. Transitions without a
// condition report false; manual transitions are never evaluated.
func (e *Engine) conditionMet(t *Transition, data Context) (bool, error) {
	if !t.Auto || t.AutoCondition == nil {
		return false, nil
	}
	var met bool
	err := recoverCall(func() error {
		met = t.AutoCondition(data)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("auto condition for %q: %w", t.Event, err)
	}
	return met, nil
}

// hasEligibleAuto reports whether state has an automatic transition ready to fire
func (e *Engine) hasEligibleAuto(state State, data Context) bool {
	sd, ok := e.def.States[state]
	if !ok {
		return false
	}
	for i := range sd.Transitions {
		if met, _ := e.conditionMet(&sd.Transitions[i], data); met {
			return true
		}
	}
	return false
}
