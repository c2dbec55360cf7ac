package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TransitionResult describes the outcome of one transition attempt.
// On failure CurrentState always equals PreviousState.
type TransitionResult struct {
	Success         bool      `json:"success"`
	PreviousState   State     `json:"previous_state"`
	CurrentState    State     `json:"current_state"`
	TransitionEvent Event     `json:"transition_event"`
	Error           string    `json:"error,omitempty"`
	Err             error     `json:"-"`
	Timestamp       time.Time `json:"timestamp"`
}

// ExecuteTransition attempts to fire event from current.
//
// The guard is evaluated first; when it passes, hooks run strictly in order:
// beforeTransition, onExit of the source, onTransition, onEnter of the target,
// afterTransition. The first failing step stops the pipeline and the failure
// is routed to the definition's OnError hook. Hooks that already ran are not
// undone.
//
// ExecuteTransition never panics on caller code and never returns an error;
// every failure is described by the result.
func (e *Engine) ExecuteTransition(ctx context.Context, current State, event Event, data Context) TransitionResult {
	sd, ok := e.def.States[current]
	if !ok {
		return e.failure(current, event, fmt.Errorf("%w: %q", ErrStateNotFound, current))
	}

	t, ok := sd.transition(event)
	if !ok {
		return e.failure(current, event, fmt.Errorf("%w: %q from state %q", ErrTransitionNotFound, event, current))
	}

	if t.Guard != nil {
		var allowed bool
		err := recoverCall(func() error {
			var gerr error
			allowed, gerr = t.Guard(ctx, data)
			return gerr
		})
		if err != nil {
			herr := &HookError{Stage: StageGuard, From: current, To: t.To, Event: event, Err: err}
			e.reportError(ctx, herr, data)
			return e.failure(current, event, herr)
		}
		if !allowed {
			return e.failure(current, event, fmt.Errorf("%w: %s --[%s]--> %s", ErrGuardRejected, current, event, t.To))
		}
	}

	if err := e.runPipeline(ctx, current, sd, t, data); err != nil {
		e.reportError(ctx, err, data)
		return e.failure(current, event, err)
	}

	if e.debug {
		e.logger.Info(fmt.Sprintf("%s --[%s]--> %s", current, event, t.To),
			zap.String("from", current.String()),
			zap.String("event", event.String()),
			zap.String("to", t.To.String()))
	}

	return TransitionResult{
		Success:         true,
		PreviousState:   current,
		CurrentState:    t.To,
		TransitionEvent: event,
		Timestamp:       e.now(),
	}
}

// runPipeline runs the hook sequence of a guarded-through transition
func (e *Engine) runPipeline(ctx context.Context, from State, source *StateDefinition, t *Transition, data Context) error {
	target := e.def.States[t.To]
	info := TransitionInfo{From: from, To: t.To, Event: t.Event, Data: data}

	steps := []struct {
		stage HookStage
		run   func() error
	}{
		{StageBeforeTransition, func() error {
			if e.def.Hooks.BeforeTransition == nil {
				return nil
			}
			return e.def.Hooks.BeforeTransition(ctx, info)
		}},
		{StageExit, func() error {
			if source.OnExit == nil {
				return nil
			}
			return source.OnExit(ctx, data)
		}},
		{StageTransition, func() error {
			if t.OnTransition == nil {
				return nil
			}
			return t.OnTransition(ctx, data)
		}},
		{StageEnter, func() error {
			if target.OnEnter == nil {
				return nil
			}
			return target.OnEnter(ctx, data)
		}},
		{StageAfterTransition, func() error {
			if e.def.Hooks.AfterTransition == nil {
				return nil
			}
			return e.def.Hooks.AfterTransition(ctx, info)
		}},
	}

	for _, step := range steps {
		if err := recoverCall(step.run); err != nil {
			return &HookError{Stage: step.stage, From: from, To: t.To, Event: t.Event, Err: err}
		}
	}
	return nil
}

// reportError hands err to the OnError hook. A panic inside OnError is logged
// and swallowed so it cannot replace the original failure.
func (e *Engine) reportError(ctx context.Context, err error, data Context) {
	if e.def.Hooks.OnError == nil {
		return
	}
	if herr := recoverCall(func() error {
		e.def.Hooks.OnError(ctx, err, data)
		return nil
	}); herr != nil {
		e.logger.Error("onError hook panicked", zap.Error(herr), zap.NamedError("original", err))
	}
}

func (e *Engine) failure(current State, event Event, err error) TransitionResult {
	if e.debug {
		e.logger.Info("workflow transition failed",
			zap.String("from", current.String()),
			zap.String("event", event.String()),
			zap.Error(err))
	}
	return TransitionResult{
		Success:         false,
		PreviousState:   current,
		CurrentState:    current,
		TransitionEvent: event,
		Error:           err.Error(),
		Err:             err,
		Timestamp:       e.now(),
	}
}
