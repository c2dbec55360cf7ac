package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDefinition is wrapped by every construction-time error
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrNilDefinition is returned when no definition is supplied
	ErrNilDefinition = errors.New("definition is nil")

	// ErrNoStates is returned for a definition without states
	ErrNoStates = errors.New("definition has no states")

	// ErrUnknownInitialState is returned when the initial state is not a defined state
	ErrUnknownInitialState = errors.New("initial state not defined")

	// ErrUnknownTargetState is returned when a transition points at an undefined state
	ErrUnknownTargetState = errors.New("transition target state not defined")

	// ErrDuplicateEvent is returned when a state defines the same event twice
	ErrDuplicateEvent = errors.New("duplicate event in state")

	// ErrEmptyEvent is returned for a transition without an event name
	ErrEmptyEvent = errors.New("transition has empty event name")

	// ErrNilState is returned for a state key mapped to a nil definition
	ErrNilState = errors.New("state definition is nil")
)

var (
	// ErrStateNotFound is reported when the current state is not part of the definition
	ErrStateNotFound = errors.New("state not found")

	// ErrTransitionNotFound is reported when the event is not defined for the current state
	ErrTransitionNotFound = errors.New("transition not found")

	// ErrGuardRejected is reported when a guard returns false
	ErrGuardRejected = errors.New("guard rejected transition")

	// ErrHookFailed is wrapped by every HookError
	ErrHookFailed = errors.New("hook failed")

	// ErrMaxAutoTransitions is reported when the auto-evaluation loop hits its cap
	ErrMaxAutoTransitions = errors.New("maximum auto-transitions reached, possible infinite loop")
)

// DefinitionError describes a structural problem found while constructing an engine
type DefinitionError struct {
	DefinitionID string
	State        State
	Event        Event
	Err          error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("workflow")
	if e.DefinitionID != "" {
		fmt.Fprintf(&b, " %q", e.DefinitionID)
	}
	if e.State != "" {
		fmt.Fprintf(&b, " state %q", e.State)
	}
	if e.Event != "" {
		fmt.Fprintf(&b, " event %q", e.Event)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap exposes both ErrInvalidDefinition and the specific cause
func (e *DefinitionError) Unwrap() []error {
	return []error{ErrInvalidDefinition, e.Err}
}

// HookStage identifies which step of the transition pipeline failed
type HookStage string

const (
	StageGuard            HookStage = "guard"
	StageBeforeTransition HookStage = "beforeTransition"
	StageExit             HookStage = "onExit"
	StageTransition       HookStage = "onTransition"
	StageEnter            HookStage = "onEnter"
	StageAfterTransition  HookStage = "afterTransition"
)

// HookError wraps a failure raised by caller-supplied code during a transition.
// Panics are converted into HookErrors as well.
type HookError struct {
	Stage HookStage
	From  State
	To    State
	Event Event
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s failed for %s --[%s]--> %s: %v", e.Stage, e.From, e.Event, e.To, e.Err)
}

// Unwrap exposes both ErrHookFailed and the underlying error
func (e *HookError) Unwrap() []error {
	return []error{ErrHookFailed, e.Err}
}

// ErrorKind classifies a transition failure for metrics labels and logs
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStateNotFound):
		return "state_not_found"
	case errors.Is(err, ErrTransitionNotFound):
		return "transition_not_found"
	case errors.Is(err, ErrGuardRejected):
		return "guard_rejected"
	case errors.Is(err, ErrMaxAutoTransitions):
		return "max_auto_transitions"
	}

	var hookErr *HookError
	if errors.As(err, &hookErr) {
		if hookErr.Stage == StageGuard {
			return "guard_error"
		}
		return "hook_failed"
	}
	return "unknown"
}

// recoverCall runs fn and converts a panic into an error
func recoverCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rerr)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
