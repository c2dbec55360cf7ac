// Package workflow implements a generic state-machine engine for regulated
// lifecycles such as authorizations and incident reports.
//
// An Engine is built once from a validated Definition and holds no
// per-instance state: every call receives the instance's current state and
// its Context, and returns a result describing what happened. One Engine can
// therefore serve any number of instances concurrently.
package workflow

import (
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAutoTransitions bounds a single EvaluateTransitions call
const DefaultMaxAutoTransitions = 10

// Engine executes transitions over a Definition
type Engine struct {
	def *Definition

	maxAutoTransitions int
	autoEvaluate       bool
	debug              bool
	logger             *zap.Logger
	now                func() time.Time
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithMaxAutoTransitions caps the number of automatic transitions applied by
// one EvaluateTransitions call. Values below 1 keep the default.
func WithMaxAutoTransitions(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAutoTransitions = n
		}
	}
}

// WithAutoEvaluate records whether callers should run EvaluateTransitions
// after manual transitions. The engine itself does not act on it.
func WithAutoEvaluate(enabled bool) EngineOption {
	return func(e *Engine) {
		e.autoEvaluate = enabled
	}
}

// WithDebug enables diagnostic logging of every transition attempt. The
// entries are written at info level so the flag works without lowering the
// logger's level.
func WithDebug(enabled bool) EngineOption {
	return func(e *Engine) {
		e.debug = enabled
	}
}

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for result timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates def and returns an engine over a private copy of it.
// Any structural problem is returned as one or more *DefinitionError values
// joined together; no engine is returned in that case.
func NewEngine(def *Definition, opts ...EngineOption) (*Engine, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	e := &Engine{
		def:                def.clone(),
		maxAutoTransitions: DefaultMaxAutoTransitions,
		autoEvaluate:       true,
		logger:             zap.NewNop(),
		now:                time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With(zap.String("workflow", e.def.ID))
	return e, nil
}

// ID returns the definition identifier
func (e *Engine) ID() string {
	return e.def.ID
}

// Version returns the definition version
func (e *Engine) Version() int {
	return e.def.Version
}

// InitialState returns the state new instances start in
func (e *Engine) InitialState() State {
	return e.def.InitialState
}

// AutoEvaluate reports the auto-evaluate convention configured for this engine
func (e *Engine) AutoEvaluate() bool {
	return e.autoEvaluate
}

// MaxAutoTransitions returns the auto-evaluation cap
func (e *Engine) MaxAutoTransitions() int {
	return e.maxAutoTransitions
}

// StateMetadata returns the metadata of state and whether the state exists
func (e *Engine) StateMetadata(state State) (StateMetadata, bool) {
	sd, ok := e.def.States[state]
	if !ok {
		return StateMetadata{}, false
	}
	return sd.Metadata, true
}
