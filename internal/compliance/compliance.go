// Package compliance provides the built-in regulatory workflows: space
// activity authorization and security incident reporting.
package compliance

import (
	"context"
	"strings"
	"time"

	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// Option configures the built-in definitions
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock overrides the time source used by timestamp hooks
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definitions returns every built-in workflow definition
func Definitions(opts ...Option) []*workflow.Definition {
	return []*workflow.Definition{
		AuthorizationDefinition(opts...),
		IncidentDefinition(opts...),
	}
}

// Progress reports the completion percentage of state for the engine's
// workflow. Terminal states are always complete.
func Progress(engine *workflow.Engine, state workflow.State) int {
	meta, ok := engine.StateMetadata(state)
	if !ok {
		return 0
	}
	if meta.IsTerminal {
		return 100
	}
	return meta.Progress
}

// stamp records the current time under key
func (s *settings) stamp(key string) workflow.ActionFunc {
	return func(_ context.Context, data workflow.Context) error {
		data.Set(key, formatTime(s.now()))
		return nil
	}
}

// deadline records now+d under key
func (s *settings) deadline(key string, d time.Duration) workflow.ActionFunc {
	return func(_ context.Context, data workflow.Context) error {
		data.Set(key, formatTime(s.now().Add(d)))
		return nil
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// requireFields passes when every key holds a non-empty value
func requireFields(keys ...string) workflow.GuardFunc {
	return func(_ context.Context, data workflow.Context) (bool, error) {
		return hasFields(data, keys...), nil
	}
}

func hasFields(data workflow.Context, keys ...string) bool {
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			return false
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// Definition IDs for the built-in workflows
const (
	AuthorizationID = entity.DefinitionAuthorization
	IncidentID      = entity.DefinitionIncident
)
